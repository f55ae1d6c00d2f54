package core

import (
	"context"
	"sort"
	"sync"
)

// maxBatchConcurrency bounds the turns stored at once by StoreMemories.
const maxBatchConcurrency = 10

// BatchStoreResult reports the outcome of StoreMemories.
type BatchStoreResult struct {
	// Stored holds the created memories in input order.
	Stored []*Memory

	Failed []BatchStoreError

	Total int
}

// BatchStoreError is one turn that could not be stored.
type BatchStoreError struct {
	// Index is the position of the turn in the input.
	Index int
	Err   error
}

// StoreMemories stores many turns concurrently, for example when importing
// an existing conversation log. It does not trigger the background work of
// RecordTurn; the maintenance jobs pick the imported memories up.
//
// Example:
//
//	result, err := client.StoreMemories(ctx, turns)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("stored %d/%d turns\n", len(result.Stored), result.Total)
func (c *Client) StoreMemories(ctx context.Context, turns []Turn) (*BatchStoreResult, error) {
	if c.closed.Load() {
		return nil, NewBrainError("StoreMemories", ErrClosed)
	}
	result := &BatchStoreResult{Total: len(turns)}
	if len(turns) == 0 {
		return result, nil
	}

	stored := make([]*Memory, len(turns))
	sem := make(chan struct{}, maxBatchConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, turn := range turns {
		wg.Add(1)
		sem <- struct{}{}

		go func(index int, t Turn) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, BatchStoreError{Index: index, Err: err})
				mu.Unlock()
				return
			}

			memory, err := c.StoreMemory(ctx, t)
			if err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, BatchStoreError{Index: index, Err: err})
				mu.Unlock()
				return
			}
			stored[index] = memory
		}(i, turn)
	}
	wg.Wait()

	for _, m := range stored {
		if m != nil {
			result.Stored = append(result.Stored, m)
		}
	}
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Index < result.Failed[j].Index })

	c.logger.Debug().
		Int("total", result.Total).
		Int("stored", len(result.Stored)).
		Int("failed", len(result.Failed)).
		Msg("batch stored")
	return result, nil
}
