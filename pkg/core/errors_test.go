package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	brain "github.com/odiumxp/ai-brain/pkg/core"
)

func TestBrainError(t *testing.T) {
	err := brain.NewBrainError("RecordTurn", brain.ErrInvalidInput)
	assert.EqualError(t, err, "aibrain: RecordTurn: invalid input")
	assert.ErrorIs(t, err, brain.ErrInvalidInput)

	var be *brain.BrainError
	assert.True(t, errors.As(err, &be))
	assert.Equal(t, "RecordTurn", be.Op)
}

func TestNewBrainError_Nil(t *testing.T) {
	assert.NoError(t, brain.NewBrainError("Close", nil))
}

func TestBrainError_WrapsChain(t *testing.T) {
	inner := fmt.Errorf("%w: memory 7", brain.ErrNotFound)
	err := brain.NewBrainError("GetMemory", inner)
	assert.ErrorIs(t, err, brain.ErrNotFound)
	assert.Contains(t, err.Error(), "memory 7")
}
