package core

import (
	"context"

	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/personality"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

// BuildMemoryChains tries the recent memories of a user as chain seeds and
// returns the number of chains created. Memories that already belong to a
// chain are skipped, so repeated calls create no duplicates.
func (c *Client) BuildMemoryChains(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, NewBrainError("BuildMemoryChains", ErrInvalidInput)
	}
	n, err := c.chains.Build(ctx, userID, chains.BuildOptions{})
	return n, classify("BuildMemoryChains", err)
}

// FindRelevantChains returns the strongest chains whose summary or topics
// mention text.
func (c *Client) FindRelevantChains(ctx context.Context, userID, text string, limit int) ([]*Chain, error) {
	found, err := c.chains.Find(ctx, userID, text, limit)
	if err != nil {
		return nil, classify("FindRelevantChains", err)
	}
	return found, nil
}

// GetChainMemories returns a chain with its memories in sequence order and
// counts one access on the chain.
func (c *Client) GetChainMemories(ctx context.Context, userID string, chainID int64) (*ChainMemories, error) {
	cm, err := c.chains.GetChainMemories(ctx, userID, chainID)
	if err != nil {
		return nil, classify("GetChainMemories", err)
	}
	return cm, nil
}

// GetNarrativeUnderstanding connects the chains matching topic into one
// story. It returns nil when no chain matches.
func (c *Client) GetNarrativeUnderstanding(ctx context.Context, userID, topic string) (*Narrative, error) {
	n, err := c.chains.GetNarrativeUnderstanding(ctx, userID, topic)
	if err != nil {
		return nil, classify("GetNarrativeUnderstanding", err)
	}
	return n, nil
}

// InitializePersonality stores every missing trait at the default value.
func (c *Client) InitializePersonality(ctx context.Context, userID string) error {
	if userID == "" {
		return NewBrainError("InitializePersonality", ErrInvalidInput)
	}
	return classify("InitializePersonality", c.personality.Initialize(ctx, userID))
}

// GetPersonality returns the trait values of a user on the [0,10] scale.
func (c *Client) GetPersonality(ctx context.Context, userID string) (Personality, error) {
	p, err := c.personality.GetPersonality(ctx, userID)
	if err != nil {
		return nil, classify("GetPersonality", err)
	}
	return p, nil
}

// GetPersonalityHistory returns the stored traits with their dated history.
// An empty trait returns all of them.
func (c *Client) GetPersonalityHistory(ctx context.Context, userID, trait string) ([]*Trait, error) {
	traits, err := c.personality.GetPersonalityHistory(ctx, userID, trait)
	if err != nil {
		return nil, classify("GetPersonalityHistory", err)
	}
	return traits, nil
}

// UpdatePersonality moves every trait toward the signal read from the
// user's recent conversations.
func (c *Client) UpdatePersonality(ctx context.Context, userID string) (*personality.UpdateReport, error) {
	if userID == "" {
		return nil, NewBrainError("UpdatePersonality", ErrInvalidInput)
	}
	report, err := c.personality.UpdatePersonality(ctx, userID)
	if err != nil {
		return nil, classify("UpdatePersonality", err)
	}
	return report, nil
}

// ConsolidatePersonality stabilises the traits from their history.
func (c *Client) ConsolidatePersonality(ctx context.Context, userID string) (Personality, error) {
	if userID == "" {
		return nil, NewBrainError("ConsolidatePersonality", ErrInvalidInput)
	}
	p, err := c.personality.ConsolidatePersonality(ctx, userID)
	if err != nil {
		return nil, classify("ConsolidatePersonality", err)
	}
	return p, nil
}

// ProcessConversationForUserModel extracts beliefs and goals from text and
// sometimes infers a mental state. memoryID links new evidence to the
// memory the text came from; zero links none.
func (c *Client) ProcessConversationForUserModel(ctx context.Context, userID, text string, memoryID int64) (*usermodel.ProcessReport, error) {
	if userID == "" {
		return nil, NewBrainError("ProcessConversationForUserModel", ErrInvalidInput)
	}
	report, err := c.userModel.ProcessConversation(ctx, userID, text, memoryID)
	if err != nil {
		return nil, classify("ProcessConversationForUserModel", err)
	}
	return report, nil
}

// GetUserModel returns the strongest beliefs, the top active goals and the
// latest mental state of a user.
func (c *Client) GetUserModel(ctx context.Context, userID string) (*UserModel, error) {
	m, err := c.userModel.GetUserModel(ctx, userID)
	if err != nil {
		return nil, classify("GetUserModel", err)
	}
	return m, nil
}

// GetUserModelContext renders the user model as a prompt block.
func (c *Client) GetUserModelContext(ctx context.Context, userID string) (string, error) {
	m, err := c.GetUserModel(ctx, userID)
	if err != nil {
		return "", err
	}
	return usermodel.GenerateContext(m), nil
}

// UpdateGoalProgress sets the progress of a goal, clamped to [0,100]. A
// non-empty status also changes the goal status.
func (c *Client) UpdateGoalProgress(ctx context.Context, userID string, goalID int64, progress int, status GoalStatus) (*Goal, error) {
	g, err := c.userModel.UpdateGoalProgress(ctx, userID, goalID, progress, status)
	if err != nil {
		return nil, classify("UpdateGoalProgress", err)
	}
	return g, nil
}
