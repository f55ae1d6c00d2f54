package core

import (
	"context"
	"time"

	"github.com/odiumxp/ai-brain/pkg/emotion"
	"github.com/odiumxp/ai-brain/pkg/reflection"
)

// DetectEmotions reads the emotions of text and adds them to the user's
// emotional timeline. It returns no events when the oracle is down.
func (c *Client) DetectEmotions(ctx context.Context, userID, text string) ([]*EmotionEvent, error) {
	if userID == "" {
		return nil, NewBrainError("DetectEmotions", ErrInvalidInput)
	}
	events, err := c.emotion.DetectEmotions(ctx, userID, 0, text)
	if err != nil {
		return nil, classify("DetectEmotions", err)
	}
	return events, nil
}

// GetEmotionalState returns the user's recent emotions and learned
// patterns, or nil when nothing is known yet.
func (c *Client) GetEmotionalState(ctx context.Context, userID string) (*EmotionalContext, error) {
	ec, err := c.emotion.GetContext(ctx, userID)
	if err != nil {
		return nil, classify("GetEmotionalState", err)
	}
	return ec, nil
}

// GetEmotionalContext renders the emotional state as a prompt block. It is
// empty when nothing is known yet.
func (c *Client) GetEmotionalContext(ctx context.Context, userID string) (string, error) {
	ec, err := c.GetEmotionalState(ctx, userID)
	if err != nil {
		return "", err
	}
	return emotion.GenerateContext(ec, c.now().UTC()), nil
}

// GetEmotionalTrends reports the user's emotions over the last window,
// strongest first. A zero window uses the configured one.
func (c *Client) GetEmotionalTrends(ctx context.Context, userID string, window time.Duration) ([]*EmotionTrend, error) {
	trends, err := c.emotion.Trends(ctx, userID, window)
	if err != nil {
		return nil, classify("GetEmotionalTrends", err)
	}
	return trends, nil
}

// GetEmpathyCalibration returns how to respond to one emotion of the user.
func (c *Client) GetEmpathyCalibration(ctx context.Context, userID, emotionType string) (*EmpathyCalibration, error) {
	if userID == "" || emotionType == "" {
		return nil, NewBrainError("GetEmpathyCalibration", ErrInvalidInput)
	}
	cal, err := c.emotion.EmpathyCalibration(ctx, userID, emotionType)
	if err != nil {
		return nil, classify("GetEmpathyCalibration", err)
	}
	return cal, nil
}

// Reflect writes a reflection over the user's last day, week or month. An
// empty period uses the configured one.
func (c *Client) Reflect(ctx context.Context, userID, period string) (*Reflection, error) {
	if userID == "" {
		return nil, NewBrainError("Reflect", ErrInvalidInput)
	}
	switch period {
	case "", reflection.Day, reflection.Week, reflection.Month:
	default:
		return nil, NewBrainError("Reflect", ErrInvalidInput)
	}
	r, err := c.reflection.Reflect(ctx, userID, period)
	if err != nil {
		return nil, classify("Reflect", err)
	}
	return r, nil
}

// GetRecentReflections returns the newest reflections of a user.
func (c *Client) GetRecentReflections(ctx context.Context, userID string, limit int) ([]*Reflection, error) {
	rs, err := c.reflection.GetRecentReflections(ctx, userID, limit)
	if err != nil {
		return nil, classify("GetRecentReflections", err)
	}
	return rs, nil
}
