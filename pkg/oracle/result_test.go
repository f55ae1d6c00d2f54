package oracle_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odiumxp/ai-brain/pkg/oracle"
)

func TestResult_Constructors(t *testing.T) {
	ok := oracle.OK(42)
	assert.True(t, ok.IsOK())
	assert.Equal(t, oracle.StatusOK, ok.Status)
	assert.NoError(t, ok.Err)
	assert.Equal(t, 42, ok.Or(7))

	boom := errors.New("boom")
	degraded := oracle.Degraded(3, boom)
	assert.False(t, degraded.IsOK())
	assert.Equal(t, 3, degraded.Or(7))
	assert.ErrorIs(t, degraded.Err, boom)

	failed := oracle.Failure[int](boom)
	assert.Equal(t, oracle.StatusFailure, failed.Status)
	assert.Equal(t, 7, failed.Or(7))

	assert.ErrorIs(t, oracle.Failure[int](nil).Err, oracle.ErrUnavailable)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "ok", oracle.StatusOK.String())
	assert.Equal(t, "degraded", oracle.StatusDegraded.String())
	assert.Equal(t, "failure", oracle.StatusFailure.String())
	assert.Equal(t, "unknown", oracle.Status(9).String())
}
