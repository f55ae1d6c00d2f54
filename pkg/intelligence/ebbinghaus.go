package intelligence

import (
	"math"
	"time"
)

// EbbinghausManager applies the Ebbinghaus forgetting curve to stored
// memories during consolidation.
//
// A memory's importance fades with the time since it was last touched and
// is lifted again by how often it has been retrieved:
//
//	importance = clamp(base * max(floor, R) + min(cap, bonus * access_count), 0, 3)
//	R          = e^(-decay_rate * hours_elapsed / 24)
//
// Example usage:
//
//	manager := NewEbbinghausManager(0.01)
//	retention := manager.CalculateRetention(createdAt, lastAccessedAt, time.Now())
//	importance := manager.ConsolidatedImportance(base, accessCount, retention)
type EbbinghausManager struct {
	// decayRate is the per-day rate at which retention decays.
	decayRate float64

	// retentionFloor keeps very old memories from losing all importance.
	retentionFloor float64

	// accessBonus is added per recorded retrieval, up to accessBonusCap.
	accessBonus    float64
	accessBonusCap float64

	// forgetThreshold, forgetAge: unpinned, never accessed memories below
	// the threshold and older than the age are forgotten.
	forgetThreshold float64
	forgetAge       time.Duration
}

// NewEbbinghausManager creates a manager with the given decay rate and the
// default floors: retention floor 0.1, access bonus 0.05 capped at 0.5,
// forget threshold 0.2 after 180 days.
func NewEbbinghausManager(decayRate float64) *EbbinghausManager {
	return NewEbbinghausManagerWithConfig(decayRate, 0.1, 0.05, 0.5, 0.2, 180*24*time.Hour)
}

// NewEbbinghausManagerWithConfig creates a manager with custom settings.
func NewEbbinghausManagerWithConfig(
	decayRate, retentionFloor, accessBonus, accessBonusCap, forgetThreshold float64,
	forgetAge time.Duration,
) *EbbinghausManager {
	return &EbbinghausManager{
		decayRate:       decayRate,
		retentionFloor:  retentionFloor,
		accessBonus:     accessBonus,
		accessBonusCap:  accessBonusCap,
		forgetThreshold: forgetThreshold,
		forgetAge:       forgetAge,
	}
}

// CalculateRetention returns the retention strength of a memory at now,
// measured from its last access or, if never accessed, its creation.
//
// Returns a value between 0.0 and 1.0 where 1.0 means just touched.
func (m *EbbinghausManager) CalculateRetention(createdAt time.Time, lastAccessedAt *time.Time, now time.Time) float64 {
	from := createdAt
	if lastAccessedAt != nil && lastAccessedAt.After(createdAt) {
		from = *lastAccessedAt
	}

	hoursElapsed := now.Sub(from).Hours()
	if hoursElapsed < 0 {
		hoursElapsed = 0
	}

	// R = e^(-decay_rate * hours_elapsed / 24)
	retention := math.Exp(-m.decayRate * hoursElapsed / 24.0)
	return math.Max(0, math.Min(1, retention))
}

// ConsolidatedImportance combines the write-time importance with the
// current retention and the access history.
func (m *EbbinghausManager) ConsolidatedImportance(baseImportance float64, accessCount int64, retention float64) float64 {
	bonus := math.Min(m.accessBonusCap, m.accessBonus*float64(accessCount))
	return ClampImportance(baseImportance*math.Max(m.retentionFloor, retention) + bonus)
}

// ShouldForget reports whether a memory may be removed by maintenance.
// Pinned memories are never forgotten.
func (m *EbbinghausManager) ShouldForget(importance float64, accessCount int64, pinned bool, createdAt, now time.Time) bool {
	if pinned {
		return false
	}
	return importance < m.forgetThreshold && accessCount == 0 && now.Sub(createdAt) > m.forgetAge
}

// ForgetThreshold returns the importance below which memories may be forgotten.
func (m *EbbinghausManager) ForgetThreshold() float64 {
	return m.forgetThreshold
}

// ForgetAge returns the minimum age of a forgettable memory.
func (m *EbbinghausManager) ForgetAge() time.Duration {
	return m.forgetAge
}
