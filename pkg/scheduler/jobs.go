package scheduler

import (
	"context"
	"time"

	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/emotion"
	"github.com/odiumxp/ai-brain/pkg/episodic"
	"github.com/odiumxp/ai-brain/pkg/personality"
	"github.com/odiumxp/ai-brain/pkg/reflection"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

// Job names.
const (
	JobMemoryConsolidation      = "memory-consolidation"
	JobMemoryChains             = "memory-chains"
	JobChainDeepCleanup         = "memory-chains-deep-cleanup"
	JobPersonalityEvolution     = "personality-evolution"
	JobPersonalityConsolidation = "personality-consolidation"
	JobUserModel                = "user-model"
	JobMentalStateAnalysis      = "mental-state-analysis"
	JobEmotionalContinuity      = "emotional-continuity"
	JobEmotionalDeepAnalysis    = "emotional-deep-analysis"
	JobReflection               = "reflection"
)

// Config holds the cadence of every job and the scheduler switches.
type Config struct {
	// Enabled starts the ticker loops in long running processes.
	Enabled bool `koanf:"enabled"`

	// ActiveWindow defines the users that per-active-user steps visit.
	ActiveWindow time.Duration `koanf:"active_window"`

	// LockTTL bounds how long a cross-process lock is held.
	LockTTL time.Duration `koanf:"lock_ttl"`

	MemoryConsolidation      time.Duration `koanf:"memory_consolidation"`
	MemoryChains             time.Duration `koanf:"memory_chains"`
	ChainDeepCleanup         time.Duration `koanf:"chain_deep_cleanup"`
	PersonalityEvolution     time.Duration `koanf:"personality_evolution"`
	PersonalityConsolidation time.Duration `koanf:"personality_consolidation"`
	UserModel                time.Duration `koanf:"user_model"`
	MentalStateAnalysis      time.Duration `koanf:"mental_state_analysis"`
	EmotionalContinuity      time.Duration `koanf:"emotional_continuity"`
	EmotionalDeepAnalysis    time.Duration `koanf:"emotional_deep_analysis"`
	Reflection               time.Duration `koanf:"reflection"`
}

// DefaultConfig returns the default cadences.
func DefaultConfig() Config {
	const day = 24 * time.Hour
	return Config{
		Enabled:                  true,
		ActiveWindow:             7 * day,
		LockTTL:                  time.Hour,
		MemoryConsolidation:      day,
		MemoryChains:             day,
		ChainDeepCleanup:         7 * day,
		PersonalityEvolution:     day,
		PersonalityConsolidation: 7 * day,
		UserModel:                day,
		MentalStateAnalysis:      7 * day,
		EmotionalContinuity:      day,
		EmotionalDeepAnalysis:    7 * day,
		Reflection:               7 * day,
	}
}

// UserSource lists users for per-user steps.
type UserSource interface {
	ListUsers(ctx context.Context) ([]string, error)
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// Engines are the components the standard jobs drive. A nil engine
// leaves its jobs out.
type Engines struct {
	Users       UserSource
	Episodic    *episodic.Engine
	Chains      *chains.Engine
	Personality *personality.Engine
	UserModel   *usermodel.Engine
	Emotion     *emotion.Engine
	Reflection  *reflection.Engine
}

// StandardJobs builds the maintenance catalogue.
func StandardJobs(e Engines, cfg Config, now func() time.Time) []Job {
	if now == nil {
		now = time.Now
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = DefaultConfig().ActiveWindow
	}
	allUsers := e.Users.ListUsers
	activeUsers := func(ctx context.Context) ([]string, error) {
		return e.Users.ListActiveUsers(ctx, now().UTC().Add(-cfg.ActiveWindow))
	}

	var jobs []Job

	if e.Episodic != nil {
		jobs = append(jobs, Job{
			Name:     JobMemoryConsolidation,
			Interval: cfg.MemoryConsolidation,
			Users:    allUsers,
			PerUser: func(ctx context.Context, userID string) error {
				_, err := e.Episodic.Consolidate(ctx, userID)
				return err
			},
		})
	}

	if e.Chains != nil {
		jobs = append(jobs,
			Job{
				Name:     JobMemoryChains,
				Interval: cfg.MemoryChains,
				Before: []Step{{Name: "cleanup", Run: func(ctx context.Context) error {
					_, err := e.Chains.Cleanup(ctx)
					return err
				}}},
				Users: activeUsers,
				PerUser: func(ctx context.Context, userID string) error {
					_, err := e.Chains.Rebuild(ctx, userID)
					return err
				},
				After: []Step{{Name: "strengthen", Run: func(ctx context.Context) error {
					_, err := e.Chains.Strengthen(ctx)
					return err
				}}},
			},
			Job{
				Name:     JobChainDeepCleanup,
				Interval: cfg.ChainDeepCleanup,
				Before: []Step{{Name: "deep-cleanup", Run: func(ctx context.Context) error {
					_, err := e.Chains.DeepCleanup(ctx)
					return err
				}}},
			},
		)
	}

	if e.Personality != nil {
		jobs = append(jobs,
			Job{
				Name:     JobPersonalityEvolution,
				Interval: cfg.PersonalityEvolution,
				Users:    allUsers,
				PerUser: func(ctx context.Context, userID string) error {
					_, err := e.Personality.UpdatePersonality(ctx, userID)
					return err
				},
			},
			Job{
				Name:     JobPersonalityConsolidation,
				Interval: cfg.PersonalityConsolidation,
				Users:    allUsers,
				PerUser: func(ctx context.Context, userID string) error {
					_, err := e.Personality.ConsolidatePersonality(ctx, userID)
					return err
				},
			},
		)
	}

	if e.UserModel != nil {
		jobs = append(jobs,
			Job{
				Name:     JobUserModel,
				Interval: cfg.UserModel,
				Users:    activeUsers,
				PerUser: func(ctx context.Context, userID string) error {
					if _, err := e.UserModel.Reprocess(ctx, userID); err != nil {
						return err
					}
					if _, err := e.UserModel.AdvanceGoals(ctx, userID); err != nil {
						return err
					}
					if _, err := e.UserModel.PrioritizeGoals(ctx, userID); err != nil {
						return err
					}
					_, err := e.UserModel.PruneMentalStates(ctx, userID)
					return err
				},
				After: []Step{
					{Name: "strengthen-beliefs", Run: func(ctx context.Context) error {
						_, err := e.UserModel.StrengthenBeliefs(ctx)
						return err
					}},
					{Name: "cleanup", Run: func(ctx context.Context) error {
						_, err := e.UserModel.Cleanup(ctx)
						return err
					}},
				},
			},
			Job{
				Name:     JobMentalStateAnalysis,
				Interval: cfg.MentalStateAnalysis,
				Users:    activeUsers,
				PerUser: func(ctx context.Context, userID string) error {
					_, err := e.UserModel.AnalyzeMentalState(ctx, userID)
					return err
				},
			},
		)
	}

	if e.Emotion != nil {
		jobs = append(jobs,
			Job{
				Name:     JobEmotionalContinuity,
				Interval: cfg.EmotionalContinuity,
				Users:    activeUsers,
				PerUser: func(ctx context.Context, userID string) error {
					if _, err := e.Emotion.ProcessRecent(ctx, userID); err != nil {
						return err
					}
					if _, err := e.Emotion.AnalyzePatterns(ctx, userID); err != nil {
						return err
					}
					_, err := e.Emotion.Trends(ctx, userID, 0)
					return err
				},
				After: []Step{{Name: "prune", Run: func(ctx context.Context) error {
					_, err := e.Emotion.Prune(ctx)
					return err
				}}},
			},
			Job{
				Name:     JobEmotionalDeepAnalysis,
				Interval: cfg.EmotionalDeepAnalysis,
				Users:    allUsers,
				PerUser: func(ctx context.Context, userID string) error {
					if _, err := e.Emotion.DeepTrends(ctx, userID); err != nil {
						return err
					}
					_, err := e.Emotion.AnalyzePatterns(ctx, userID)
					return err
				},
			},
		)
	}

	if e.Reflection != nil {
		jobs = append(jobs, Job{
			Name:     JobReflection,
			Interval: cfg.Reflection,
			Users:    allUsers,
			PerUser: func(ctx context.Context, userID string) error {
				_, err := e.Reflection.Reflect(ctx, userID, "")
				return err
			},
		})
	}

	return jobs
}
