package core

import (
	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/emotion"
	"github.com/odiumxp/ai-brain/pkg/episodic"
	"github.com/odiumxp/ai-brain/pkg/personality"
	"github.com/odiumxp/ai-brain/pkg/reflection"
	"github.com/odiumxp/ai-brain/pkg/scheduler"
	"github.com/odiumxp/ai-brain/pkg/storage"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

// Turn is one exchange between the user and the agent.
//
// Example:
//
//	memory, err := client.RecordTurn(ctx, core.Turn{
//	    UserID:   "user_001",
//	    UserText: "I finally shipped the project!",
//	    AIText:   "Congratulations, that was a long road.",
//	})
type Turn = episodic.Turn

// Records returned by the client.
type (
	Memory      = storage.Memory
	MemoryStats = storage.MemoryStats
	Chain       = storage.Chain
	Trait       = storage.Trait
	Belief      = storage.Belief
	Goal        = storage.Goal
	GoalStatus  = storage.GoalStatus
	MentalState = storage.MentalState

	EmotionEvent   = storage.EmotionEvent
	EmotionPattern = storage.EmotionPattern
	EmotionTrend   = storage.EmotionTrend
)

// Results of composite reads.
type (
	ChainMemories      = chains.ChainMemories
	Narrative          = chains.Narrative
	Personality        = personality.Personality
	UserModel          = usermodel.Model
	EmotionalContext   = emotion.Context
	EmpathyCalibration = emotion.Calibration
	Reflection         = reflection.Reflection
	RunReport          = scheduler.RunReport
	JobState           = scheduler.JobState
)

// Names of the maintenance jobs, for RunMaintenance.
const (
	JobMemoryConsolidation      = scheduler.JobMemoryConsolidation
	JobMemoryChains             = scheduler.JobMemoryChains
	JobChainDeepCleanup         = scheduler.JobChainDeepCleanup
	JobPersonalityEvolution     = scheduler.JobPersonalityEvolution
	JobPersonalityConsolidation = scheduler.JobPersonalityConsolidation
	JobUserModel                = scheduler.JobUserModel
	JobMentalStateAnalysis      = scheduler.JobMentalStateAnalysis
	JobEmotionalContinuity      = scheduler.JobEmotionalContinuity
	JobEmotionalDeepAnalysis    = scheduler.JobEmotionalDeepAnalysis
	JobReflection               = scheduler.JobReflection
)
