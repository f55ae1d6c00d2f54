package scheduler

import (
	"sort"
	"sync"
	"time"
)

// State is the run state of one job.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Outcome is the result of the last finished run.
type Outcome string

const (
	OutcomeNone  Outcome = ""
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// JobState is a snapshot of one job's guard and last run.
type JobState struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	LastOutcome  Outcome   `json:"last_outcome,omitempty"`
	LastRunID    string    `json:"last_run_id,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastStarted  time.Time `json:"last_started,omitempty"`
	LastFinished time.Time `json:"last_finished,omitempty"`
}

// JobStates holds the single-flight guard of every job. It is owned by a
// scheduler and can be shared between schedulers of one process.
type JobStates struct {
	mu   sync.Mutex
	jobs map[string]*JobState
}

// NewJobStates creates an empty state table.
func NewJobStates() *JobStates {
	return &JobStates{jobs: make(map[string]*JobState)}
}

// acquire moves the job from idle to running. It reports false when the
// job is already running.
func (s *JobStates) acquire(name, runID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.jobs[name]
	if !ok {
		st = &JobState{Name: name, State: StateIdle}
		s.jobs[name] = st
	}
	if st.State == StateRunning {
		return false
	}
	st.State = StateRunning
	st.LastRunID = runID
	st.LastStarted = at
	return true
}

// release returns the job to idle and records the outcome.
func (s *JobStates) release(name string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.jobs[name]
	if st == nil {
		return
	}
	st.State = StateIdle
	st.LastFinished = at
	if err != nil {
		st.LastOutcome = OutcomeError
		st.LastError = err.Error()
		return
	}
	st.LastOutcome = OutcomeOK
	st.LastError = ""
}

// Get returns the state of one job. Unknown jobs read as idle.
func (s *JobStates) Get(name string) JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.jobs[name]; ok {
		return *st
	}
	return JobState{Name: name, State: StateIdle}
}

// Snapshot returns the state of every job that ran at least once, sorted
// by name.
func (s *JobStates) Snapshot() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobState, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
