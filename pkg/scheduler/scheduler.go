// Package scheduler runs the maintenance jobs of every engine over all
// users on independent cadences.
//
// Each job is single-flight: a second run of a job that is still running
// is refused with ErrJobRunning. Work for one user is isolated from the
// others; an error or panic while processing a user is recorded in the run
// report and the loop moves on.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/metrics"
)

var (
	// ErrJobRunning is returned when a job is started while it runs.
	ErrJobRunning = errors.New("job already running")

	// ErrUnknownJob is returned for a job name that is not registered.
	ErrUnknownJob = errors.New("unknown job")
)

// Step is one global unit of a job.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Job is a periodic maintenance routine. A run executes Before, then
// PerUser for every user returned by Users, then After.
type Job struct {
	Name string

	// Interval is the cadence used by Start. Jobs with a zero interval
	// only run through RunNow.
	Interval time.Duration

	Before  []Step
	Users   func(ctx context.Context) ([]string, error)
	PerUser func(ctx context.Context, userID string) error
	After   []Step
}

// UserFailure is one isolated per-user error.
type UserFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// StepFailure is one failed global step.
type StepFailure struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// RunReport describes one run of a job.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Job        string        `json:"job"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Users      int           `json:"users"`
	Succeeded  int           `json:"succeeded"`
	Failures   []UserFailure `json:"failures,omitempty"`
	Steps      []StepFailure `json:"step_failures,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// status is the metrics label of the run.
func (r *RunReport) status() string {
	switch {
	case r.Error != "" || len(r.Steps) > 0:
		return "error"
	case len(r.Failures) > 0:
		return "partial"
	}
	return "ok"
}

// Scheduler owns the job registry and the ticker loops.
type Scheduler struct {
	mu    sync.Mutex
	jobs  map[string]Job
	order []string

	states  *JobStates
	lock    Lock
	lockTTL time.Duration
	logger  zerolog.Logger
	metrics *metrics.Manager
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics records job runs.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithStates injects the guard table.
func WithStates(states *JobStates) Option {
	return func(s *Scheduler) {
		s.states = states
	}
}

// WithLock adds a cross-process lock held for at most ttl per run.
func WithLock(lock Lock, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.lock = lock
		s.lockTTL = ttl
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a scheduler without jobs.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:    make(map[string]Job),
		states:  NewJobStates(),
		lockTTL: time.Hour,
		logger:  zerolog.Nop(),
		metrics: metrics.NoOpManager(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. Names must be unique.
func (s *Scheduler) Register(jobs ...Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if job.Name == "" {
			return errors.New("scheduler: job name is required")
		}
		if _, ok := s.jobs[job.Name]; ok {
			return fmt.Errorf("scheduler: job %q already registered", job.Name)
		}
		if job.PerUser != nil && job.Users == nil {
			return fmt.Errorf("scheduler: job %q has a per-user step but no user source", job.Name)
		}
		s.jobs[job.Name] = job
		s.order = append(s.order, job.Name)
	}
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// States returns the guard table.
func (s *Scheduler) States() *JobStates {
	return s.states
}

// RunNow runs one job to completion. The returned error is set only when
// the run did not start or could not list its users; step and per-user
// failures are reported in the RunReport.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*RunReport, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		Job:       name,
		StartedAt: s.now(),
	}
	if !s.states.acquire(name, report.RunID, report.StartedAt) {
		s.metrics.RecordJobRun(name, "skipped", 0)
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	var runErr error
	defer func() {
		report.FinishedAt = s.now()
		s.states.release(name, report.FinishedAt, runErr)
	}()

	if s.lock != nil {
		locked, err := s.lock.TryLock(ctx, name, report.RunID, s.lockTTL)
		if err != nil {
			runErr = err
			return nil, err
		}
		if !locked {
			s.metrics.RecordJobRun(name, "skipped", 0)
			return nil, fmt.Errorf("%w: %s (held by another process)", ErrJobRunning, name)
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx), name, report.RunID); err != nil {
				s.logger.Warn().Err(err).Str("job", name).Msg("failed to release job lock")
			}
		}()
	}

	log := s.logger.With().Str("job", name).Str("run_id", report.RunID).Logger()
	log.Info().Msg("job started")

	runErr = s.execute(ctx, job, report, log)

	finished := s.now()
	if runErr != nil {
		report.Error = runErr.Error()
	} else if len(report.Steps) > 0 {
		runErr = fmt.Errorf("%d step(s) failed", len(report.Steps))
	}
	s.metrics.RecordJobRun(name, report.status(), finished.Sub(report.StartedAt))
	s.metrics.RecordJobUserFailures(name, len(report.Failures))

	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	event.
		Int("users", report.Users).
		Int("succeeded", report.Succeeded).
		Int("user_failures", len(report.Failures)).
		Dur("duration", finished.Sub(report.StartedAt)).
		Msg("job finished")

	if report.Error != "" {
		return report, runErr
	}
	return report, nil
}

func (s *Scheduler) execute(ctx context.Context, job Job, report *RunReport, log zerolog.Logger) error {
	s.runSteps(ctx, job.Before, report, log)

	if job.PerUser != nil {
		users, err := safely(func() ([]string, error) { return job.Users(ctx) })
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		report.Users = len(users)
		for _, userID := range users {
			_, err := safely(func() (struct{}, error) { return struct{}{}, job.PerUser(ctx, userID) })
			if err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("user maintenance failed")
				report.Failures = append(report.Failures, UserFailure{UserID: userID, Error: err.Error()})
				continue
			}
			report.Succeeded++
		}
	}

	s.runSteps(ctx, job.After, report, log)
	return nil
}

func (s *Scheduler) runSteps(ctx context.Context, steps []Step, report *RunReport, log zerolog.Logger) {
	for _, step := range steps {
		_, err := safely(func() (struct{}, error) { return struct{}{}, step.Run(ctx) })
		if err != nil {
			log.Error().Err(err).Str("step", step.Name).Msg("job step failed")
			report.Steps = append(report.Steps, StepFailure{Step: step.Name, Error: err.Error()})
		}
	}
}

// safely calls fn and turns a panic into an error.
func safely[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Start runs every job with a positive interval on its own ticker until
// Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	names := append([]string(nil), s.order...)
	sort.Strings(names)
	for _, name := range names {
		job := s.jobs[name]
		if job.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job.Name, job.Interval)
		s.logger.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("job scheduled")
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A started run always completes; Stop only ends the loop.
			if _, err := s.RunNow(context.WithoutCancel(ctx), name); err != nil {
				if errors.Is(err, ErrJobRunning) {
					s.logger.Debug().Str("job", name).Msg("previous run still in progress, skipping")
					continue
				}
				s.logger.Error().Err(err).Str("job", name).Msg("scheduled run failed")
			}
		}
	}
}

// Stop cancels the ticker loops and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
