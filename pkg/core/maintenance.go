package core

import (
	"context"
)

// RunMaintenance runs one maintenance job now and waits for it. It returns
// ErrJobRunning when the job is already running and ErrUnknownJob for an
// unregistered name. Failures of single users are reported in the
// RunReport, not as an error.
//
// Example:
//
//	report, err := client.RunMaintenance(ctx, core.JobPersonalityEvolution)
//	if err == nil && len(report.Failures) > 0 {
//	    log.Printf("%d users failed", len(report.Failures))
//	}
func (c *Client) RunMaintenance(ctx context.Context, job string) (*RunReport, error) {
	if c.closed.Load() {
		return nil, NewBrainError("RunMaintenance", ErrClosed)
	}
	report, err := c.scheduler.RunNow(ctx, job)
	if err != nil {
		return report, classify("RunMaintenance", err)
	}
	return report, nil
}

// MaintenanceJobs lists the registered job names.
func (c *Client) MaintenanceJobs() []string {
	return c.scheduler.Jobs()
}

// JobStates returns the guard state of every job.
func (c *Client) JobStates() []JobState {
	return c.scheduler.States().Snapshot()
}

// StartScheduler runs every job on its configured cadence until ctx is
// done or the client is closed. It does nothing when the scheduler is
// disabled in the configuration.
func (c *Client) StartScheduler(ctx context.Context) error {
	if c.closed.Load() {
		return NewBrainError("StartScheduler", ErrClosed)
	}
	if !c.config.Scheduler.Enabled {
		c.logger.Info().Msg("scheduler disabled")
		return nil
	}
	return NewBrainError("StartScheduler", c.scheduler.Start(ctx))
}
