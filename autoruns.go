package syncflow

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/logging"
)

// Compile-time interface check to ensure proper implementation.
var _ AutoRunner = (*client)(nil)

// AutoRunner provides controls for scheduled runs.
type AutoRunner interface {
	// AutoRunsOn starts triggering runs on the configured interval
	AutoRunsOn() error

	// AutoRunsOff stops scheduled runs. An active run is not interrupted.
	AutoRunsOff() error
}

// AutoRunsOn starts scheduled runs. A tick that finds a run in progress is
// skipped, not queued.
func (c *client) AutoRunsOn() error {
	interval := c.options.autoRunInterval
	if interval <= 0 {
		return &errors.ValidationError{
			Field:   "autoRunInterval",
			Value:   interval,
			Message: "run interval must be positive",
		}
	}

	// Stop any existing scheduler to prevent resource leaks
	if err := c.AutoRunsOff(); err != nil {
		return err
	}

	c.autoMu.Lock()
	defer c.autoMu.Unlock()

	// Recreate stopCh since it was closed in AutoRunsOff
	c.stopCh = make(chan struct{})
	c.runTicker = time.NewTicker(interval)

	ctx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel

	ticker, stopCh := c.runTicker, c.stopCh
	go func(parentCtx context.Context) {
		for {
			select {
			case <-ticker.C:
				// scheduled runs outlive AutoRunsOff; Close cancels them
				runCtx, runCancel := context.WithTimeout(context.Background(), c.options.runTimeout)
				_, err := c.Run(runCtx, TriggerSchedule)
				runCancel()

				switch {
				case err == nil:
				case errors.IsRunInProgress(err):
					logging.Info().Msg("Scheduled run skipped, a run is already in progress")
				case stderrors.Is(err, errors.ErrClosed):
					return
				default:
					logging.Error().Err(err).Msg("Scheduled run failed")
				}
			case <-parentCtx.Done():
				return
			case <-stopCh:
				return
			}
		}
	}(ctx)

	logging.Info().Dur("interval", interval).Msg("Scheduled runs enabled")
	return nil
}

// AutoRunsOff stops scheduled runs.
func (c *client) AutoRunsOff() error {
	c.autoMu.Lock()
	if c.runTicker != nil {
		c.runTicker.Stop()
		c.runTicker = nil
	}
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	select {
	case <-c.stopCh:
		// Already closed
	default:
		close(c.stopCh)
	}
	c.autoMu.Unlock()
	return nil
}
