package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/logging"
)

// ContextWithSignals returns a context canceled on SIGINT or SIGTERM. The
// signal also cancels the engine's active run, including runs started over
// HTTP that do not inherit the command context. A run that has reached
// Publishing is left to finish.
func (a *App) ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			logging.Warn().Str("signal", sig.String()).Msg("Interrupted, stopping")
			a.cancelActiveRun()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// cancelActiveRun cancels the run in progress, if the engine was started.
func (a *App) cancelActiveRun() {
	a.mu.RLock()
	engine := a.engine
	a.mu.RUnlock()
	if engine == nil {
		return
	}

	switch err := engine.Cancel(); {
	case err == nil:
		logging.Info().Msg("Active run canceled")
	case errors.IsCancelRejected(err):
		logging.Warn().Msg("Run is publishing, letting it finish")
	}
}
