package syncflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
	"github.com/agentstation/syncflow/pkg/sources"
)

// fetched is one source's settled fetch.
type fetched struct {
	source   records.SourceID
	snapshot *records.SourceSnapshot
	duration time.Duration
	err      error
}

// fetch fetches snapshots from all sources concurrently and returns once every
// fetch has settled. Each fetch runs under its own timeout; a source that
// fails or times out is recorded on the builder and left out of the result.
// Results are ordered by source ID.
func (c *client) fetch(ctx context.Context, b *report.Builder, srcs []sources.Source) ([]*records.SourceSnapshot, []error) {

	// setup logger
	logger := logging.FromContext(ctx)

	results := make([]fetched, len(srcs))
	var wg sync.WaitGroup

	// fetch snapshots from all sources concurrently
	for i, src := range srcs {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()

			srcCtx := logging.WithSource(ctx, src.ID().String())
			logging.FromContext(srcCtx).Info().Msg("Fetching")

			results[i] = c.fetchOne(srcCtx, src)
		}(i, src)
	}

	// Wait for all fetches to settle
	wg.Wait()

	var snapshots []*records.SourceSnapshot
	var errs []error
	for _, res := range results {
		if res.err != nil {
			logger.Warn().Err(res.err).Str("source", res.source.String()).Msg("Source fetch failed, continuing without it")
			b.SetSource(report.SourceResult{
				SourceID: res.source,
				Status:   report.SourceFailed,
				Duration: res.duration,
				Error:    res.err.Error(),
			})
			b.AddError(res.err)
			errs = append(errs, res.err)
			continue
		}

		logger.Debug().
			Str("source", res.source.String()).
			Int("records", len(res.snapshot.Records)).
			Dur("duration", res.duration).
			Msg("Source fetched")
		b.SetSource(report.SourceResult{
			SourceID: res.source,
			Status:   report.SourceOK,
			Fetched:  len(res.snapshot.Records),
			Duration: res.duration,
		})
		snapshots = append(snapshots, res.snapshot)
	}

	return snapshots, errs
}

// fetchOne fetches a single source under its own timeout, or the shared one
// when none is configured. A source that ignores its context is abandoned
// when the timeout fires.
func (c *client) fetchOne(ctx context.Context, src sources.Source) fetched {
	timeout := c.options.timeoutFor(src.ID())
	srcCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	res := fetched{source: src.ID()}

	done := make(chan fetched, 1)
	go func() {
		snap, err := src.Fetch(srcCtx)
		done <- fetched{snapshot: snap, err: err}
	}()

	select {
	case r := <-done:
		res.snapshot, res.err = r.snapshot, r.err
	case <-srcCtx.Done():
		res.err = srcCtx.Err()
	}
	res.duration = time.Since(started)

	if res.err == nil && res.snapshot == nil {
		res.err = fmt.Errorf("source returned no snapshot")
	}
	if res.err != nil {
		timedOut := errors.Is(srcCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		res.err = pkgerrors.NewSourceFetchError(src.ID().String(), timeout, timedOut, res.err)
		res.snapshot = nil
		return res
	}

	// the snapshot belongs to this run from here on
	res.snapshot.SourceID = src.ID()
	if res.snapshot.FetchedAt.Time.IsZero() {
		res.snapshot.FetchedAt = c.options.now()
	}
	return res
}

// cleanup cleans up all sources concurrently, logging and collecting any errors.
func cleanup(srcs []sources.Source) error {
	var wg sync.WaitGroup
	var errs []error
	var errMutex sync.Mutex

	// cleanup all sources concurrently
	for _, src := range srcs {
		wg.Add(1)
		go func(src sources.Source) {
			defer wg.Done()

			if err := src.Cleanup(); err != nil {
				logging.Warn().
					Err(err).
					Str("source", src.ID().String()).
					Msg("Cleanup failed")

				wrappedErr := pkgerrors.WrapResource("cleanup", "source", src.ID().String(), err)
				errMutex.Lock()
				errs = append(errs, wrappedErr)
				errMutex.Unlock()
			}
		}(src)
	}

	// Wait for all goroutines to complete
	wg.Wait()

	// Return all errors joined together, or nil if no errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
