package syncflow

import (
	"context"
	stderrors "errors"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/matcher"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

// Compile-time interface check to ensure proper implementation.
var _ Runner = (*client)(nil)

// Trigger names recorded on run reports.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
)

// Runner starts and cancels runs. At most one run is active at a time; a
// trigger that arrives while a run is active is rejected with
// errors.ErrRunInProgress.
type Runner interface {
	// Run performs a run and returns once it has been published and
	// recorded. Canceling ctx cancels the run if it has not reached
	// Publishing.
	Run(ctx context.Context, trigger string) (*report.Entry, error)

	// Trigger starts a run in the background and returns its ID.
	Trigger(ctx context.Context, trigger string) (string, error)

	// Cancel cancels the active run. It returns errors.ErrNotRunning when
	// idle and errors.ErrCancelRejected once Publishing has begun.
	Cancel() error
}

// run is the state of the active run. phase and cancelRequested are guarded
// by the client's mutex.
type run struct {
	id        string
	trigger   string
	startedAt utc.Time
	ctx       context.Context
	cancel    context.CancelFunc
	builder   *report.Builder
	done      chan struct{}

	phase           report.Phase
	cancelRequested bool
}

// Run implements Runner.
func (c *client) Run(ctx context.Context, trigger string) (*report.Entry, error) {
	r, err := c.begin(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return c.execute(r), nil
}

// Trigger implements Runner. The run does not inherit ctx's cancellation.
func (c *client) Trigger(ctx context.Context, trigger string) (string, error) {
	r, err := c.begin(context.WithoutCancel(ctx), trigger)
	if err != nil {
		return "", err
	}
	go c.execute(r)
	return r.id, nil
}

// Cancel implements Runner.
func (c *client) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.active
	if r == nil {
		return errors.ErrNotRunning
	}
	r.cancelRequested = true
	if !r.phase.Cancellable() {
		return errors.ErrCancelRejected
	}
	r.cancel()
	logging.FromContext(r.ctx).Info().Str("phase", r.phase.String()).Msg("Run cancel requested")
	return nil
}

// begin claims the single run slot.
func (c *client) begin(ctx context.Context, trigger string) (*run, error) {
	if trigger == "" {
		trigger = TriggerManual
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.ErrClosed
	}
	if c.active != nil {
		active := c.active.id
		c.mu.Unlock()
		logging.FromContext(ctx).Info().
			Str("active_run", active).
			Str("trigger", trigger).
			Msg("Run rejected, another run is in progress")
		return nil, errors.ErrRunInProgress
	}

	id := c.options.newID()
	startedAt := c.options.now()
	runCtx, cancel := context.WithCancel(logging.WithRun(ctx, id))
	r := &run{
		id:        id,
		trigger:   trigger,
		startedAt: startedAt,
		ctx:       runCtx,
		cancel:    cancel,
		builder:   report.NewBuilder(id, trigger, startedAt),
		done:      make(chan struct{}),
		phase:     report.Pending,
	}
	c.active = r
	c.mu.Unlock()

	logging.FromContext(runCtx).Info().Str("trigger", trigger).Msg("Run started")
	c.hooks.runStarted(id, trigger)
	return r, nil
}

// execute drives an accepted run to its end and releases the run slot.
func (c *client) execute(r *run) *report.Entry {
	defer r.cancel()

	var entry *report.Entry
	if err := c.pipeline(r); err != nil {
		entry = c.abort(r, err)
	} else {
		entry = c.complete(r)
	}

	c.finish(r, entry)
	return entry
}

// advance moves the run to its next phase. Entering Publishing is refused
// once the run has been canceled, so a cancel accepted before Publishing
// always takes effect.
func (c *client) advance(r *run, next report.Phase) error {
	c.mu.Lock()
	if next == report.Publishing {
		if err := r.ctx.Err(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	if err := r.builder.Advance(next); err != nil {
		c.mu.Unlock()
		return err
	}
	r.phase = next
	c.mu.Unlock()

	logging.FromContext(r.ctx).Debug().Str("phase", next.String()).Msg("Phase changed")
	c.hooks.phaseChanged(r.id, next)
	return nil
}

// pipeline runs every phase up to and including the move to Publishing.
func (c *client) pipeline(r *run) error {
	ctx := r.ctx
	b := r.builder

	if err := c.advance(r, report.Fetching); err != nil {
		return err
	}
	srcs := c.sources.List()
	snapshots, fetchErrs := c.fetch(ctx, b, srcs)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(snapshots) == 0 {
		ids := make([]string, 0, len(srcs))
		for _, src := range srcs {
			ids = append(ids, src.ID().String())
		}
		return errors.NewAllSourcesFailedError(ids, fetchErrs)
	}

	if err := c.advance(r, report.Normalizing); err != nil {
		return err
	}
	recs := c.normalize(ctx, b, snapshots)
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.advance(r, report.Matching); err != nil {
		return err
	}
	groups, dups := matcher.Match(recs)
	for _, dup := range dups {
		logging.FromContext(ctx).Warn().
			Str("source", dup.SourceID).
			Str("entity", dup.EntityKey).
			Int("count", dup.Count).
			Msg("Duplicate records, kept last observed")
		b.AddError(dup)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.advance(r, report.Resolving); err != nil {
		return err
	}
	overrides := c.loadOverrides(ctx, b)
	if err := c.merge(ctx, b, groups, overrides); err != nil {
		return err
	}

	return c.advance(r, report.Publishing)
}

// normalize converts every snapshot and records per-source counts.
func (c *client) normalize(ctx context.Context, b *report.Builder, snapshots []*records.SourceSnapshot) []records.Record {
	logger := logging.FromContext(ctx)

	var all []records.Record
	for _, snap := range snapshots {
		recs, problems, err := c.normalizer.Normalize(snap)
		if err != nil {
			// New guarantees a schema per source, so this is a wiring bug.
			logger.Error().Err(err).Str("source", snap.SourceID.String()).Msg("Snapshot not normalized")
			b.AddError(err)
			res, _ := b.Source(snap.SourceID)
			res.Status = report.SourceFailed
			res.Error = err.Error()
			b.SetSource(res)
			continue
		}

		for _, p := range problems {
			logger.Warn().
				Str("source", p.SourceID).
				Int("record", p.RecordIndex).
				Str("field", p.Field).
				Str("reason", p.Reason).
				Msg("Record skipped")
			b.AddError(p)
		}

		res, _ := b.Source(snap.SourceID)
		res.SourceID = snap.SourceID
		res.Status = report.SourceOK
		if len(problems) > 0 {
			res.Status = report.SourcePartial
		}
		res.Normalized = len(recs)
		res.Skipped = len(problems)
		b.SetSource(res)
		b.Update(func(counts *report.Counts) {
			counts.RecordsNormalized += len(recs)
			counts.RecordsSkipped += len(problems)
		})
		all = append(all, recs...)
	}
	return all
}

// loadOverrides reads the manual overrides once per run. A store error is
// recorded and the run continues without overrides.
func (c *client) loadOverrides(ctx context.Context, b *report.Builder) map[history.OverrideKey]records.Value {
	list, err := c.history.ListOverrides(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("Overrides unavailable, manual fields will need review")
		b.AddError(errors.WrapResource("list", "overrides", "", err))
		return nil
	}
	return history.OverrideMap(list)
}

// abort seals a run that stopped before Publishing.
func (c *client) abort(r *run, cause error) *report.Entry {
	logger := logging.FromContext(r.ctx)

	reason := cause.Error()
	switch {
	case stderrors.Is(cause, context.Canceled):
		reason = "canceled"
	case stderrors.Is(cause, context.DeadlineExceeded):
		reason = "run timed out"
	case errors.IsAllSourcesFailed(cause):
		reason = "all sources failed"
	}
	logger.Error().Err(cause).Str("reason", reason).Msg("Run failed")

	r.builder.AddError(cause)
	r.builder.Fail(reason)
	sealed := c.seal(r, report.Failed)
	c.record(context.WithoutCancel(r.ctx), sealed)
	return &report.Entry{Report: *sealed}
}

// complete seals a run that reached Publishing, records it, and publishes
// the merged dataset. Publishing ignores cancellation; its outcome is
// appended to the recorded run as an addendum.
func (c *client) complete(r *run) *report.Entry {
	ctx := context.WithoutCancel(r.ctx)

	sealed := c.seal(r, report.Completed)
	recorded := c.record(ctx, sealed)
	entry := &report.Entry{Report: *sealed}

	if c.publisher == nil {
		logging.FromContext(ctx).Debug().Msg("No publisher configured, skipping publish")
		return entry
	}

	addendum := c.publish(ctx, r, sealed.Entities)
	entry.Addenda = append(entry.Addenda, addendum)
	if recorded {
		if err := c.history.Append(ctx, addendum); err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("Publish outcome not recorded")
		}
	}
	return entry
}

// publish writes the merged dataset and describes the outcome.
func (c *client) publish(ctx context.Context, r *run, entities []records.MergedEntity) report.Addendum {
	logger := logging.FromContext(ctx)
	a := report.Addendum{
		RunID:       r.id,
		Kind:        report.AddendumPublish,
		Destination: c.publisher.Destination(),
	}

	res, err := c.publisher.Publish(ctx, entities)
	a.RecordedAt = c.options.now()
	if err != nil {
		perr := errors.NewPublishError(a.Destination, err)
		a.Error = perr.Error()

		c.mu.Lock()
		canceled := r.cancelRequested
		c.mu.Unlock()
		if canceled {
			a.FinalPhase = report.Failed
			a.Note = "canceled during publish"
		}

		logger.Warn().Err(perr).Bool("cancel_requested", canceled).Msg("Publish failed")
		return a
	}

	if res.Destination != "" {
		a.Destination = res.Destination
	}
	a.Rows = res.Rows
	logger.Info().Str("destination", a.Destination).Int("rows", a.Rows).Msg("Published")
	return a
}

// seal seals the report. Sealing only fails on a broken phase sequence;
// the run is then recorded as failed with the sealing error as reason.
func (c *client) seal(r *run, final report.Phase) *report.RunReport {
	sealed, err := r.builder.Seal(final, c.options.now())
	if err == nil {
		return sealed
	}

	logging.FromContext(r.ctx).Error().Err(err).Msg("Report not sealed")
	return &report.RunReport{
		RunID:       r.id,
		Trigger:     r.trigger,
		Phase:       report.Failed,
		Transitions: []report.Phase{report.Failed},
		StartedAt:   r.startedAt,
		FinishedAt:  c.options.now(),
		Errors:      []report.Issue{report.IssueFrom(err)},
		Reason:      err.Error(),
	}
}

// record hands the sealed report to history and reports whether it was stored.
func (c *client) record(ctx context.Context, sealed *report.RunReport) bool {
	if err := c.history.Record(ctx, sealed); err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("Run not recorded in history")
		return false
	}
	return true
}

// finish releases the run slot and notifies listeners.
func (c *client) finish(r *run, entry *report.Entry) {
	c.mu.Lock()
	c.active = nil
	c.last = entry
	c.mu.Unlock()
	close(r.done)

	outcome := entry.Outcome()
	logging.FromContext(r.ctx).Info().
		Str("outcome", outcome.String()).
		Int("entities", entry.Report.Counts.EntitiesProcessed).
		Int("conflicts", entry.Report.Counts.ConflictsFound).
		Int("needs_review", entry.Report.Counts.ConflictsNeedingReview).
		Dur("duration", entry.Report.Duration()).
		Msg("Run finished")

	c.hooks.runCompleted(entry)
}
