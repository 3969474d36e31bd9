package syncflow

import (
	"context"
	"maps"
	"sync"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

// merge resolves every entity group on a bounded pool of workers. Groups
// share no state; results meet only in the builder, which orders entities
// by key when the report is sealed.
func (c *client) merge(ctx context.Context, b *report.Builder, groups []records.EntityGroup, overrides map[history.OverrideKey]records.Value) error {
	workers := min(c.options.parallelism, len(groups))
	jobs := make(chan records.EntityGroup)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range jobs {
				entity, errs := c.mergeGroup(ctx, g, overrides)
				b.AddEntity(entity)
				for _, err := range errs {
					b.AddError(err)
				}
			}
		}()
	}

	var err error
feed:
	for _, g := range groups {
		select {
		case jobs <- g:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return err
}

// mergeGroup builds one merged entity. Agreed fields pass through; each
// conflict is settled by the resolution engine. A field left for review or
// failed stays out of Fields and is described by its decision.
func (c *client) mergeGroup(ctx context.Context, g records.EntityGroup, overrides map[history.OverrideKey]records.Value) (records.MergedEntity, []error) {
	analysis := c.detector.Analyze(g)

	entity := records.MergedEntity{
		EntityKey: g.EntityKey,
		Sources:   g.Sources(),
		Fields:    maps.Clone(analysis.Agreed),
	}
	if entity.Fields == nil {
		entity.Fields = make(map[string]records.Value)
	}

	var errs []error
	for _, conflict := range analysis.Conflicts {
		var prior *records.Value
		if v, ok := overrides[history.OverrideKey{EntityKey: g.EntityKey, Field: conflict.Field}]; ok {
			prior = &v
		}

		decision, err := c.engine.Resolve(conflict, prior)
		if err != nil {
			event := logging.FromContext(ctx).Error()
			if errors.IsUnresolved(err) {
				event = logging.FromContext(ctx).Warn()
			}
			event.Err(err).
				Str("entity", g.EntityKey).
				Str("field", conflict.Field).
				Msg("Conflict unresolved")
			errs = append(errs, err)
		}

		switch decision.Status {
		case records.Resolved:
			entity.Fields[conflict.Field] = decision.Value
		case records.NeedsReview:
			logging.FromContext(ctx).Info().
				Str("entity", g.EntityKey).
				Str("field", conflict.Field).
				Str("reason", decision.Reason).
				Msg("Field needs review")
		}
		entity.Decisions = append(entity.Decisions, decision)
	}

	return entity, errs
}
