package normalize

import (
	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// Normalize converts a snapshot's raw records into canonical records.
//
// Records with a missing entity key, a missing required field, or a value
// that fails coercion are skipped and reported as NormalizationErrors. The
// returned records keep the snapshot's order.
func Normalize(snapshot *records.SourceSnapshot, schema Schema) ([]records.Record, []*errors.NormalizationError) {
	if snapshot == nil {
		return nil, nil
	}

	out := make([]records.Record, 0, len(snapshot.Records))
	var problems []*errors.NormalizationError

	for i, raw := range snapshot.Records {
		rec, err := normalizeOne(snapshot.SourceID, snapshot.FetchedAt, i, raw, schema)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		out = append(out, rec)
	}

	return out, problems
}

func normalizeOne(sourceID records.SourceID, fetchedAt utc.Time, index int, raw records.RawRecord, schema Schema) (records.Record, *errors.NormalizationError) {
	source := sourceID.String()

	keyRaw, ok := raw[schema.EntityKey]
	if !ok || isBlank(keyRaw) {
		return records.Record{}, errors.NewNormalizationError(source, index, schema.EntityKey, "missing entity key")
	}

	rec := records.Record{
		SourceID:   sourceID,
		EntityKey:  text(keyRaw),
		Fields:     make(map[string]records.Value, len(schema.Fields)),
		ObservedAt: fetchedAt,
	}

	for _, m := range schema.Fields {
		v, err := coerce(raw[m.From], m)
		if err != nil {
			ne := errors.NewNormalizationError(source, index, m.From, err.Error())
			ne.Err = err
			return records.Record{}, ne
		}
		if v.IsAbsent() {
			if m.Required {
				return records.Record{}, errors.NewNormalizationError(source, index, m.From, "missing required field")
			}
			continue
		}
		rec.Fields[m.To] = v
	}

	if schema.ObservedAt != "" && !isBlank(raw[schema.ObservedAt]) {
		t, err := timestamp(raw[schema.ObservedAt], schema.ObservedLayout)
		if err != nil {
			ne := errors.NewNormalizationError(source, index, schema.ObservedAt, err.Error())
			ne.Err = err
			return records.Record{}, ne
		}
		rec.ObservedAt = t
	}

	return rec, nil
}

// Normalizer holds the schema for each configured source.
type Normalizer struct {
	schemas map[records.SourceID]Schema
}

// New returns a normalizer for the given per-source schemas.
func New(schemas map[records.SourceID]Schema) *Normalizer {
	copied := make(map[records.SourceID]Schema, len(schemas))
	for id, s := range schemas {
		copied[id] = s
	}
	return &Normalizer{schemas: copied}
}

// Schema returns the schema for a source.
func (n *Normalizer) Schema(id records.SourceID) (Schema, bool) {
	s, ok := n.schemas[id]
	return s, ok
}

// Normalize converts a snapshot using its source's schema. A source without
// a schema is a configuration error.
func (n *Normalizer) Normalize(snapshot *records.SourceSnapshot) ([]records.Record, []*errors.NormalizationError, error) {
	schema, ok := n.schemas[snapshot.SourceID]
	if !ok {
		return nil, nil, errors.NewNotFoundError("schema", snapshot.SourceID.String())
	}
	recs, problems := Normalize(snapshot, schema)
	return recs, problems, nil
}
