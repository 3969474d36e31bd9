// Package matcher groups normalized records from every source into entity
// groups by their join key.
//
// Keys are compared after Unicode NFKC normalization, case folding, and
// whitespace collapsing. There is no fuzzy matching. Output order is by
// canonical key so identical input always yields identical groups.
package matcher

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

// CanonicalKey returns the comparison form of an entity key.
func CanonicalKey(key string) string {
	key = norm.NFKC.String(key)
	// Casers keep state, so each call gets its own.
	key = cases.Fold().String(key)
	return strings.Join(strings.Fields(key), " ")
}

// Match groups records by canonical entity key.
//
// A source that reports the same key more than once keeps the record with the
// latest ObservedAt; on a tie the later record in input order wins. Each such
// case is returned as a DuplicateRecordError, ordered by key then source.
func Match(recs []records.Record) ([]records.EntityGroup, []*errors.DuplicateRecordError) {
	groups := make(map[string]records.EntityGroup)
	seen := make(map[string]map[records.SourceID]int)

	for _, rec := range recs {
		key := CanonicalKey(rec.EntityKey)
		if key == "" {
			continue
		}
		rec.EntityKey = key

		group, ok := groups[key]
		if !ok {
			group = records.EntityGroup{
				EntityKey: key,
				Records:   make(map[records.SourceID]records.Record),
			}
			groups[key] = group
			seen[key] = make(map[records.SourceID]int)
		}

		seen[key][rec.SourceID]++
		if existing, dup := group.Records[rec.SourceID]; dup && rec.ObservedAt.Time.Before(existing.ObservedAt.Time) {
			continue
		}
		group.Records[rec.SourceID] = rec
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]records.EntityGroup, 0, len(keys))
	var dups []*errors.DuplicateRecordError
	for _, key := range keys {
		out = append(out, groups[key])

		counts := seen[key]
		ids := make([]records.SourceID, 0, len(counts))
		for id, n := range counts {
			if n > 1 {
				ids = append(ids, id)
			}
		}
		for _, id := range records.SortSourceIDs(ids) {
			dups = append(dups, errors.NewDuplicateRecordError(id.String(), key, counts[id]))
		}
	}

	return out, dups
}
