package filter

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
)

func TestParseRunFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		offset  int
		limit   int
		status  string
		trigger string
	}{
		{name: "defaults", query: "", limit: constants.DefaultPageSize},
		{name: "explicit", query: "?offset=5&limit=10&status=partial&trigger=api", offset: 5, limit: 10, status: "partial", trigger: "api"},
		{name: "clamped", query: "?offset=-3&limit=100000", limit: constants.MaxPageSize},
		{name: "garbage numbers", query: "?offset=abc&limit=xyz", limit: constants.DefaultPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/runs"+tt.query, nil)
			f, err := ParseRunFilter(r)
			require.NoError(t, err)
			assert.Equal(t, tt.offset, f.Offset)
			assert.Equal(t, tt.limit, f.Limit)
			assert.Equal(t, tt.status, f.Status)
			assert.Equal(t, tt.trigger, f.Trigger)
		})
	}
}

func TestParseRunFilterRejectsUnknownStatus(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/runs?status=done", nil)
	_, err := ParseRunFilter(r)
	assert.True(t, errors.IsValidationError(err))
}

func TestEntityFilter(t *testing.T) {
	entities := []records.MergedEntity{
		{
			EntityKey: "acme corp",
			Sources:   []records.SourceID{"crm", "sheet"},
			Decisions: []records.ResolvedField{{Field: "stage", Status: records.NeedsReview}},
		},
		{EntityKey: "globex", Sources: []records.SourceID{"crm"}},
		{EntityKey: "initech", Sources: []records.SourceID{"sheet"}},
	}

	keys := func(list []records.MergedEntity) []string {
		out := make([]string, len(list))
		for i, e := range list {
			out[i] = e.EntityKey
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"no filter", "", []string{"acme corp", "globex", "initech"}},
		{"needs review", "?needs_review=true", []string{"acme corp"}},
		{"settled", "?needs_review=false", []string{"globex", "initech"}},
		{"source", "?source=sheet", []string{"acme corp", "initech"}},
		{"key", "?key=GLOB", []string{"globex"}},
		{"combined", "?source=crm&needs_review=false", []string{"globex"}},
		{"bad bool ignored", "?needs_review=maybe", []string{"acme corp", "globex", "initech"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/runs/x/entities"+tt.query, nil)
			assert.Equal(t, tt.want, keys(ParseEntityFilter(r).Apply(entities)))
		})
	}
}
