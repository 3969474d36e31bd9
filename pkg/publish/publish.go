// Package publish defines the publish interface the sync engine hands the
// merged dataset to, plus the sheet row layout shared by sheet-like sinks.
package publish

import (
	"context"
	"sync"

	"github.com/agentstation/syncflow/pkg/records"
)

// Result describes a completed publish.
type Result struct {
	Destination string `json:"destination" yaml:"destination"`
	Rows        int    `json:"rows" yaml:"rows"`
}

// Publisher writes the merged dataset to a destination sink. Publishing the
// same dataset twice must leave the sink in the same state.
type Publisher interface {
	// Destination names the sink for reports and logs.
	Destination() string
	// Publish replaces the sink's contents with entities.
	Publish(ctx context.Context, entities []records.MergedEntity) (Result, error)
}

// Memory is an in-memory Publisher. It keeps the last published dataset.
type Memory struct {
	mu    sync.Mutex
	name  string
	last  []records.MergedEntity
	calls int
	err   error
}

// NewMemory returns an in-memory publisher.
func NewMemory(name string) *Memory {
	if name == "" {
		name = "memory"
	}
	return &Memory{name: name}
}

// Destination implements Publisher.
func (m *Memory) Destination() string {
	return m.name
}

// Publish implements Publisher.
func (m *Memory) Publish(ctx context.Context, entities []records.MergedEntity) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Result{}, m.err
	}
	m.last = append([]records.MergedEntity(nil), entities...)
	return Result{Destination: m.name, Rows: len(entities)}, nil
}

// FailWith makes subsequent publishes return err. A nil err clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Last returns the most recently published dataset.
func (m *Memory) Last() []records.MergedEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]records.MergedEntity(nil), m.last...)
}

// Calls returns how many times Publish was called.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
