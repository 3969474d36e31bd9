package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBroadcaster(t *testing.T) (*Broadcaster, context.CancelFunc) {
	t.Helper()
	logger := zerolog.Nop()
	b := NewBroadcaster(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b, cancel
}

// readEvent reads lines up to the blank line ending one SSE event.
func readEvent(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestBroadcasterStreamsEvents(t *testing.T) {
	b, _ := startBroadcaster(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	connected := readEvent(t, reader)
	assert.Equal(t, "event: connected", connected[0])

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	b.Broadcast(Event{Event: "run.completed", ID: "3", Data: map[string]any{"run_id": "r1"}})

	got := readEvent(t, reader)
	assert.Equal(t, []string{
		"event: run.completed",
		"id: 3",
		`data: {"run_id":"r1"}`,
	}, got)
}

func TestBroadcasterShutdownEndsStreams(t *testing.T) {
	b, cancel := startBroadcaster(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after shutdown")
	}
	assert.Equal(t, 0, b.ClientCount())
}

func TestBroadcasterClientDisconnect(t *testing.T) {
	b, _ := startBroadcaster(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	readEvent(t, bufio.NewReader(resp.Body))
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
