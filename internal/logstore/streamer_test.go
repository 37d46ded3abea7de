package logstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan string, timeout time.Duration) []string {
	t.Helper()
	var lines []string
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-deadline:
			t.Fatalf("stream did not close, got %d lines so far", len(lines))
		}
	}
}

func TestSubscribeDeliversLinesInOrderAndClosesOnMarker(t *testing.T) {
	s := newTestStore(t)
	h, err := s.Create("web-1")
	require.NoError(t, err)
	defer h.Close()

	var running atomic.Bool
	running.Store(true)
	st := NewStreamer(s, 10*time.Millisecond, func(string) bool { return running.Load() })

	ch, err := st.Subscribe(context.Background(), h.Name())
	require.NoError(t, err)

	go func() {
		for _, l := range []string{"step 1", "step 2", "step 3"} {
			_, _ = h.Write([]byte(l + "\n"))
			time.Sleep(5 * time.Millisecond)
		}
		_, _ = h.Write([]byte("=== " + CompletionMarker + " exit=0 ===\n"))
	}()

	lines := collect(t, ch, 5*time.Second)
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"step 1", "step 2", "step 3"}, lines[:3])
	assert.Contains(t, lines[3], CompletionMarker)
}

func TestSubscribeFinishedJobReplaysAndCloses(t *testing.T) {
	s := newTestStore(t)
	h, err := s.Create("web-1")
	require.NoError(t, err)
	_, err = h.Write([]byte("only line\npartial tail"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	st := NewStreamer(s, 10*time.Millisecond, func(string) bool { return false })
	ch, err := st.Subscribe(context.Background(), h.Name())
	require.NoError(t, err)

	lines := collect(t, ch, time.Second)
	assert.Equal(t, []string{"only line", "partial tail"}, lines)
}

func TestSubscriberCancelStopsPolling(t *testing.T) {
	s := newTestStore(t)
	h, err := s.Create("web-1")
	require.NoError(t, err)
	defer h.Close()

	st := NewStreamer(s, 10*time.Millisecond, func(string) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := st.Subscribe(ctx, h.Name())
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop after cancel")
	}
}

func TestIndependentSubscribers(t *testing.T) {
	s := newTestStore(t)
	h, err := s.Create("web-1")
	require.NoError(t, err)
	defer h.Close()

	st := NewStreamer(s, 10*time.Millisecond, func(string) bool { return true })

	early, cancelEarly := context.WithCancel(context.Background())
	chEarly, err := st.Subscribe(early, h.Name())
	require.NoError(t, err)
	chFull, err := st.Subscribe(context.Background(), h.Name())
	require.NoError(t, err)

	// First subscriber leaves immediately; the second must still see everything.
	cancelEarly()
	for range chEarly {
	}

	go func() {
		_, _ = h.Write([]byte("hello\n"))
		_, _ = h.Write([]byte(CompletionMarker + "\n"))
	}()

	lines := collect(t, chFull, 5*time.Second)
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
}
