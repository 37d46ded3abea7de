package logstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"
)

// Streamer tails growing log files and fans their content out to any number
// of independent subscribers. Each subscription keeps its own cursor over the
// same file, so subscribers never affect one another.
type Streamer struct {
	store *Store
	poll  time.Duration
	// active reports whether the job backing a log file is still running.
	active func(logName string) bool
}

func NewStreamer(store *Store, poll time.Duration, active func(logName string) bool) *Streamer {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Streamer{store: store, poll: poll, active: active}
}

// Subscribe returns a channel of log lines, delivered in append order,
// starting at byte offset zero. The channel closes when a line containing
// the completion marker has been delivered, or when the backing job is no
// longer running and the file has been drained. Cancelling ctx stops the
// subscription promptly without touching the job or other subscribers.
func (st *Streamer) Subscribe(ctx context.Context, name string) (<-chan string, error) {
	f, err := st.store.Open(name)
	if err != nil {
		return nil, err
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		defer f.Close()

		var pending bytes.Buffer
		buf := make([]byte, 32*1024)
		draining := false
		for {
			n, err := f.Read(buf)
			if n > 0 {
				pending.Write(buf[:n])
				for {
					line, ok := nextLine(&pending)
					if !ok {
						break
					}
					if !st.deliver(ctx, ch, line) {
						return
					}
				}
			}
			if err == io.EOF {
				if draining {
					// Job finished and the file is fully consumed: flush any
					// trailing partial line and stop.
					if rest := pending.String(); rest != "" {
						st.deliver(ctx, ch, rest)
					}
					return
				}
				if st.active == nil || !st.active(name) {
					// The job reaches its terminal state only after its last
					// append, so one more read pass picks up anything written
					// between our EOF and the state change.
					draining = true
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(st.poll):
				}
				continue
			}
			if err != nil {
				return
			}
		}
	}()
	return ch, nil
}

// deliver pushes one line to the subscriber, returning false when the
// subscription should end (disconnect or completion marker delivered).
func (st *Streamer) deliver(ctx context.Context, ch chan<- string, line string) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- line:
	}
	return !strings.Contains(line, CompletionMarker)
}

func nextLine(buf *bytes.Buffer) (string, bool) {
	i := bytes.IndexByte(buf.Bytes(), '\n')
	if i < 0 {
		return "", false
	}
	line := string(buf.Next(i + 1))
	return strings.TrimSuffix(line, "\n"), true
}
