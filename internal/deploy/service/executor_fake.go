package service

import (
	"context"
	"io"
	"time"

	"github.com/opsdeck/deployd/internal/registry"
)

// ScriptedExecutor replays a fixed sequence of output chunks and an exit
// code. It stands in for the SSH executor in tests and dry runs.
type ScriptedExecutor struct {
	Chunks   []string
	ExitCode int
	Err      error
	Delay    time.Duration // pause between chunks, simulates a slow script
}

func (s *ScriptedExecutor) Run(ctx context.Context, target *registry.Target, command string, sink io.Writer) (int, error) {
	for _, chunk := range s.Chunks {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if _, err := io.WriteString(sink, chunk); err != nil {
			return 0, err
		}
		if s.Delay > 0 {
			time.Sleep(s.Delay)
		}
	}
	if s.Err != nil {
		return 0, s.Err
	}
	return s.ExitCode, nil
}
