package service

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/opsdeck/deployd/internal/registry"
	"github.com/rs/zerolog/log"
)

// ProbeResult is the outcome of a preflight reachability check.
type ProbeResult struct {
	Reachable bool
	Reason    string
	Latency   time.Duration
}

// Prober answers whether a target looks reachable. The check is advisory: a
// false positive just means the executor fails a little later.
type Prober interface {
	Probe(ctx context.Context, target *registry.Target) ProbeResult
}

// TCPProber checks reachability with a bounded TCP connect against the
// target's SSH port. ICMP would need raw sockets and privileges; a connect to
// the port we are about to use is a stronger signal anyway.
type TCPProber struct {
	Timeout time.Duration
}

func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TCPProber{Timeout: timeout}
}

func (p *TCPProber) Probe(ctx context.Context, target *registry.Target) ProbeResult {
	addr := net.JoinHostPort(target.IP, strconv.Itoa(target.Port))
	d := net.Dialer{Timeout: p.Timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	latency := time.Since(start)
	if err != nil {
		reason := err.Error()
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			reason = "timeout"
		}
		log.Debug().Str("target", target.Key()).Str("reason", reason).Msg("preflight probe failed")
		return ProbeResult{Reachable: false, Reason: reason, Latency: latency}
	}
	conn.Close()
	return ProbeResult{Reachable: true, Latency: latency}
}
