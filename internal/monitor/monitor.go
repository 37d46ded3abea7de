package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opsdeck/deployd/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Monitor polls a fixed set of services and caches the last completed sample
// per service. Reads never trigger or wait on a probe.
type Monitor struct {
	defs         []Definition
	probers      map[Kind]Prober
	probeTimeout time.Duration

	mu       sync.RWMutex
	statuses map[string]Status
	inflight map[string]bool
}

func New(defs []Definition, probers map[Kind]Prober, probeTimeout time.Duration) *Monitor {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	m := &Monitor{
		defs:         defs,
		probers:      probers,
		probeTimeout: probeTimeout,
		statuses:     make(map[string]Status, len(defs)),
		inflight:     make(map[string]bool, len(defs)),
	}
	for _, d := range defs {
		m.statuses[d.Name] = Status{
			Name:      d.Name,
			Critical:  d.Critical,
			Message:   "not checked yet",
			CheckedAt: time.Time{},
		}
	}
	return m
}

// Start runs the poll loop until ctx is cancelled. The first cycle fires
// immediately so the cache is warm shortly after startup.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m.PollOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("service monitor stopped")
			return
		case <-t.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce probes every service concurrently, each under its own timeout,
// and publishes results into the per-service slots as they complete. A probe
// still in flight from a previous cycle is skipped, so a hung probe for one
// service never delays or doubles up on the others.
func (m *Monitor) PollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, def := range m.defs {
		m.mu.Lock()
		if m.inflight[def.Name] {
			m.mu.Unlock()
			log.Warn().Str("service", def.Name).Msg("previous probe still running, skipping cycle")
			continue
		}
		m.inflight[def.Name] = true
		m.mu.Unlock()

		wg.Add(1)
		go func(def Definition) {
			defer wg.Done()
			m.probe(ctx, def)
		}(def)
	}

	// Bounded join: a prober that ignores its deadline must not wedge the
	// poll loop. Stragglers keep their inflight mark and publish (or get
	// skipped) later.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.probeTimeout + time.Second):
		log.Warn().Msg("poll cycle left probes behind")
	case <-ctx.Done():
	}
}

func (m *Monitor) probe(ctx context.Context, def Definition) {
	defer func() {
		m.mu.Lock()
		m.inflight[def.Name] = false
		m.mu.Unlock()
	}()

	prober, ok := m.probers[def.Kind]
	if !ok {
		m.publish(Status{
			Name:      def.Name,
			Critical:  def.Critical,
			Message:   fmt.Sprintf("no prober for kind %q", def.Kind),
			CheckedAt: time.Now(),
		}, def)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	st := prober.Check(probeCtx, def)
	if probeCtx.Err() == context.DeadlineExceeded && !st.Healthy {
		st.Message = "timeout"
	}
	m.publish(st, def)
}

// publish overwrites the service's slot. The probing goroutine is the only
// writer for its slot, so no cross-service coordination is needed beyond the
// map lock.
func (m *Monitor) publish(st Status, def Definition) {
	m.mu.Lock()
	m.statuses[st.Name] = st
	m.mu.Unlock()

	up := 0.0
	if st.Healthy {
		up = 1.0
	}
	metrics.ServiceUp.WithLabelValues(def.Name, string(def.Kind)).Set(up)
	if st.ResponseTimeMs != nil {
		metrics.ProbeDuration.WithLabelValues(def.Name).Observe(float64(*st.ResponseTimeMs) / 1000)
	}
	if !st.Healthy {
		log.Warn().Str("service", def.Name).Str("message", st.Message).Msg("service unhealthy")
	}
}

// CurrentStatus returns the cached report. It never blocks on a probe.
func (m *Monitor) CurrentStatus() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var report Report
	report.LocalServices = make([]Status, 0, len(m.defs))
	report.RemoteServices = make([]Status, 0)
	for _, def := range m.defs {
		st := m.statuses[def.Name]
		if def.Scope == ScopeRemote {
			report.RemoteServices = append(report.RemoteServices, st)
		} else {
			report.LocalServices = append(report.LocalServices, st)
		}
		report.Summary.Total++
		if st.Healthy {
			report.Summary.Healthy++
		} else {
			report.Summary.Unhealthy++
			if def.Critical {
				report.Summary.CriticalDown++
			}
		}
	}
	return report
}
