package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Prober produces a fresh Status sample for one service definition.
// Implementations must respect ctx and never block past its deadline.
type Prober interface {
	Check(ctx context.Context, def Definition) Status
}

// HTTPProber marks a service healthy when its locator answers 2xx within the
// client timeout.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{Client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Check(ctx context.Context, def Definition) Status {
	st := Status{Name: def.Name, Critical: def.Critical, CheckedAt: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, def.Locator, nil)
	if err != nil {
		st.Message = fmt.Sprintf("bad locator: %v", err)
		return st
	}

	start := time.Now()
	resp, err := p.Client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	st.ResponseTimeMs = &elapsed
	if err != nil {
		st.Message = fmt.Sprintf("request failed: %v", err)
		return st
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		st.Healthy = true
		st.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	} else {
		st.Message = fmt.Sprintf("unexpected status HTTP %d", resp.StatusCode)
	}
	return st
}

// ContainerInspector is the slice of the docker client the container prober
// needs; the real client satisfies it.
type ContainerInspector interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// ContainerProber derives health from the local container runtime's reported
// state, preferring the container's own healthcheck verdict when one exists.
type ContainerProber struct {
	cli ContainerInspector
}

func NewContainerProber() (*ContainerProber, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &ContainerProber{cli: cli}, nil
}

func NewContainerProberWithClient(cli ContainerInspector) *ContainerProber {
	return &ContainerProber{cli: cli}
}

func (p *ContainerProber) Check(ctx context.Context, def Definition) Status {
	st := Status{Name: def.Name, Critical: def.Critical, CheckedAt: time.Now()}

	start := time.Now()
	inspect, err := p.cli.ContainerInspect(ctx, def.Locator)
	elapsed := time.Since(start).Milliseconds()
	st.ResponseTimeMs = &elapsed
	if err != nil {
		st.Message = fmt.Sprintf("inspect failed: %v", err)
		return st
	}
	if inspect.State == nil {
		st.Message = "no state reported"
		return st
	}

	if inspect.State.Health != nil {
		st.Healthy = inspect.State.Health.Status == "healthy"
		st.Message = fmt.Sprintf("container %s, health %s", inspect.State.Status, inspect.State.Health.Status)
		return st
	}

	st.Healthy = inspect.State.Running
	st.Message = fmt.Sprintf("container %s", inspect.State.Status)
	return st
}
