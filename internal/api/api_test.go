package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsdeck/deployd/internal/deploy/model"
	"github.com/opsdeck/deployd/internal/deploy/service"
	"github.com/opsdeck/deployd/internal/logstore"
	"github.com/opsdeck/deployd/internal/monitor"
	"github.com/opsdeck/deployd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "sekrit"

type reachableProber struct{ reachable bool }

func (p *reachableProber) Probe(ctx context.Context, t *registry.Target) service.ProbeResult {
	if p.reachable {
		return service.ProbeResult{Reachable: true}
	}
	return service.ProbeResult{Reachable: false, Reason: "timeout"}
}

type fixture struct {
	router *gin.Engine
	orch   *service.Orchestrator
	store  *logstore.Store
}

func newFixture(t *testing.T, exec service.Executor, prober service.Prober) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	require.NoError(t, reg.Load([]byte(`[
		{"name": "Web Frontend", "ip": "10.0.0.5", "alias": "web-1", "user": "deploy", "path": "/opt/app"},
		{"name": "Bare", "ip": "10.0.0.9", "alias": "bare"}
	]`)))

	store, err := logstore.New(t.TempDir())
	require.NoError(t, err)

	orch := service.NewOrchestrator(reg, prober, exec, store, "./deploy.sh")
	streamer := logstore.NewStreamer(store, 10*time.Millisecond, orch.LogActive)

	mon := monitor.New([]monitor.Definition{
		{Name: "api", Kind: monitor.KindHTTP, Locator: "http://x", Critical: true},
	}, nil, time.Second)

	router := gin.New()
	NewApi(router, Deps{
		Registry: reg,
		Orch:     orch,
		Prober:   prober,
		Store:    store,
		Streamer: streamer,
		Monitor:  mon,
		Token:    testToken,
	})
	return &fixture{router: router, orch: orch, store: store}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestListServersPublicFieldsOnly(t *testing.T) {
	f := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: true})

	w := f.do(http.MethodGet, "/servers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var servers []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &servers))
	require.Len(t, servers, 2)
	assert.Equal(t, "web-1", servers[0]["alias"])
	assert.NotContains(t, servers[0], "user")
	assert.NotContains(t, servers[0], "path")
}

func TestPing(t *testing.T) {
	f := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: true})
	w := f.do(http.MethodPost, "/ping", `{"server": "web-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())

	down := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: false})
	w = down.do(http.MethodPost, "/ping", `{"server": "web-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "fail"}`, w.Body.String())

	w = f.do(http.MethodPost, "/ping", `{"server": "ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerInvalidToken(t *testing.T) {
	f := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: true})

	w := f.do(http.MethodPost, "/trigger", `{"token": "wrong", "server": "web-1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, model.CodeUnauthorized, errCode(t, w))

	// Rejected before any resources were allocated.
	assert.Empty(t, f.orch.Jobs())
	descs, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestTriggerUnknownTarget(t *testing.T) {
	f := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: true})
	w := f.do(http.MethodPost, "/trigger", `{"token": "sekrit", "server": "ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, model.CodeNotFound, errCode(t, w))
}

func TestTriggerNoPathNoop(t *testing.T) {
	f := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: true})
	w := f.do(http.MethodPost, "/trigger", `{"token": "sekrit", "server": "bare"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "noop", resp["status"])
	assert.Contains(t, resp["reason"], "no path defined")
	assert.Empty(t, f.orch.Jobs())
}

func TestTriggerUnreachable(t *testing.T) {
	f := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: false})
	w := f.do(http.MethodPost, "/trigger", `{"token": "sekrit", "server": "web-1"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, model.CodeUnreachable, errCode(t, w))
}

func TestTriggerConflict(t *testing.T) {
	exec := &service.ScriptedExecutor{Chunks: []string{"slow\n"}, Delay: 300 * time.Millisecond}
	f := newFixture(t, exec, &reachableProber{reachable: true})

	first := f.do(http.MethodPost, "/trigger", `{"token": "sekrit", "server": "web-1"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.do(http.MethodPost, "/trigger", `{"token": "sekrit", "server": "web-1"}`)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, model.CodeConflict, errCode(t, second))
}

func TestTriggerAndStreamLifecycle(t *testing.T) {
	exec := &service.ScriptedExecutor{
		Chunks: []string{"pulling image\n", "restarting service\n", "done\n"},
		Delay:  10 * time.Millisecond,
	}
	f := newFixture(t, exec, &reachableProber{reachable: true})

	w := f.do(http.MethodPost, "/trigger", `{"token": "sekrit", "server": "web-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	require.NotEmpty(t, resp["log_file"])
	assert.Equal(t, "/stream-log?file="+resp["log_file"], resp["stream_log_url"])

	// The stream replays output in order and ends at the completion marker.
	stream := f.do(http.MethodGet, resp["stream_log_url"], "")
	require.Equal(t, http.StatusOK, stream.Code)

	var lines []string
	scanner := bufio.NewScanner(stream.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.GreaterOrEqual(t, len(lines), 4)
	joined := strings.Join(lines, "\n")
	assert.Less(t, strings.Index(joined, "pulling image"), strings.Index(joined, "restarting service"))
	assert.Contains(t, lines[len(lines)-1], logstore.CompletionMarker)

	// Terminal job state visible through the snapshot API.
	job := f.orch.Jobs()[0]
	assert.Equal(t, model.StateSucceeded, job.State)
	require.NotNil(t, job.ExitCode)
	assert.Equal(t, 0, *job.ExitCode)

	got := f.do(http.MethodGet, "/deployments/"+job.ID, "")
	assert.Equal(t, http.StatusOK, got.Code)
}

func TestLogEndpoints(t *testing.T) {
	exec := &service.ScriptedExecutor{Chunks: []string{"hello log\n"}}
	f := newFixture(t, exec, &reachableProber{reachable: true})

	w := f.do(http.MethodPost, "/trigger", `{"token": "sekrit", "server": "web-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	logFile := resp["log_file"]

	waitForTerminal(t, f, logFile)

	list := f.do(http.MethodGet, "/logs", "")
	require.Equal(t, http.StatusOK, list.Code)
	var descs []logstore.Descriptor
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &descs))
	require.Len(t, descs, 1)
	assert.Equal(t, logFile, descs[0].Name)

	raw := f.do(http.MethodGet, "/logs/"+logFile, "")
	require.Equal(t, http.StatusOK, raw.Code)
	assert.Contains(t, raw.Body.String(), "hello log")

	content := f.do(http.MethodGet, "/log-content?file="+logFile, "")
	require.Equal(t, http.StatusOK, content.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(content.Body.Bytes(), &payload))
	assert.Equal(t, logFile, payload["file"])
	assert.Contains(t, payload["content"], "hello log")

	missing := f.do(http.MethodGet, "/log-content?file=nope.log", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestServicesStatus(t *testing.T) {
	f := newFixture(t, &service.ScriptedExecutor{}, &reachableProber{reachable: true})

	w := f.do(http.MethodGet, "/api/services/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report monitor.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Summary.Total)
	require.Len(t, report.LocalServices, 1)
	assert.Equal(t, "api", report.LocalServices[0].Name)
}

func waitForTerminal(t *testing.T, f *fixture, logFile string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !f.orch.LogActive(logFile) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job for %s did not finish", logFile)
}
