package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/deployd/internal/deploy/model"
	"github.com/opsdeck/deployd/internal/logstore"
	"github.com/opsdeck/deployd/internal/metrics"
	"github.com/opsdeck/deployd/internal/registry"
	"github.com/rs/zerolog/log"
)

// Orchestrator admits deployment jobs, enforces the one-running-job-per-target
// invariant and drives each job through its lifecycle. It is the sole writer
// of job state; callers only ever receive snapshots.
type Orchestrator struct {
	registry *registry.Registry
	prober   Prober
	executor Executor
	store    *logstore.Store
	command  string

	mu      sync.Mutex
	running map[string]*model.Job // targetKey -> in-flight job
	jobs    map[string]*model.Job // job id -> job (all, incl. terminal)
	byLog   map[string]*model.Job // log file name -> job
	order   []string              // job ids, admission order
}

func NewOrchestrator(reg *registry.Registry, prober Prober, executor Executor, store *logstore.Store, command string) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		prober:   prober,
		executor: executor,
		store:    store,
		command:  command,
		running:  make(map[string]*model.Job),
		jobs:     make(map[string]*model.Job),
		byLog:    make(map[string]*model.Job),
	}
}

// Trigger resolves, admits and starts a deployment for the given target key.
// Resolution failures, no-path targets and conflicts are rejected before any
// job or log file exists. A preflight failure produces a terminal Unreachable
// job with its (short) log preserved. On success the job runs in the
// background and the returned snapshot is already in Running state.
func (o *Orchestrator) Trigger(ctx context.Context, key string) (model.Job, error) {
	target, err := o.registry.Resolve(key)
	if err != nil {
		return model.Job{}, err
	}
	if !target.Deployable() {
		log.Warn().Str("target", target.Key()).Msg("trigger for target without remote path")
		return model.Job{}, model.ErrNoPath
	}

	job, handle, err := o.admit(target)
	if err != nil {
		return model.Job{}, err
	}

	// Preflight gate, synchronous and bounded. The executor remains the real
	// source of truth; this only short-circuits obviously dead targets.
	if res := o.prober.Probe(ctx, target); !res.Reachable {
		o.finish(job, handle, model.StateUnreachable, nil, fmt.Sprintf("preflight check failed: %s", res.Reason))
		return job.Snapshot(), &model.UnreachableError{Target: target.Key(), Reason: res.Reason}
	}

	o.mu.Lock()
	job.State = model.StateRunning
	snap := job.Snapshot()
	o.mu.Unlock()

	log.Info().Str("target", target.Key()).Str("job", job.ID).Str("log", job.LogFile).Msg("deployment admitted")
	go o.execute(job, target, handle)
	return snap, nil
}

// admit takes the per-target slot and allocates the job and its log. The slot
// is held until finish releases it.
func (o *Orchestrator) admit(target *registry.Target) (*model.Job, *logstore.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tk := target.Key()
	if _, busy := o.running[tk]; busy {
		return nil, nil, model.ErrConflict
	}

	handle, err := o.store.Create(tk)
	if err != nil {
		return nil, nil, err
	}

	job := &model.Job{
		ID:        uuid.NewString(),
		TargetKey: tk,
		State:     model.StatePending,
		StartedAt: time.Now(),
		LogFile:   handle.Name(),
	}
	o.running[tk] = job
	o.jobs[job.ID] = job
	o.byLog[job.LogFile] = job
	o.order = append(o.order, job.ID)
	return job, handle, nil
}

// execute supervises one deployment run. The deferred recover guarantees the
// target slot is released on every exit path.
func (o *Orchestrator) execute(job *model.Job, target *registry.Target, handle *logstore.Handle) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("target", target.Key()).Msg("deployment execution panic")
			o.finish(job, handle, model.StateFailed, nil, fmt.Sprintf("internal error: %v", r))
		}
	}()

	_ = handle.WriteLine(fmt.Sprintf("deploying to %s (%s:%d, path %s)", target.Key(), target.IP, target.Port, target.Path))

	exitCode, err := o.executor.Run(context.Background(), target, o.command, handle)
	switch {
	case err == nil && exitCode == 0:
		o.finish(job, handle, model.StateSucceeded, &exitCode, "")
	case err == nil:
		o.finish(job, handle, model.StateFailed, &exitCode, fmt.Sprintf("script exited with code %d", exitCode))
	default:
		// Session errors and timeouts: the exit code is meaningless, the
		// partial log is preserved as-is.
		o.finish(job, handle, model.StateFailed, nil, err.Error())
	}
}

// finish moves a job to its terminal state, writes the completion trailer,
// releases the target slot and closes the log.
func (o *Orchestrator) finish(job *model.Job, handle *logstore.Handle, state model.JobState, exitCode *int, reason string) {
	trailer := fmt.Sprintf("=== %s state=%s ===", logstore.CompletionMarker, state)
	if exitCode != nil {
		trailer = fmt.Sprintf("=== %s state=%s exit=%d ===", logstore.CompletionMarker, state, *exitCode)
	}
	if reason != "" {
		_ = handle.WriteLine(reason)
	}
	_ = handle.WriteLine(trailer)
	_ = handle.Close()

	o.mu.Lock()
	now := time.Now()
	job.State = state
	job.EndedAt = &now
	job.ExitCode = exitCode
	job.Reason = reason
	delete(o.running, job.TargetKey)
	o.mu.Unlock()

	metrics.DeploymentsTotal.WithLabelValues(job.TargetKey, string(state)).Inc()
	metrics.DeploymentDuration.WithLabelValues(job.TargetKey).Observe(now.Sub(job.StartedAt).Seconds())

	evt := log.Info()
	if state != model.StateSucceeded {
		evt = log.Error()
	}
	evt.Str("target", job.TargetKey).Str("job", job.ID).Str("state", string(state)).Str("reason", reason).Msg("deployment finished")
}

// Job returns a snapshot of the job with the given id.
func (o *Orchestrator) Job(id string) (model.Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return j.Snapshot(), true
}

// Jobs returns snapshots of all jobs, newest first.
func (o *Orchestrator) Jobs() []model.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Job, 0, len(o.order))
	for i := len(o.order) - 1; i >= 0; i-- {
		out = append(out, o.jobs[o.order[i]].Snapshot())
	}
	return out
}

// LogActive reports whether the job writing the given log file is still
// running. The streamer uses it for completion detection and the retention
// sweep uses it to protect live logs.
func (o *Orchestrator) LogActive(logName string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.byLog[logName]
	return ok && !j.State.Terminal()
}
