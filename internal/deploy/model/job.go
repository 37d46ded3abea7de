package model

import "time"

// JobState is the lifecycle state of a deployment job.
type JobState string

const (
	StatePending     JobState = "pending"
	StateRunning     JobState = "running"
	StateSucceeded   JobState = "succeeded"
	StateFailed      JobState = "failed"
	StateUnreachable JobState = "unreachable"
)

// Terminal reports whether no further transition can occur.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateUnreachable:
		return true
	}
	return false
}

// Job is one deployment attempt against a single target. The orchestrator
// owns the live value; everyone else sees copies via Snapshot.
type Job struct {
	ID        string     `json:"id"`
	TargetKey string     `json:"target"`
	State     JobState   `json:"state"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	LogFile   string     `json:"logFile"`
	ExitCode  *int       `json:"exitCode,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Snapshot returns a read-only copy safe to hand outside the orchestrator.
func (j *Job) Snapshot() Job {
	cp := *j
	if j.EndedAt != nil {
		t := *j.EndedAt
		cp.EndedAt = &t
	}
	if j.ExitCode != nil {
		c := *j.ExitCode
		cp.ExitCode = &c
	}
	return cp
}
