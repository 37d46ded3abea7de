package monitor

import "time"

// Kind selects the probe implementation for a service.
type Kind string

const (
	KindContainer Kind = "container"
	KindHTTP      Kind = "http"
)

// Scope groups services into the local/remote sections of the status API.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeRemote Scope = "remote"
)

// Definition is one monitored service, loaded once at startup.
type Definition struct {
	Name     string `yaml:"name" json:"name"`
	Kind     Kind   `yaml:"kind" json:"kind"`
	Locator  string `yaml:"locator" json:"locator"` // container name or URL
	Critical bool   `yaml:"critical" json:"critical"`
	Scope    Scope  `yaml:"scope" json:"scope"`
}

// Status is the last completed sample for one service. Each poll overwrites
// the service's slot in place; readers always get the previous sample, never
// a probe in flight.
type Status struct {
	Name           string    `json:"name"`
	Healthy        bool      `json:"healthy"`
	Message        string    `json:"message"`
	ResponseTimeMs *int64    `json:"response_time_ms,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
	Critical       bool      `json:"critical"`
}

// Summary aggregates the cached statuses.
type Summary struct {
	Total        int `json:"total"`
	Healthy      int `json:"healthy"`
	Unhealthy    int `json:"unhealthy"`
	CriticalDown int `json:"critical_down"`
}

// Report is the full status API payload.
type Report struct {
	LocalServices  []Status `json:"local_services"`
	RemoteServices []Status `json:"remote_services"`
	Summary        Summary  `json:"summary"`
}
