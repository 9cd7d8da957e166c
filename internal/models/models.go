package models

import "time"

// Status is the classified outcome of a health check.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
)

// ClientType distinguishes tenants probed locally from tenants whose
// status is fetched from a peer instance.
type ClientType string

const (
	ClientLocal  ClientType = "local"
	ClientLinked ClientType = "linked"
)

// Hard floors and defaults for the resolution chain
// (endpoint override -> global setting -> floor).
const (
	MinCheckInterval = 5
	MinCheckTimeout  = 1

	DefaultCheckInterval = 30
	DefaultCheckTimeout  = 10

	// Remote status fetches tolerate more latency than local probes.
	MinRemoteTimeout = 5
)

// Endpoint is a single monitored URL. Owned by exactly one client and
// treated as read-only input by the check cycle; mutation happens only
// through the config/API layer.
type Endpoint struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	URL             string `json:"url" yaml:"url"`
	Group           string `json:"group" yaml:"group"`
	IntervalSeconds *int   `json:"check_interval_seconds,omitempty" yaml:"check_interval_seconds,omitempty"`
	TimeoutSeconds  *int   `json:"check_timeout_seconds,omitempty" yaml:"check_timeout_seconds,omitempty"`
}

// EffectiveInterval resolves the check interval for this endpoint:
// endpoint override if present, else the global interval, floored at
// MinCheckInterval either way.
func (e Endpoint) EffectiveInterval(globalSeconds int) int {
	v := globalSeconds
	if e.IntervalSeconds != nil {
		v = *e.IntervalSeconds
	}
	if v < MinCheckInterval {
		v = MinCheckInterval
	}
	return v
}

// EffectiveTimeout resolves the probe timeout: endpoint override if
// present, else the global timeout, floored at MinCheckTimeout.
func (e Endpoint) EffectiveTimeout(globalSeconds int) int {
	v := globalSeconds
	if e.TimeoutSeconds != nil {
		v = *e.TimeoutSeconds
	}
	if v < MinCheckTimeout {
		v = MinCheckTimeout
	}
	return v
}

// Settings are the global check parameters shared by all clients.
type Settings struct {
	CheckIntervalSeconds int `json:"check_interval_seconds" yaml:"check_interval_seconds"`
	CheckTimeoutSeconds  int `json:"check_timeout_seconds" yaml:"check_timeout_seconds"`
}

// Client is one tenant: a group of endpoints probed locally, or a link
// to a peer instance whose statuses are fetched wholesale.
type Client struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Type      ClientType `json:"type" yaml:"type"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints,omitempty"`

	// Link parameters, set only for linked clients.
	RemoteURL string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
	APIToken  string `json:"-" yaml:"api_token,omitempty"`
}

// CheckResult is the outcome of one local probe.
type CheckResult struct {
	Status         Status `json:"status"`
	StatusCode     *int   `json:"status_code,omitempty"`
	ResponseTimeMS *int64 `json:"response_time_ms,omitempty"`
	Details        string `json:"details,omitempty"`
}

// LiveStatus is the ephemeral per-endpoint entry in live state.
// Every known endpoint id has exactly one, PENDING until first check.
type LiveStatus struct {
	Status      Status       `json:"status"`
	LastCheckTS int64        `json:"last_check_ts"`
	Details     *CheckResult `json:"details,omitempty"`
}

// HistoryRecord is one persisted status-change event.
type HistoryRecord struct {
	EndpointID     string    `json:"endpoint_id"`
	Timestamp      time.Time `json:"timestamp"`
	Status         Status    `json:"status"`
	StatusCode     *int      `json:"status_code,omitempty"`
	ResponseTimeMS *int64    `json:"response_time_ms,omitempty"`
	Details        string    `json:"details,omitempty"`
}

// HistoryPoint is one sample in a charted history series.
type HistoryPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Status         Status    `json:"status"`
	ResponseTimeMS *int64    `json:"response_time_ms"`
}

// StatusSnapshot is the per-client shape exposed to peers and to the
// local status API.
type StatusSnapshot struct {
	Statuses    map[string]LiveStatus `json:"statuses"`
	LastUpdated int64                 `json:"last_updated"`
}
