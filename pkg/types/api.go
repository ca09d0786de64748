package types

// ServiceStatus summarizes one supervised service for GET /v1/status.
type ServiceStatus struct {
	// Service name as declared in the stack config.
	// example: model-a
	Name string `json:"name" example:"model-a"`
	// Current lifecycle state (stopped, starting, running, unhealthy, restarting, failed).
	// example: running
	State string `json:"state" example:"running"`
	// Process ID of the underlying process, when running.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Outcome of the most recent health probe (healthy, unhealthy, probe_error).
	// example: healthy
	LastProbe string `json:"last_probe,omitempty" example:"healthy"`
	// Time of the most recent probe (unix seconds).
	// example: 1700000000
	LastProbeUnix int64 `json:"last_probe_unix,omitempty" example:"1700000000"`
	// Last error observed for this service, if any.
	LastError string `json:"last_error,omitempty"`
	// Total automatic restarts performed since startup.
	// example: 2
	Restarts uint64 `json:"restarts_total" example:"2"`
	// Failures currently counted inside the sliding window.
	// example: 1
	WindowFailures int `json:"window_failures" example:"1"`
	// Time the service entered its current state (unix seconds).
	// example: 1700000000
	SinceUnix int64 `json:"since_unix,omitempty" example:"1700000000"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	// Per-service snapshot, in declaration order.
	Services []ServiceStatus `json:"services"`
	// Uptime of the supervisor in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	// Aggregate status: ok, degraded (recovery in progress) or failed
	// (at least one service exhausted automatic recovery).
	// example: ok
	Status string `json:"status" example:"ok"`
	// Number of services currently running and healthy.
	// example: 3
	Running int `json:"running" example:"3"`
	// Number of services being recovered (unhealthy or restarting).
	// example: 0
	Unhealthy int `json:"unhealthy" example:"0"`
	// Number of services that exhausted automatic recovery.
	// example: 0
	Failed int `json:"failed" example:"0"`
	// Number of services that are stopped or still starting.
	// example: 0
	Stopped int `json:"stopped" example:"0"`
}

// Aggregate health values reported in HealthResponse.Status.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthFailed   = "failed"
)

// RestartResponse is returned by POST /v1/services/{name}/restart.
type RestartResponse struct {
	// Name of the restarted service.
	// example: model-a
	Service string `json:"service" example:"model-a"`
	// State after the restart completed.
	// example: running
	State string `json:"state" example:"running"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: unknown service: model-z
	Error string `json:"error" example:"unknown service: model-z"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
