package supervise

// State represents the lifecycle state of one supervised service.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateUnhealthy  State = "unhealthy"
	StateRestarting State = "restarting"
	// StateFailed is terminal for automatic recovery; only an explicit
	// stop or manual restart leaves it.
	StateFailed State = "failed"
)
