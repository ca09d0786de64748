package supervise

import "context"

// Hook abstracts how a service's underlying process is launched and
// terminated. The supervisor treats it as an opaque, synchronous,
// timeout-bounded collaborator; tests substitute a fake.
type Hook interface {
	// Start launches the process and blocks until it is ready to serve
	// (or ctx expires). Returns the process id on success.
	Start(ctx context.Context) (pid int, err error)
	// Stop requests graceful termination and blocks until the process
	// exits or ctx expires.
	Stop(ctx context.Context) error
	// Kill forces termination. Called when Stop did not confirm exit
	// within the grace period.
	Kill() error
	// IsAlive reports whether the process is currently running.
	IsAlive() bool
}
