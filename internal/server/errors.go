package server

import "errors"

// Sentinel errors for instance lifecycle operations. Handlers map these to
// HTTP conflict/not-found responses; everything else is an internal error.
var (
	// ErrSpawnFailed wraps the OS error from a failed process launch.
	ErrSpawnFailed = errors.New("failed to spawn server process")

	// ErrExecutableMissing means the server artifact has not been downloaded
	// into the instance directory yet.
	ErrExecutableMissing = errors.New("server executable not found")

	// ErrNoInputChannel means the instance's process is alive but its stdin
	// belongs to a previous manager run. The condition is permanent until the
	// instance is restarted under this manager.
	ErrNoInputChannel = errors.New("process is running but its input channel is not attached")

	// ErrAlreadyRunning rejects a start while the instance is not stopped.
	ErrAlreadyRunning = errors.New("instance is already running")

	// ErrNotRunning rejects stop/command operations without an attached process.
	ErrNotRunning = errors.New("instance is not running")

	// ErrInstanceRunning rejects deletion of a non-stopped instance.
	ErrInstanceRunning = errors.New("instance must be stopped before deletion")

	// ErrInstanceNotFound means no registry entry exists for the id.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrProcessNotFound means the sampled pid no longer exists.
	ErrProcessNotFound = errors.New("process not found")
)
