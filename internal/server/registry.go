package server

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vpastila/mineserv/internal/models"
)

// Registry is the single source of truth for every managed instance: its
// declared config, lifecycle state, attached process handle and resource
// monitor live in one entry under one lock, so the facets can never disagree.
//
// The lock covers map operations and state transitions only. Spawning,
// graceful waits and downloads all happen outside it.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	baseDir string

	// GraceTimeout bounds how long a restart waits for a graceful exit
	// before escalating to a kill.
	GraceTimeout time.Duration

	// ProbeInterval is how often recovered processes are signal-probed for
	// liveness.
	ProbeInterval time.Duration

	// Launch builds the process launch spec for an instance. Overridable so
	// tests can run plain shell commands instead of a JVM.
	Launch func(cfg models.InstanceConfig, dir string) LaunchSpec
}

type entry struct {
	cfg     models.InstanceConfig
	state   models.InstanceState
	pid     int
	handle  *Process
	monitor *Monitor
}

// Status is a point-in-time snapshot of one instance.
type Status struct {
	Config models.InstanceConfig
	State  models.InstanceState
	Pid    int
}

// NewRegistry creates an empty registry rooted at baseDir (the directory that
// holds one working directory per instance).
func NewRegistry(baseDir string) *Registry {
	return &Registry{
		entries:       make(map[uuid.UUID]*entry),
		baseDir:       baseDir,
		GraceTimeout:  30 * time.Second,
		ProbeInterval: 5 * time.Second,
		Launch:        JavaLaunchSpec,
	}
}

// BaseDir returns the directory that holds all instance working directories.
func (r *Registry) BaseDir() string {
	return r.baseDir
}

// InstanceDir returns the working directory for an instance id.
func (r *Registry) InstanceDir(id uuid.UUID) string {
	return models.InstanceConfig{ID: id}.Dir(r.baseDir)
}

// Add inserts a new instance in the stopped state. Replaces nothing: adding
// an id that already exists is an error.
func (r *Registry) Add(cfg models.InstanceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[cfg.ID]; ok {
		return fmt.Errorf("instance %s already registered", cfg.ID)
	}
	r.entries[cfg.ID] = &entry{cfg: cfg, state: models.StateStopped}
	return nil
}

// Remove deletes an instance from the registry. Only stopped instances may
// be removed; anything else fails with ErrInstanceRunning.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrInstanceNotFound
	}
	if e.state != models.StateStopped {
		return ErrInstanceRunning
	}
	delete(r.entries, id)
	return nil
}

// Get returns a snapshot of one instance.
func (r *Registry) Get(id uuid.UUID) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Status{}, ErrInstanceNotFound
	}
	return Status{Config: e.cfg, State: e.state, Pid: e.pid}, nil
}

// List returns a snapshot of every instance.
func (r *Registry) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Status{Config: e.cfg, State: e.state, Pid: e.pid})
	}
	return out
}

// UpdateConfig replaces an instance's declared configuration. Permitted only
// while the instance is stopped.
func (r *Registry) UpdateConfig(cfg models.InstanceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[cfg.ID]
	if !ok {
		return ErrInstanceNotFound
	}
	if e.state != models.StateStopped {
		return ErrInstanceRunning
	}
	e.cfg = cfg
	return nil
}

// Start transitions stopped → starting → running, spawning the instance's
// process. A second start without an intervening stop fails with
// ErrAlreadyRunning; spawn success is treated as sufficient for running.
func (r *Registry) Start(id uuid.UUID) (int, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return 0, ErrInstanceNotFound
	}
	if e.state != models.StateStopped {
		r.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	e.state = models.StateStarting
	cfg := e.cfg
	r.mu.Unlock()

	dir := cfg.Dir(r.baseDir)
	proc := NewProcess(cfg, r.Launch(cfg, dir))

	pid, err := proc.Start()
	if err != nil {
		r.mu.Lock()
		if e, ok := r.entries[id]; ok && e.state == models.StateStarting {
			e.state = models.StateStopped
		}
		r.mu.Unlock()
		return 0, err
	}

	r.mu.Lock()
	e, ok = r.entries[id]
	if !ok {
		// Deleted while we were starting; nobody owns the process now, so
		// put it down rather than leak it.
		r.mu.Unlock()
		log.Printf("[Registry] Instance %s removed mid-start, killing pid %d", id, pid)
		proc.ForceStop()
		return 0, ErrInstanceNotFound
	}
	e.state = models.StateRunning
	e.pid = pid
	e.handle = proc
	e.monitor = NewMonitor()
	r.mu.Unlock()

	go r.watchExit(id, proc)

	log.Printf("[Registry] Instance %s started (pid %d)", id, pid)
	return pid, nil
}

// Stop sends the graceful shutdown command and transitions running →
// stopping. The exit watcher performs the final transition to stopped once
// the process actually exits.
func (r *Registry) Stop(id uuid.UUID) error {
	handle, err := r.handleFor(id)
	if err != nil {
		return err
	}

	if err := handle.Stop(); err != nil {
		return err
	}

	r.mu.Lock()
	if e, ok := r.entries[id]; ok && e.handle == handle {
		e.state = models.StateStopping
	}
	r.mu.Unlock()
	return nil
}

// ForceStop kills the instance's process and clears its state immediately,
// without waiting for the exit watcher.
func (r *Registry) ForceStop(id uuid.UUID) error {
	handle, err := r.handleFor(id)
	if err != nil {
		return err
	}

	handle.ForceStop()
	r.clearIfCurrent(id, handle)
	return nil
}

// Restart stops the instance (bounded graceful wait, then kill) and starts it
// again. An instance that is already stopped skips the stop phase.
func (r *Registry) Restart(id uuid.UUID) (int, error) {
	handle, err := r.handleFor(id)
	if err != nil && err != ErrNotRunning {
		return 0, err
	}

	if handle != nil {
		if err := handle.Stop(); err != nil {
			// No input channel (recovered handle) or already gone: escalate.
			log.Printf("[Registry] Graceful stop of %s unavailable (%v), killing", id, err)
			handle.ForceStop()
		} else {
			done := make(chan struct{})
			go func() {
				handle.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(r.GraceTimeout):
				log.Printf("[Registry] Instance %s stop timed out, killing", id)
				handle.ForceStop()
			}
		}
		r.clearIfCurrent(id, handle)
	}

	return r.Start(id)
}

// SendCommand forwards a console command to the instance's process.
func (r *Registry) SendCommand(id uuid.UUID, command string) error {
	handle, err := r.handleFor(id)
	if err != nil {
		return err
	}
	return handle.SendCommand(command)
}

// Subscribe attaches a new console output consumer to the instance.
func (r *Registry) Subscribe(id uuid.UUID) (*Subscription, error) {
	handle, err := r.handleFor(id)
	if err != nil {
		return nil, err
	}
	return handle.Subscribe(), nil
}

// Stats samples the instance's resource usage. ErrNotRunning when no process
// is attached, ErrProcessNotFound when the pid has vanished under us.
func (r *Registry) Stats(id uuid.UUID) (models.InstanceStats, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.RUnlock()
		return models.InstanceStats{}, ErrInstanceNotFound
	}
	pid, monitor := e.pid, e.monitor
	r.mu.RUnlock()

	if pid == 0 || monitor == nil {
		return models.InstanceStats{}, ErrNotRunning
	}
	return monitor.Stats(pid)
}

// IsRunning reports whether the instance currently has a live process.
func (r *Registry) IsRunning(id uuid.UUID) bool {
	r.mu.RLock()
	e, ok := r.entries[id]
	var handle *Process
	if ok {
		handle = e.handle
	}
	r.mu.RUnlock()

	return handle != nil && handle.IsRunning()
}

// handleFor returns the instance's current process handle, or ErrNotRunning
// when none is attached.
func (r *Registry) handleFor(id uuid.UUID) (*Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	if e.handle == nil {
		return nil, ErrNotRunning
	}
	return e.handle, nil
}

// adopt attaches an already-running process (recovery) to an instance entry.
func (r *Registry) adopt(id uuid.UUID, proc *Process, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.state = models.StateRunning
	e.pid = pid
	e.handle = proc
	e.monitor = NewMonitor()
}

// watchExit blocks until the spawned process exits, then performs the
// terminal state transition.
func (r *Registry) watchExit(id uuid.UUID, proc *Process) {
	proc.Wait()
	log.Printf("[Registry] Instance %s process exited", id)
	r.clearIfCurrent(id, proc)
}

// clearIfCurrent resets an entry to stopped, but only if the given handle is
// still the one attached. The instance having been removed, force-stopped or
// restarted in the meantime is a benign race, not an error.
func (r *Registry) clearIfCurrent(id uuid.UUID, proc *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.handle != proc {
		return
	}
	e.state = models.StateStopped
	e.pid = 0
	e.handle = nil
	e.monitor = nil
}
