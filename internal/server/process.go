package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vpastila/mineserv/internal/models"
)

// MarkerFileName is the liveness marker kept in each instance directory while
// its process is running. It holds the decimal OS pid and nothing else.
const MarkerFileName = "server.pid"

// stderrTag prefixes stderr lines so console consumers can tell the streams
// apart without a structured envelope.
const stderrTag = "[ERROR] "

// LaunchSpec describes how to start an instance's process.
type LaunchSpec struct {
	Command  string   // executable to invoke, e.g. "java"
	Args     []string
	Dir      string // instance working directory
	Artifact string // file that must exist before launch (empty to skip the check)
}

// Process owns at most one underlying OS process. A process is either spawned
// (this manager owns its pipes and wait handle) or recovered (only the pid is
// known; no pipes, no wait handle, liveness by signal probe).
type Process struct {
	cfg  models.InstanceConfig
	spec LaunchSpec

	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	recovered bool
	started   bool

	stdinCh  chan string
	waitDone chan struct{}
	exitOnce sync.Once

	broadcaster *Broadcaster
}

// NewProcess creates a handle in spawned mode; nothing runs until Start.
func NewProcess(cfg models.InstanceConfig, spec LaunchSpec) *Process {
	return &Process{
		cfg:         cfg,
		spec:        spec,
		stdinCh:     make(chan string, 64),
		waitDone:    make(chan struct{}),
		broadcaster: NewBroadcaster(0),
	}
}

// RecoverProcess creates a handle for a process that was already running when
// the manager started. The previous manager owned its pipes, so the handle
// can observe and kill the process but never write to its stdin.
func RecoverProcess(cfg models.InstanceConfig, dir string, pid int) *Process {
	return &Process{
		cfg:         cfg,
		spec:        LaunchSpec{Dir: dir},
		pid:         pid,
		recovered:   true,
		started:     true,
		waitDone:    make(chan struct{}),
		broadcaster: NewBroadcaster(0),
	}
}

// Start spawns the configured executable with captured stdin/stdout/stderr,
// writes the liveness marker, and launches the background reader and writer
// goroutines. Returns the OS pid.
func (p *Process) Start() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.recovered {
		return 0, fmt.Errorf("cannot start a recovered process handle")
	}
	if p.started {
		return 0, ErrAlreadyRunning
	}

	if p.spec.Artifact != "" {
		if _, err := os.Stat(p.spec.Artifact); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrExecutableMissing, p.spec.Artifact)
		}
	}

	cmd := exec.Command(p.spec.Command, p.spec.Args...)
	cmd.Dir = p.spec.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.started = true

	if err := writeMarker(p.spec.Dir, p.pid); err != nil {
		log.Printf("[Process] Failed to write pid marker for %s: %v", p.cfg.ID, err)
	}

	go p.writeStdin(stdin)

	var readers sync.WaitGroup
	readers.Add(2)
	go p.readOutput(stdout, "", &readers)
	go p.readOutput(stderr, stderrTag, &readers)

	go func() {
		readers.Wait()
		if err := cmd.Wait(); err != nil {
			log.Printf("[Process] Instance %s exited: %v", p.cfg.ID, err)
		}
		p.markExited()
	}()

	return p.pid, nil
}

// writeStdin drains the command queue into the process's stdin, one line per
// command. Exits when the process does.
func (p *Process) writeStdin(stdin io.WriteCloser) {
	defer stdin.Close()
	for {
		select {
		case command := <-p.stdinCh:
			if _, err := io.WriteString(stdin, command+"\n"); err != nil {
				log.Printf("[Process] Failed to write to stdin of %s: %v", p.cfg.ID, err)
				return
			}
		case <-p.waitDone:
			return
		}
	}
}

// readOutput splits a pipe into newline-delimited records and publishes each
// to the broadcaster, tagged if it came from stderr.
func (p *Process) readOutput(r io.Reader, tag string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.broadcaster.Publish(tag + scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[Process] Output reader for %s stopped: %v", p.cfg.ID, err)
	}
}

// markExited performs the one-time cleanup after the process is gone: drop
// the marker, release subscribers, unblock Wait.
func (p *Process) markExited() {
	p.exitOnce.Do(func() {
		removeMarker(p.spec.Dir)
		p.broadcaster.Close()
		close(p.waitDone)
	})
}

// SendCommand queues a command line for delivery to the process's stdin.
// Recovered handles have no input channel; the error is permanent until the
// instance is restarted under this manager.
func (p *Process) SendCommand(command string) error {
	if p.recovered {
		return ErrNoInputChannel
	}
	select {
	case <-p.waitDone:
		return ErrNotRunning
	default:
	}
	select {
	case p.stdinCh <- command:
		return nil
	case <-p.waitDone:
		return ErrNotRunning
	}
}

// Stop sends the server's graceful shutdown command. It does not wait for the
// process to exit.
func (p *Process) Stop() error {
	return p.SendCommand("stop")
}

// ForceStop kills the process. For a spawned handle it signals the owned
// process; for a recovered handle it signals the pid recorded in the marker.
// A process that is already gone is not an error. The marker is always
// removed.
func (p *Process) ForceStop() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Printf("[Process] Kill for %s: %v", p.cfg.ID, err)
		}
	} else if pid, err := readMarker(p.spec.Dir); err == nil {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			log.Printf("[Process] Kill pid %d for %s: %v", pid, p.cfg.ID, err)
		}
	}

	p.markExited()
	return nil
}

// Wait blocks until the spawned process exits. Recovered handles have no
// wait facility; their exit is observed by the recovery poll watcher, which
// unblocks Wait when the probe fails.
func (p *Process) Wait() {
	<-p.waitDone
}

// IsRunning reports process liveness. A spawned handle consults its own wait
// state; otherwise the pid recorded in the marker is signal-probed. Pid reuse
// is tolerated: "no such process" is sufficient proof of exit.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	spawned := p.cmd != nil
	p.mu.Unlock()

	if spawned {
		select {
		case <-p.waitDone:
			return false
		default:
			return true
		}
	}

	pid, err := readMarker(p.spec.Dir)
	if err != nil {
		return false
	}
	return pidAlive(pid)
}

// Recovered reports whether this handle was reattached without pipes.
func (p *Process) Recovered() bool {
	return p.recovered
}

// Pid returns the OS pid, or 0 if the process never started.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Subscribe registers a new console output consumer.
func (p *Process) Subscribe() *Subscription {
	return p.broadcaster.Subscribe()
}

// pidAlive signal-probes a pid without side effects. EPERM means the process
// exists but belongs to someone else, which still counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

func markerPath(dir string) string {
	return filepath.Join(dir, MarkerFileName)
}

func writeMarker(dir string, pid int) error {
	return os.WriteFile(markerPath(dir), []byte(strconv.Itoa(pid)), 0644)
}

func readMarker(dir string) (int, error) {
	data, err := os.ReadFile(markerPath(dir))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid marker in %s: %w", dir, err)
	}
	return pid, nil
}

func removeMarker(dir string) {
	if err := os.Remove(markerPath(dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Process] Failed to remove pid marker in %s: %v", dir, err)
	}
}
