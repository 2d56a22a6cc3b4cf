package server

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vpastila/mineserv/internal/models"
)

// shSpec launches a shell script in dir, standing in for the JVM.
func shSpec(dir, script string) LaunchSpec {
	return LaunchSpec{Command: "/bin/sh", Args: []string{"-c", script}, Dir: dir}
}

// echoLoop is a stand-in server: echoes each stdin line, exits on "stop".
const echoLoop = `while read line; do
  if [ "$line" = "stop" ]; then exit 0; fi
  echo "got $line"
done`

func testConfig(name string) models.InstanceConfig {
	return models.InstanceConfig{
		ID:               uuid.New(),
		Name:             name,
		ServerType:       models.TypePaper,
		MinecraftVersion: "1.21.4",
		Port:             25565,
		MaxPlayers:       20,
		MemoryMB:         2048,
	}
}

func waitExit(t *testing.T, p *Process) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for process exit")
	}
}

func TestProcessLifecycle(t *testing.T) {
	dir, err := os.MkdirTemp("", "proc-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	p := NewProcess(testConfig("lifecycle"), shSpec(dir, echoLoop))

	sub := p.Subscribe()
	defer sub.Close()

	pid, err := p.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("Expected a positive pid, got %d", pid)
	}
	if !p.IsRunning() {
		t.Errorf("Expected process to be running after start")
	}

	// Marker appears while running, holding the pid.
	marked, err := readMarker(dir)
	if err != nil {
		t.Fatalf("Failed to read pid marker: %v", err)
	}
	if marked != pid {
		t.Errorf("Expected marker pid %d, got %d", pid, marked)
	}

	if err := p.SendCommand("ping"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := recvLine(t, sub); got != "got ping" {
		t.Errorf("Expected 'got ping', got %q", got)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitExit(t, p)

	if p.IsRunning() {
		t.Errorf("Expected process to be stopped after exit")
	}
	if _, err := os.Stat(markerPath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected pid marker to be removed after exit, stat err=%v", err)
	}
	if err := p.SendCommand("late"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning after exit, got %v", err)
	}
}

func TestProcessStderrTagged(t *testing.T) {
	dir, err := os.MkdirTemp("", "proc-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	p := NewProcess(testConfig("stderr"), shSpec(dir, `echo oops >&2`))
	sub := p.Subscribe()
	defer sub.Close()

	if _, err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.ForceStop()

	if got := recvLine(t, sub); got != "[ERROR] oops" {
		t.Errorf("Expected stderr line to carry the error tag, got %q", got)
	}
	waitExit(t, p)
}

func TestProcessMissingArtifact(t *testing.T) {
	dir, err := os.MkdirTemp("", "proc-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	spec := shSpec(dir, "true")
	spec.Artifact = filepath.Join(dir, ServerJarName)

	p := NewProcess(testConfig("no-jar"), spec)
	if _, err := p.Start(); !errors.Is(err, ErrExecutableMissing) {
		t.Errorf("Expected ErrExecutableMissing, got %v", err)
	}
}

func TestProcessForceStop(t *testing.T) {
	dir, err := os.MkdirTemp("", "proc-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	p := NewProcess(testConfig("force"), shSpec(dir, "sleep 60"))
	if _, err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := p.ForceStop(); err != nil {
		t.Fatalf("ForceStop failed: %v", err)
	}
	waitExit(t, p)

	if p.IsRunning() {
		t.Errorf("Expected process to be dead after force stop")
	}
	if _, err := os.Stat(markerPath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected pid marker gone after force stop, stat err=%v", err)
	}
}

func TestRecoveredProcessHasNoInputChannel(t *testing.T) {
	dir, err := os.MkdirTemp("", "proc-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	// Our own pid is guaranteed alive for the duration of the test.
	pid := os.Getpid()
	if err := writeMarker(dir, pid); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}

	p := RecoverProcess(testConfig("recovered"), dir, pid)

	if !p.Recovered() {
		t.Errorf("Expected handle to report recovered")
	}
	if !p.IsRunning() {
		t.Errorf("Expected recovered handle to probe alive")
	}
	if err := p.SendCommand("stop"); !errors.Is(err, ErrNoInputChannel) {
		t.Errorf("Expected ErrNoInputChannel, got %v", err)
	}
	if err := p.Stop(); !errors.Is(err, ErrNoInputChannel) {
		t.Errorf("Expected ErrNoInputChannel from Stop, got %v", err)
	}
}

func TestRecoveredProcessStaleMarker(t *testing.T) {
	dir, err := os.MkdirTemp("", "proc-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	// No marker at all: nothing to probe.
	p := RecoverProcess(testConfig("stale"), dir, 999999)
	if p.IsRunning() {
		t.Errorf("Expected recovered handle without a marker to report not running")
	}
}

func TestPidAlive(t *testing.T) {
	if !pidAlive(os.Getpid()) {
		t.Errorf("Expected own pid to be alive")
	}
	if pidAlive(0) {
		t.Errorf("Expected pid 0 to be rejected")
	}
	if pidAlive(-1) {
		t.Errorf("Expected negative pid to be rejected")
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "proc-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	if err := writeMarker(dir, 4242); err != nil {
		t.Fatalf("writeMarker failed: %v", err)
	}
	pid, err := readMarker(dir)
	if err != nil {
		t.Fatalf("readMarker failed: %v", err)
	}
	if pid != 4242 {
		t.Errorf("Expected 4242, got %d", pid)
	}

	// Corrupt contents fail loudly instead of yielding a bogus pid.
	if err := os.WriteFile(markerPath(dir), []byte("not-a-pid"), 0644); err != nil {
		t.Fatalf("Failed to corrupt marker: %v", err)
	}
	if _, err := readMarker(dir); err == nil {
		t.Errorf("Expected error for corrupt marker")
	}

	removeMarker(dir)
	if _, err := readMarker(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected marker to be gone, got %v", err)
	}
}
