package server

import (
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/vpastila/mineserv/internal/models"
)

type staticSource struct {
	configs []models.InstanceConfig
	err     error
}

func (s staticSource) LoadAll() ([]models.InstanceConfig, error) {
	return s.configs, s.err
}

func TestRecoverNoInstances(t *testing.T) {
	r := testRegistry(t)
	if err := r.Recover(staticSource{}); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(r.List()) != 0 {
		t.Errorf("Expected empty registry")
	}
}

func TestRecoverLoadFailureIsFatal(t *testing.T) {
	r := testRegistry(t)
	wantErr := errors.New("db unavailable")
	if err := r.Recover(staticSource{err: wantErr}); !errors.Is(err, wantErr) {
		t.Errorf("Expected load error to propagate, got %v", err)
	}
}

func TestRecoverNoMarker(t *testing.T) {
	r := testRegistry(t)
	cfg := testConfig("plain")
	if err := os.MkdirAll(cfg.Dir(r.BaseDir()), 0755); err != nil {
		t.Fatalf("Failed to create instance dir: %v", err)
	}

	if err := r.Recover(staticSource{configs: []models.InstanceConfig{cfg}}); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	st, err := r.Get(cfg.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.State != models.StateStopped {
		t.Errorf("Expected stopped, got %q", st.State)
	}
}

func TestRecoverStaleMarker(t *testing.T) {
	r := testRegistry(t)
	cfg := testConfig("stale")
	dir := cfg.Dir(r.BaseDir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create instance dir: %v", err)
	}
	// A pid far above the default kernel pid_max cannot be alive.
	if err := writeMarker(dir, 1<<30); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}

	if err := r.Recover(staticSource{configs: []models.InstanceConfig{cfg}}); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	st, _ := r.Get(cfg.ID)
	if st.State != models.StateStopped {
		t.Errorf("Expected stale marker to leave instance stopped, got %q", st.State)
	}
	if _, err := os.Stat(markerPath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected stale marker to be deleted, stat err=%v", err)
	}
}

func TestRecoverCorruptMarker(t *testing.T) {
	r := testRegistry(t)
	cfg := testConfig("corrupt")
	dir := cfg.Dir(r.BaseDir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create instance dir: %v", err)
	}
	if err := os.WriteFile(markerPath(dir), []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}

	if err := r.Recover(staticSource{configs: []models.InstanceConfig{cfg}}); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	st, _ := r.Get(cfg.ID)
	if st.State != models.StateStopped {
		t.Errorf("Expected corrupt marker to leave instance stopped, got %q", st.State)
	}
	if _, err := os.Stat(markerPath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected corrupt marker to be deleted, stat err=%v", err)
	}
}

func TestRecoverLiveProcess(t *testing.T) {
	r := testRegistry(t)
	cfg := testConfig("live")
	dir := cfg.Dir(r.BaseDir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create instance dir: %v", err)
	}

	// A real orphan process standing in for a server that outlived its
	// previous manager.
	orphan := exec.Command("sleep", "60")
	if err := orphan.Start(); err != nil {
		t.Fatalf("Failed to start orphan: %v", err)
	}
	defer func() {
		orphan.Process.Kill()
		orphan.Wait()
	}()

	pid := orphan.Process.Pid
	if err := writeMarker(dir, pid); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}

	if err := r.Recover(staticSource{configs: []models.InstanceConfig{cfg}}); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	st, err := r.Get(cfg.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.State != models.StateRunning {
		t.Fatalf("Expected recovered instance running, got %q", st.State)
	}
	if st.Pid != pid {
		t.Errorf("Expected pid %d, got %d", pid, st.Pid)
	}

	// Recovered handles cannot receive console commands.
	if err := r.SendCommand(cfg.ID, "list"); !errors.Is(err, ErrNoInputChannel) {
		t.Errorf("Expected ErrNoInputChannel, got %v", err)
	}

	// Kill the orphan; the poll watcher must notice and clear the entry.
	orphan.Process.Kill()
	orphan.Wait()
	waitForState(t, r, cfg.ID, models.StateStopped)

	if _, err := os.Stat(markerPath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected marker removed after recovered exit, stat err=%v", err)
	}
}

func TestRecoverForceStopRecovered(t *testing.T) {
	r := testRegistry(t)
	cfg := testConfig("recovered-kill")
	dir := cfg.Dir(r.BaseDir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create instance dir: %v", err)
	}

	orphan := exec.Command("sleep", "60")
	if err := orphan.Start(); err != nil {
		t.Fatalf("Failed to start orphan: %v", err)
	}
	defer func() {
		orphan.Process.Kill()
		orphan.Wait()
	}()

	if err := writeMarker(dir, orphan.Process.Pid); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}
	if err := r.Recover(staticSource{configs: []models.InstanceConfig{cfg}}); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if err := r.ForceStop(cfg.ID); err != nil {
		t.Fatalf("ForceStop failed: %v", err)
	}

	st, _ := r.Get(cfg.ID)
	if st.State != models.StateStopped {
		t.Errorf("Expected stopped after force stop, got %q", st.State)
	}
	if _, err := os.Stat(markerPath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected marker removed by force stop, stat err=%v", err)
	}

	// The process can now be restarted as a normal spawned child.
	if _, err := r.Start(cfg.ID); err != nil {
		t.Fatalf("Start after force stop failed: %v", err)
	}
	r.ForceStop(cfg.ID)
}

func TestRecoverAutoStart(t *testing.T) {
	r := testRegistry(t)
	cfg := testConfig("auto")
	cfg.AutoStart = true
	if err := os.MkdirAll(cfg.Dir(r.BaseDir()), 0755); err != nil {
		t.Fatalf("Failed to create instance dir: %v", err)
	}

	if err := r.Recover(staticSource{configs: []models.InstanceConfig{cfg}}); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	defer r.ForceStop(cfg.ID)

	st, err := r.Get(cfg.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.State != models.StateRunning {
		t.Errorf("Expected auto-start instance running, got %q", st.State)
	}

	// Give the exit watcher a moment in case the process died instantly.
	time.Sleep(50 * time.Millisecond)
	if st, _ = r.Get(cfg.ID); st.State != models.StateRunning {
		t.Errorf("Expected auto-start instance to stay running, got %q", st.State)
	}
}
