package server

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestMonitorFirstSampleReportsZeroCPU(t *testing.T) {
	m := NewMonitor()

	stats, err := m.Stats(os.Getpid())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.CPUPercent != 0 {
		t.Errorf("Expected first sample to report 0%% cpu, got %f", stats.CPUPercent)
	}
	if stats.MemoryMB == 0 {
		t.Errorf("Expected nonzero resident memory for own process")
	}
}

func TestMonitorSecondSample(t *testing.T) {
	m := NewMonitor()

	if _, err := m.Stats(os.Getpid()); err != nil {
		t.Fatalf("First sample failed: %v", err)
	}

	// Burn a little cpu so the delta is observable.
	deadline := time.Now().Add(50 * time.Millisecond)
	x := 0
	for time.Now().Before(deadline) {
		x++
	}
	_ = x

	stats, err := m.Stats(os.Getpid())
	if err != nil {
		t.Fatalf("Second sample failed: %v", err)
	}
	if stats.CPUPercent < 0 {
		t.Errorf("Expected non-negative cpu percentage, got %f", stats.CPUPercent)
	}
}

func TestMonitorVanishedProcess(t *testing.T) {
	m := NewMonitor()
	if _, err := m.Stats(1 << 30); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("Expected ErrProcessNotFound, got %v", err)
	}
}

func TestMonitorUptimeFromCreation(t *testing.T) {
	m := NewMonitor()

	stats, err := m.Stats(os.Getpid())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.UptimeSeconds > 1 {
		t.Errorf("Expected uptime measured from creation, got %d", stats.UptimeSeconds)
	}
}
