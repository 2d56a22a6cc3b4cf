package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vpastila/mineserv/internal/models"
	"github.com/vpastila/mineserv/internal/server"
)

func TestCollectCountsInstances(t *testing.T) {
	registry := server.NewRegistry(t.TempDir())
	cfg := models.NewInstanceConfig("survival", models.TypePaper, "1.21.4")
	if err := registry.Add(cfg); err != nil {
		t.Fatalf("failed to register instance: %v", err)
	}

	c := NewCollector(registry, time.Minute)
	c.collect()

	if got := testutil.ToFloat64(c.instancesTotal); got != 1 {
		t.Errorf("expected 1 registered instance, got %v", got)
	}
	if got := testutil.ToFloat64(c.instancesRunning); got != 0 {
		t.Errorf("expected 0 running instances, got %v", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	registry := server.NewRegistry(t.TempDir())
	c := NewCollector(registry, time.Minute)
	c.collect()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "mineserv_instances_total 0") {
		t.Errorf("expected instance gauge in exposition, got:\n%s", body)
	}
}

func TestStartStop(t *testing.T) {
	registry := server.NewRegistry(t.TempDir())
	c := NewCollector(registry, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}
