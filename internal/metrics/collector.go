// Package metrics exposes instance process statistics in Prometheus format.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpastila/mineserv/internal/models"
	"github.com/vpastila/mineserv/internal/server"
)

// Collector samples the instance registry on a fixed interval and exports
// the results as Prometheus gauges.
type Collector struct {
	registry *server.Registry
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	prom             *prometheus.Registry
	instancesTotal   prometheus.Gauge
	instancesRunning prometheus.Gauge
	cpuPercent       *prometheus.GaugeVec
	memoryMB         *prometheus.GaugeVec
	uptimeSeconds    *prometheus.GaugeVec
}

// NewCollector creates a collector for the given registry. An interval of
// zero or less defaults to 15 seconds.
func NewCollector(registry *server.Registry, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	c := &Collector{
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
		prom:     prometheus.NewRegistry(),
		instancesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mineserv_instances_total",
			Help: "Number of registered instances.",
		}),
		instancesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mineserv_instances_running",
			Help: "Number of instances with a live server process.",
		}),
		cpuPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mineserv_instance_cpu_percent",
			Help: "CPU usage of the instance process.",
		}, []string{"instance_id", "instance_name"}),
		memoryMB: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mineserv_instance_memory_mb",
			Help: "Resident memory of the instance process in megabytes.",
		}, []string{"instance_id", "instance_name"}),
		uptimeSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mineserv_instance_uptime_seconds",
			Help: "Seconds since the instance process was started or adopted.",
		}, []string{"instance_id", "instance_name"}),
	}

	c.prom.MustRegister(c.instancesTotal, c.instancesRunning,
		c.cpuPercent, c.memoryMB, c.uptimeSeconds)
	return c
}

// Handler returns the HTTP handler serving the Prometheus exposition.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.prom, promhttp.HandlerOpts{})
}

// Start begins periodic collection.
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// collect refreshes every gauge from the registry. Gauges of stopped
// instances are dropped rather than left at their last value.
func (c *Collector) collect() {
	statuses := c.registry.List()
	c.instancesTotal.Set(float64(len(statuses)))

	running := 0
	for _, status := range statuses {
		labels := prometheus.Labels{
			"instance_id":   status.Config.ID.String(),
			"instance_name": status.Config.Name,
		}

		if status.State != models.StateRunning {
			c.cpuPercent.Delete(labels)
			c.memoryMB.Delete(labels)
			c.uptimeSeconds.Delete(labels)
			continue
		}
		running++

		stats, err := c.registry.Stats(status.Config.ID)
		if err != nil {
			continue
		}
		c.cpuPercent.With(labels).Set(stats.CPUPercent)
		c.memoryMB.With(labels).Set(float64(stats.MemoryMB))
		c.uptimeSeconds.With(labels).Set(float64(stats.UptimeSeconds))
	}
	c.instancesRunning.Set(float64(running))
}
