package server

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/vpastila/mineserv/internal/models"
)

// ConfigSource supplies the persisted instance configurations at startup.
type ConfigSource interface {
	LoadAll() ([]models.InstanceConfig, error)
}

// Recover reconciles persisted instances with reality. It runs exactly once,
// synchronously, before any request can touch the registry: every instance is
// registered, its pid marker (if any) is checked against a live-process probe,
// and the instance ends up either stopped with no stale marker or running with
// a recovered handle attached.
//
// A failure on one instance is logged and skipped; it never aborts recovery of
// the rest. Only a failure to load the configurations at all is fatal.
func (r *Registry) Recover(src ConfigSource) error {
	configs, err := src.LoadAll()
	if err != nil {
		return err
	}

	recovered, autostart := 0, []uuid.UUID{}
	for _, cfg := range configs {
		if err := r.Add(cfg); err != nil {
			log.Printf("[Recovery] Skipping instance %s: %v", cfg.ID, err)
			continue
		}

		dir := cfg.Dir(r.baseDir)
		pid, err := readMarker(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				// Unreadable or corrupt marker: treat as stale.
				log.Printf("[Recovery] Discarding pid marker for %s: %v", cfg.ID, err)
				removeMarker(dir)
			}
			if cfg.AutoStart {
				autostart = append(autostart, cfg.ID)
			}
			continue
		}

		if !pidAlive(pid) {
			log.Printf("[Recovery] Instance %s: pid %d is gone, clearing stale marker", cfg.ID, pid)
			removeMarker(dir)
			if cfg.AutoStart {
				autostart = append(autostart, cfg.ID)
			}
			continue
		}

		proc := RecoverProcess(cfg, dir, pid)
		r.adopt(cfg.ID, proc, pid)
		go r.watchRecovered(cfg.ID, proc)
		recovered++
		log.Printf("[Recovery] Instance %s reattached to pid %d", cfg.ID, pid)
	}

	for _, id := range autostart {
		if _, err := r.Start(id); err != nil {
			log.Printf("[Recovery] Auto-start of %s failed: %v", id, err)
		}
	}

	log.Printf("[Recovery] Done: %d instances, %d reattached, %d auto-started",
		len(configs), recovered, len(autostart))
	return nil
}

// watchRecovered poll-probes a recovered process until it exits, then runs the
// same terminal transition a spawned process gets from its exit watcher. The
// probe tolerates pid reuse: losing the marker or the signal probe is taken as
// proof of exit.
func (r *Registry) watchRecovered(id uuid.UUID, proc *Process) {
	ticker := time.NewTicker(r.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-proc.waitDone:
			// Force-stopped out from under us.
			r.clearIfCurrent(id, proc)
			return
		case <-ticker.C:
			if !proc.IsRunning() {
				log.Printf("[Recovery] Recovered instance %s exited", id)
				proc.markExited()
				r.clearIfCurrent(id, proc)
				return
			}
		}
	}
}
