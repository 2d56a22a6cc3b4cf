package backup

import (
	"log"

	"github.com/robfig/cron/v3"

	"github.com/vpastila/mineserv/internal/server"
	"github.com/vpastila/mineserv/internal/worlds"
)

// Scheduler runs a full backup of every registered instance on a cron
// schedule.
type Scheduler struct {
	service  *Service
	registry *server.Registry
	schedule string
	cron     *cron.Cron
}

// NewScheduler creates a scheduler for the given cron expression.
func NewScheduler(service *Service, registry *server.Registry, schedule string) *Scheduler {
	return &Scheduler{
		service:  service,
		registry: registry,
		schedule: schedule,
	}
}

// Start begins running scheduled backups. It fails up front when the cron
// expression does not parse.
func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.runAll); err != nil {
		return err
	}
	c.Start()
	s.cron = c

	log.Printf("[Backup] Scheduled backups enabled: %s", s.schedule)
	return nil
}

// Stop halts the schedule and waits for a running backup pass to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// runAll backs up every world of every registered instance. One failing
// instance does not stop the pass.
func (s *Scheduler) runAll() {
	statuses := s.registry.List()
	log.Printf("[Backup] Scheduled backup pass: %d instances", len(statuses))

	for _, status := range statuses {
		instanceDir := s.registry.InstanceDir(status.Config.ID)
		found, err := worlds.List(instanceDir)
		if err != nil {
			log.Printf("[Backup] Failed to list worlds for %s: %v", status.Config.Name, err)
			continue
		}
		for _, w := range found {
			if _, err := s.service.Create(instanceDir, status.Config, w.Name); err != nil {
				log.Printf("[Backup] Backup of %s/%s failed: %v", status.Config.Name, w.Name, err)
			}
		}
	}
}
