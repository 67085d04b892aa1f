package backup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs CreateAndUpload and RotateOldBackups on a fixed interval
// through a robfig/cron `@every` schedule.
type Scheduler struct {
	svc *Service
	cr  *cron.Cron
	log zerolog.Logger
}

// NewScheduler builds a Scheduler that runs every intervalHr hours.
func NewScheduler(svc *Service, intervalHr int, log zerolog.Logger) (*Scheduler, error) {
	if intervalHr <= 0 {
		intervalHr = 24
	}
	spec := fmt.Sprintf("@every %dh", intervalHr)

	log = log.With().Str("component", "backup-scheduler").Logger()
	c := cron.New()
	s := &Scheduler{svc: svc, cr: c, log: log}

	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		if err := svc.CreateAndUpload(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled backup failed")
			return
		}
		if err := svc.RotateOldBackups(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled backup rotation failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("backup: schedule: %w", err)
	}
	return s, nil
}

// Start begins running the scheduled job in the background.
func (s *Scheduler) Start() { s.cr.Start() }

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() { <-s.cr.Stop().Done() }
