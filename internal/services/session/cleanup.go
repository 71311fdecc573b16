package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// DefaultCleanupSchedule runs the idle-session sweep every 15 minutes
const DefaultCleanupSchedule = "*/15 * * * *"

// Cleaner removes idle sessions on a cron schedule
type Cleaner struct {
	service *Service
	ttl     time.Duration
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewCleaner creates a cleaner for sessions idle longer than ttl
func NewCleaner(service *Service, ttl time.Duration, logger arbor.ILogger) *Cleaner {
	return &Cleaner{
		service: service,
		ttl:     ttl,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start begins the scheduled sweep
func (c *Cleaner) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}

	_, err := c.cron.AddFunc(schedule, func() {
		c.RunNow(context.Background())
	})
	if err != nil {
		return err
	}

	c.cron.Start()
	c.logger.Info().
		Str("schedule", schedule).
		Str("ttl", c.ttl.String()).
		Msg("Session cleanup scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep
func (c *Cleaner) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info().Msg("Session cleanup scheduler stopped")
}

// RunNow deletes every idle session that is not busy and returns how many
// were removed
func (c *Cleaner) RunNow(ctx context.Context) int {
	if c.ttl <= 0 {
		return 0
	}

	idle, err := c.service.storage.ListIdleSessions(ctx, time.Now().Add(-c.ttl))
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to list idle sessions")
		return 0
	}

	removed := 0
	for _, session := range idle {
		if session.Busy {
			continue
		}
		if err := c.service.Delete(ctx, session.ID); err != nil {
			c.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to delete idle session")
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info().
			Int("removed", removed).
			Int("idle", len(idle)).
			Msg("Idle sessions removed")
	}
	return removed
}
