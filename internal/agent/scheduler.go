package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/autogoal/internal/store"
)

// Messenger delivers operator notifications.
type Messenger interface {
	Send(chatID string, text string) error
}

// Start recovers unfinished work, then runs a cycle immediately and every
// Interval until ctx is cancelled. It returns an error only when the goal
// store becomes unavailable.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.Recover(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if store.IsUnavailable(err) {
			return err
		}
		c.logger.Warn("recovery incomplete", zap.Error(err))
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info("coordinator started", zap.Duration("interval", c.cfg.Interval))

	for {
		if err := c.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("coordinator stopping", zap.Error(err))
			return err
		}

		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopped")
			return nil
		case <-ticker.C:
			c.status.Heartbeat()
			c.logger.LogHeartbeat()
		}
	}
}
