package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultHeartbeatSchedule matches a 30 second keep-alive.
const DefaultHeartbeatSchedule = "@every 30s"

// Heartbeater runs Broker.Heartbeat on a cron schedule.
type Heartbeater struct {
	broker   *Broker
	schedule string
	logger   *slog.Logger

	cron *cron.Cron
}

// NewHeartbeater creates a Heartbeater. schedule accepts standard cron specs and
// descriptors such as "@every 30s".
func NewHeartbeater(b *Broker, schedule string, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultHeartbeatSchedule
	}
	return &Heartbeater{
		broker:   b,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the heartbeat.
func (h *Heartbeater) Start(ctx context.Context) error {
	if _, err := h.cron.AddFunc(h.schedule, h.beat); err != nil {
		return fmt.Errorf("parse heartbeat schedule %q: %w", h.schedule, err)
	}
	h.cron.Start()

	h.logger.Info("heartbeat started", "schedule", h.schedule)
	return nil
}

// Stop halts the schedule and waits for a running beat to finish.
func (h *Heartbeater) Stop(ctx context.Context) error {
	done := h.cron.Stop()

	select {
	case <-done.Done():
		h.logger.Info("heartbeat stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Heartbeater) beat() {
	delivered := h.broker.Heartbeat()
	h.logger.Debug("heartbeat sent", "delivered", delivered)
}
