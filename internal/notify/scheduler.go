package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/izaki/koto-agent/internal/agent"
	"github.com/izaki/koto-agent/internal/memory"
	"github.com/izaki/koto-agent/internal/prompts"
	"github.com/izaki/koto-agent/internal/userconfig"
)

// Responder drives the agent loop on behalf of a scheduled job.
// Implemented by [*agent.Agent].
type Responder interface {
	Respond(ctx context.Context, userID, inputText string, attachment *agent.Attachment) (string, error)
}

// Deliverer pushes a generated message to the user.
type Deliverer interface {
	Deliver(ctx context.Context, userID, text string) error
}

// ActiveUserSource supplies the users eligible for proactive messages.
// Implemented by [*Directory].
type ActiveUserSource interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// ProfileRunner triggers one user's profile analysis. Implemented by
// [*profile.Synthesizer].
type ProfileRunner interface {
	RunAnalysis(ctx context.Context, userID string) (memory.UserProfile, error)
}

// Config tunes the scheduler.
type Config struct {
	Timezone     string        // IANA zone for hour matching (default: local)
	ProfileHour  int           // Hour of the daily profile analysis run
	TickInterval time.Duration // Cadence of Run's internal ticker (default 1h)
}

// Scheduler fires reminder rules whose hour matches the clock, and one
// daily profile analysis pass. Per-user failures are logged and
// skipped; one broken user never starves the rest of the batch.
//
// Hour matching carries a known gap: a rule fires when its hour equals
// the tick's hour, with no stronger de-duplication than the hourly
// cadence itself. Two ticks within the same hour (e.g. around a
// restart) can deliver the same reminder twice.
type Scheduler struct {
	users      ActiveUserSource
	configs    *userconfig.Store
	responder  Responder
	deliverers []Deliverer
	profiles   ProfileRunner
	logger     *slog.Logger
	cfg        Config

	location       *time.Location
	lastProfileDay string
	nowFunc        func() time.Time // injectable for testing; defaults to time.Now
}

// NewScheduler wires the notification scheduler.
func NewScheduler(users ActiveUserSource, configs *userconfig.Store, responder Responder, deliverers []Deliverer, profiles ProfileRunner, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Hour
	}
	loc := time.Local
	if cfg.Timezone != "" {
		if parsed, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = parsed
		} else {
			logger.Warn("invalid timezone, using local", "timezone", cfg.Timezone, "error", err)
		}
	}
	return &Scheduler{
		users:      users,
		configs:    configs,
		responder:  responder,
		deliverers: deliverers,
		profiles:   profiles,
		logger:     logger,
		cfg:        cfg,
		location:   loc,
		nowFunc:    time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("notification scheduler started",
		"interval", s.cfg.TickInterval, "profile_hour", s.cfg.ProfileHour)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("notification scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.nowFunc())
		}
	}
}

// Tick evaluates every active user's rules against now. Exported so
// tests can drive the schedule deterministically.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	now = now.In(s.location)

	userIDs, err := s.users.ActiveUsers(ctx)
	if err != nil {
		s.logger.Error("scheduler: listing active users failed", "error", err)
		return
	}

	for _, userID := range userIDs {
		s.runReminders(ctx, userID, now)
	}

	if now.Hour() == s.cfg.ProfileHour && s.profiles != nil {
		day := now.Format("2006-01-02")
		if day != s.lastProfileDay {
			s.lastProfileDay = day
			for _, userID := range userIDs {
				if _, err := s.profiles.RunAnalysis(ctx, userID); err != nil {
					s.logger.Warn("scheduler: profile analysis failed", "user_id", userID, "error", err)
				}
			}
		}
	}
}

// runReminders fires the user's matching rules. Any failure is local to
// this user.
func (s *Scheduler) runReminders(ctx context.Context, userID string, now time.Time) {
	cfg, err := s.configs.Load(userID)
	if err != nil {
		s.logger.Warn("scheduler: user config unreadable", "user_id", userID, "error", err)
		return
	}

	for _, rule := range cfg.Reminders {
		if !rule.Enabled || rule.Hour() != now.Hour() {
			continue
		}

		text, err := s.responder.Respond(ctx, userID, prompts.ReminderPrompt(rule.Name, rule.Prompt), nil)
		if err != nil {
			s.logger.Warn("scheduler: reminder generation failed",
				"user_id", userID, "rule", rule.Name, "error", err)
			continue
		}

		for _, d := range s.deliverers {
			if err := d.Deliver(ctx, userID, text); err != nil {
				s.logger.Warn("scheduler: delivery failed",
					"user_id", userID, "rule", rule.Name, "error", err)
			}
		}
		s.logger.Info("reminder sent", "user_id", userID, "rule", rule.Name)
	}
}
