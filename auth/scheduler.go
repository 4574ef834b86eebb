package auth

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// DefaultRefreshInterval is how often the credential is renewed.
const DefaultRefreshInterval = 4 * time.Minute

// Refresher exchanges a refresh credential for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Scheduler renews the session credential on a fixed interval. A failed
// refresh is logged and retried on the next tick; it never clears the session.
type Scheduler struct {
	session   *Session
	refresher Refresher
	interval  time.Duration
	logger    *log.Logger
}

// NewScheduler creates a scheduler. A non-positive interval selects
// DefaultRefreshInterval.
func NewScheduler(session *Session, refresher Refresher, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Scheduler{session: session, refresher: refresher, interval: interval, logger: logger}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Infof("credential refresh started, interval: %v", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one refresh cycle.
func (s *Scheduler) Tick(ctx context.Context) {
	prev := s.session.current()
	if prev == nil || prev.RefreshToken == "" {
		s.logger.Debug("auth.refresh: no refresh credential, skipping")
		return
	}

	next, err := s.refresher.Refresh(ctx, prev.RefreshToken)
	if err != nil {
		s.logger.WithError(err).Warn("auth.refresh: refresh failed, keeping current credential")
		return
	}
	if next == nil || next.AccessToken == "" {
		s.logger.Warn("auth.refresh: empty access credential, keeping current credential")
		return
	}

	swapped, err := s.session.rotate(ctx, prev, next)
	if !swapped {
		s.logger.Info("auth.refresh: session changed during refresh, dropping result")
		return
	}
	if err != nil {
		s.logger.WithError(err).Warn("auth.refresh: credential rotated in memory but not persisted")
		return
	}
	s.logger.WithField("rotated", next.RefreshToken != "").Debug("auth.refresh: credential renewed")
}
