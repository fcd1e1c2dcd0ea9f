package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/pkg/config"
)

const DefaultSweepInterval = time.Minute

// ExpiryPolicy decides when sessions leave the registry.
// A zero IdleTimeout never expires active sessions.
type ExpiryPolicy struct {
	IdleTimeout time.Duration
	Retention   time.Duration
}

// PolicyFromConfig builds the policy from the sessions config section
func PolicyFromConfig(cfg config.SessionsConfig) ExpiryPolicy {
	return ExpiryPolicy{
		IdleTimeout: cfg.IdleTimeout,
		Retention:   cfg.Retention,
	}
}

// Sweeper applies an ExpiryPolicy on a fixed interval
type Sweeper struct {
	service  *Service
	policy   ExpiryPolicy
	interval time.Duration
}

// NewSweeper creates a sweeper. Non-positive intervals fall back to one minute.
func NewSweeper(service *Service, policy ExpiryPolicy, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{service: service, policy: policy, interval: interval}
}

// Run sweeps until ctx is cancelled
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", sw.interval).
		Dur("idle_timeout", sw.policy.IdleTimeout).
		Dur("retention", sw.policy.Retention).
		Msg("Session sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session sweeper stopped")
			return
		case <-ticker.C:
			sw.SweepOnce(ctx, sw.service.now())
		}
	}
}

// SweepOnce expires idle sessions and removes retained terminal ones.
// Sessions expired here stay in the registry until their retention passes.
func (sw *Sweeper) SweepOnce(ctx context.Context, now time.Time) SweepResult {
	result := sw.service.registry.Sweep(now, sw.policy)
	expired := sw.expireIdle(result.Idle, now)

	if expired > 0 || result.Removed > 0 {
		log.Info().
			Int("expired", expired).
			Int("removed", result.Removed).
			Int("remaining", sw.service.registry.Len()).
			Msg("Session sweep finished")
	}

	return result
}

// expireIdle expires the sweep's idle candidates, skipping any that saw
// activity since the sweep listed them
func (sw *Sweeper) expireIdle(ids []string, now time.Time) int {
	expired := 0
	for _, id := range ids {
		ok, err := sw.service.expireIdle(id, now, sw.policy.IdleTimeout)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				log.Error().Err(err).Str("session_id", id).Msg("Failed to expire idle session")
			}
			continue
		}
		if ok {
			expired++
		}
	}
	return expired
}
