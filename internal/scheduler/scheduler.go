package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Krishnaraaju/auct-sealed/internal/auctionerrors"
	"github.com/Krishnaraaju/auct-sealed/internal/models"
	"github.com/Krishnaraaju/auct-sealed/utils"
)

const (
	DefaultInterval     = 500 * time.Millisecond
	defaultMaxRetries   = 3
	defaultRetryBackoff = 25 * time.Millisecond
)

// DueSource lists auctions with a pending time-driven transition.
type DueSource interface {
	DueAuctions(now time.Time) ([]models.Auction, error)
}

// Advancer applies the transition an auction is due for at the given instant.
type Advancer interface {
	Advance(auctionID string, now time.Time) error
}

type Config struct {
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Now          func() time.Time
}

// Sweeper periodically scans for due auctions and advances them. Transitions
// are idempotent in the engine, so overlapping or duplicate fires are safe;
// the sweeper only has to guarantee that every due auction is visited.
type Sweeper struct {
	source     DueSource
	advancer   Advancer
	interval   time.Duration
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

func NewSweeper(source DueSource, advancer Advancer, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Sweeper{
		source:     source,
		advancer:   advancer,
		interval:   cfg.Interval,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		now:        cfg.Now,
		log:        utils.ComponentLogger("sweeper"),
	}
}

// Run sweeps on the configured interval until the context is cancelled. The
// first sweep runs immediately so restarts catch up without waiting a tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("Sweeper started")
	s.RunOnce(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx, s.now())
		}
	}
}

// RunOnce performs a single sweep at the given instant and returns how many
// auctions were advanced. An auction that cannot be advanced is logged and
// left for the next sweep; one bad auction never blocks the rest.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) int {
	due, err := s.source.DueAuctions(now)
	if err != nil {
		s.log.WithError(err).Error("Failed to list due auctions")
		return 0
	}

	advanced := 0
	for _, auction := range due {
		if ctx.Err() != nil {
			return advanced
		}

		if err := s.advanceWithRetry(ctx, auction.AuctionID, now); err != nil {
			s.log.WithFields(logrus.Fields{
				"auction_id": auction.AuctionID,
				"status":     auction.Status,
			}).WithError(err).Warn("Leaving auction for the next sweep")
			continue
		}
		advanced++
	}

	return advanced
}

// advanceWithRetry retries version conflicts with a linear backoff. Any other
// error is not retryable here: the engine either applied the transition or
// reported a real failure.
func (s *Sweeper) advanceWithRetry(ctx context.Context, auctionID string, now time.Time) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.advancer.Advance(auctionID, now)
		if err == nil {
			return nil
		}
		if !errors.Is(err, auctionerrors.ErrVersionConflict) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("scheduler: max retry attempts (%d) exceeded: %w", s.maxRetries, lastErr)
}
