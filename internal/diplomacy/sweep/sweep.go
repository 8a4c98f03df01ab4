// Package sweep runs the periodic expiry passes for requests, wars, and
// peace agreements.
package sweep

import (
	"context"
	"log"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/peace"
	"github.com/lumalyte/guilds/internal/diplomacy/requests"
	"github.com/lumalyte/guilds/internal/diplomacy/wars"
)

// DefaultInterval is how often a sweep runs when none is configured.
const DefaultInterval = time.Minute

// Sweeper drives the expiry passes on a fixed interval. Each pass is
// compare-and-set based, so sweeps race safely with live accepts.
type Sweeper struct {
	requests *requests.Service
	wars     *wars.Service
	peace    *peace.Service
	interval time.Duration
}

// New constructs a sweeper over the three expiring ledgers.
func New(requestSvc *requests.Service, warSvc *wars.Service, peaceSvc *peace.Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		requests: requestSvc,
		wars:     warSvc,
		peace:    peaceSvc,
		interval: interval,
	}
}

// Run sweeps until the context is cancelled. It always runs one pass
// immediately so restarts settle overdue state without waiting a tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.requests != nil {
		if expired, err := s.requests.SweepExpired(ctx); err != nil {
			log.Printf("sweep: requests: %v", err)
		} else if len(expired) > 0 {
			log.Printf("sweep: expired %d requests", len(expired))
		}
	}
	if s.wars != nil {
		if ended, err := s.wars.SweepExpired(ctx); err != nil {
			log.Printf("sweep: wars: %v", err)
		} else if len(ended) > 0 {
			log.Printf("sweep: settled %d wars", len(ended))
		}
	}
	if s.peace != nil {
		if expired, err := s.peace.SweepExpired(ctx); err != nil {
			log.Printf("sweep: agreements: %v", err)
		} else if len(expired) > 0 {
			log.Printf("sweep: expired %d peace agreements", len(expired))
		}
	}
}
