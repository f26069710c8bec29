// Package expiry watches for auctions whose window has lapsed. Items without
// bids are moved to the failed state so sellers can archive them; items with
// bids are left for the seller to fulfill.
package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/metrics"
	"github.com/auctionhouse/marketplace/internal/storage"
)

// Sweeper periodically scans active items past their end date.
type Sweeper struct {
	store    storage.Store
	interval time.Duration
	log      *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper constructs a sweeper scanning every interval.
func NewSweeper(store storage.Store, interval time.Duration, log *logging.Logger) *Sweeper {
	if log == nil {
		log = logging.New("expiry")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, interval: interval, log: log, now: time.Now}
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		if _, _, err := s.SweepOnce(ctx); err != nil {
			s.log.WithError(err).Warn("expiry sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule expiry sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("interval", s.interval.String()).Info("expiry sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// SweepOnce scans once and returns how many items it failed and how many are
// awaiting fulfillment. Losing the conditional write to a concurrent bid or
// seller action just skips the item; it will be seen again next sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (failed, awaiting int, err error) {
	var items []market.Item
	err = s.store.Scan(ctx, market.TableItems,
		storage.Where("state", storage.OpEq, market.StateActive), &items)
	if err != nil {
		return 0, 0, fmt.Errorf("scan active items: %w", err)
	}

	now := s.now()
	for _, item := range items {
		if !item.Expired(now) {
			continue
		}

		if item.CurrentBid != nil {
			awaiting++
			metrics.ItemExpired("awaiting_fulfillment")
			continue
		}

		key := storage.Key{Partition: item.SellerID, Sort: item.ID}
		updateErr := s.store.Update(ctx, market.TableItems, key,
			storage.Where("state", storage.OpEq, market.StateActive).
				And("currentBid", storage.OpNotExists, nil),
			storage.Set("state", market.StateFailed),
		)
		if updateErr != nil {
			s.log.WithError(updateErr).WithField("item", item.ID).Debug("expired item changed underneath the sweep")
			continue
		}
		failed++
		metrics.ItemExpired("failed")
	}

	if failed > 0 || awaiting > 0 {
		s.log.Infof("expiry sweep: %d failed, %d awaiting fulfillment", failed, awaiting)
	}
	return failed, awaiting, nil
}
