// Package cache provides the Redis-backed listing cache and bid event
// publisher. Everything here is best effort: a Redis outage degrades to
// store reads and silent events, never to request failures.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/auctionhouse/marketplace/internal/app/bidding"
	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/logging"
)

const activeItemsKey = "items:active"

// BidChannel returns the pub/sub channel carrying bid events for one item.
func BidChannel(ref market.ItemRef) string {
	return fmt.Sprintf("bid_events:%s/%s", ref.SellerID, ref.ID)
}

// Client wraps a Redis connection with marketplace operations.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
	log *logging.Logger
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int, ttl time.Duration, log *logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.New("cache")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Client{rdb: rdb, ttl: ttl, log: log}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.rdb.Close() }

// GetActiveItems returns the cached active listing, if fresh.
func (c *Client) GetActiveItems(ctx context.Context) ([]market.Item, bool) {
	raw, err := c.rdb.Get(ctx, activeItemsKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Debug("active listing cache read failed")
		}
		return nil, false
	}
	var items []market.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// SetActiveItems stores the active listing with the configured TTL.
func (c *Client) SetActiveItems(ctx context.Context, items []market.Item) {
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, activeItemsKey, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("active listing cache write failed")
	}
}

// Invalidate drops the cached active listing.
func (c *Client) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, activeItemsKey).Err(); err != nil {
		c.log.WithError(err).Debug("active listing cache invalidation failed")
	}
}

// PublishBid fans an accepted bid out to live listeners of the item.
func (c *Client) PublishBid(ctx context.Context, ev bidding.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, BidChannel(ev.Item), payload).Err()
}

// SubscribeBids subscribes to bid events for one item. The returned channel
// closes when ctx is cancelled.
func (c *Client) SubscribeBids(ctx context.Context, ref market.ItemRef) <-chan bidding.Event {
	pubsub := c.rdb.Subscribe(ctx, BidChannel(ref))
	out := make(chan bidding.Event)

	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev bidding.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					c.log.WithError(err).Debug("dropping malformed bid event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
