// Package broadcast delivers accepted bids to websocket subscribers in
// real time. Each item gets a room; a room is fed from the Redis bid
// channel and torn down when its last subscriber leaves.
package broadcast

import (
	"context"
	"sync"

	"github.com/auctionhouse/marketplace/internal/app/bidding"
	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/logging"
)

// BidSource supplies the stream of accepted bids for an item.
type BidSource interface {
	SubscribeBids(ctx context.Context, ref market.ItemRef) <-chan bidding.Event
}

// Hub tracks the per-item rooms.
type Hub struct {
	source BidSource
	log    *logging.Logger

	mu    sync.Mutex
	rooms map[market.ItemRef]*room
}

type room struct {
	cancel  context.CancelFunc
	clients map[*Client]struct{}
}

// NewHub creates a hub fed from the given bid source.
func NewHub(source BidSource, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.New("broadcast")
	}
	return &Hub{
		source: source,
		log:    log,
		rooms:  make(map[market.ItemRef]*room),
	}
}

func (h *Hub) join(ref market.ItemRef, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[ref]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		r = &room{cancel: cancel, clients: make(map[*Client]struct{})}
		h.rooms[ref] = r
		go h.pump(ctx, ref, r)
	}
	r.clients[c] = struct{}{}
}

func (h *Hub) leave(ref market.ItemRef, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[ref]
	if !ok {
		return
	}
	delete(r.clients, c)
	if len(r.clients) == 0 {
		r.cancel()
		delete(h.rooms, ref)
	}
}

// pump forwards bid events from the source into every client of the room.
func (h *Hub) pump(ctx context.Context, ref market.ItemRef, r *room) {
	events := h.source.SubscribeBids(ctx, ref)
	for ev := range events {
		h.mu.Lock()
		for c := range r.clients {
			select {
			case c.send <- ev:
			default:
				// Slow consumer; drop it rather than stall the room.
				close(c.send)
				delete(r.clients, c)
			}
		}
		h.mu.Unlock()
	}
}

// Close tears down every room. Clients are detached before their channels
// close so a pump still holding an event finds nobody to send to.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ref, r := range h.rooms {
		r.cancel()
		for c := range r.clients {
			delete(r.clients, c)
			close(c.send)
		}
		delete(h.rooms, ref)
	}
}
