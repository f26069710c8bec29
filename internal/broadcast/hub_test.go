package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/auctionhouse/marketplace/internal/app/bidding"
	"github.com/auctionhouse/marketplace/internal/domain/market"
)

// stubSource hands every room the same event channel and keeps it open past
// context cancellation, the way a redis subscription keeps delivering until
// its goroutine notices the cancel.
type stubSource struct {
	ch chan bidding.Event
}

func (s *stubSource) SubscribeBids(context.Context, market.ItemRef) <-chan bidding.Event {
	return s.ch
}

func testRef() market.ItemRef {
	return market.ItemRef{SellerID: "s1", ID: "i1"}
}

func TestCloseDetachesClients(t *testing.T) {
	src := &stubSource{ch: make(chan bidding.Event)}
	h := NewHub(src, nil)

	c := &Client{send: make(chan bidding.Event, 1)}
	h.join(testRef(), c)

	h.Close()

	// The pump is still draining the source; events arriving after Close
	// must find no clients left to send to. The second send completes only
	// once the first was fully handled.
	src.ch <- bidding.Event{Amount: 10}
	src.ch <- bidding.Event{Amount: 20}
	close(src.ch)

	if _, ok := <-c.send; ok {
		t.Fatal("client channel should be closed with nothing delivered")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.rooms) != 0 {
		t.Fatalf("rooms left after close: %d", len(h.rooms))
	}
}

func TestSlowConsumerDropped(t *testing.T) {
	src := &stubSource{ch: make(chan bidding.Event)}
	h := NewHub(src, nil)
	defer h.Close()

	fast := &Client{send: make(chan bidding.Event, 1)}
	slow := &Client{send: make(chan bidding.Event)}
	h.join(testRef(), fast)
	h.join(testRef(), slow)

	src.ch <- bidding.Event{Amount: 42}

	select {
	case ev := <-fast.send:
		if ev.Amount != 42 {
			t.Fatalf("amount %d", ev.Amount)
		}
	case <-time.After(time.Second):
		t.Fatal("fast client never received the event")
	}

	// The drop happens while the pump holds the lock; wait for it to settle
	// before touching the slow client's channel.
	deadline := time.Now().Add(time.Second)
	for {
		h.mu.Lock()
		n := len(h.rooms[testRef()].clients)
		h.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("slow client still joined: %d clients", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("slow client should have been dropped")
	}
}
