package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/auctionhouse/marketplace/internal/app/funds"
	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/storage"
	"github.com/auctionhouse/marketplace/internal/storage/memory"
)

var (
	seller = market.Principal{UserID: "seller-1", Role: market.RoleSeller}
	alice  = market.Principal{UserID: "alice", Role: market.RoleBuyer}
	bob    = market.Principal{UserID: "bob", Role: market.RoleBuyer}
)

type fixture struct {
	store  *memory.Store
	funds  *funds.Service
	svc    *Service
	events []Event
}

func (f *fixture) PublishBid(_ context.Context, ev Event) error {
	f.events = append(f.events, ev)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New()}
	f.funds = funds.New(f.store, logging.Nop())
	f.svc = New(f.store, f.funds, f, logging.Nop())
	return f
}

// seedItem writes an active listing whose auction window is open.
func (f *fixture) seedItem(t *testing.T, initPrice uint64) market.ItemRef {
	t.Helper()
	now := time.Now().UnixMilli()
	start := now - time.Minute.Milliseconds()
	end := now + time.Hour.Milliseconds()
	item := market.Item{
		SellerID:      seller.UserID,
		ID:            "item-1",
		CreateAt:      now,
		Name:          "antique clock",
		Description:   "brass, working",
		InitPrice:     initPrice,
		State:         market.StateActive,
		AuctionLength: time.Hour.Milliseconds(),
		StartDate:     &start,
		EndDate:       &end,
		PastBids:      []market.BidRef{},
	}
	key := storage.Key{Partition: item.SellerID, Sort: item.ID}
	if err := f.store.Put(context.Background(), market.TableItems, key, item, nil); err != nil {
		t.Fatalf("seed item failed: %v", err)
	}
	return item.Ref()
}

func (f *fixture) topUp(t *testing.T, p market.Principal, amount uint64) {
	t.Helper()
	if _, err := f.funds.AddFund(context.Background(), p, amount); err != nil {
		t.Fatalf("AddFund failed: %v", err)
	}
}

func (f *fixture) item(t *testing.T, ref market.ItemRef) market.Item {
	t.Helper()
	var item market.Item
	key := storage.Key{Partition: ref.SellerID, Sort: ref.ID}
	if err := f.store.Get(context.Background(), market.TableItems, key, &item); err != nil {
		t.Fatalf("load item failed: %v", err)
	}
	return item
}

func (f *fixture) buyer(t *testing.T, p market.Principal) market.Buyer {
	t.Helper()
	b, err := f.funds.BuyerBalance(context.Background(), p)
	if err != nil {
		t.Fatalf("BuyerBalance failed: %v", err)
	}
	return b
}

func (f *fixture) bid(t *testing.T, ref market.BidRef) market.Bid {
	t.Helper()
	var b market.Bid
	if err := f.store.Get(context.Background(), market.TableBids, bidKey(ref), &b); err != nil {
		t.Fatalf("load bid failed: %v", err)
	}
	return b
}

func wantCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	se := errors.GetServiceError(err)
	if se == nil || se.Code != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

func TestPlaceBidFirstBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 200)

	bidRef, err := f.svc.PlaceBid(ctx, alice, ref, 120)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	bid := f.bid(t, bidRef)
	if !bid.IsActive || bid.Amount != 120 || bid.Item != ref {
		t.Fatalf("unexpected bid record: %+v", bid)
	}

	buyer := f.buyer(t, alice)
	if buyer.Fund != 80 || buyer.FundOnHold != 120 {
		t.Fatalf("expected fund 80 / hold 120, got %d / %d", buyer.Fund, buyer.FundOnHold)
	}

	item := f.item(t, ref)
	if item.CurrentBid == nil || *item.CurrentBid != bidRef {
		t.Fatalf("current bid pointer not moved: %+v", item.CurrentBid)
	}
	if len(item.PastBids) != 1 || item.PastBids[0] != bidRef {
		t.Fatalf("bid not appended to history: %+v", item.PastBids)
	}

	if len(f.events) != 1 || f.events[0].Amount != 120 {
		t.Fatalf("expected one published event, got %+v", f.events)
	}
}

func TestPlaceBidValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 1000)

	_, err := f.svc.PlaceBid(ctx, seller, ref, 120)
	wantCode(t, err, errors.CodeForbidden)

	_, err = f.svc.PlaceBid(ctx, alice, ref, 0)
	wantCode(t, err, errors.CodeBadRequest)

	_, err = f.svc.PlaceBid(ctx, alice, ref, 99)
	wantCode(t, err, errors.CodeBadRequest)

	_, err = f.svc.PlaceBid(ctx, alice, market.ItemRef{SellerID: seller.UserID, ID: "ghost"}, 120)
	wantCode(t, err, errors.CodeNotFound)
}

func TestPlaceBidRejectsClosedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 1000)
	key := storage.Key{Partition: ref.SellerID, Sort: ref.ID}

	// frozen
	if err := f.store.Update(ctx, market.TableItems, key, nil, storage.Set("isFrozen", true)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_, err := f.svc.PlaceBid(ctx, alice, ref, 120)
	wantCode(t, err, errors.CodeInvalidState)
	if err := f.store.Update(ctx, market.TableItems, key, nil, storage.Set("isFrozen", false)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// expired
	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.svc.PlaceBid(ctx, alice, ref, 120)
	wantCode(t, err, errors.CodeInvalidState)
	f.svc.now = time.Now

	// wrong state
	if err := f.store.Update(ctx, market.TableItems, key, nil, storage.Set("state", market.StateInactive)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_, err = f.svc.PlaceBid(ctx, alice, ref, 120)
	wantCode(t, err, errors.CodeInvalidState)
}

func TestPlaceBidInsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 110)

	_, err := f.svc.PlaceBid(ctx, alice, ref, 120)
	wantCode(t, err, errors.CodeInsufficientFunds)

	buyer := f.buyer(t, alice)
	if buyer.Fund != 110 || buyer.FundOnHold != 0 {
		t.Fatalf("failed bid moved funds: %d / %d", buyer.Fund, buyer.FundOnHold)
	}
	item := f.item(t, ref)
	if item.CurrentBid != nil || len(item.PastBids) != 0 {
		t.Fatalf("failed bid touched the item: %+v", item)
	}
	if len(f.events) != 0 {
		t.Fatalf("failed bid published an event: %+v", f.events)
	}
}

func TestPlaceBidMustExceedCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 500)
	f.topUp(t, bob, 500)

	if _, err := f.svc.PlaceBid(ctx, alice, ref, 120); err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	_, err := f.svc.PlaceBid(ctx, bob, ref, 120)
	wantCode(t, err, errors.CodeBadRequest)
}

func TestOutbidReleasesPriorHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 150)
	f.topUp(t, bob, 200)

	aliceBid, err := f.svc.PlaceBid(ctx, alice, ref, 120)
	if err != nil {
		t.Fatalf("alice's bid failed: %v", err)
	}
	bobBid, err := f.svc.PlaceBid(ctx, bob, ref, 150)
	if err != nil {
		t.Fatalf("bob's bid failed: %v", err)
	}

	a := f.buyer(t, alice)
	if a.Fund != 150 || a.FundOnHold != 0 {
		t.Fatalf("alice's hold not released: fund %d hold %d", a.Fund, a.FundOnHold)
	}
	b := f.buyer(t, bob)
	if b.Fund != 50 || b.FundOnHold != 150 {
		t.Fatalf("bob's funds wrong: fund %d hold %d", b.Fund, b.FundOnHold)
	}

	if f.bid(t, aliceBid).IsActive {
		t.Fatal("superseded bid still active")
	}
	if !f.bid(t, bobBid).IsActive {
		t.Fatal("winning bid not active")
	}

	item := f.item(t, ref)
	if item.CurrentBid == nil || *item.CurrentBid != bobBid {
		t.Fatalf("current bid pointer wrong: %+v", item.CurrentBid)
	}
	if len(item.PastBids) != 2 {
		t.Fatalf("expected 2 past bids, got %d", len(item.PastBids))
	}
}

func TestSelfOutbidNetsFundMovement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 150)

	first, err := f.svc.PlaceBid(ctx, alice, ref, 120)
	if err != nil {
		t.Fatalf("first bid failed: %v", err)
	}
	second, err := f.svc.PlaceBid(ctx, alice, ref, 150)
	if err != nil {
		t.Fatalf("raise failed: %v", err)
	}

	a := f.buyer(t, alice)
	if a.Fund != 0 || a.FundOnHold != 150 {
		t.Fatalf("expected fund 0 / hold 150, got %d / %d", a.Fund, a.FundOnHold)
	}
	if f.bid(t, first).IsActive {
		t.Fatal("raised-over bid still active")
	}
	item := f.item(t, ref)
	if item.CurrentBid == nil || *item.CurrentBid != second {
		t.Fatalf("current bid pointer wrong: %+v", item.CurrentBid)
	}
}

func TestBidExclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 1000)
	f.topUp(t, bob, 1000)

	if _, err := f.svc.PlaceBid(ctx, alice, ref, 110); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := f.svc.PlaceBid(ctx, bob, ref, 120); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := f.svc.PlaceBid(ctx, alice, ref, 130); err != nil {
		t.Fatalf("bid failed: %v", err)
	}

	// exactly one active bid exists across the item's history
	active := 0
	item := f.item(t, ref)
	for _, br := range item.PastBids {
		if f.bid(t, br).IsActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active bid, got %d", active)
	}
}

func TestListActiveBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.seedItem(t, 100)
	f.topUp(t, alice, 1000)

	if _, err := f.svc.PlaceBid(ctx, alice, ref, 110); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := f.svc.PlaceBid(ctx, alice, ref, 130); err != nil {
		t.Fatalf("raise failed: %v", err)
	}

	bids, err := f.svc.ListActiveBids(ctx, alice)
	if err != nil {
		t.Fatalf("ListActiveBids failed: %v", err)
	}
	if len(bids) != 1 || bids[0].Amount != 130 {
		t.Fatalf("expected only the live bid, got %+v", bids)
	}

	_, err = f.svc.ListActiveBids(ctx, seller)
	wantCode(t, err, errors.CodeForbidden)
}
