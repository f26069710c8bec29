// Package bidding is the bid ledger. Placing a bid debits and holds buyer
// funds, records the bid and moves the item's current-bid pointer in one
// atomic transaction, so no two concurrent bids can both be accepted against
// stale state and funds can never be held without a recorded bid.
package bidding

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/metrics"
	"github.com/auctionhouse/marketplace/internal/storage"
)

// Event describes an accepted bid, published for live listeners.
type Event struct {
	Item     market.ItemRef `json:"item"`
	Bid      market.BidRef  `json:"bid"`
	Amount   uint64         `json:"amount"`
	PlacedAt int64          `json:"placedAt"`
}

// EventPublisher fans accepted bids out to live listeners. Best effort;
// failures are logged, never surfaced to the bidder.
type EventPublisher interface {
	PublishBid(ctx context.Context, ev Event) error
}

// Funds is the slice of the fund ledger the bid ledger needs.
type Funds interface {
	EnsureBuyer(ctx context.Context, buyerID string) error
}

// Service implements the bid ledger.
type Service struct {
	store  storage.Store
	funds  Funds
	events EventPublisher
	log    *logging.Logger
	now    func() time.Time
}

// New constructs the bid ledger. events may be nil.
func New(store storage.Store, funds Funds, events EventPublisher, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("bidding")
	}
	return &Service{store: store, funds: funds, events: events, log: log, now: time.Now}
}

func bidKey(ref market.BidRef) storage.Key {
	return storage.Key{Partition: ref.BuyerID, Sort: ref.ID}
}

// PlaceBid places a bid on an item. The returned ref identifies the new bid.
//
// The projection read of the item's current-bid pointer is not part of the
// transaction; it only tells us which prior bid must be superseded. The
// transaction's item condition re-checks the pointer, so if another bid
// lands between the read and the commit the whole transaction fails and the
// caller retries from a fresh read.
func (s *Service) PlaceBid(ctx context.Context, principal market.Principal, target market.ItemRef, amount uint64) (market.BidRef, error) {
	if !principal.IsBuyer() {
		return market.BidRef{}, errors.Forbidden("only buyers can place bids")
	}
	if amount == 0 {
		metrics.BidRejected("zero_amount")
		return market.BidRef{}, errors.BadRequest("bid amount must be positive")
	}

	var item market.Item
	itemStoreKey := storage.Key{Partition: target.SellerID, Sort: target.ID}
	if err := s.store.Get(ctx, market.TableItems, itemStoreKey, &item); err != nil {
		return market.BidRef{}, errors.FromStore(err, "item not found")
	}

	now := s.now()
	if item.State != market.StateActive || item.Expired(now) {
		metrics.BidRejected("not_active")
		return market.BidRef{}, errors.InvalidState("item is not open for bidding")
	}
	if item.IsFrozen {
		metrics.BidRejected("frozen")
		return market.BidRef{}, errors.InvalidState("item is frozen")
	}
	if amount < item.InitPrice {
		metrics.BidRejected("below_initial_price")
		return market.BidRef{}, errors.BadRequest("bid is below the initial price")
	}

	// The prior high bid, if any, is superseded inside the transaction and
	// its hold released back to its bidder.
	var prior *market.Bid
	if item.CurrentBid != nil {
		var pb market.Bid
		if err := s.store.Get(ctx, market.TableBids, bidKey(*item.CurrentBid), &pb); err != nil {
			return market.BidRef{}, errors.FromStore(err, "failed to load current bid")
		}
		prior = &pb
		if amount <= prior.Amount {
			metrics.BidRejected("not_higher")
			return market.BidRef{}, errors.BadRequest("bid must exceed the current highest bid")
		}
	}

	if err := s.funds.EnsureBuyer(ctx, principal.UserID); err != nil {
		return market.BidRef{}, err
	}
	var buyer market.Buyer
	if err := s.store.Get(ctx, market.TableBuyers, storage.SimpleKey(principal.UserID), &buyer); err != nil {
		return market.BidRef{}, errors.FromStore(err, "failed to load buyer funds")
	}
	// Fast-fail screen; the authoritative guard is the fund condition inside
	// the transaction.
	available := buyer.Fund
	if prior != nil && prior.BuyerID == principal.UserID {
		available += prior.Amount
	}
	if available < amount {
		metrics.BidRejected("insufficient_funds")
		return market.BidRef{}, errors.InsufficientFunds("insufficient funds for this bid")
	}

	bid := market.Bid{
		BuyerID:  principal.UserID,
		ID:       uuid.Must(uuid.NewV7()).String(),
		CreateAt: now.UnixMilli(),
		Item:     target,
		Amount:   amount,
		IsActive: true,
	}
	newRef := bid.Ref()

	ops, err := s.buildTransaction(item, bid, prior)
	if err != nil {
		return market.BidRef{}, err
	}

	if err := s.store.Transact(ctx, ops...); err != nil {
		metrics.BidRejected("conflict")
		if stderrors.Is(err, storage.ErrConditionFailed) {
			return market.BidRef{}, errors.PreconditionFailed("bid lost a race; refresh and retry", err)
		}
		return market.BidRef{}, errors.FromStore(err, "failed to place bid")
	}

	metrics.BidPlaced()
	s.publish(ctx, Event{Item: target, Bid: newRef, Amount: amount, PlacedAt: bid.CreateAt})
	s.log.WithContext(ctx).WithField("item", target.ID).WithField("amount", amount).Info("bid placed")
	return newRef, nil
}

// buildTransaction assembles the conditioned writes for one bid placement:
//
//	put new bid            guard: bid id unused
//	update bidder funds    guard: fund >= amount
//	update item pointer    guard: active, not frozen, pointer unchanged
//	update prior bid       guard: still active        (when superseding)
//	update prior funds     release the superseded hold (when superseding)
//
// A bidder raising their own high bid nets the two fund movements into one
// update; the store rejects transactions touching a record twice.
func (s *Service) buildTransaction(item market.Item, bid market.Bid, prior *market.Bid) ([]storage.Op, error) {
	newRef := bid.Ref()

	putBid, err := storage.NewPut(market.TableBids, bidKey(newRef), bid,
		storage.Where("id", storage.OpNotExists, nil))
	if err != nil {
		return nil, errors.Internal("failed to encode bid", err)
	}

	itemCond := storage.Where("state", storage.OpEq, market.StateActive).
		And("isFrozen", storage.OpEq, false)
	if prior != nil {
		itemCond = itemCond.And("currentBid", storage.OpEq, prior.Ref())
	} else {
		itemCond = itemCond.And("currentBid", storage.OpNotExists, nil)
	}
	updateItem := storage.NewUpdate(market.TableItems,
		storage.Key{Partition: item.SellerID, Sort: item.ID}, itemCond,
		storage.Set("currentBid", newRef),
		storage.Append("pastBids", newRef),
	)

	buyerKey := storage.SimpleKey(bid.BuyerID)

	if prior == nil {
		updateBuyer := storage.NewUpdate(market.TableBuyers, buyerKey,
			storage.Where("fund", storage.OpGe, bid.Amount),
			storage.Add("fund", -int64(bid.Amount)),
			storage.Add("fundOnHold", int64(bid.Amount)),
		)
		return []storage.Op{putBid, updateBuyer, updateItem}, nil
	}

	supersede := storage.NewUpdate(market.TableBids, bidKey(prior.Ref()),
		storage.Where("isActive", storage.OpEq, true),
		storage.Set("isActive", false),
	)

	if prior.BuyerID == bid.BuyerID {
		raise := int64(bid.Amount) - int64(prior.Amount)
		updateBuyer := storage.NewUpdate(market.TableBuyers, buyerKey,
			storage.Where("fund", storage.OpGe, raise),
			storage.Add("fund", -raise),
			storage.Add("fundOnHold", raise),
		)
		return []storage.Op{putBid, updateBuyer, updateItem, supersede}, nil
	}

	updateBuyer := storage.NewUpdate(market.TableBuyers, buyerKey,
		storage.Where("fund", storage.OpGe, bid.Amount),
		storage.Add("fund", -int64(bid.Amount)),
		storage.Add("fundOnHold", int64(bid.Amount)),
	)
	releasePrior := storage.NewUpdate(market.TableBuyers, storage.SimpleKey(prior.BuyerID),
		storage.Where("fundOnHold", storage.OpGe, prior.Amount),
		storage.Add("fund", int64(prior.Amount)),
		storage.Add("fundOnHold", -int64(prior.Amount)),
	)
	return []storage.Op{putBid, updateBuyer, updateItem, supersede, releasePrior}, nil
}

// ListActiveBids returns the buyer's bids that are still the highest on their
// item.
func (s *Service) ListActiveBids(ctx context.Context, principal market.Principal) ([]market.Bid, error) {
	if !principal.IsBuyer() {
		return nil, errors.Forbidden("only buyers can list their bids")
	}

	var bids []market.Bid
	err := s.store.Query(ctx, market.TableBids, principal.UserID,
		storage.Where("isActive", storage.OpEq, true), &bids)
	if err != nil {
		return nil, errors.FromStore(err, "failed to list bids")
	}
	return bids, nil
}

// ListPurchases returns the buyer's completed purchases.
func (s *Service) ListPurchases(ctx context.Context, principal market.Principal) ([]market.Purchase, error) {
	if !principal.IsBuyer() {
		return nil, errors.Forbidden("only buyers can list purchases")
	}

	var purchases []market.Purchase
	err := s.store.Query(ctx, market.TablePurchases, principal.UserID, nil, &purchases)
	if err != nil {
		return nil, errors.FromStore(err, "failed to list purchases")
	}
	return purchases, nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBid(ctx, ev); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to publish bid event")
	}
}
