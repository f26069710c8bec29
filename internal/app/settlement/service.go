// Package settlement finalizes sales: one atomic transaction pays the
// seller, releases the winner's hold, records the purchase, archives the item
// and deactivates the winning bid. Replaying a fulfill whose transaction
// already committed fails its conditions cleanly instead of double-paying.
package settlement

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

// FeePercent is the platform's cut of the winning bid, in percent.
const FeePercent = 5

// SellerIncome returns the seller's share of a winning amount: the platform
// fee is taken off and the result truncates, never rounds up.
func SellerIncome(amount uint64) uint64 {
	return amount * (100 - FeePercent) / 100
}

// Funds is the slice of the fund ledger settlement needs.
type Funds interface {
	EnsureSeller(ctx context.Context, sellerID string) error
}

// Service coordinates fulfillment.
type Service struct {
	store storage.Store
	funds Funds
	log   *logging.Logger
	now   func() time.Time
}

// New constructs the settlement coordinator.
func New(store storage.Store, funds Funds, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("settlement")
	}
	return &Service{store: store, funds: funds, log: log, now: time.Now}
}

// Fulfill settles the seller's item. The item must have completed its
// auction window (derived state) and carry a current bid.
func (s *Service) Fulfill(ctx context.Context, principal market.Principal, itemID string) (market.Purchase, error) {
	if !principal.IsSeller() {
		return market.Purchase{}, errors.Forbidden("only sellers can fulfill items")
	}

	ref := market.ItemRef{SellerID: principal.UserID, ID: itemID}
	itemStoreKey := storage.Key{Partition: ref.SellerID, Sort: ref.ID}

	var item market.Item
	if err := s.store.Get(ctx, market.TableItems, itemStoreKey, &item); err != nil {
		return market.Purchase{}, errors.FromStore(err, "item not found")
	}

	if item.DerivedState(s.now()) != market.StateCompleted {
		return market.Purchase{}, errors.InvalidState("auction has not completed")
	}
	if item.CurrentBid == nil {
		return market.Purchase{}, errors.BadRequest("item has no winning bid")
	}

	var winning market.Bid
	winKey := storage.Key{Partition: item.CurrentBid.BuyerID, Sort: item.CurrentBid.ID}
	if err := s.store.Get(ctx, market.TableBids, winKey, &winning); err != nil {
		return market.Purchase{}, errors.FromStore(err, "failed to load winning bid")
	}

	if err := s.funds.EnsureSeller(ctx, item.SellerID); err != nil {
		return market.Purchase{}, err
	}

	income := SellerIncome(winning.Amount)
	purchase := market.Purchase{
		BuyerID:  winning.BuyerID,
		ID:       uuid.Must(uuid.NewV7()).String(),
		Item:     ref,
		Bid:      winning.Ref(),
		Price:    winning.Amount,
		SoldTime: winning.CreateAt,
	}

	paySeller := storage.NewUpdate(market.TableSellers, storage.SimpleKey(item.SellerID), nil,
		storage.Add("fund", int64(income)),
	)
	consumeHold := storage.NewUpdate(market.TableBuyers, storage.SimpleKey(winning.BuyerID),
		storage.Where("fundOnHold", storage.OpGe, winning.Amount),
		storage.Add("fundOnHold", -int64(winning.Amount)),
	)
	recordPurchase, err := storage.NewPut(market.TablePurchases,
		storage.Key{Partition: purchase.BuyerID, Sort: purchase.ID}, purchase,
		storage.Where("id", storage.OpNotExists, nil))
	if err != nil {
		return market.Purchase{}, errors.Internal("failed to encode purchase", err)
	}
	archiveItem := storage.NewUpdate(market.TableItems, itemStoreKey,
		storage.Where("state", storage.OpEq, market.StateActive).
			And("soldBid", storage.OpNotExists, nil).
			And("currentBid", storage.OpEq, winning.Ref()),
		storage.Set("soldBid", winning.Ref()),
		storage.Set("soldTime", winning.CreateAt),
		storage.Set("soldPrice", winning.Amount),
		storage.Set("state", market.StateArchived),
		storage.Remove("currentBid"),
	)
	deactivateBid := storage.NewUpdate(market.TableBids, winKey,
		storage.Where("isActive", storage.OpEq, true),
		storage.Set("isActive", false),
	)

	err = s.store.Transact(ctx, paySeller, consumeHold, recordPurchase, archiveItem, deactivateBid)
	if err != nil {
		if stderrors.Is(err, storage.ErrConditionFailed) {
			return market.Purchase{}, errors.PreconditionFailed("settlement did not apply; the item may already be settled", err)
		}
		return market.Purchase{}, errors.FromStore(err, "failed to settle item")
	}

	metrics.SettlementCompleted(winning.Amount)
	s.log.WithContext(ctx).
		WithField("item", item.ID).
		WithField("price", winning.Amount).
		WithField("seller_income", income).
		Info("item settled")
	return purchase, nil
}
