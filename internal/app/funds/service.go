// Package funds is the fund ledger. It owns the add-funds surface and the
// balance reads; every other fund movement happens inside transactions built
// by the bidding and settlement services.
package funds

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/storage"
)

// MaxTopUp bounds a single add-funds request.
const MaxTopUp = 1_000_000_000

// Service manages buyer and seller fund records.
type Service struct {
	store storage.Store
	log   *logging.Logger
}

// New constructs the fund ledger.
func New(store storage.Store, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("funds")
	}
	return &Service{store: store, log: log}
}

// AddFund credits a buyer's available balance and returns the updated record.
// The buyer fund record is created on first use.
func (s *Service) AddFund(ctx context.Context, principal market.Principal, amount uint64) (market.Buyer, error) {
	if !principal.IsBuyer() {
		return market.Buyer{}, errors.Forbidden("only buyers can add funds")
	}
	if amount == 0 {
		return market.Buyer{}, errors.BadRequest("amount must be positive")
	}
	if amount > MaxTopUp {
		return market.Buyer{}, errors.BadRequest("amount exceeds the top-up limit")
	}

	if err := s.EnsureBuyer(ctx, principal.UserID); err != nil {
		return market.Buyer{}, err
	}

	key := storage.SimpleKey(principal.UserID)
	err := s.store.Update(ctx, market.TableBuyers, key, nil, storage.Add("fund", int64(amount)))
	if err != nil {
		return market.Buyer{}, errors.FromStore(err, "failed to add funds")
	}

	var buyer market.Buyer
	if err := s.store.Get(ctx, market.TableBuyers, key, &buyer); err != nil {
		return market.Buyer{}, errors.FromStore(err, "failed to load buyer after top-up")
	}

	s.log.WithContext(ctx).WithField("fund", buyer.Fund).Info("funds added")
	return buyer, nil
}

// BuyerBalance returns the buyer's fund state. A buyer that never added funds
// reads as zero balances.
func (s *Service) BuyerBalance(ctx context.Context, principal market.Principal) (market.Buyer, error) {
	if !principal.IsBuyer() {
		return market.Buyer{}, errors.Forbidden("only buyers can read buyer balances")
	}

	var buyer market.Buyer
	err := s.store.Get(ctx, market.TableBuyers, storage.SimpleKey(principal.UserID), &buyer)
	if stderrors.Is(err, storage.ErrNotFound) {
		return market.Buyer{ID: principal.UserID}, nil
	}
	if err != nil {
		return market.Buyer{}, errors.FromStore(err, "failed to load buyer")
	}
	return buyer, nil
}

// SellerBalance returns the seller's fund state.
func (s *Service) SellerBalance(ctx context.Context, principal market.Principal) (market.Seller, error) {
	if !principal.IsSeller() {
		return market.Seller{}, errors.Forbidden("only sellers can read seller balances")
	}

	var seller market.Seller
	err := s.store.Get(ctx, market.TableSellers, storage.SimpleKey(principal.UserID), &seller)
	if stderrors.Is(err, storage.ErrNotFound) {
		return market.Seller{ID: principal.UserID}, nil
	}
	if err != nil {
		return market.Seller{}, errors.FromStore(err, "failed to load seller")
	}
	return seller, nil
}

// EnsureBuyer creates the zero-balance buyer record if absent. Losing the
// insert race to a concurrent request is fine; the record then exists.
func (s *Service) EnsureBuyer(ctx context.Context, buyerID string) error {
	buyer := market.Buyer{ID: buyerID, CreateAt: time.Now().UnixMilli()}
	err := s.store.Put(ctx, market.TableBuyers, storage.SimpleKey(buyerID), buyer,
		storage.Where("id", storage.OpNotExists, nil))
	if err != nil && !stderrors.Is(err, storage.ErrConditionFailed) {
		return errors.FromStore(err, "failed to ensure buyer record")
	}
	return nil
}

// EnsureSeller creates the zero-balance seller record if absent.
func (s *Service) EnsureSeller(ctx context.Context, sellerID string) error {
	seller := market.Seller{ID: sellerID, CreateAt: time.Now().UnixMilli()}
	err := s.store.Put(ctx, market.TableSellers, storage.SimpleKey(sellerID), seller,
		storage.Where("id", storage.OpNotExists, nil))
	if err != nil && !stderrors.Is(err, storage.ErrConditionFailed) {
		return errors.FromStore(err, "failed to ensure seller record")
	}
	return nil
}
