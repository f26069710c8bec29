// Package auction is the item lifecycle manager: it owns the item state
// machine and expresses every transition as a single conditional write, so a
// racing publish, unpublish or bid can never silently corrupt state.
package auction

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/storage"
)

// MinAuctionLength is the shortest accepted auction window.
const MinAuctionLength = time.Minute

// ListingCache fronts the active-items scan with a short-lived cache.
// Implementations are best effort; any error falls back to the store.
type ListingCache interface {
	GetActiveItems(ctx context.Context) ([]market.Item, bool)
	SetActiveItems(ctx context.Context, items []market.Item)
	Invalidate(ctx context.Context)
}

// Service implements the item lifecycle operations.
type Service struct {
	store storage.Store
	cache ListingCache
	log   *logging.Logger
	now   func() time.Time
}

// New constructs the lifecycle manager. cache may be nil.
func New(store storage.Store, cache ListingCache, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("auction")
	}
	return &Service{store: store, cache: cache, log: log, now: time.Now}
}

// CreateRequest carries the seller-supplied fields of a new listing.
type CreateRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	InitPrice     uint64   `json:"initPrice"`
	AuctionLength int64    `json:"auctionLength"`
	Images        []string `json:"images"`
}

// UpdateRequest carries the mutable fields of an unpublished listing; nil
// fields are left untouched. At least one field must be supplied.
type UpdateRequest struct {
	Name          *string   `json:"name,omitempty"`
	Description   *string   `json:"description,omitempty"`
	InitPrice     *uint64   `json:"initPrice,omitempty"`
	AuctionLength *int64    `json:"auctionLength,omitempty"`
	Images        *[]string `json:"images,omitempty"`
}

func (r UpdateRequest) empty() bool {
	return r.Name == nil && r.Description == nil && r.InitPrice == nil &&
		r.AuctionLength == nil && r.Images == nil
}

func itemKey(ref market.ItemRef) storage.Key {
	return storage.Key{Partition: ref.SellerID, Sort: ref.ID}
}

// Create registers a new listing in the inactive state and returns its ref.
func (s *Service) Create(ctx context.Context, principal market.Principal, req CreateRequest) (market.ItemRef, error) {
	if !principal.IsSeller() {
		return market.ItemRef{}, errors.Forbidden("only sellers can create items")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Description) == "" {
		return market.ItemRef{}, errors.BadRequest("name and description are required")
	}
	if req.InitPrice < 1 {
		return market.ItemRef{}, errors.BadRequest("initial price must be at least 1")
	}
	if req.AuctionLength < MinAuctionLength.Milliseconds() {
		return market.ItemRef{}, errors.BadRequest("auction length is below the minimum")
	}

	item := market.Item{
		SellerID:      principal.UserID,
		ID:            uuid.Must(uuid.NewV7()).String(),
		CreateAt:      s.now().UnixMilli(),
		Name:          req.Name,
		Description:   req.Description,
		InitPrice:     req.InitPrice,
		State:         market.StateInactive,
		AuctionLength: req.AuctionLength,
		Images:        req.Images,
		PastBids:      []market.BidRef{},
	}

	err := s.store.Put(ctx, market.TableItems, itemKey(item.Ref()), item,
		storage.Where("id", storage.OpNotExists, nil))
	if err != nil {
		return market.ItemRef{}, errors.FromStore(err, "failed to create item")
	}
	return item.Ref(), nil
}

// Update edits mutable fields of an unpublished listing.
func (s *Service) Update(ctx context.Context, principal market.Principal, itemID string, req UpdateRequest) error {
	if !principal.IsSeller() {
		return errors.Forbidden("only sellers can update items")
	}
	if req.empty() {
		return errors.BadRequest("at least one field must be supplied")
	}

	var changes []storage.Change
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return errors.BadRequest("name cannot be empty")
		}
		changes = append(changes, storage.Set("name", *req.Name))
	}
	if req.Description != nil {
		changes = append(changes, storage.Set("description", *req.Description))
	}
	if req.InitPrice != nil {
		if *req.InitPrice < 1 {
			return errors.BadRequest("initial price must be at least 1")
		}
		changes = append(changes, storage.Set("initPrice", *req.InitPrice))
	}
	if req.AuctionLength != nil {
		if *req.AuctionLength < MinAuctionLength.Milliseconds() {
			return errors.BadRequest("auction length is below the minimum")
		}
		changes = append(changes, storage.Set("auctionLength", *req.AuctionLength))
	}
	if req.Images != nil {
		changes = append(changes, storage.Set("images", *req.Images))
	}

	ref := market.ItemRef{SellerID: principal.UserID, ID: itemID}
	err := s.store.Update(ctx, market.TableItems, itemKey(ref),
		storage.Where("state", storage.OpEq, market.StateInactive), changes...)
	if err != nil {
		return s.mapMutation(err, "item can only be updated while inactive")
	}
	return nil
}

// Publish opens the auction window: inactive -> active with start and end
// dates computed from now.
func (s *Service) Publish(ctx context.Context, principal market.Principal, itemID string) (market.Item, error) {
	if !principal.IsSeller() {
		return market.Item{}, errors.Forbidden("only sellers can publish items")
	}

	ref := market.ItemRef{SellerID: principal.UserID, ID: itemID}
	var item market.Item
	if err := s.store.Get(ctx, market.TableItems, itemKey(ref), &item); err != nil {
		return market.Item{}, errors.FromStore(err, "item not found")
	}

	start := s.now().UnixMilli()
	end := start + item.AuctionLength

	err := s.store.Update(ctx, market.TableItems, itemKey(ref),
		storage.Where("state", storage.OpEq, market.StateInactive).
			And("isFrozen", storage.OpEq, false),
		storage.Set("state", market.StateActive),
		storage.Set("startDate", start),
		storage.Set("endDate", end),
	)
	if err != nil {
		return market.Item{}, s.mapMutation(err, "item can only be published while inactive and not frozen")
	}
	s.invalidate(ctx)

	// Re-read rather than patching the pre-read snapshot: fields edited
	// between the read and the conditional write would otherwise be echoed
	// stale.
	var published market.Item
	if err := s.store.Get(ctx, market.TableItems, itemKey(ref), &published); err != nil {
		return market.Item{}, errors.FromStore(err, "item not found")
	}
	return published, nil
}

// Unpublish withdraws an active listing that has never received a bid. Once
// money has moved the condition fails; withdrawal without refund logic is
// unsafe.
func (s *Service) Unpublish(ctx context.Context, principal market.Principal, itemID string) error {
	if !principal.IsSeller() {
		return errors.Forbidden("only sellers can unpublish items")
	}

	ref := market.ItemRef{SellerID: principal.UserID, ID: itemID}
	err := s.store.Update(ctx, market.TableItems, itemKey(ref),
		storage.Where("state", storage.OpEq, market.StateActive).
			And("currentBid", storage.OpNotExists, nil).
			And("pastBids", storage.OpEmpty, nil),
		storage.Set("state", market.StateInactive),
		storage.Remove("startDate"),
		storage.Remove("endDate"),
	)
	if err != nil {
		return s.mapMutation(err, "item can only be unpublished while active with no bids")
	}
	s.invalidate(ctx)
	return nil
}

// Delete removes an unpublished listing.
func (s *Service) Delete(ctx context.Context, principal market.Principal, itemID string) error {
	if !principal.IsSeller() {
		return errors.Forbidden("only sellers can delete items")
	}

	ref := market.ItemRef{SellerID: principal.UserID, ID: itemID}
	err := s.store.Delete(ctx, market.TableItems, itemKey(ref),
		storage.Where("state", storage.OpEq, market.StateInactive))
	if err != nil {
		return s.mapMutation(err, "item can only be deleted while inactive")
	}
	return nil
}

// Archive retires a listing that never sold: inactive or failed -> archived.
// Items carrying a current bid cannot reach this path; they settle through
// fulfillment.
func (s *Service) Archive(ctx context.Context, principal market.Principal, itemID string) error {
	if !principal.IsSeller() {
		return errors.Forbidden("only sellers can archive items")
	}

	ref := market.ItemRef{SellerID: principal.UserID, ID: itemID}
	err := s.store.Update(ctx, market.TableItems, itemKey(ref),
		storage.Where("state", storage.OpIn, []market.State{market.StateInactive, market.StateFailed}).
			And("currentBid", storage.OpNotExists, nil),
		storage.Set("state", market.StateArchived),
	)
	if err != nil {
		return s.mapMutation(err, "item can only be archived while inactive or failed")
	}
	return nil
}

// Freeze pauses an active listing: publishing stays blocked and new bids are
// rejected until Unfreeze.
func (s *Service) Freeze(ctx context.Context, principal market.Principal, itemID string) error {
	return s.setFrozen(ctx, principal, itemID, true)
}

// Unfreeze lifts a freeze.
func (s *Service) Unfreeze(ctx context.Context, principal market.Principal, itemID string) error {
	return s.setFrozen(ctx, principal, itemID, false)
}

func (s *Service) setFrozen(ctx context.Context, principal market.Principal, itemID string, frozen bool) error {
	if !principal.IsSeller() {
		return errors.Forbidden("only sellers can freeze items")
	}

	ref := market.ItemRef{SellerID: principal.UserID, ID: itemID}
	err := s.store.Update(ctx, market.TableItems, itemKey(ref),
		storage.Where("isFrozen", storage.OpEq, !frozen),
		storage.Set("isFrozen", frozen),
	)
	if err != nil {
		return s.mapMutation(err, "freeze state unchanged")
	}
	s.invalidate(ctx)
	return nil
}

// Get returns one item; public read.
func (s *Service) Get(ctx context.Context, ref market.ItemRef) (market.Item, error) {
	var item market.Item
	if err := s.store.Get(ctx, market.TableItems, itemKey(ref), &item); err != nil {
		return market.Item{}, errors.FromStore(err, "item not found")
	}
	return item, nil
}

// ListBySeller returns all of a seller's items.
func (s *Service) ListBySeller(ctx context.Context, principal market.Principal) ([]market.Item, error) {
	if !principal.IsSeller() {
		return nil, errors.Forbidden("only sellers can list their items")
	}

	var items []market.Item
	if err := s.store.Query(ctx, market.TableItems, principal.UserID, nil, &items); err != nil {
		return nil, errors.FromStore(err, "failed to list items")
	}
	return items, nil
}

// ListActive returns all items currently open for bidding.
func (s *Service) ListActive(ctx context.Context) ([]market.Item, error) {
	if s.cache != nil {
		if items, ok := s.cache.GetActiveItems(ctx); ok {
			return items, nil
		}
	}

	var items []market.Item
	err := s.store.Scan(ctx, market.TableItems,
		storage.Where("state", storage.OpEq, market.StateActive), &items)
	if err != nil {
		return nil, errors.FromStore(err, "failed to list active items")
	}

	if s.cache != nil {
		s.cache.SetActiveItems(ctx, items)
	}
	return items, nil
}

// ListRecentlySold returns up to limit archived items that sold, most recent
// sale first.
func (s *Service) ListRecentlySold(ctx context.Context, limit int) ([]market.Item, error) {
	if limit <= 0 {
		limit = 20
	}

	var items []market.Item
	err := s.store.Scan(ctx, market.TableItems,
		storage.Where("state", storage.OpEq, market.StateArchived).
			And("soldBid", storage.OpExists, nil), &items)
	if err != nil {
		return nil, errors.FromStore(err, "failed to list sold items")
	}

	sort.Slice(items, func(a, b int) bool {
		var ta, tb int64
		if items[a].SoldTime != nil {
			ta = *items[a].SoldTime
		}
		if items[b].SoldTime != nil {
			tb = *items[b].SoldTime
		}
		return ta > tb
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// CheckExpiration reports the item's derived state: an active item past its
// end date reads as completed without any physical transition.
func (s *Service) CheckExpiration(ctx context.Context, ref market.ItemRef) (market.State, bool, error) {
	item, err := s.Get(ctx, ref)
	if err != nil {
		return "", false, err
	}
	now := s.now()
	return item.DerivedState(now), item.Expired(now), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) mapMutation(err error, conflictMessage string) error {
	if stderrors.Is(err, storage.ErrConditionFailed) {
		return errors.InvalidState(conflictMessage)
	}
	return errors.FromStore(err, conflictMessage)
}
