package market

import "time"

// State is the lifecycle state of an auction item.
type State string

const (
	StateInactive  State = "inactive"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateArchived  State = "archived"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateInactive, StateActive, StateCompleted, StateFailed, StateArchived:
		return true
	}
	return false
}

// ItemRef addresses an item by its composite key.
type ItemRef struct {
	SellerID string `json:"sellerId"`
	ID       string `json:"id"`
}

// Item is an auction listing owned by one seller. Timestamps are unix
// milliseconds; StartDate and EndDate are present only once published.
// PastBids is append-only and the Sold* fields are written exactly once, at
// settlement.
type Item struct {
	SellerID      string   `json:"sellerId"`
	ID            string   `json:"id"`
	CreateAt      int64    `json:"createAt"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	InitPrice     uint64   `json:"initPrice"`
	State         State    `json:"state"`
	AuctionLength int64    `json:"auctionLength"`
	Images        []string `json:"images"`
	IsFrozen      bool     `json:"isFrozen"`
	StartDate     *int64   `json:"startDate,omitempty"`
	EndDate       *int64   `json:"endDate,omitempty"`
	CurrentBid    *BidRef  `json:"currentBid,omitempty"`
	PastBids      []BidRef `json:"pastBids"`
	SoldBid       *BidRef  `json:"soldBid,omitempty"`
	SoldTime      *int64   `json:"soldTime,omitempty"`
	SoldPrice     *uint64  `json:"soldPrice,omitempty"`
}

// Ref returns the item's composite key.
func (i *Item) Ref() ItemRef {
	return ItemRef{SellerID: i.SellerID, ID: i.ID}
}

// Expired reports whether the auction window has elapsed.
func (i *Item) Expired(now time.Time) bool {
	return i.State == StateActive && i.EndDate != nil && now.UnixMilli() > *i.EndDate
}

// DerivedState folds the auction clock into the stored state: an active item
// past its end date reports StateCompleted without any physical transition.
func (i *Item) DerivedState(now time.Time) State {
	if i.Expired(now) {
		return StateCompleted
	}
	return i.State
}
