package market

// BidRef addresses a bid by its composite key.
type BidRef struct {
	BuyerID string `json:"buyerId"`
	ID      string `json:"id"`
}

// Bid is a buyer's offer on an item. Immutable once written except IsActive,
// which flips to false exactly once: when superseded by a higher bid or when
// the item is settled.
type Bid struct {
	BuyerID  string  `json:"buyerId"`
	ID       string  `json:"id"`
	CreateAt int64   `json:"createAt"`
	Item     ItemRef `json:"item"`
	Amount   uint64  `json:"amount"`
	IsActive bool    `json:"isActive"`
}

// Ref returns the bid's composite key.
func (b *Bid) Ref() BidRef {
	return BidRef{BuyerID: b.BuyerID, ID: b.ID}
}

// Purchase records a completed sale. Write-once, created only by settlement.
type Purchase struct {
	BuyerID  string  `json:"buyerId"`
	ID       string  `json:"id"`
	Item     ItemRef `json:"item"`
	Bid      BidRef  `json:"bid"`
	Price    uint64  `json:"price"`
	SoldTime int64   `json:"soldTime"`
}
