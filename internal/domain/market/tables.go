package market

// Logical table names used against the entity store.
const (
	TableItems     = "items"
	TableBids      = "bids"
	TableBuyers    = "buyers"
	TableSellers   = "sellers"
	TablePurchases = "purchases"
)
