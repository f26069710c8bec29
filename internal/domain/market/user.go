package market

// Role distinguishes the two supported principals. Tokens may also carry
// RoleAdmin; no marketplace operation accepts it, so role checks reject it
// outright rather than leaving an unhandled arm.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSeller || r == RoleBuyer || r == RoleAdmin
}

// Buyer holds a buyer's fund state. Fund and FundOnHold are kept non-negative
// by store-level guards; they move in lockstep when bids are placed, released
// or settled.
type Buyer struct {
	ID         string `json:"id"`
	CreateAt   int64  `json:"createAt"`
	Fund       uint64 `json:"fund"`
	FundOnHold uint64 `json:"fundOnHold"`
}

// Seller holds a seller's fund state, credited only at settlement.
type Seller struct {
	ID       string `json:"id"`
	CreateAt int64  `json:"createAt"`
	Fund     uint64 `json:"fund"`
}
