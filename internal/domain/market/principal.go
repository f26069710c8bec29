package market

// Principal is the authenticated (user, role) pair produced by the external
// auth layer. The engine trusts it but still performs its own role checks.
type Principal struct {
	UserID string
	Role   Role
}

// IsBuyer reports whether the principal may use buyer operations.
func (p Principal) IsBuyer() bool { return p.Role == RoleBuyer }

// IsSeller reports whether the principal may use seller operations.
func (p Principal) IsSeller() bool { return p.Role == RoleSeller }
