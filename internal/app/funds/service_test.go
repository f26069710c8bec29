package funds

import (
	"context"
	"testing"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/storage/memory"
)

var (
	buyer  = market.Principal{UserID: "buyer-1", Role: market.RoleBuyer}
	seller = market.Principal{UserID: "seller-1", Role: market.RoleSeller}
	admin  = market.Principal{UserID: "admin-1", Role: market.RoleAdmin}
)

func newService() *Service {
	return New(memory.New(), logging.Nop())
}

func wantCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	se := errors.GetServiceError(err)
	if se == nil {
		t.Fatalf("expected %s error, got %v", code, err)
	}
	if se.Code != code {
		t.Fatalf("expected %s error, got %s (%v)", code, se.Code, err)
	}
}

func TestAddFundCreatesBuyerRecord(t *testing.T) {
	svc := newService()
	got, err := svc.AddFund(context.Background(), buyer, 100)
	if err != nil {
		t.Fatalf("AddFund failed: %v", err)
	}
	if got.ID != buyer.UserID || got.Fund != 100 || got.FundOnHold != 0 {
		t.Fatalf("unexpected buyer record: %+v", got)
	}
}

func TestAddFundAccumulates(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.AddFund(ctx, buyer, 40); err != nil {
		t.Fatalf("first AddFund failed: %v", err)
	}
	got, err := svc.AddFund(ctx, buyer, 60)
	if err != nil {
		t.Fatalf("second AddFund failed: %v", err)
	}
	if got.Fund != 100 {
		t.Fatalf("expected fund 100, got %d", got.Fund)
	}
}

func TestAddFundValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.AddFund(ctx, seller, 10)
	wantCode(t, err, errors.CodeForbidden)
	_, err = svc.AddFund(ctx, admin, 10)
	wantCode(t, err, errors.CodeForbidden)
	_, err = svc.AddFund(ctx, buyer, 0)
	wantCode(t, err, errors.CodeBadRequest)
	_, err = svc.AddFund(ctx, buyer, MaxTopUp+1)
	wantCode(t, err, errors.CodeBadRequest)
}

func TestBuyerBalanceZeroWithoutRecord(t *testing.T) {
	svc := newService()
	got, err := svc.BuyerBalance(context.Background(), buyer)
	if err != nil {
		t.Fatalf("BuyerBalance failed: %v", err)
	}
	if got.ID != buyer.UserID || got.Fund != 0 || got.FundOnHold != 0 {
		t.Fatalf("unexpected zero-value balance: %+v", got)
	}
}

func TestSellerBalanceRoleCheck(t *testing.T) {
	svc := newService()
	_, err := svc.SellerBalance(context.Background(), buyer)
	wantCode(t, err, errors.CodeForbidden)
	got, err := svc.SellerBalance(context.Background(), seller)
	if err != nil {
		t.Fatalf("SellerBalance failed: %v", err)
	}
	if got.ID != seller.UserID || got.Fund != 0 {
		t.Fatalf("unexpected seller balance: %+v", got)
	}
}

func TestEnsureBuyerIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if err := svc.EnsureBuyer(ctx, buyer.UserID); err != nil {
		t.Fatalf("first EnsureBuyer failed: %v", err)
	}
	if _, err := svc.AddFund(ctx, buyer, 33); err != nil {
		t.Fatalf("AddFund failed: %v", err)
	}
	// a second ensure must not reset the balance
	if err := svc.EnsureBuyer(ctx, buyer.UserID); err != nil {
		t.Fatalf("second EnsureBuyer failed: %v", err)
	}
	got, err := svc.BuyerBalance(ctx, buyer)
	if err != nil {
		t.Fatalf("BuyerBalance failed: %v", err)
	}
	if got.Fund != 33 {
		t.Fatalf("ensure reset the balance: %+v", got)
	}
}
