package httpapi

import (
	"net/http"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/httputil"
)

func (h *Handler) addFund(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var payload struct {
		Amount uint64 `json:"amount"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	buyer, err := h.funds.AddFund(r.Context(), principal, payload.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, buyer)
}

func (h *Handler) buyerBalance(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	buyer, err := h.funds.BuyerBalance(r.Context(), principal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, buyer)
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var payload struct {
		SellerID string `json:"sellerId"`
		ItemID   string `json:"itemId"`
		Amount   uint64 `json:"amount"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	if payload.SellerID == "" || payload.ItemID == "" {
		h.fail(w, r, errors.BadRequest("sellerId and itemId are required"))
		return
	}
	ref, err := h.bidding.PlaceBid(r.Context(), principal, market.ItemRef{SellerID: payload.SellerID, ID: payload.ItemID}, payload.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ref)
}

func (h *Handler) listActiveBids(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	bids, err := h.bidding.ListActiveBids(r.Context(), principal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bids)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	purchases, err := h.bidding.ListPurchases(r.Context(), principal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purchases)
}
