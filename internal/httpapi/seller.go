package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/auctionhouse/marketplace/internal/app/auction"
	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/httputil"
)

func (h *Handler) sellerBalance(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	seller, err := h.funds.SellerBalance(r.Context(), principal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, seller)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req auction.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ref, err := h.auction.Create(r.Context(), principal, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ref)
}

func (h *Handler) listSellerItems(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	items, err := h.auction.ListBySeller(r.Context(), principal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) getSellerItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if !principal.IsSeller() {
		h.fail(w, r, errors.Forbidden("only sellers can view their listings"))
		return
	}
	item, err := h.auction.Get(r.Context(), market.ItemRef{SellerID: principal.UserID, ID: mux.Vars(r)["itemID"]})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req auction.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auction.Update(r.Context(), principal, mux.Vars(r)["itemID"], req); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.auction.Delete(r.Context(), principal, mux.Vars(r)["itemID"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publishItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	item, err := h.auction.Publish(r.Context(), principal, mux.Vars(r)["itemID"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) unpublishItem(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, h.auction.Unpublish)
}

func (h *Handler) archiveItem(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, h.auction.Archive)
}

func (h *Handler) freezeItem(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, h.auction.Freeze)
}

func (h *Handler) unfreezeItem(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, h.auction.Unfreeze)
}

func (h *Handler) itemMutation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, principal market.Principal, itemID string) error) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), principal, mux.Vars(r)["itemID"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fulfillItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	purchase, err := h.settlement.Fulfill(r.Context(), principal, mux.Vars(r)["itemID"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purchase)
}
