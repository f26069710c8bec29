package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/httputil"
)

const defaultRecentLimit = 10

func itemRefFrom(r *http.Request) market.ItemRef {
	vars := mux.Vars(r)
	return market.ItemRef{SellerID: vars["sellerID"], ID: vars["itemID"]}
}

func (h *Handler) listActiveItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.auction.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) listRecentlySold(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.fail(w, r, errors.BadRequest("limit must be an integer between 1 and 100"))
			return
		}
		limit = n
	}
	items, err := h.auction.ListRecentlySold(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.auction.Get(r.Context(), itemRefFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) checkExpiration(w http.ResponseWriter, r *http.Request) {
	state, expired, err := h.auction.CheckExpiration(r.Context(), itemRefFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		State   market.State `json:"state"`
		Expired bool         `json:"expired"`
	}{State: state, Expired: expired})
}

func (h *Handler) liveBidFeed(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.fail(w, r, errors.StoreUnavailable("live bid feed is not enabled", nil))
		return
	}
	ref := itemRefFrom(r)
	if _, err := h.auction.Get(r.Context(), ref); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.hub.Serve(w, r, ref); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
	}
}
