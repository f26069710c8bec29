// Package httpapi exposes the marketplace REST API and the live bid feed.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/auctionhouse/marketplace/internal/app/auction"
	"github.com/auctionhouse/marketplace/internal/app/bidding"
	"github.com/auctionhouse/marketplace/internal/app/funds"
	"github.com/auctionhouse/marketplace/internal/app/settlement"
	"github.com/auctionhouse/marketplace/internal/broadcast"
	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/httputil"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/metrics"
	"github.com/auctionhouse/marketplace/internal/middleware"
)

// Handler bundles the HTTP endpoints over the marketplace services.
type Handler struct {
	auction    *auction.Service
	bidding    *bidding.Service
	funds      *funds.Service
	settlement *settlement.Service
	hub        *broadcast.Hub
	log        *logging.Logger
}

// New creates the API handler. hub may be nil; the live feed endpoint then
// reports unavailable.
func New(auctionSvc *auction.Service, biddingSvc *bidding.Service, fundsSvc *funds.Service, settlementSvc *settlement.Service, hub *broadcast.Hub, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.New("httpapi")
	}
	return &Handler{
		auction:    auctionSvc,
		bidding:    biddingSvc,
		funds:      fundsSvc,
		settlement: settlementSvc,
		hub:        hub,
		log:        log,
	}
}

// Routes registers every endpoint on the router. Middleware is attached by
// the caller.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/buyer/fund", h.addFund).Methods(http.MethodPost)
	v1.HandleFunc("/buyer/balance", h.buyerBalance).Methods(http.MethodGet)
	v1.HandleFunc("/buyer/bid", h.placeBid).Methods(http.MethodPost)
	v1.HandleFunc("/buyer/bids", h.listActiveBids).Methods(http.MethodGet)
	v1.HandleFunc("/buyer/purchases", h.listPurchases).Methods(http.MethodGet)

	v1.HandleFunc("/seller/balance", h.sellerBalance).Methods(http.MethodGet)
	v1.HandleFunc("/seller/item", h.createItem).Methods(http.MethodPut)
	v1.HandleFunc("/seller/item", h.listSellerItems).Methods(http.MethodGet)
	v1.HandleFunc("/seller/item/{itemID}", h.getSellerItem).Methods(http.MethodGet)
	v1.HandleFunc("/seller/item/{itemID}", h.updateItem).Methods(http.MethodPost)
	v1.HandleFunc("/seller/item/{itemID}", h.deleteItem).Methods(http.MethodDelete)
	v1.HandleFunc("/seller/item/{itemID}/publish", h.publishItem).Methods(http.MethodPost)
	v1.HandleFunc("/seller/item/{itemID}/unpublish", h.unpublishItem).Methods(http.MethodPost)
	v1.HandleFunc("/seller/item/{itemID}/archive", h.archiveItem).Methods(http.MethodPost)
	v1.HandleFunc("/seller/item/{itemID}/freeze", h.freezeItem).Methods(http.MethodPost)
	v1.HandleFunc("/seller/item/{itemID}/unfreeze", h.unfreezeItem).Methods(http.MethodPost)
	v1.HandleFunc("/seller/item/{itemID}/fulfill", h.fulfillItem).Methods(http.MethodPost)

	v1.HandleFunc("/item/active", h.listActiveItems).Methods(http.MethodGet)
	v1.HandleFunc("/item/recent", h.listRecentlySold).Methods(http.MethodGet)
	v1.HandleFunc("/item/{sellerID}/{itemID}", h.getItem).Methods(http.MethodGet)
	v1.HandleFunc("/item/{sellerID}/{itemID}/expired", h.checkExpiration).Methods(http.MethodGet)
	v1.HandleFunc("/item/{sellerID}/{itemID}/live", h.liveBidFeed).Methods(http.MethodGet)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal resolves the caller and writes a 401 when absent.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (market.Principal, bool) {
	principal, ok := middleware.PrincipalFrom(r)
	if !ok {
		h.fail(w, r, errors.Unauthorized("authentication required"))
	}
	return principal, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	httputil.WriteError(w, err)
}
