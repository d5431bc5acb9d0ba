package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesto/storefront/internal/domain/auth"
	"github.com/velesto/storefront/internal/domain/coupon"
	"github.com/velesto/storefront/internal/domain/order"
	"github.com/velesto/storefront/internal/domain/shipping"
)

type upsertCouponRequest struct {
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
}

type upsertShippingRuleRequest struct {
	CountryID             string           `json:"country_id"`
	BaseFee               decimal.Decimal  `json:"base_fee"`
	FreeShippingThreshold *decimal.Decimal `json:"free_shipping_threshold,omitempty"`
	FreeShippingCountries []string         `json:"free_shipping_countries,omitempty"`
}

// UpsertCoupon creates or replaces a coupon in the store's namespace. Seller
// role and store ownership are checked at entry; the discount range invariant
// is enforced by coupon.New.
func (h *Handler) UpsertCoupon(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	store, ok := h.authorizeStoreWrite(w, r, storeID)
	if !ok {
		return
	}

	var req upsertCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "code required")
		return
	}

	c, err := coupon.New(req.Code, store.ID, req.DiscountPercent, req.StartDate, req.EndDate)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.coupons.Upsert(r.Context(), c); err != nil {
		zctx.From(r.Context()).Error("Upsert coupon failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertShippingRule creates or replaces a store's shipping rule for one
// destination country ('*' for the store default).
func (h *Handler) UpsertShippingRule(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	store, ok := h.authorizeStoreWrite(w, r, storeID)
	if !ok {
		return
	}

	var req upsertShippingRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CountryID == "" {
		respondError(w, http.StatusBadRequest, "country_id required")
		return
	}
	if req.BaseFee.IsNegative() {
		respondError(w, http.StatusUnprocessableEntity, shipping.ErrNegativeFee.Error())
		return
	}

	rule := &shipping.Rule{
		StoreID:               store.ID,
		CountryID:             req.CountryID,
		BaseFee:               req.BaseFee,
		FreeShippingThreshold: req.FreeShippingThreshold,
		FreeShippingCountries: req.FreeShippingCountries,
	}
	if err := h.shipping.Upsert(r.Context(), rule); err != nil {
		zctx.From(r.Context()).Error("Upsert shipping rule failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeStoreWrite loads the store and runs the capability check for
// store-scoped mutations. It writes the error response itself and reports
// whether the caller may proceed.
func (h *Handler) authorizeStoreWrite(w http.ResponseWriter, r *http.Request, storeID string) (*order.Store, bool) {
	id, _ := IdentityFromContext(r.Context())

	store, err := h.stores.GetByID(r.Context(), storeID)
	if err != nil {
		var nf *order.NotFoundError
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, nf.Error())
			return nil, false
		}
		zctx.From(r.Context()).Error("Get store failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}

	if err := auth.AuthorizeStoreWrite(id, store.OwnerUserID); err != nil {
		respondError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return store, true
}
