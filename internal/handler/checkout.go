package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesto/storefront/internal/domain/cart"
	"github.com/velesto/storefront/internal/domain/catalog"
	"github.com/velesto/storefront/internal/domain/checkout"
	"github.com/velesto/storefront/internal/domain/coupon"
	"github.com/velesto/storefront/internal/domain/order"
	"github.com/velesto/storefront/internal/domain/shipping"
)

type checkoutRequest struct {
	CountryID string `json:"country_id"`
	// CouponCodes maps store IDs to the single code applied to that store's
	// group.
	CouponCodes map[string]string `json:"coupon_codes,omitempty"`
}

type groupBreakdown struct {
	StoreID     string          `json:"store_id"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	CouponCode  string          `json:"coupon_code,omitempty"`
	Discount    decimal.Decimal `json:"discount"`
}

type orderResponse struct {
	ID           string           `json:"id"`
	SubTotal     decimal.Decimal  `json:"sub_total"`
	ShippingFees decimal.Decimal  `json:"shipping_fees"`
	Discount     decimal.Decimal  `json:"discount"`
	Total        decimal.Decimal  `json:"total"`
	PaymentRef   string           `json:"payment_ref,omitempty"`
	Groups       []groupBreakdown `json:"groups,omitempty"`
}

// Checkout prices the user's cart and places the order. Any failure aborts
// the whole attempt: no partial order is persisted and the cart stays open.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CountryID == "" {
		respondError(w, http.StatusBadRequest, "country_id required")
		return
	}

	result, err := h.checkout.PlaceOrder(r.Context(), checkout.Request{
		UserID:      id.UserID,
		CountryID:   req.CountryID,
		CouponCodes: req.CouponCodes,
	})
	if err != nil {
		h.respondCheckoutError(w, r, err)
		return
	}

	resp := orderResponse{
		ID:           result.Order.ID,
		SubTotal:     result.Totals.SubTotal,
		ShippingFees: result.Totals.ShippingFees,
		Discount:     result.Totals.Discount,
		Total:        result.Totals.Total,
		PaymentRef:   result.Order.PaymentRef,
		Groups:       make([]groupBreakdown, len(result.Groups)),
	}
	for i := range result.Groups {
		g := &result.Groups[i]
		resp.Groups[i] = groupBreakdown{
			StoreID:     g.StoreID,
			Subtotal:    g.Subtotal(),
			ShippingFee: g.ShippingFee,
			CouponCode:  g.CouponCode(),
			Discount:    g.Discount(),
		}
	}
	respondJSON(w, http.StatusCreated, resp)
}

// GetOrder returns one of the caller's placed orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	orderID := chi.URLParam(r, "orderID")

	o, err := h.orders.GetByID(r.Context(), orderID)
	if err != nil {
		var nf *order.NotFoundError
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, nf.Error())
			return
		}
		zctx.From(r.Context()).Error("Get order failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Orders are visible to their owner only.
	if o.UserID != id.UserID {
		respondError(w, http.StatusNotFound, "order not found")
		return
	}

	respondJSON(w, http.StatusOK, orderResponse{
		ID:           o.ID,
		SubTotal:     o.SubTotal,
		ShippingFees: o.ShippingFees,
		Discount:     o.Discount,
		Total:        o.Total,
		PaymentRef:   o.PaymentRef,
	})
}

// respondCheckoutError maps domain error kinds to HTTP responses. Unknown
// failures arrive wrapped as AggregationFailedError: the cause is logged,
// never exposed.
func (h *Handler) respondCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invQty  *cart.InvalidQuantityError
		unavail *catalog.UnavailableError
		aggFail *checkout.AggregationFailedError
	)
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invQty):
		respondError(w, http.StatusUnprocessableEntity, invQty.Error())
	case errors.As(err, &unavail):
		respondError(w, http.StatusUnprocessableEntity, unavail.Error())
	case errors.Is(err, coupon.ErrNotFound):
		respondError(w, http.StatusUnprocessableEntity, "coupon not found")
	case errors.Is(err, coupon.ErrExpired):
		respondError(w, http.StatusUnprocessableEntity, "coupon expired")
	case errors.Is(err, shipping.ErrNoRule):
		respondError(w, http.StatusUnprocessableEntity, "no shipping rule for destination")
	case errors.As(err, &aggFail):
		zctx.From(r.Context()).Error("Checkout aggregation failed", zap.Error(aggFail.Unwrap()))
		respondError(w, http.StatusInternalServerError, aggFail.Error())
	default:
		zctx.From(r.Context()).Error("Checkout failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
