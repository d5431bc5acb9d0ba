package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesto/storefront/internal/domain/cart"
	"github.com/velesto/storefront/internal/domain/catalog"
)

type addItemRequest struct {
	VariantID string `json:"variant_id"`
	SizeID    string `json:"size_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type lineItemResponse struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	SizeID    string          `json:"size_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type storeGroupResponse struct {
	StoreID string             `json:"store_id"`
	Items   []lineItemResponse `json:"items"`
}

type cartResponse struct {
	Groups []storeGroupResponse `json:"groups"`
}

// GetCart returns the user's open cart partitioned into store groups. Prices
// shown are cart-time snapshots; authoritative billing happens at checkout.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	items, err := h.carts.ListByUser(r.Context(), id.UserID)
	if err != nil {
		zctx.From(r.Context()).Error("List cart failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(items) == 0 {
		respondJSON(w, http.StatusOK, cartResponse{Groups: []storeGroupResponse{}})
		return
	}

	groups, err := cart.Group(items)
	if err != nil {
		h.respondCartError(w, r, err)
		return
	}

	resp := cartResponse{Groups: make([]storeGroupResponse, len(groups))}
	for i, g := range groups {
		sg := storeGroupResponse{StoreID: g.StoreID, Items: make([]lineItemResponse, len(g.Items))}
		for j, item := range g.Items {
			sg.Items[j] = lineItemResponse{
				ID:        item.ID,
				VariantID: item.VariantID,
				SizeID:    item.SizeID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			}
		}
		resp.Groups[i] = sg
	}
	respondJSON(w, http.StatusOK, resp)
}

// AddCartItem adds a variant/size to the user's cart, snapshotting the
// current catalog price for display.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusUnprocessableEntity, "quantity must be greater than 0")
		return
	}

	v, err := h.catalog.Get(r.Context(), req.VariantID, req.SizeID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(w, http.StatusUnprocessableEntity, "product not found")
			return
		}
		zctx.From(r.Context()).Error("Add cart item failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	item := cart.LineItem{
		ID:        uuid.New().String(),
		VariantID: v.VariantID,
		SizeID:    v.SizeID,
		StoreID:   v.StoreID,
		Quantity:  req.Quantity,
		UnitPrice: v.Price,
	}
	if err := h.carts.Add(r.Context(), id.UserID, item); err != nil {
		zctx.From(r.Context()).Error("Add cart item failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusCreated, lineItemResponse{
		ID:        item.ID,
		VariantID: item.VariantID,
		SizeID:    item.SizeID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
	})
}

// UpdateCartItem changes a line item's quantity.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	itemID := chi.URLParam(r, "itemID")

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusUnprocessableEntity, "quantity must be greater than 0")
		return
	}

	if err := h.carts.UpdateQuantity(r.Context(), id.UserID, itemID, req.Quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "cart item not found")
			return
		}
		zctx.From(r.Context()).Error("Update cart item failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveCartItem deletes a line item from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	itemID := chi.URLParam(r, "itemID")

	if err := h.carts.Remove(r.Context(), id.UserID, itemID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "cart item not found")
			return
		}
		zctx.From(r.Context()).Error("Remove cart item failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondCartError(w http.ResponseWriter, r *http.Request, err error) {
	var invQty *cart.InvalidQuantityError
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invQty):
		respondError(w, http.StatusUnprocessableEntity, invQty.Error())
	default:
		zctx.From(r.Context()).Error("Cart operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
