package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesto/storefront/internal/cache"
	"github.com/velesto/storefront/internal/domain/catalog"
)

// productResponse is the browse representation of one catalog variant row.
type productResponse struct {
	VariantID       string          `json:"variant_id"`
	SizeID          string          `json:"size_id"`
	StoreID         string          `json:"store_id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Available       int             `json:"available"`
}

// ListProducts returns the catalog listing. With ?q= it proxies the query to
// the search service; otherwise it serves the (possibly cached) full listing.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("q"); q != "" && h.search != nil {
		matches, err := h.search.Query(r.Context(), q)
		if err != nil {
			zctx.From(r.Context()).Error("Search query failed", zap.Error(err))
			respondError(w, http.StatusBadGateway, "search unavailable")
			return
		}
		respondJSON(w, http.StatusOK, matches)
		return
	}

	variants, err := h.browseListing(r)
	if err != nil {
		zctx.From(r.Context()).Error("List products failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]productResponse, len(variants))
	for i, v := range variants {
		out[i] = toProductResponse(v)
	}
	respondJSON(w, http.StatusOK, out)
}

// browseListing serves the listing read-through the cache when configured.
// Cache errors degrade to a direct catalog read.
func (h *Handler) browseListing(r *http.Request) ([]catalog.Variant, error) {
	if h.products == nil {
		return h.catalog.List(r.Context())
	}

	variants, err := h.products.Get(r.Context())
	if err == nil {
		return variants, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		zctx.From(r.Context()).Warn("Product cache read failed", zap.Error(err))
	}

	variants, err = h.catalog.List(r.Context())
	if err != nil {
		return nil, err
	}
	if err := h.products.Set(r.Context(), variants); err != nil {
		zctx.From(r.Context()).Warn("Product cache write failed", zap.Error(err))
	}
	return variants, nil
}

// GetProduct returns all size rows for one variant.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")
	sizeID := r.URL.Query().Get("size_id")
	if sizeID == "" {
		respondError(w, http.StatusBadRequest, "size_id query parameter required")
		return
	}

	v, err := h.catalog.Get(r.Context(), variantID, sizeID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("Get product failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(*v))
}

func toProductResponse(v catalog.Variant) productResponse {
	return productResponse{
		VariantID:       v.VariantID,
		SizeID:          v.SizeID,
		StoreID:         v.StoreID,
		Name:            v.Name,
		Price:           v.Price,
		DiscountPercent: v.DiscountPercent,
		Available:       v.Quantity,
	}
}
