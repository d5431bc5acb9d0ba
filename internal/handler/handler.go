// Package handler exposes the storefront HTTP API on a chi router,
// delegating business logic to the domain services and repositories.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/velesto/storefront/internal/cache"
	"github.com/velesto/storefront/internal/domain/auth"
	"github.com/velesto/storefront/internal/domain/cart"
	"github.com/velesto/storefront/internal/domain/catalog"
	"github.com/velesto/storefront/internal/domain/checkout"
	"github.com/velesto/storefront/internal/domain/coupon"
	"github.com/velesto/storefront/internal/domain/order"
	"github.com/velesto/storefront/internal/domain/shipping"
	"github.com/velesto/storefront/internal/search"
)

// Handler holds the API's domain dependencies.
type Handler struct {
	catalog  catalog.Repository
	carts    cart.Repository
	checkout *checkout.Service
	orders   order.Repository
	stores   order.StoreRepository
	coupons  coupon.Repository
	shipping shipping.Resolver

	// Optional browse-path collaborators; either may be nil.
	search   *search.Client
	products *cache.ProductCache
}

// Config wires the Handler's dependencies.
type Config struct {
	Catalog  catalog.Repository
	Carts    cart.Repository
	Checkout *checkout.Service
	Orders   order.Repository
	Stores   order.StoreRepository
	Coupons  coupon.Repository
	Shipping shipping.Resolver
	Search   *search.Client
	Products *cache.ProductCache
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		catalog:  cfg.Catalog,
		carts:    cfg.Carts,
		checkout: cfg.Checkout,
		orders:   cfg.Orders,
		stores:   cfg.Stores,
		coupons:  cfg.Coupons,
		shipping: cfg.Shipping,
		search:   cfg.Search,
		products: cfg.Products,
	}
}

// Routes mounts all API routes. Every route requires an authenticated API
// key; seller routes additionally check role and store ownership.
func (h *Handler) Routes(keys auth.Repository, pepper []byte) chi.Router {
	r := chi.NewRouter()
	r.Use(APIKeyAuth(keys, pepper))

	r.Get("/products", h.ListProducts)
	r.Get("/products/{variantID}", h.GetProduct)

	r.Get("/cart", h.GetCart)
	r.Post("/cart/items", h.AddCartItem)
	r.Patch("/cart/items/{itemID}", h.UpdateCartItem)
	r.Delete("/cart/items/{itemID}", h.RemoveCartItem)

	r.Post("/checkout", h.Checkout)
	r.Get("/orders/{orderID}", h.GetOrder)

	r.Put("/stores/{storeID}/coupons", h.UpsertCoupon)
	r.Put("/stores/{storeID}/shipping-rules", h.UpsertShippingRule)

	return r
}

// errorBody is the tagged error shape returned by every failure path.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Code: status, Message: msg})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
