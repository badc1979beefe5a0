package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const (
	sessionCookieName   = "sf_session"
	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

type HTTPHandler struct {
	storage  port.KeyValueStore
	catalog  port.CatalogReader
	checkout *service.CheckoutService
	orders   *service.OrderService
	log      *slog.Logger
	locks    *sessionLocks

	secureCookies bool
}

type CartLineResponse struct {
	VariantID     string               `json:"variant_id"`
	ProductID     string               `json:"product_id"`
	ProductSlug   string               `json:"product_slug"`
	Title         string               `json:"title"`
	OptionLabels  []domain.OptionLabel `json:"option_labels,omitempty"`
	UnitPrice     string               `json:"unit_price"`
	UnitSalePrice string               `json:"unit_sale_price"`
	IsOnSale      bool                 `json:"is_on_sale"`
	Quantity      int                  `json:"quantity"`
	StockCap      int                  `json:"stock_cap"`
	ImageRef      string               `json:"image_ref,omitempty"`
	LineTotal     string               `json:"line_total"`
}

type CartResponse struct {
	Lines     []CartLineResponse `json:"lines"`
	ItemCount int                `json:"item_count"`
	Subtotal  string             `json:"subtotal"`
	PanelOpen bool               `json:"panel_open"`
}

type AddItemRequest struct {
	VariantID string `json:"variant_id"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type PanelRequest struct {
	Open bool `json:"open"`
}

type RedirectResponse struct {
	URL string `json:"url"`
}

type SuccessResponse struct {
	OrderNumber string       `json:"order_number,omitempty"`
	Cart        CartResponse `json:"cart"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func NewHTTPHandler(storage port.KeyValueStore, catalog port.CatalogReader, checkout *service.CheckoutService, orders *service.OrderService, secureCookies bool, log *slog.Logger) *HTTPHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPHandler{
		storage:       storage,
		catalog:       catalog,
		checkout:      checkout,
		orders:        orders,
		log:           log,
		locks:         newSessionLocks(),
		secureCookies: secureCookies,
	}
}

func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("PATCH /api/cart/items/{variantID}", h.UpdateQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{variantID}", h.RemoveItem)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/cart/panel", h.SetPanel)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("POST /api/checkout/buy-now", h.BuyNow)
	mux.HandleFunc("GET /checkout/success", h.CheckoutSuccess)
	mux.HandleFunc("GET /checkout/cancel", h.CheckoutCancel)
	return mux
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		writeJSON(w, http.StatusOK, cartResponse(store))
	})
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VariantID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variant, ok := h.lookupVariant(w, r, req.VariantID)
	if !ok {
		return
	}

	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		store.AddItem(ctx, variant.CartCandidate())
		writeJSON(w, http.StatusOK, cartResponse(store))
	})
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variantID := r.PathValue("variantID")
	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		store.UpdateQuantity(ctx, variantID, *req.Quantity)
		writeJSON(w, http.StatusOK, cartResponse(store))
	})
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	variantID := r.PathValue("variantID")
	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		store.RemoveItem(ctx, variantID)
		writeJSON(w, http.StatusOK, cartResponse(store))
	})
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		store.ClearCart(ctx)
		writeJSON(w, http.StatusOK, cartResponse(store))
	})
}

// SetPanel toggles the cart panel for the response only; panel state is not
// persisted between requests.
func (h *HTTPHandler) SetPanel(w http.ResponseWriter, r *http.Request) {
	var req PanelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		if req.Open {
			store.OpenPanel()
		} else {
			store.ClosePanel()
		}
		writeJSON(w, http.StatusOK, cartResponse(store))
	})
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		url, err := h.checkout.StartCheckout(ctx, store)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
	})
}

func (h *HTTPHandler) BuyNow(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VariantID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variant, ok := h.lookupVariant(w, r, req.VariantID)
	if !ok {
		return
	}

	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		url, err := h.checkout.BuyNow(ctx, store, variant.CartCandidate())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
	})
}

// CheckoutSuccess clears the cart and reconciles the order. The cart is
// cleared even if reconciliation fails; reloading the page retries it.
func (h *HTTPHandler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == service.SessionIDPlaceholder {
		// the provider did not substitute a real session
		sessionID = ""
	}

	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		store.OnSuccessReturn(ctx, sessionID != "")
		if sessionID == "" {
			writeJSON(w, http.StatusOK, SuccessResponse{Cart: cartResponse(store)})
			return
		}

		order, err := h.orders.Reconcile(ctx, sessionID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SuccessResponse{OrderNumber: order.OrderNumber, Cart: cartResponse(store)})
	})
}

func (h *HTTPHandler) CheckoutCancel(w http.ResponseWriter, r *http.Request) {
	restore, _ := strconv.ParseBool(r.URL.Query().Get("restore"))

	h.withCart(w, r, func(ctx context.Context, store *service.CartStore) {
		store.OnCancelReturn(ctx, restore)
		writeJSON(w, http.StatusOK, cartResponse(store))
	})
}

// withCart runs fn with the cart of the caller's session, creating the
// session cookie on first contact. Activations of one session never overlap.
func (h *HTTPHandler) withCart(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, store *service.CartStore)) {
	sessionID := h.sessionID(w, r)

	unlock := h.locks.lock(sessionID)
	defer unlock()

	ctx := r.Context()
	store := service.OpenCartStore(ctx, h.storage, sessionID, h.log)
	fn(ctx, store)
}

func (h *HTTPHandler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   sessionCookieMaxAge,
	})
	return id
}

func (h *HTTPHandler) lookupVariant(w http.ResponseWriter, r *http.Request, variantID string) (*domain.Variant, bool) {
	variant, err := h.catalog.GetVariant(r.Context(), variantID)
	if err != nil {
		h.log.Error("catalog lookup failed", slog.String("variant_id", variantID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if variant == nil {
		writeError(w, http.StatusNotFound, "variant not found")
		return nil, false
	}
	return variant, true
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrEmptyCart):
		status, message = http.StatusConflict, "cart is empty"
	case errors.Is(err, service.ErrInvalidCandidate):
		status, message = http.StatusConflict, "item is out of stock"
	case errors.Is(err, service.ErrCheckoutFailed):
		status, message = http.StatusBadGateway, "checkout is unavailable"
	case errors.Is(err, service.ErrMissingSession):
		status, message = http.StatusBadRequest, "missing session id"
	case errors.Is(err, service.ErrSessionNotPaid):
		status, message = http.StatusPaymentRequired, "payment not completed"
	default:
		h.log.Error("request failed", slog.Any("err", err))
	}

	writeError(w, status, message)
}

func cartResponse(store *service.CartStore) CartResponse {
	resp := CartResponse{
		Lines:     []CartLineResponse{},
		ItemCount: store.ItemCount(),
		Subtotal:  store.Subtotal().StringFixed(2),
		PanelOpen: store.PanelOpen(),
	}
	for _, l := range store.Lines() {
		resp.Lines = append(resp.Lines, CartLineResponse{
			VariantID:     l.VariantID,
			ProductID:     l.ProductID,
			ProductSlug:   l.ProductSlug,
			Title:         l.Title,
			OptionLabels:  l.OptionLabels,
			UnitPrice:     l.UnitPrice.StringFixed(2),
			UnitSalePrice: l.UnitSalePrice.StringFixed(2),
			IsOnSale:      l.IsOnSale,
			Quantity:      l.Quantity,
			StockCap:      l.StockCap,
			ImageRef:      l.ImageRef,
			LineTotal:     l.LineTotal().StringFixed(2),
		})
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// sessionLocks hands out one mutex per cart session. Entries are dropped
// when no request holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (s *sessionLocks) lock(id string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
