package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ctnfastfood/cart/internal/domain"
	"github.com/ctnfastfood/cart/internal/store"
	apperrors "github.com/ctnfastfood/cart/pkg/errors"
	"github.com/ctnfastfood/cart/pkg/httputil"
	"github.com/ctnfastfood/cart/pkg/validator"
)

// MaxImportBytes caps the body accepted by the import endpoint.
const MaxImportBytes = 1 << 20

// ExportFilename is suggested to browsers downloading an export.
const ExportFilename = "ctn-fastfood-cart.json"

// Sessions resolves the cart store of a browser session.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*store.CartStore, error)
	Close(ctx context.Context, sessionID string) error
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions Sessions, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON body of POST /api/v1/cart/items. Price accepts
// a JSON number or a numeric string.
type AddItemRequest struct {
	Name     string           `json:"name" validate:"required,max=200"`
	Category string           `json:"category" validate:"required,max=100"`
	Price    *decimal.Decimal `json:"price" validate:"required,gte=0,lte=100000"`
	Image    string           `json:"image" validate:"max=2048"`
}

// UpdateQuantityRequest is the JSON body of PUT /api/v1/cart/items/{id}.
// A quantity of zero or less removes the item.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,lte=999"`
}

// --- Response DTOs ---

// AddItemResponse carries the added (or incremented) item and the cart after the change.
type AddItemResponse struct {
	Item domain.LineItem `json:"item"`
	Cart domain.Summary  `json:"cart"`
}

// MutationResponse reports whether a remove or update touched an item.
// Unknown ids leave the cart unchanged and report Changed=false.
type MutationResponse struct {
	Changed bool           `json:"changed"`
	Cart    domain.Summary `json:"cart"`
}

// CountResponse feeds the navbar badge.
type CountResponse struct {
	ItemCount int `json:"item_count"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.cart(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart.Summary()})
}

// GetCount handles GET /api/v1/cart/count
func (h *CartHandler) GetCount(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.cart(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: CountResponse{ItemCount: cart.ItemCount()}})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	item, err := cart.AddItem(r.Context(), req.Name, req.Category, *req.Price, req.Image)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: AddItemResponse{Item: item, Cart: cart.Summary()},
	})
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{id}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	changed, err := cart.UpdateQuantity(r.Context(), id, *req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MutationResponse{Changed: changed, Cart: cart.Summary()},
	})
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	changed, err := cart.RemoveItem(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MutationResponse{Changed: changed, Cart: cart.Summary()},
	})
}

// ClearCart handles DELETE /api/v1/cart?confirm=true
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		httputil.WriteError(w, r, apperrors.InvalidInput("confirm=true is required to clear the cart"), h.logger)
		return
	}

	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	if err := cart.Clear(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart.Summary()})
}

// ExportCart handles GET /api/v1/cart/export. The body is the bare snapshot
// array, not wrapped in the response envelope.
func (h *CartHandler) ExportCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	data, err := cart.Export()
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFilename))
	httputil.WriteRaw(w, http.StatusOK, data)
}

// ImportCart handles POST /api/v1/cart/import with a snapshot array as body.
func (h *CartHandler) ImportCart(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, r, apperrors.InvalidInput("import payload is too large"), h.logger)
			return
		}
		httputil.WriteError(w, r, apperrors.InvalidInput("could not read request body"), h.logger)
		return
	}

	cart, ok := h.cart(w, r)
	if !ok {
		return
	}

	summary, err := cart.Import(r.Context(), body)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}

// Unload handles POST /api/v1/cart/unload. Pages call it from the
// page-hide hook; the cart is flushed and released from memory.
func (h *CartHandler) Unload(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := sessionIDFromContext(r.Context())

	if err := h.sessions.Close(r.Context(), sessionID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// cart resolves the session store, writing the error response on failure.
func (h *CartHandler) cart(w http.ResponseWriter, r *http.Request) (*store.CartStore, bool) {
	sessionID, ok := sessionIDFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.InvalidInput("X-Session-ID header is required"), h.logger)
		return nil, false
	}

	cart, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}
	return cart, true
}
