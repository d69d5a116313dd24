package catalog

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/basketwatch/basketwatch/internal/platform/httpx"
	"github.com/basketwatch/basketwatch/internal/pricing"
)

// AdminPasswordHeader carries the optional admin override password.
const AdminPasswordHeader = "X-Admin-Password"

// Handler exposes the catalog over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stores", h.listStores)
	r.Post("/stores", h.createStore)
	r.Put("/stores/{id}", h.updateStore)
	r.Delete("/stores/{id}", h.deleteStore)

	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)

	r.Get("/purchases", h.listPurchases)
	r.Post("/purchases", h.createPurchase)
	r.Post("/purchases/check", h.checkPurchase)
	r.Delete("/purchases/{id}", h.deletePurchase)
	r.Get("/purchases/suggest", h.suggestPurchase)
}

type storeRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Locality string `json:"locality" validate:"required,max=120"`
	Country  string `json:"country" validate:"required"`
}

type productRequest struct {
	Name  string `json:"name" validate:"required,max=160"`
	Brand string `json:"brand" validate:"max=120"`
	Unit  string `json:"unit" validate:"required"`
}

type purchaseRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	StoreID     int64   `json:"store_id" validate:"required,gt=0"`
	Description string  `json:"description" validate:"max=240"`
	Price       float64 `json:"price" validate:"gte=0"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) isAdmin(r *http.Request) bool {
	return h.service.IsAdmin(r.Header.Get(AdminPasswordHeader))
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return id, nil
}

func (h *Handler) decodeValid(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed JSON body", httpx.ErrValidation)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.service.ListStores(r.Context())
	if err != nil {
		h.logger.Error("list stores failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (h *Handler) createStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	store, err := h.service.CreateStore(r.Context(), StoreInput{
		Name:     req.Name,
		Locality: req.Locality,
		Country:  pricing.Country(req.Country),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, store)
}

func (h *Handler) updateStore(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req storeRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := StoreInput{Name: req.Name, Locality: req.Locality, Country: pricing.Country(req.Country)}
	if err := h.service.UpdateStore(r.Context(), id, input, h.isAdmin(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteStore(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteStore(r.Context(), id, h.isAdmin(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), ProductInput{
		Name:  req.Name,
		Brand: req.Brand,
		Unit:  pricing.Unit(req.Unit),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ProductInput{Name: req.Name, Brand: req.Brand, Unit: pricing.Unit(req.Unit)}
	if err := h.service.UpdateProduct(r.Context(), id, input, h.isAdmin(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id, h.isAdmin(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.service.ListPurchases(r.Context())
	if err != nil {
		h.logger.Error("list purchases failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := PurchaseInput{
		ProductID:   req.ProductID,
		StoreID:     req.StoreID,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	record, verdict, err := h.service.CreatePurchase(r.Context(), input, h.isAdmin(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"purchase": record,
		"verdict":  verdict,
	})
}

func (h *Handler) checkPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := PurchaseInput{
		ProductID: req.ProductID,
		StoreID:   req.StoreID,
		Price:     req.Price,
		Quantity:  req.Quantity,
	}
	verdict, err := h.service.CheckPurchase(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, verdict)
}

func (h *Handler) deletePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePurchase(r.Context(), id, h.isAdmin(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// suggestPurchase prefills the entry form with the latest purchase for a
// (product, store) pair.
func (h *Handler) suggestPurchase(w http.ResponseWriter, r *http.Request) {
	productID, err1 := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	storeID, err2 := strconv.ParseInt(r.URL.Query().Get("store_id"), 10, 64)
	if err1 != nil || err2 != nil || productID < 1 || storeID < 1 {
		httpx.RespondError(w, fmt.Errorf("%w: product_id and store_id query parameters required", httpx.ErrValidation))
		return
	}
	record, err := h.service.SuggestPurchase(r.Context(), productID, storeID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}
