package insights

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/basketwatch/basketwatch/internal/platform/httpx"
)

// Handler exposes the derived views over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the read-only insight routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/best-prices", h.bestPrices)
	r.Get("/trends", h.trends)
	r.Get("/comparisons", h.comparisons)
	r.Get("/comparisons/{id}", h.comparison)
	r.Get("/dashboard", h.dashboard)
}

func (h *Handler) bestPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.service.BestPrices(r.Context())
	if err != nil {
		h.logger.Error("best prices failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"best_prices": prices})
}

func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.service.Trends(r.Context())
	if err != nil {
		h.logger.Error("trends failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trends": trends})
}

func (h *Handler) comparisons(w http.ResponseWriter, r *http.Request) {
	comparisons, err := h.service.Comparisons(r.Context())
	if err != nil {
		h.logger.Error("comparisons failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comparisons": comparisons})
}

func (h *Handler) comparison(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", httpx.ErrValidation))
		return
	}
	cmp, err := h.service.Comparison(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cmp)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}
