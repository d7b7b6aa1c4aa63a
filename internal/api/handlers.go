package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"kashflow-sync/internal/logger"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/pos"
	"kashflow-sync/internal/remote"
	"kashflow-sync/internal/store"
	"kashflow-sync/internal/sync"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps a service error onto a status code.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var se *remote.StatusError
	switch {
	case errors.Is(err, pos.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case pos.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Log.Error("Request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func paging(r *http.Request) (limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)
	offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, cached, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  products,
		"cached": cached,
	})
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := pos.DefaultLowStockThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "threshold must be a positive integer")
			return
		}
		threshold = n
	}
	products, cached, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     products,
		"threshold": threshold,
		"cached":    cached,
	})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var fields offline.ProductFields
	if !decode(w, r, &fields) {
		return
	}
	p, queued, err := h.service.CreateProduct(r.Context(), fields)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	status := http.StatusCreated
	if queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]any{"product": p, "queued": queued})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch offline.ProductPatch
	if !decode(w, r, &patch) {
		return
	}
	queued, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"queued": queued})
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	queued, err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"queued": queued})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req offline.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.service.Checkout(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	terminal := ""
	if c, ok := ClaimsFrom(r.Context()); ok {
		terminal = c.Terminal
	}
	logger.Log.Info("Checkout completed",
		zap.String("sale_id", receipt.Sale.ID),
		zap.String("terminal", terminal),
		zap.String("total", receipt.Sale.Total.StringFixed(2)),
		zap.Bool("offline", receipt.Offline))

	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.service.RecentSales(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Pending())
}

func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online *bool `json:"online"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Online == nil {
		writeError(w, http.StatusBadRequest, "online is required")
		return
	}
	changed := h.signal.Set(*body.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": *body.Online, "changed": changed})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if !h.syncManager.Online() {
		writeError(w, http.StatusConflict, "offline")
		return
	}
	summary, err := h.syncManager.Trigger(r.Context(), sync.TriggerManual)
	switch {
	case errors.Is(err, sync.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "summary": summary})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.syncManager.Status())
}

type historyView struct {
	*store.SyncHistory
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	rows, err := h.syncManager.History(r.Context(), limit, offset)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out := make([]historyView, 0, len(rows))
	for _, row := range rows {
		v := historyView{SyncHistory: row, Error: row.ErrorMessage.String}
		if row.CompletedAt.Valid {
			t := row.CompletedAt.Time
			v.CompletedAt = &t
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRejections(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	rows, err := h.syncManager.Rejections(r.Context(), limit, offset)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
