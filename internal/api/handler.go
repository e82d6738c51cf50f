// Package api exposes the ledger, allocation engine and snapshot
// aggregator over HTTP/JSON.
//
// Money crosses the wire as strings with two fractional digits and
// quantities as decimal strings; requests may send either strings or JSON
// numbers. Errors are always {"error": {"code", "message", "details"}}.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/allocation"
	"github.com/folio/portfolio-engine/internal/apperr"
	"github.com/folio/portfolio-engine/internal/ledger"
	"github.com/folio/portfolio-engine/internal/snapshot"
	"github.com/folio/portfolio-engine/internal/stream"
)

// Handler serves the /api/v1 routes.
type Handler struct {
	ledger     *ledger.Service
	allocation *allocation.Engine
	snapshots  *snapshot.Aggregator
	hub        *stream.Hub // optional
}

// NewHandler wires the HTTP layer. Pass nil for hub to disable /ws.
func NewHandler(l *ledger.Service, a *allocation.Engine, s *snapshot.Aggregator, hub *stream.Hub) *Handler {
	return &Handler{ledger: l, allocation: a, snapshots: s, hub: hub}
}

// Routes returns a router to be mounted at /api/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.hub != nil {
		r.Get("/ws", h.StreamEvents)
	}

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/assets", h.ListAssets)
		r.Post("/assets", h.CreateAsset)
		r.Put("/assets/{assetID}/target", h.UpdateTarget)
		r.Put("/assets/{assetID}/holding", h.SetHolding)
		r.Delete("/assets/{assetID}", h.DeleteAsset)

		r.Post("/prices", h.UpdatePrices)

		r.Get("/transactions", h.ListTransactions)
		r.Post("/transactions", h.RecordTransaction)

		r.Post("/allocation", h.SuggestAllocation)

		r.Get("/snapshots", h.ListSnapshots)
		r.Post("/snapshots", h.CreateSnapshot)
		r.Get("/snapshots/{snapshotID}", h.GetSnapshot)
	})
	return r
}

// --- Request types ---

// CreateAssetRequest is the JSON body for POST /assets.
type CreateAssetRequest struct {
	Ticker           string          `json:"ticker"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	TargetPercentage decimal.Decimal `json:"target_percentage"`
}

// TargetRequest is the JSON body for PUT /assets/{assetID}/target.
type TargetRequest struct {
	TargetPercentage decimal.Decimal `json:"target_percentage"`
}

// HoldingRequest is the JSON body for PUT /assets/{assetID}/holding.
type HoldingRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// PricesRequest is the JSON body for POST /prices.
type PricesRequest struct {
	Prices []ledger.PriceUpdate `json:"prices"`
}

// TransactionRequest is the JSON body for POST /transactions. Date is
// YYYY-MM-DD or RFC 3339 and defaults to now.
type TransactionRequest struct {
	Type       string          `json:"type"` // "buy" or "sell"
	AssetID    string          `json:"asset_id"`
	Date       string          `json:"date,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
}

// AllocationRequest is the JSON body for POST /allocation.
type AllocationRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// --- Assets ---

// ListAssets handles GET /users/{userID}/assets
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.ListAssets(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateAsset handles POST /users/{userID}/assets
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if !decode(w, r, &req) {
		return
	}
	asset, err := h.ledger.CreateAsset(r.Context(), chi.URLParam(r, "userID"), ledger.AssetInput{
		Ticker:           req.Ticker,
		Name:             req.Name,
		Category:         req.Category,
		TargetPercentage: req.TargetPercentage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// UpdateTarget handles PUT /users/{userID}/assets/{assetID}/target
func (h *Handler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !decode(w, r, &req) {
		return
	}
	asset, err := h.ledger.UpdateTarget(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "assetID"), req.TargetPercentage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// SetHolding handles PUT /users/{userID}/assets/{assetID}/holding
func (h *Handler) SetHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingRequest
	if !decode(w, r, &req) {
		return
	}
	holding, err := h.ledger.SetHolding(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "assetID"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}

// DeleteAsset handles DELETE /users/{userID}/assets/{assetID}
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteAsset(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "assetID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePrices handles POST /users/{userID}/prices
func (h *Handler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req PricesRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.ledger.UpdatePrices(r.Context(), chi.URLParam(r, "userID"), req.Prices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Transactions ---

// RecordTransaction handles POST /users/{userID}/transactions
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.ledger.RecordTransaction(r.Context(), chi.URLParam(r, "userID"), ledger.TransactionInput{
		Type:       req.Type,
		AssetID:    req.AssetID,
		Date:       date,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Commission: req.Commission,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// ListTransactions handles GET /users/{userID}/transactions?asset_id=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.ListTransactions(r.Context(), chi.URLParam(r, "userID"), ledger.TransactionFilter{
		AssetID: r.URL.Query().Get("asset_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"total":        len(txs),
	})
}

// --- Allocation ---

// SuggestAllocation handles POST /users/{userID}/allocation
func (h *Handler) SuggestAllocation(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequest
	if !decode(w, r, &req) {
		return
	}
	suggestion, err := h.allocation.SuggestAllocation(r.Context(), chi.URLParam(r, "userID"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// --- Snapshots ---

// CreateSnapshot handles POST /users/{userID}/snapshots
func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.CreateSnapshot(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// ListSnapshots handles GET /users/{userID}/snapshots?from=&to=
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	var filter snapshot.Filter
	for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := r.URL.Query().Get(param)
		if raw == "" {
			continue
		}
		day, err := h.snapshots.ParseDay(raw)
		if err != nil {
			writeError(w, apperr.Validation("Invalid date, expected YYYY-MM-DD", map[string]any{param: raw}))
			return
		}
		*dst = &day
	}

	list, err := h.snapshots.ListSnapshots(r.Context(), chi.URLParam(r, "userID"), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetSnapshot handles GET /users/{userID}/snapshots/{snapshotID}
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.GetSnapshot(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "snapshotID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- Stream ---

// StreamEvents handles GET /ws?user_id= by upgrading to a WebSocket that
// receives the user's events.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, apperr.Validation("user_id is required", nil))
		return
	}
	h.hub.ServeWS(w, r, userID)
}

// --- Helpers ---

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("Invalid date, expected YYYY-MM-DD or RFC 3339", map[string]any{"date": raw})
	}
	return t, nil
}

// decode reads a JSON body into dst, writing a validation error on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperr.Validation("invalid request body", map[string]any{"reason": err.Error()}))
		return false
	}
	return true
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps err to its HTTP status and the JSON error body.
func writeError(w http.ResponseWriter, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		slog.Error("request failed", "err", err)
	}
	writeJSON(w, e.Status(), errorBody{Error: errorDetail{
		Code:    e.Code(),
		Message: e.Message,
		Details: e.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
