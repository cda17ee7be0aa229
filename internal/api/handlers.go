// Package api exposes the core operation surface over HTTP. Handlers are
// thin adapters: decode, delegate, encode. All decision logic lives in the
// ledger, evaluator, and scanner packages.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/alerts"
	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/ledger"
	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/scanner"
)

// Handler bundles the core services behind the HTTP surface.
type Handler struct {
	ledger  *ledger.Ledger
	eval    *alerts.Evaluator
	scanner *scanner.Scanner
}

// NewHandler creates an API handler over the given services.
func NewHandler(lg *ledger.Ledger, eval *alerts.Evaluator, sc *scanner.Scanner) *Handler {
	return &Handler{ledger: lg, eval: eval, scanner: sc}
}

// Routes mounts the operation surface under r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/leaps", h.OpenLeaps)
	r.Get("/leaps/{leapsID}/basis", h.CostBasisSummary)
	r.Post("/leaps/{leapsID}/shorts", h.OpenShortCall)
	r.Get("/leaps/{leapsID}/candidates", h.NewCallCandidates)
	r.Post("/leaps/{leapsID}/close", h.CloseLeaps)

	r.Get("/positions", h.ActivePositions)

	r.Post("/shorts/{shortCallID}/close", h.CloseShortCall)
	r.Get("/shorts/{shortCallID}/rolls", h.RollCandidates)
	r.Get("/shorts/{shortCallID}/status", h.PositionStatus)

	r.Get("/alerts", h.UnacknowledgedAlerts)
	r.Post("/alerts/evaluate", h.EvaluateAlerts)
	r.Post("/alerts/{alertID}/ack", h.AcknowledgeAlert)
}

// OpenLeaps handles POST /api/v1/leaps
func (h *Handler) OpenLeaps(w http.ResponseWriter, r *http.Request) {
	var p ledger.OpenLeapsParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pos, err := h.ledger.OpenLeaps(r.Context(), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

// OpenShortCall handles POST /api/v1/leaps/{leapsID}/shorts
func (h *Handler) OpenShortCall(w http.ResponseWriter, r *http.Request) {
	var p ledger.OpenShortCallParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p.LeapsID = chi.URLParam(r, "leapsID")

	sc, err := h.ledger.OpenShortCall(r.Context(), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

// CloseShortCallRequest is the JSON body for closing a short call.
type CloseShortCallRequest struct {
	ExitPrice decimal.Decimal `json:"exit_price"`
}

// CloseShortCallResponse returns the closed record and its basis entry.
type CloseShortCallResponse struct {
	ShortCall  *model.ShortCall      `json:"short_call"`
	BasisEntry *model.CostBasisEntry `json:"cost_basis_entry"`
}

// CloseShortCall handles POST /api/v1/shorts/{shortCallID}/close
func (h *Handler) CloseShortCall(w http.ResponseWriter, r *http.Request) {
	var req CloseShortCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sc, entry, err := h.ledger.CloseShortCall(r.Context(), chi.URLParam(r, "shortCallID"), req.ExitPrice)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CloseShortCallResponse{ShortCall: sc, BasisEntry: entry})
}

// CloseLeaps handles POST /api/v1/leaps/{leapsID}/close
func (h *Handler) CloseLeaps(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.CloseLeaps(r.Context(), chi.URLParam(r, "leapsID")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivePositions handles GET /api/v1/positions
func (h *Handler) ActivePositions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.ledger.GetActivePositions(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if groups == nil {
		groups = []model.PositionGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// CostBasisSummary handles GET /api/v1/leaps/{leapsID}/basis
func (h *Handler) CostBasisSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.GetCostBasisSummary(r.Context(), chi.URLParam(r, "leapsID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// EvaluateAlerts handles POST /api/v1/alerts/evaluate
func (h *Handler) EvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	fired, err := h.eval.EvaluateAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if fired == nil {
		fired = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, fired)
}

// UnacknowledgedAlerts handles GET /api/v1/alerts
func (h *Handler) UnacknowledgedAlerts(w http.ResponseWriter, r *http.Request) {
	out, err := h.eval.Unacknowledged(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if out == nil {
		out = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, out)
}

// AcknowledgeAlert handles POST /api/v1/alerts/{alertID}/ack
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.eval.Acknowledge(r.Context(), chi.URLParam(r, "alertID")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PositionStatus handles GET /api/v1/shorts/{shortCallID}/status
func (h *Handler) PositionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.eval.Status(r.Context(), chi.URLParam(r, "shortCallID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// RollCandidates handles GET /api/v1/shorts/{shortCallID}/rolls
func (h *Handler) RollCandidates(w http.ResponseWriter, r *http.Request) {
	out, err := h.scanner.FindRollCandidates(r.Context(), chi.URLParam(r, "shortCallID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if out == nil {
		out = []model.RollCandidate{}
	}
	writeJSON(w, http.StatusOK, out)
}

// NewCallCandidates handles GET /api/v1/leaps/{leapsID}/candidates
func (h *Handler) NewCallCandidates(w http.ResponseWriter, r *http.Request) {
	out, err := h.scanner.FindNewCallCandidates(r.Context(), chi.URLParam(r, "leapsID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if out == nil {
		out = []model.NewCallCandidate{}
	}
	writeJSON(w, http.StatusOK, out)
}

// writeEngineError maps the error taxonomy onto HTTP status codes.
// Internal detail stays out of user-visible messages.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsValidation(err):
		writeError(w, err.Error(), http.StatusBadRequest)
	case engine.IsNotFound(err):
		writeError(w, err.Error(), http.StatusNotFound)
	case engine.IsUpstream(err):
		writeError(w, "market data unavailable", http.StatusBadGateway)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
