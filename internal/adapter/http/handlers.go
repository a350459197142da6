package http

import (
	"net/http"
	"strconv"

	"github.com/zhuermu/zmead-sub004/internal/adapter/otel"
	"github.com/zhuermu/zmead-sub004/internal/port/eventstore"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
	"github.com/zhuermu/zmead-sub004/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Assistant *service.Assistant
	Workflows *service.WorkflowService
	Credits   *service.CreditService
	Events    eventstore.Store
	Store     statestore.Store
	Queue     messagequeue.Queue
}

// ---------------------------------------------------------------------------
// Assistant
// ---------------------------------------------------------------------------

type messageRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HandleMessage runs one assistant turn: recognize the message, execute
// the resulting plan (or resolve a pending confirmation) and reply.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[messageRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.UserID, "user_id") ||
		!requireField(w, req.SessionID, "session_id") ||
		!requireField(w, req.Message, "message") {
		return
	}

	ctx, span := otel.StartTurnSpan(r.Context(), req.SessionID)
	defer span.End()

	reply, err := h.Assistant.HandleMessage(ctx, req.UserID, req.SessionID, req.Message)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type confirmationRequest struct {
	Decision string `json:"decision"`
}

// ResolveConfirmation applies an explicit confirm/cancel decision to a
// suspended workflow.
func (h *Handlers) ResolveConfirmation(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")
	req, ok := readJSON[confirmationRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Decision, "decision") {
		return
	}

	reply, err := h.Assistant.ResolveConfirmation(r.Context(), sessionID, req.Decision)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// ---------------------------------------------------------------------------
// Workflows
// ---------------------------------------------------------------------------

// GetWorkflow returns the persisted workflow state for a session.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")

	st, err := h.Workflows.Get(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListSuspendedWorkflows returns workflows parked on a confirmation,
// oldest first.
func (h *Handlers) ListSuspendedWorkflows(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	states, err := h.Workflows.ListSuspended(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": states})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelWorkflow aborts an active or suspended workflow out of band.
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")

	var req cancelRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = readJSON[cancelRequest](w, r); !ok {
			return
		}
	}

	st, err := h.Workflows.Cancel(r.Context(), sessionID, req.Reason)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListWorkflowEvents returns the session's audit trail, ordered by
// sequence.
func (h *Handlers) ListWorkflowEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")

	events, err := h.Events.LoadBySession(r.Context(), sessionID, eventstore.Filter{})
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ---------------------------------------------------------------------------
// Credits
// ---------------------------------------------------------------------------

// ListCreditOperations returns the session's deduction journal.
func (h *Handlers) ListCreditOperations(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")

	ops, err := h.Credits.Operations(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

// GetCreditSummary aggregates the session's journal.
func (h *Handlers) GetCreditSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")

	summary, err := h.Credits.Summary(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetCreditBalance returns the user's live ledger balance.
func (h *Handlers) GetCreditBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !requireField(w, userID, "user_id") {
		return
	}

	balance, err := h.Credits.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe: the state store must answer and, when a
// broker is wired, its connection must be up.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok"}
	healthy := true

	if err := h.Store.Ping(r.Context()); err != nil {
		checks["store"] = err.Error()
		healthy = false
	}
	if h.Queue != nil {
		checks["nats"] = "ok"
		if !h.Queue.IsConnected() {
			checks["nats"] = "disconnected"
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}
