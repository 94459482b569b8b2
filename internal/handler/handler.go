package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/auth"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/redis"
	"github.com/honeynil/LandEscrowService/internal/lifecycle"
	"github.com/honeynil/LandEscrowService/internal/models"
	service "github.com/honeynil/LandEscrowService/internal/services"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

var errUnauthenticated = errors.New("user not authenticated")

type Handler struct {
	service     service.EscrowService
	redisClient redis.RedisClient
}

func NewHandler(s service.EscrowService, redisClient redis.RedisClient) *Handler {
	return &Handler{service: s, redisClient: redisClient}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/transactions", h.ListTransactions).Methods("GET")
	r.HandleFunc("/transactions", h.CreateTransaction).Methods("POST")
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")
	r.HandleFunc("/transactions/{id}", h.UpdateTransaction).Methods("PUT")
	r.HandleFunc("/transactions/{id}/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/transactions/{id}/milestones/{milestoneId}", h.ApproveMilestone).Methods("PUT")
	r.HandleFunc("/payments", h.CreatePayment).Methods("POST")
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.redisClient.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthenticated)
		return
	}

	transactions, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthenticated)
		return
	}

	var req models.NewTransactionInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.idempotent(w, r, actor, func() error {
		view, err := h.service.Create(r.Context(), actor, req)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, view)
		return nil
	})
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthenticated)
		return
	}

	view, err := h.service.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthenticated)
		return
	}

	history, err := h.service.History(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if history == nil {
		history = []models.StatusChange{}
	}
	writeJSON(w, http.StatusOK, history)
}

type updateTransactionRequest struct {
	Status      string `json:"status"`
	Action      string `json:"action"`
	MilestoneID string `json:"milestoneId"`
	Reason      string `json:"reason"`
}

// UpdateTransaction accepts either an explicit action or the status the caller wants
// the transaction to reach.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthenticated)
		return
	}
	id := mux.Vars(r)["id"]

	var req updateTransactionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	var action lifecycle.Action
	switch {
	case req.Action != "":
		a, err := lifecycle.ParseAction(req.Action)
		if err != nil {
			h.writeError(w, err)
			return
		}
		action = a
	case req.Status != "":
		target := models.Status(strings.ToUpper(req.Status))
		if !target.Valid() {
			h.writeError(w, fmt.Errorf("%w: unknown status %q", pkgerrors.ErrInvalidInput, req.Status))
			return
		}
		a, ok := lifecycle.ActionForStatus(target)
		if !ok {
			h.writeError(w, h.unreachable(r, actor, id, target))
			return
		}
		action = a
	default:
		h.writeError(w, fmt.Errorf("%w: status or action is required", pkgerrors.ErrInvalidInput))
		return
	}

	h.idempotent(w, r, actor, func() error {
		view, err := h.service.ApplyTransition(r.Context(), actor, id, action, service.TransitionOptions{
			Reason:      req.Reason,
			MilestoneID: req.MilestoneID,
		})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, view)
		return nil
	})
}

// unreachable builds the rejection for a target status no action leads to, echoing the
// transaction's current status when the caller may see it.
func (h *Handler) unreachable(r *http.Request, actor models.Actor, id string, target models.Status) error {
	view, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	return &pkgerrors.TransitionError{
		Action:  "set-status " + string(target),
		Current: string(view.Status),
		Err:     pkgerrors.ErrIllegalTransition,
	}
}

func (h *Handler) ApproveMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthenticated)
		return
	}
	vars := mux.Vars(r)

	var req struct {
		Approve bool `json:"approve"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if !req.Approve {
		h.writeError(w, fmt.Errorf("%w: approve must be true", pkgerrors.ErrInvalidInput))
		return
	}

	h.idempotent(w, r, actor, func() error {
		approval, err := h.service.ApproveMilestone(r.Context(), actor, vars["id"], vars["milestoneId"])
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, approval)
		return nil
	})
}

type createPaymentRequest struct {
	TransactionID string          `json:"transactionId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthenticated)
		return
	}

	var req createPaymentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.TransactionID == "" {
		h.writeError(w, fmt.Errorf("%w: transactionId is required", pkgerrors.ErrInvalidInput))
		return
	}
	paymentType := models.PaymentType(req.Type)
	if paymentType == "" {
		paymentType = models.PaymentFunding
	}

	h.idempotent(w, r, actor, func() error {
		resp, err := h.service.InitiateFunding(r.Context(), actor, req.TransactionID, paymentType, req.Amount)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, resp)
		return nil
	})
}

// idempotent runs fn once per Idempotency-Key and caller. A failed attempt releases the
// key so the client can retry with it.
func (h *Handler) idempotent(w http.ResponseWriter, r *http.Request, actor models.Actor, fn func() error) {
	key := r.Header.Get(IdempotencyHeader)
	if key == "" {
		if err := fn(); err != nil {
			h.writeError(w, err)
		}
		return
	}

	redisKey := fmt.Sprintf("request:%s:%s", actor.UserID, key)
	claimed, err := h.redisClient.SetNX(r.Context(), redisKey, "processing", idempotencyTTL)
	if err != nil {
		slog.Error("failed to check idempotency key", "key", key, "error", err)
		h.writeError(w, err)
		return
	}
	if !claimed {
		slog.Info("request already processed", "key", key, "user_id", actor.UserID)
		h.writeError(w, pkgerrors.ErrRequestAlreadyProcessed)
		return
	}

	if err := fn(); err != nil {
		if delErr := h.redisClient.Del(r.Context(), redisKey); delErr != nil {
			slog.Error("failed to release idempotency key", "key", key, "error", delErr)
		}
		h.writeError(w, err)
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", pkgerrors.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
