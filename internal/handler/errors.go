package handler

import (
	"errors"
	"log/slog"
	"net/http"

	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
)

type errorResponse struct {
	Error     string `json:"error"`
	Status    string `json:"status,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	resp := errorResponse{Error: err.Error()}
	if current, ok := pkgerrors.CurrentStatus(err); ok {
		resp.Status = current
	}
	switch code {
	case http.StatusBadGateway:
		resp.Retryable = true
	case http.StatusInternalServerError:
		slog.Error("request failed", "error", err)
		resp.Error = "internal server error"
	}
	writeJSON(w, code, resp)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrMilestoneNotFound),
		errors.Is(err, pkgerrors.ErrListingNotFound),
		errors.Is(err, pkgerrors.ErrPaymentNotFound),
		errors.Is(err, pkgerrors.ErrDisputeNotFound),
		errors.Is(err, pkgerrors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrIllegalTransition),
		errors.Is(err, pkgerrors.ErrInvalidState),
		errors.Is(err, pkgerrors.ErrAlreadyApproved),
		errors.Is(err, pkgerrors.ErrConcurrentUpdate),
		errors.Is(err, pkgerrors.ErrListingUnavailable),
		errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
