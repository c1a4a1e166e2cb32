package api

import (
	"errors"
	"net/http"

	"popout/internal/events"
	"popout/internal/middleware"
	"popout/internal/otp"
	"popout/internal/service"
	"popout/internal/store"
	"popout/internal/util"
)

// writeServiceError maps the sentinel errors of the domain layers onto
// status codes and stable machine-readable codes. Unknown errors become
// opaque 500s so internals never leak.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", "resource not found", reqID)
	case errors.Is(err, events.ErrConflict):
		util.WriteError(w, http.StatusConflict, "schedule_conflict", err.Error(), reqID)
	case errors.Is(err, events.ErrDuplicateRequest):
		util.WriteError(w, http.StatusConflict, "duplicate_request", err.Error(), reqID)
	case errors.Is(err, events.ErrInvalidTransition):
		util.WriteError(w, http.StatusConflict, "request_decided", err.Error(), reqID)
	case errors.Is(err, events.ErrNotAuthorized):
		util.WriteError(w, http.StatusForbidden, "not_authorized", err.Error(), reqID)
	case errors.Is(err, events.ErrNotAMember):
		util.WriteError(w, http.StatusForbidden, "not_a_member", err.Error(), reqID)
	case errors.Is(err, events.ErrSelfJoin):
		util.WriteError(w, http.StatusBadRequest, "self_join", err.Error(), reqID)
	case errors.Is(err, events.ErrJoinClosed):
		util.WriteError(w, http.StatusBadRequest, "join_closed", err.Error(), reqID)
	case errors.Is(err, events.ErrEventEnded):
		util.WriteError(w, http.StatusBadRequest, "event_ended", err.Error(), reqID)
	case errors.Is(err, events.ErrEmptyMessage):
		util.WriteError(w, http.StatusBadRequest, "empty_message", err.Error(), reqID)
	case errors.Is(err, events.ErrInvalidEvent):
		util.WriteError(w, http.StatusBadRequest, "invalid_event", err.Error(), reqID)
	case errors.Is(err, otp.ErrNotFound):
		util.WriteError(w, http.StatusBadRequest, "code_not_found", err.Error(), reqID)
	case errors.Is(err, otp.ErrExpired):
		util.WriteError(w, http.StatusBadRequest, "code_expired", err.Error(), reqID)
	case errors.Is(err, otp.ErrMismatch):
		util.WriteError(w, http.StatusBadRequest, "code_mismatch", err.Error(), reqID)
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), reqID)
	case errors.Is(err, service.ErrEmailTaken):
		util.WriteError(w, http.StatusConflict, "email_taken", err.Error(), reqID)
	case errors.Is(err, service.ErrValidation):
		util.WriteError(w, http.StatusBadRequest, "invalid_input", err.Error(), reqID)
	default:
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", reqID)
	}
}
