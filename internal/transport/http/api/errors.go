package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/records"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/platform/supabase"
)

// FieldError is the envelope of a rejected payload.
type FieldError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// OrphanError reports an organization left behind by a failed sign-up.
type OrphanError struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	OrganizationID string `json:"organizationId"`
}

type detailedEnvelope struct {
	Success   bool   `json:"success"`
	Error     any    `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeDetailed(w http.ResponseWriter, status int, detail any, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonEncode(w, detailedEnvelope{Error: detail, RequestID: requestID}); err != nil {
		slog.Warn("write json failed", "err", err)
	}
}

// FromError renders a domain error with its status code.
func FromError(w http.ResponseWriter, err error, requestID string) {
	logger := slog.Default()
	if requestID != "" {
		logger = logger.With("requestId", requestID)
	}
	var (
		verr   *records.ValidationError
		regErr *session.RegistrationError
		serr   *records.StoreError
		aerr   *supabase.AuthError
	)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", requestID)
	case errors.Is(err, auth.ErrNoUser):
		Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
	case errors.Is(err, auth.ErrForbidden):
		Fail(w, http.StatusForbidden, "forbidden", "insufficient role", requestID)
	case errors.As(err, &regErr):
		writeDetailed(w, http.StatusBadGateway, OrphanError{
			Code:           "registration_incomplete",
			Message:        regErr.Error(),
			OrganizationID: regErr.OrganizationID,
		}, requestID)
	case errors.As(err, &verr):
		writeDetailed(w, http.StatusUnprocessableEntity, FieldError{
			Code:    "validation_error",
			Message: verr.Error(),
			Fields:  verr.Fields,
		}, requestID)
	case errors.Is(err, records.ErrNotFound):
		Fail(w, http.StatusNotFound, "not_found", "record not found", requestID)
	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		Fail(w, http.StatusGatewayTimeout, "timeout", "backend did not answer in time", requestID)
	case errors.As(err, &aerr):
		writeAuthError(w, logger, aerr, requestID)
	case errors.As(err, &serr):
		if serr.Code == records.CodeUnknownCollection {
			Fail(w, http.StatusNotFound, "unknown_collection", "unknown collection "+serr.Collection, requestID)
			return
		}
		logger.Error("record store failure", "err", err)
		Fail(w, http.StatusBadGateway, "store_error", "record store unavailable", requestID)
	default:
		logger.Error("unhandled error", "err", err)
		Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
	}
}

// writeAuthError passes client errors of the hosted auth service through with
// their status so the message can be shown inline.
func writeAuthError(w http.ResponseWriter, logger *slog.Logger, aerr *supabase.AuthError, requestID string) {
	code := aerr.Code
	if code == "" {
		code = "auth_error"
	}
	if aerr.Status >= 400 && aerr.Status < 500 {
		Fail(w, aerr.Status, code, aerr.Message, requestID)
		return
	}
	logger.Error("auth service failure", "err", aerr)
	Fail(w, http.StatusBadGateway, "auth_unavailable", "authentication service unavailable", requestID)
}
