package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message, Details: details},
		Meta:    buildMeta(r),
	})
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{common.ErrTokenNotFound, http.StatusNotFound, "TOKEN_NOT_FOUND", "verification link is not valid"},
	{common.ErrTokenAlreadyUsed, http.StatusConflict, "TOKEN_ALREADY_USED", "verification link was already used; you can log in"},
	{common.ErrTokenExpired, http.StatusGone, "TOKEN_EXPIRED", "verification link has expired; request a new one via /resend-verification"},
	{common.ErrTokenInvalidated, http.StatusGone, "TOKEN_INVALIDATED", "a newer verification link was sent; use the latest email or request a new one"},
	{common.ErrAlreadyVerified, http.StatusConflict, "ALREADY_VERIFIED", "email is already verified"},
	{common.ErrAlreadySubmitted, http.StatusConflict, "ALREADY_SUBMITTED", "payment is already awaiting review"},
	{common.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION", "payment cannot do that in its current status"},
	{common.ErrVersionConflict, http.StatusConflict, "CONFLICT", "payment was changed concurrently; retry"},
	{common.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "access denied"},
	{common.ErrAccountInactive, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is not active; verify your email first"},
	{common.ErrRefreshTokenExpired, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "session expired; log in again"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials"},
	{common.ErrUnsupportedFileType, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE", "proof must be a JPEG, PNG or PDF file"},
	{common.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "proof file is too large"},
	{common.ErrTooManyRequests, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests; try again later"},
	{common.ErrorNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
}

// fail writes err as an error envelope. Unknown errors are logged and
// reported as internal without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *common.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), map[string]string{"field": verr.Field, "reason": verr.Message})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, r, m.status, m.code, m.message, nil)
			return
		}
	}
	h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
