package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nathoo/lorecore/engine"
	"github.com/nathoo/lorecore/engine/combat"
	"github.com/nathoo/lorecore/engine/hints"
	"github.com/nathoo/lorecore/realtime"
	"github.com/nathoo/lorecore/store"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// statusFor maps an error chain to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, combat.ErrUnknownEncounter),
		errors.Is(err, hints.ErrUnknownHint):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, combat.ErrInvalidTransition),
		errors.Is(err, realtime.ErrEmptyTurnOrder):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errBadRequest),
		errors.Is(err, engine.ErrUnknownAction),
		errors.Is(err, engine.ErrInvalidAction),
		errors.Is(err, hints.ErrInvalidResponse),
		errors.Is(err, combat.ErrUnknownBluff),
		errors.Is(err, combat.ErrNotParticipant):
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: apiError{Code: code, Message: msg}})
}
