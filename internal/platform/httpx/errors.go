package httpx

import (
	"errors"
	"net/http"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// RespondError maps cross-cutting domain errors to RFC7807 responses.
// Package handlers map their own sentinel errors first and fall back here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidDateWindow):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Date Window", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
