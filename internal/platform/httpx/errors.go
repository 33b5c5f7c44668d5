// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// Status maps a domain sentinel onto an HTTP status code.
type Status struct {
	Err   error
	Code  int
	Title string
}

// RespondError maps errors to HTTP responses using RFC7807. Package specific
// sentinels are matched first, in order.
func RespondError(w http.ResponseWriter, err error, known ...Status) {
	for _, s := range known {
		if errors.Is(err, s.Err) {
			title := s.Title
			if title == "" {
				title = http.StatusText(s.Code)
			}
			Problem(w, s.Code, title, err.Error())
			return
		}
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, db.ErrTxConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Concurrent Update", "the request conflicted with a concurrent write; retry it")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
