// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.ErrValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.ErrNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.ErrAlreadyProcessed:
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case shared.ErrConflict:
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case shared.ErrForbidden:
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		if errors.Is(err, errBadRequest) {
			Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
