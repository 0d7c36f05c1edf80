package shared

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	acctshared "github.com/atlas-erp/atlas-erp/internal/accounting/shared"
)

var validate = validator.New()

// Actor resolves the acting user identity from the X-Actor header. Falls back
// to "system" so internal tooling can call the API without headers.
func Actor(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Actor")); v != "" {
		return v
	}
	return "system"
}

// DecodeJSON parses the request body into dst and runs validator tags.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError maps an error to an HTTP status. Rule violations surface their
// message to the client; infrastructure failures are logged and hidden.
func WriteError(logger *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound) || acctshared.IsNotFound(err):
		WriteJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ErrConflict), errors.Is(err, ErrIdempotencyConflict), errors.Is(err, ErrLockHeld):
		WriteJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case acctshared.IsViolation(err):
		WriteJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		var verr validator.ValidationErrors
		var jerr *json.SyntaxError
		var terr *json.UnmarshalTypeError
		if errors.As(err, &verr) || errors.As(err, &jerr) || errors.As(err, &terr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			WriteJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
	}
}
