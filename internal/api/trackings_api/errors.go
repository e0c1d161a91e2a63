package trackings_api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/go-playground/validator/v10"
)

type errorMapping struct {
	status  int
	message string
}

// Сообщения для клиента фиксированы: текст внутренней ошибки наружу не уходит.
var errorMappings = map[errs.Kind]errorMapping{
	errs.KindNotFound:          {http.StatusNotFound, "Order or tracking not found"},
	errs.KindInvalidStatus:     {http.StatusBadRequest, "Invalid status"},
	errs.KindInvalidCoordinate: {http.StatusBadRequest, "Invalid coordinates"},
	errs.KindMissingData:       {http.StatusBadRequest, "Missing required fields"},
	errs.KindUnauthorized:      {http.StatusUnauthorized, "Not authorized to access this route"},
	errs.KindForbidden:         {http.StatusForbidden, "Access denied"},
	errs.KindStoreFailure:      {http.StatusInternalServerError, "Failed to save tracking"},
	errs.KindUnavailable:       {http.StatusServiceUnavailable, "Service temporarily unavailable"},
	errs.KindInternal:          {http.StatusInternalServerError, "Server error"},
}

// HTTPStatus returns the status code and the client-facing message for err.
func HTTPStatus(err error) (int, errs.Kind, string) {
	kind := errs.KindOf(err)
	m, ok := errorMappings[kind]
	if !ok {
		kind = errs.KindInternal
		m = errorMappings[errs.KindInternal]
	}
	return m.status, kind, m.message
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	status, kind, msg := HTTPStatus(err)
	attrs = append(attrs, "method", r.Method, "path", r.URL.Path, "code", string(kind), "error", err.Error())
	if status >= http.StatusInternalServerError {
		slog.Error("tracking request failed", attrs...)
	} else {
		slog.Debug("tracking request rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{Success: false, Code: string(kind), Message: msg})
}

// validationError turns validator output into the tracking error taxonomy.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.KindMissingData, err, "invalid request")
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return errs.Newf(errs.KindMissingData, "%s is required", fe.Field())
		}
	}
	return errs.Newf(errs.KindInvalidCoordinate, "%s is out of range", verrs[0].Field())
}
