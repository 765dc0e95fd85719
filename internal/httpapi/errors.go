package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/redactqc/redactqc/internal/batch"
	"github.com/redactqc/redactqc/internal/store"
)

// writeStoreErr maps a Store/Manager error to the §7 error taxonomy's HTTP
// status and code. Unrecognized errors are logged and surfaced as 500.
func writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, batch.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrBusy):
		writeError(w, http.StatusConflict, "BUSY", err.Error())
	case errors.Is(err, batch.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "INVALID_PATH", err.Error())
	default:
		slog.Error("httpapi: unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
