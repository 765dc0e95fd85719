package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redactqc/redactqc/internal/media"
	"github.com/redactqc/redactqc/internal/query"
	"github.com/redactqc/redactqc/internal/store"
)

// ReportsHandler handles report generation and download. Report rendering
// internals are out of scope here; this implements only the metadata
// contract §6 requires: a pending row is created and later completed by an
// out-of-core renderer via Store.CompleteReport.
type ReportsHandler struct {
	Store *store.Store
	Query *query.API
}

type generateReportRequest struct {
	BatchID string `json:"batch_id"`
	Format  string `json:"format"`
}

// Generate handles POST /api/reports/generate.
func (h *ReportsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}
	if req.BatchID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BATCH", "batch_id is required")
		return
	}
	if req.Format != store.ReportFormatPDF && req.Format != store.ReportFormatCSV {
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT", `format must be "pdf" or "csv"`)
		return
	}

	if _, err := h.Query.GetBatch(r.Context(), req.BatchID); err != nil {
		writeStoreErr(w, err)
		return
	}

	id, err := h.Store.CreateReport(r.Context(), req.BatchID, req.Format)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": store.ReportPending})
}

// Download handles GET /api/reports/{id}/download.
func (h *ReportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	switch rep.Status {
	case store.ReportFailed:
		writeError(w, http.StatusInternalServerError, "REPORT_FAILED", rep.Error)
		return
	case store.ReportPending:
		writeError(w, http.StatusConflict, "REPORT_NOT_READY", "report has not finished generating")
		return
	}

	f, err := os.Open(rep.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "report file is missing on disk")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", media.ContentType(rep.Path))
	http.ServeContent(w, r, rep.Path, time.Time{}, f)
}
