package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redactqc/redactqc/internal/query"
	"github.com/redactqc/redactqc/internal/store"
)

// BatchesHandler handles batch lifecycle and document-listing endpoints.
type BatchesHandler struct {
	Query   *query.API
	Manager scanStarter
}

// scanStarter is the subset of *batch.Manager the HTTP layer needs.
type scanStarter interface {
	StartScan(ctx context.Context, sourcePath string, confidenceThreshold float64, workerCount int) (string, error)
	DeleteBatch(ctx context.Context, batchID string) error
}

type scanRequest struct {
	SourcePath          string   `json:"source_path"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	WorkerCount         *int     `json:"worker_count,omitempty"`
}

// Create handles POST /api/scan.
func (h *BatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}
	if req.SourcePath == "" {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", "source_path is required")
		return
	}

	var threshold float64
	if req.ConfidenceThreshold != nil {
		threshold = *req.ConfidenceThreshold
	}
	var workers int
	if req.WorkerCount != nil {
		workers = *req.WorkerCount
	}

	batchID, err := h.Manager.StartScan(r.Context(), req.SourcePath, threshold, workers)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	b, err := h.Query.GetBatch(r.Context(), batchID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, b)
}

// List handles GET /api/batches.
func (h *BatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Query.ListBatches(r.Context())
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if batches == nil {
		batches = []store.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// Get handles GET /api/batches/{id}.
func (h *BatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.Query.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Delete handles DELETE /api/batches/{id} — cancels any in-flight processing
// then cascades the delete.
func (h *BatchesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Manager.DeleteBatch(r.Context(), id); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments handles GET /api/batches/{id}/documents.
func (h *BatchesHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	page, pageSize := parsePage(r)

	filter := store.DocumentFilter{
		PIIType:       r.URL.Query().Get("pii_type"),
		MinConfidence: parseFloatParam(r, "min_confidence"),
		HasFindings:   parseBoolParam(r, "has_findings"),
	}

	docs, total, err := h.Query.ListDocuments(r.Context(), batchID, filter, store.Page{Page: page, PageSize: pageSize})
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, ListResponse[store.Document]{Items: docs, Total: total, Page: page, PageSize: pageSize})
}
