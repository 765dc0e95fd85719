package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redactqc/redactqc/internal/query"
	"github.com/redactqc/redactqc/internal/store"
)

// DocumentsHandler handles single-document and finding-listing endpoints.
type DocumentsHandler struct {
	Query *query.API
}

// Get handles GET /api/documents/{id}.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.Query.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListFindings handles GET /api/documents/{id}/findings.
func (h *DocumentsHandler) ListFindings(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	page, pageSize := parsePage(r)

	filter := store.FindingFilter{
		PIIType:       r.URL.Query().Get("pii_type"),
		MinConfidence: parseFloatParam(r, "min_confidence"),
	}

	findings, total, err := h.Query.ListFindings(r.Context(), docID, filter, store.Page{Page: page, PageSize: pageSize})
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if findings == nil {
		findings = []store.Finding{}
	}
	writeJSON(w, http.StatusOK, ListResponse[store.Finding]{Items: findings, Total: total, Page: page, PageSize: pageSize})
}
