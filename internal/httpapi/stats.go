package httpapi

import (
	"net/http"

	"github.com/redactqc/redactqc/internal/query"
	"github.com/redactqc/redactqc/internal/store"
)

// StatsHandler handles the global-aggregate endpoints.
type StatsHandler struct {
	Query *query.API
}

// Get handles GET /api/stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Query.GlobalStats(r.Context())
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PIITypes handles GET /api/pii-types.
func (h *StatsHandler) PIITypes(w http.ResponseWriter, r *http.Request) {
	dist, err := h.Query.PIITypeDistribution(r.Context())
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if dist == nil {
		dist = []store.PIITypeCount{}
	}
	writeJSON(w, http.StatusOK, dist)
}
