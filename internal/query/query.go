// Package query exposes read-only projections over the store for the HTTP
// API and report generator, so neither has to depend on write-path
// machinery (BatchManager, WorkerPool).
package query

import (
	"context"

	"github.com/redactqc/redactqc/internal/store"
)

// API is a thin read-only facade over *store.Store.
type API struct {
	store *store.Store
}

func New(st *store.Store) *API { return &API{store: st} }

func (a *API) GlobalStats(ctx context.Context) (store.GlobalStats, error) {
	return a.store.GlobalStats(ctx)
}

func (a *API) PIITypeDistribution(ctx context.Context) ([]store.PIITypeCount, error) {
	return a.store.PIITypeDistribution(ctx)
}

func (a *API) ListBatches(ctx context.Context) ([]store.Batch, error) {
	return a.store.ListBatches(ctx)
}

func (a *API) GetBatch(ctx context.Context, id string) (store.Batch, error) {
	return a.store.GetBatch(ctx, id)
}

func (a *API) ListDocuments(ctx context.Context, batchID string, filter store.DocumentFilter, page store.Page) ([]store.Document, int, error) {
	return a.store.ListDocuments(ctx, batchID, filter, page)
}

func (a *API) GetDocument(ctx context.Context, id string) (store.Document, error) {
	return a.store.GetDocument(ctx, id)
}

func (a *API) ListFindings(ctx context.Context, docID string, filter store.FindingFilter, page store.Page) ([]store.Finding, int, error) {
	return a.store.ListFindings(ctx, docID, filter, page)
}
