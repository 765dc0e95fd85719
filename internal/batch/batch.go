// Package batch owns batch lifecycle: starting a scan over a folder of
// PDFs, dispatching documents to the worker pool, persisting each result,
// and supporting resume/cancel/delete. It generalizes the teacher's
// single-active-scan manager to a registry of independently running
// batches, since spec.md allows concurrent batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/redactqc/redactqc/internal/store"
	"github.com/redactqc/redactqc/internal/workerpool"
)

// ErrInvalidPath reports a source_path that is not an existing directory.
var ErrInvalidPath = errors.New("batch: source path is not a directory")

// ErrNotFound reports an unknown or already-finished batch for Cancel.
var ErrNotFound = errors.New("batch: no such active batch")

// Dispatcher is the subset of *workerpool.Pool the Manager needs.
type Dispatcher interface {
	Submit(ctx context.Context, jobs []workerpool.Job, workerCount int, onResult func(workerpool.Outcome)) error
}

// active tracks one batch's in-flight processing run. done is closed once
// the run's errgroup goroutine returns, so CancelBatch can block until the
// run has actually drained instead of merely signalling it to stop.
type active struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the lifecycle of every batch, keyed by batch ID.
type Manager struct {
	store               *store.Store
	pool                Dispatcher
	confidenceThreshold float64
	workerCount         int

	mu      sync.Mutex
	running map[string]*active
	eg      *errgroup.Group
}

type Option func(*Manager)

func WithDefaultConfidenceThreshold(t float64) Option {
	return func(m *Manager) { m.confidenceThreshold = t }
}
func WithDefaultWorkerCount(n int) Option { return func(m *Manager) { m.workerCount = n } }

func New(st *store.Store, pool Dispatcher, opts ...Option) *Manager {
	m := &Manager{
		store:               st,
		pool:                pool,
		confidenceThreshold: 0.5,
		workerCount:         workerpool.ClampWorkerCount(0),
		running:             make(map[string]*active),
		eg:                  &errgroup.Group{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartScan canonicalizes source_path, enumerates *.pdf files recursively
// (case-insensitive deduped by canonical path), creates the batch, inserts
// its documents in a second store transaction (the two writes are not
// atomic together), and dispatches processing asynchronously.
// It returns the new batch_id immediately; an empty source folder still
// creates a batch, but it is immediately marked completed.
func (m *Manager) StartScan(ctx context.Context, sourcePath string, confidenceThreshold float64, workerCount int) (string, error) {
	canonical, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, sourcePath)
	}
	info, err := os.Stat(canonical)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, sourcePath)
	}

	docs, err := enumeratePDFs(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, sourcePath, err)
	}

	name := filepath.Base(canonical)
	batchID, err := m.store.CreateBatch(ctx, name, canonical)
	if err != nil {
		return "", err
	}

	if len(docs) == 0 {
		if err := m.store.SetBatchStatus(ctx, batchID, store.BatchCompleted); err != nil {
			return "", err
		}
		return batchID, nil
	}

	docIDs, err := m.store.InsertDocuments(ctx, batchID, docs)
	if err != nil {
		return "", err
	}

	threshold := confidenceThreshold
	if threshold <= 0 {
		threshold = m.confidenceThreshold
	}
	workers := workerCount
	if workers <= 0 {
		workers = m.workerCount
	}

	jobs := make([]workerpool.Job, len(docIDs))
	for i, id := range docIDs {
		jobs[i] = workerpool.Job{DocID: id, FilePath: docs[i].Filepath, ConfidenceThreshold: threshold}
	}

	m.dispatch(ctx, batchID, jobs, workers)
	return batchID, nil
}

// dispatch runs the processing loop for batchID on a background goroutine
// supervised by the manager's errgroup, so Shutdown can wait for every
// active batch to drain.
func (m *Manager) dispatch(parentCtx context.Context, batchID string, jobs []workerpool.Job, workerCount int) {
	ctx, cancel := context.WithCancel(parentCtx)
	done := make(chan struct{})

	m.mu.Lock()
	m.running[batchID] = &active{cancel: cancel, done: done}
	m.mu.Unlock()

	m.eg.Go(func() error {
		defer func() {
			m.mu.Lock()
			delete(m.running, batchID)
			m.mu.Unlock()
			cancel()
			close(done)
		}()
		return m.runBatch(ctx, batchID, jobs, workerCount)
	})
}

// runBatch is the processing loop: set status=processing, submit jobs,
// persist each outcome in its own Store transaction, then mark the batch
// terminal.
func (m *Manager) runBatch(ctx context.Context, batchID string, jobs []workerpool.Job, workerCount int) error {
	if err := m.store.SetBatchStatus(ctx, batchID, store.BatchProcessing); err != nil {
		return err
	}

	err := m.pool.Submit(ctx, jobs, workerCount, func(o workerpool.Outcome) {
		if recErr := m.recordOutcome(ctx, o); recErr != nil {
			slog.Error("record document result failed", "batch_id", batchID, "doc_id", o.DocID, "err", recErr)
		}
	})
	if err != nil {
		slog.Error("worker pool submit failed", "batch_id", batchID, "err", err)
	}

	return m.store.SetBatchStatus(context.WithoutCancel(ctx), batchID, store.BatchCompleted)
}

func (m *Manager) recordOutcome(ctx context.Context, o workerpool.Outcome) error {
	switch o.Status {
	case workerpool.OutcomeOk:
		findings := make([]store.Finding, 0, len(o.Findings))
		for _, f := range o.Findings {
			findings = append(findings, store.Finding{
				PageNumber:     f.PageNumber,
				PIIType:        f.PIIType,
				Confidence:     f.Confidence,
				CharOffset:     f.CharOffset,
				CharLength:     f.CharLength,
				ContextSnippet: f.ContextSnippet,
			})
		}
		return m.store.RecordDocumentResult(context.WithoutCancel(ctx), o.DocID, o.PageCount, store.DocCompleted, findings)
	case workerpool.OutcomeCancelled:
		return nil // document stays pending, per spec
	default:
		return m.store.RecordDocumentResult(context.WithoutCancel(ctx), o.DocID, 0, store.DocError, nil)
	}
}

// Resume re-dispatches documents left pending or errored from a prior
// process lifetime (e.g. after a crash mid-batch).
func (m *Manager) Resume(ctx context.Context, batchID string) error {
	m.mu.Lock()
	_, already := m.running[batchID]
	m.mu.Unlock()
	if already {
		return nil
	}

	pending, err := m.store.PendingOrErrorDocuments(ctx, batchID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return m.store.SetBatchStatus(ctx, batchID, store.BatchCompleted)
	}

	jobs := make([]workerpool.Job, len(pending))
	for i, pair := range pending {
		jobs[i] = workerpool.Job{DocID: pair[0], FilePath: pair[1], ConfidenceThreshold: m.confidenceThreshold}
	}
	m.dispatch(ctx, batchID, jobs, m.workerCount)
	return nil
}

// CancelBatch signals the running batch's worker pool and waits for the
// processing loop to drain before returning.
func (m *Manager) CancelBatch(batchID string) error {
	m.mu.Lock()
	a, ok := m.running[batchID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	a.cancel()
	<-a.done
	return nil
}

// DeleteBatch cancels any in-flight processing for batchID, then deletes
// the batch and its documents/findings (cascade).
func (m *Manager) DeleteBatch(ctx context.Context, batchID string) error {
	_ = m.CancelBatch(batchID) // no-op if nothing is running
	return m.store.DeleteBatch(ctx, batchID)
}

// Shutdown waits for every currently dispatched batch to finish or be
// cancelled via ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- m.eg.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enumeratePDFs walks root recursively and returns every *.pdf file
// (case-insensitive extension match), deduplicated by canonical path and
// sorted by filepath for deterministic ordering.
func enumeratePDFs(root string) ([]store.NewDocument, error) {
	seen := make(map[string]bool)
	var docs []store.NewDocument

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		canonical, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		key := strings.ToLower(canonical)
		if seen[key] {
			return nil
		}
		seen[key] = true
		docs = append(docs, store.NewDocument{Filename: filepath.Base(path), Filepath: canonical})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Filepath < docs[j].Filepath })
	return docs, nil
}
