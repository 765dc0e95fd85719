package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redactqc/redactqc/internal/store"
	"github.com/redactqc/redactqc/internal/workerpool"
)

func mustOpenStore(tb testing.TB) *store.Store {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		tb.Fatalf("open store: %v", err)
	}
	tb.Cleanup(func() { st.Close() })
	return st
}

func writeFile(tb testing.TB, dir, name string) {
	tb.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4\n"), 0o644); err != nil {
		tb.Fatalf("write file: %v", err)
	}
}

// fakeDispatcher synchronously resolves every job to the outcome that
// outcomeFor returns for it.
type fakeDispatcher struct {
	outcomeFor func(job workerpool.Job) workerpool.Outcome
}

func (f *fakeDispatcher) Submit(ctx context.Context, jobs []workerpool.Job, workerCount int, onResult func(workerpool.Outcome)) error {
	for _, j := range jobs {
		onResult(f.outcomeFor(j))
	}
	return nil
}

func waitForBatchStatus(tb testing.TB, st *store.Store, batchID, want string) store.Batch {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b, err := st.GetBatch(context.Background(), batchID)
		if err != nil {
			tb.Fatalf("get batch: %v", err)
		}
		if b.Status == want {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("batch %s did not reach status %s in time", batchID, want)
	return store.Batch{}
}

func TestStartScanEmptyFolderCompletesImmediately(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()

	m := New(st, &fakeDispatcher{outcomeFor: func(j workerpool.Job) workerpool.Outcome {
		return workerpool.Outcome{DocID: j.DocID, Status: workerpool.OutcomeOk}
	}})

	batchID, err := m.StartScan(context.Background(), dir, 0.5, 1)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	b, err := st.GetBatch(context.Background(), batchID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.Status != store.BatchCompleted {
		t.Fatalf("status = %q, want completed", b.Status)
	}
}

func TestStartScanInvalidPath(t *testing.T) {
	st := mustOpenStore(t)
	m := New(st, &fakeDispatcher{})

	_, err := m.StartScan(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), 0.5, 1)
	if err == nil {
		t.Fatal("expected error for nonexistent source path")
	}
}

func TestStartScanProcessesDocumentsAndRecordsFindings(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf")
	writeFile(t, dir, "b.PDF")

	m := New(st, &fakeDispatcher{outcomeFor: func(j workerpool.Job) workerpool.Outcome {
		if filepath.Base(j.FilePath) == "a.pdf" {
			return workerpool.Outcome{
				DocID: j.DocID, Status: workerpool.OutcomeOk, PageCount: 1,
				Findings: []workerpool.Finding{{PageNumber: 1, PIIType: "EMAIL_ADDRESS", Confidence: 0.9, CharOffset: 0, CharLength: 4}},
			}
		}
		return workerpool.Outcome{DocID: j.DocID, Status: workerpool.OutcomeErr, ErrReason: "boom"}
	}})

	batchID, err := m.StartScan(context.Background(), dir, 0.5, 1)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}

	b := waitForBatchStatus(t, st, batchID, store.BatchCompleted)
	if b.TotalDocs != 2 {
		t.Fatalf("total_docs = %d, want 2", b.TotalDocs)
	}
	if b.ProcessedDocs != 2 {
		t.Fatalf("processed_docs = %d, want 2 (both completed and error count as processed)", b.ProcessedDocs)
	}
	if b.DocsWithFindings != 1 {
		t.Fatalf("docs_with_findings = %d, want 1", b.DocsWithFindings)
	}

	docs, _, err := st.ListDocuments(context.Background(), batchID, store.DocumentFilter{}, store.Page{Page: 1, PageSize: 50})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	var gotOk, gotErr bool
	for _, d := range docs {
		switch d.Status {
		case store.DocCompleted:
			gotOk = true
		case store.DocError:
			gotErr = true
		}
	}
	if !gotOk || !gotErr {
		t.Fatalf("expected one completed and one error document, got %+v", docs)
	}
}

// blockingDispatcher blocks inside Submit until release is closed, ignoring
// ctx cancellation, so tests can pin down that CancelBatch/DeleteBatch
// actually wait for the run to drain rather than returning as soon as the
// context is cancelled.
type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *blockingDispatcher) Submit(ctx context.Context, jobs []workerpool.Job, workerCount int, onResult func(workerpool.Outcome)) error {
	close(f.started)
	<-f.release
	for _, j := range jobs {
		onResult(workerpool.Outcome{DocID: j.DocID, Status: workerpool.OutcomeOk})
	}
	return nil
}

func TestCancelBatchWaitsForRunToDrain(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf")

	disp := &blockingDispatcher{started: make(chan struct{}), release: make(chan struct{})}
	m := New(st, disp)

	batchID, err := m.StartScan(context.Background(), dir, 0.5, 1)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	<-disp.started

	cancelDone := make(chan error, 1)
	go func() { cancelDone <- m.CancelBatch(batchID) }()

	select {
	case <-cancelDone:
		t.Fatal("CancelBatch returned before the run drained")
	case <-time.After(50 * time.Millisecond):
	}

	close(disp.release)

	select {
	case err := <-cancelDone:
		if err != nil {
			t.Fatalf("CancelBatch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CancelBatch did not return after the run drained")
	}

	waitForBatchStatus(t, st, batchID, store.BatchCompleted)
}

func TestDeleteBatchWaitsForRunToDrainBeforeCascading(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf")

	disp := &blockingDispatcher{started: make(chan struct{}), release: make(chan struct{})}
	m := New(st, disp)

	batchID, err := m.StartScan(context.Background(), dir, 0.5, 1)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	<-disp.started

	deleteDone := make(chan error, 1)
	go func() { deleteDone <- m.DeleteBatch(context.Background(), batchID) }()

	select {
	case <-deleteDone:
		t.Fatal("DeleteBatch returned before the run drained")
	case <-time.After(50 * time.Millisecond):
	}

	close(disp.release)

	select {
	case err := <-deleteDone:
		if err != nil {
			t.Fatalf("DeleteBatch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("DeleteBatch did not return after the run drained")
	}

	if _, err := st.GetBatch(context.Background(), batchID); err == nil {
		t.Fatal("expected batch to be gone after delete")
	}
}

func TestCancelBatchNotFound(t *testing.T) {
	st := mustOpenStore(t)
	m := New(st, &fakeDispatcher{})

	if err := m.CancelBatch("nonexistent"); err == nil {
		t.Fatal("expected ErrNotFound for an unknown batch")
	}
}

func TestDeleteBatchRemovesFinishedBatch(t *testing.T) {
	st := mustOpenStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf")

	m := New(st, &fakeDispatcher{outcomeFor: func(j workerpool.Job) workerpool.Outcome {
		return workerpool.Outcome{DocID: j.DocID, Status: workerpool.OutcomeOk}
	}})

	batchID, err := m.StartScan(context.Background(), dir, 0.5, 1)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitForBatchStatus(t, st, batchID, store.BatchCompleted)

	if err := m.DeleteBatch(context.Background(), batchID); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if _, err := st.GetBatch(context.Background(), batchID); err == nil {
		t.Fatal("expected batch to be gone after delete")
	}
}
