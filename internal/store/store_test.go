package store

import (
	"context"
	"path/filepath"
	"testing"
)

func mustOpenStore(tb testing.TB) *Store {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		tb.Fatalf("open test store: %v", err)
	}
	tb.Cleanup(func() { s.Close() })
	return s
}

func TestCreateBatchAndInsertDocuments(t *testing.T) {
	ctx := context.Background()
	s := mustOpenStore(t)

	batchID, err := s.CreateBatch(ctx, "sample", "/tmp/sample")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	ids, err := s.InsertDocuments(ctx, batchID, []NewDocument{
		{Filename: "a.pdf", Filepath: "/tmp/sample/a.pdf"},
		{Filename: "b.pdf", Filepath: "/tmp/sample/b.pdf"},
	})
	if err != nil {
		t.Fatalf("InsertDocuments: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}

	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.TotalDocs != 2 {
		t.Errorf("total_docs = %d, want 2", b.TotalDocs)
	}
	if b.Status != BatchPending {
		t.Errorf("status = %q, want pending", b.Status)
	}
}

func TestRecordDocumentResultUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	s := mustOpenStore(t)

	batchID, _ := s.CreateBatch(ctx, "sample", "/tmp/sample")
	ids, _ := s.InsertDocuments(ctx, batchID, []NewDocument{
		{Filename: "a.pdf", Filepath: "/tmp/sample/a.pdf"},
	})
	docID := ids[0]

	findings := []Finding{
		{PageNumber: 1, PIIType: "US_SSN", Confidence: 0.9, ContextSnippet: "SSN 123-45-6789", CharOffset: 4, CharLength: 11},
	}
	if err := s.RecordDocumentResult(ctx, docID, 1, DocCompleted, findings); err != nil {
		t.Fatalf("RecordDocumentResult: %v", err)
	}

	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.ProcessedDocs != 1 {
		t.Errorf("processed_docs = %d, want 1", b.ProcessedDocs)
	}
	if b.DocsWithFindings != 1 {
		t.Errorf("docs_with_findings = %d, want 1", b.DocsWithFindings)
	}

	d, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if d.FindingCount != 1 || d.ProcessedAt == nil {
		t.Errorf("document not updated correctly: %+v", d)
	}

	got, total, err := s.ListFindings(ctx, docID, FindingFilter{}, Page{})
	if err != nil {
		t.Fatalf("ListFindings: %v", err)
	}
	if total != 1 || len(got) != 1 {
		t.Fatalf("expected 1 finding, got %d (total=%d)", len(got), total)
	}

	// Re-processing with no findings must clear docs_with_findings, leave
	// processed_docs at 1, and delete the prior finding set (findings are
	// write-once but replaceable).
	if err := s.RecordDocumentResult(ctx, docID, 1, DocCompleted, nil); err != nil {
		t.Fatalf("RecordDocumentResult (re-process): %v", err)
	}
	b, _ = s.GetBatch(ctx, batchID)
	if b.ProcessedDocs != 1 {
		t.Errorf("processed_docs should stay 1 on re-process, got %d", b.ProcessedDocs)
	}
	if b.DocsWithFindings != 0 {
		t.Errorf("docs_with_findings = %d, want 0 after clearing findings", b.DocsWithFindings)
	}
}

func TestDeleteBatchCascades(t *testing.T) {
	ctx := context.Background()
	s := mustOpenStore(t)

	batchID, _ := s.CreateBatch(ctx, "sample", "/tmp/sample")
	ids, _ := s.InsertDocuments(ctx, batchID, []NewDocument{
		{Filename: "a.pdf", Filepath: "/tmp/sample/a.pdf"},
	})
	_ = s.RecordDocumentResult(ctx, ids[0], 1, DocCompleted, []Finding{
		{PageNumber: 1, PIIType: "US_SSN", Confidence: 0.9, CharOffset: 0, CharLength: 5},
	})

	if err := s.DeleteBatch(ctx, batchID); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}

	if _, err := s.GetBatch(ctx, batchID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.GetDocument(ctx, ids[0]); err != ErrNotFound {
		t.Errorf("expected document to be cascade-deleted, got %v", err)
	}
}

func TestListDocumentsFilters(t *testing.T) {
	ctx := context.Background()
	s := mustOpenStore(t)

	batchID, _ := s.CreateBatch(ctx, "sample", "/tmp/sample")
	ids, _ := s.InsertDocuments(ctx, batchID, []NewDocument{
		{Filename: "a.pdf", Filepath: "/tmp/a.pdf"},
		{Filename: "b.pdf", Filepath: "/tmp/b.pdf"},
	})
	_ = s.RecordDocumentResult(ctx, ids[0], 1, DocCompleted, []Finding{
		{PageNumber: 1, PIIType: "US_SSN", Confidence: 0.9, CharOffset: 0, CharLength: 5},
	})
	_ = s.RecordDocumentResult(ctx, ids[1], 1, DocCompleted, nil)

	hasFindings := true
	docs, total, err := s.ListDocuments(ctx, batchID, DocumentFilter{HasFindings: &hasFindings}, Page{})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if total != 1 || len(docs) != 1 || docs[0].ID != ids[0] {
		t.Fatalf("has_findings filter returned unexpected set: %+v (total=%d)", docs, total)
	}
}
