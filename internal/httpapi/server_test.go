package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/redactqc/redactqc/internal/query"
	"github.com/redactqc/redactqc/internal/store"
)

func mustOpenStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// fakeScanner implements scanStarter without touching the filesystem or a
// worker pool, so route wiring and envelope shapes can be tested in
// isolation from batch.Manager.
type fakeScanner struct {
	st          *store.Store
	startErr    error
	deleteErr   error
	lastPath    string
	lastWorkers int
	lastThresh  float64
}

func (f *fakeScanner) StartScan(ctx context.Context, sourcePath string, confidenceThreshold float64, workerCount int) (string, error) {
	f.lastPath = sourcePath
	f.lastThresh = confidenceThreshold
	f.lastWorkers = workerCount
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.st.CreateBatch(ctx, filepath.Base(sourcePath), sourcePath)
}

func (f *fakeScanner) DeleteBatch(ctx context.Context, batchID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.st.DeleteBatch(ctx, batchID)
}

func newTestServer(t *testing.T) (*Server, *store.Store, *fakeScanner) {
	t.Helper()
	st := mustOpenStore(t)
	fs := &fakeScanner{st: st}
	q := query.New(st)
	return New("127.0.0.1:0", st, q, fs), st, fs
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func TestCreateScanAndGetBatch(t *testing.T) {
	srv, _, fake := newTestServer(t)
	dir := t.TempDir()

	rr := doRequest(t, srv.srv.Handler, http.MethodPost, "/api/scan", scanRequest{SourcePath: dir})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var b store.Batch
	if err := json.Unmarshal(rr.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if b.SourcePath != dir {
		t.Fatalf("source_path = %q, want %q", b.SourcePath, dir)
	}
	if fake.lastPath != dir {
		t.Fatalf("StartScan called with %q, want %q", fake.lastPath, dir)
	}

	rr = doRequest(t, srv.srv.Handler, http.MethodGet, "/api/batches/"+b.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateScanMissingSourcePath(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := doRequest(t, srv.srv.Handler, http.MethodPost, "/api/scan", scanRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "INVALID_PATH" {
		t.Fatalf("error code = %q, want INVALID_PATH", body.Error)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := doRequest(t, srv.srv.Handler, http.MethodGet, "/api/batches/nonexistent", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestListBatchesEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := doRequest(t, srv.srv.Handler, http.MethodGet, "/api/batches", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var out []store.Batch
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out == nil {
		t.Fatal("expected [] not null for empty batch list")
	}
}

func TestDeleteBatch(t *testing.T) {
	srv, st, _ := newTestServer(t)
	batchID, err := st.CreateBatch(context.Background(), "b", "/tmp/b")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	rr := doRequest(t, srv.srv.Handler, http.MethodDelete, "/api/batches/"+batchID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	if _, err := st.GetBatch(context.Background(), batchID); err == nil {
		t.Fatal("expected batch to be gone")
	}
}

func TestListDocumentsPagination(t *testing.T) {
	srv, st, _ := newTestServer(t)
	batchID, err := st.CreateBatch(context.Background(), "b", "/tmp/b")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	_, err = st.InsertDocuments(context.Background(), batchID, []store.NewDocument{
		{Filename: "a.pdf", Filepath: "/tmp/b/a.pdf"},
		{Filename: "c.pdf", Filepath: "/tmp/b/c.pdf"},
	})
	if err != nil {
		t.Fatalf("InsertDocuments: %v", err)
	}

	rr := doRequest(t, srv.srv.Handler, http.MethodGet, "/api/batches/"+batchID+"/documents?page=1&page_size=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out ListResponse[store.Document]
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 2 || len(out.Items) != 1 || out.Page != 1 || out.PageSize != 1 {
		t.Fatalf("unexpected page: %+v", out)
	}
}

func TestGenerateReportRejectsBadFormat(t *testing.T) {
	srv, st, _ := newTestServer(t)
	batchID, err := st.CreateBatch(context.Background(), "b", "/tmp/b")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	rr := doRequest(t, srv.srv.Handler, http.MethodPost, "/api/reports/generate", generateReportRequest{BatchID: batchID, Format: "docx"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestGenerateReportThenDownloadNotReady(t *testing.T) {
	srv, st, _ := newTestServer(t)
	batchID, err := st.CreateBatch(context.Background(), "b", "/tmp/b")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	rr := doRequest(t, srv.srv.Handler, http.MethodPost, "/api/reports/generate", generateReportRequest{BatchID: batchID, Format: store.ReportFormatCSV})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != store.ReportPending {
		t.Fatalf("status = %q, want pending", out.Status)
	}

	rr = doRequest(t, srv.srv.Handler, http.MethodGet, "/api/reports/"+out.ID+"/download", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409 for a not-yet-ready report", rr.Code)
	}
}

func TestStatsAndPIITypesEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := doRequest(t, srv.srv.Handler, http.MethodGet, "/api/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = doRequest(t, srv.srv.Handler, http.MethodGet, "/api/pii-types", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var dist []store.PIITypeCount
	if err := json.Unmarshal(rr.Body.Bytes(), &dist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dist == nil {
		t.Fatal("expected [] not null")
	}
}
