// Package store implements the embedded, write-serialized/read-concurrent
// SQLite persistence layer for batches, documents, findings and reports.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a referenced batch/document/report does not exist.
var ErrNotFound = errors.New("not found")

// ErrBusy is returned when a write could not acquire the store's lock within
// the lock-wait timeout.
var ErrBusy = errors.New("store busy")

const lockWaitTimeout = 5 * time.Second

// Store is the embedded relational store. It holds two *sql.DB handles
// against the same database file: a single-connection write handle,
// serialized internally by mu, and a multi-connection read-only handle used
// by every non-mutating query so readers never block on the writer.
type Store struct {
	mu     sync.Mutex
	write  *sql.DB
	read   *sql.DB
	dbPath string
}

// Open creates (if necessary) and opens the database at path, applies
// migrations, and returns a ready Store.
func Open(path string) (*Store, error) {
	write, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open write handle: %w", err)
	}
	write.SetMaxOpenConns(1)
	if err := applyPragmas(write); err != nil {
		write.Close()
		return nil, err
	}

	read, err := sql.Open("sqlite", path+"?mode=ro&_txlock=deferred")
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read handle: %w", err)
	}
	if err := applyPragmas(read); err != nil {
		write.Close()
		read.Close()
		return nil, err
	}

	if err := runMigrations(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{write: write, read: read, dbPath: path}, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Close closes both handles.
func (s *Store) Close() error {
	err1 := s.write.Close()
	err2 := s.read.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// withWriteTx serializes all mutating operations behind mu and wraps them in
// a transaction, translating SQLITE_BUSY-style failures into ErrBusy.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	waitCtx, cancelWait := context.WithTimeout(ctx, lockWaitTimeout)
	defer cancelWait()
	for !s.mu.TryLock() {
		select {
		case <-waitCtx.Done():
			return mapBusy(waitCtx.Err())
		case <-time.After(time.Millisecond):
		}
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, lockWaitTimeout)
	defer cancel()

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return mapBusy(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return mapBusy(err)
	}
	if err := tx.Commit(); err != nil {
		return mapBusy(err)
	}
	return nil
}

func mapBusy(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrBusy
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return ErrBusy
	}
	return err
}

func newID() string {
	var b [16]byte
	id := uuid.New()
	copy(b[:], id[:])
	return fmt.Sprintf("%x", b)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateBatch inserts a new Batch row in status "pending" and returns its ID.
func (s *Store) CreateBatch(ctx context.Context, name, sourcePath string) (string, error) {
	id := newID()
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, name, source_path, created_at, status) VALUES (?, ?, ?, ?, ?)`,
			id, name, sourcePath, nowISO(), BatchPending)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// InsertDocuments inserts all docs for batchID in a single transaction and
// updates the batch's total_docs counter. Returns the new document IDs in
// the same order as docs.
func (s *Store) InsertDocuments(ctx context.Context, batchID string, docs []NewDocument) ([]string, error) {
	ids := make([]string, len(docs))
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO documents (id, batch_id, filename, filepath, status) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, d := range docs {
			id := newID()
			ids[i] = id
			if _, err := stmt.ExecContext(ctx, id, batchID, d.Filename, d.Filepath, DocPending); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE batches SET total_docs = total_docs + ? WHERE id = ?`, len(docs), batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ClaimNextPending atomically selects and returns the next pending-or-error
// document for batchID, or ErrNotFound if none remain. Used for resumption;
// claiming does not itself mutate document status (BatchManager records the
// real outcome via RecordDocumentResult once processing finishes).
func (s *Store) ClaimNextPending(ctx context.Context, batchID string) (docID, filepath string, err error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, filepath FROM documents
		 WHERE batch_id = ? AND status IN ('pending', 'error')
		 ORDER BY filename LIMIT 1`, batchID)
	if err := row.Scan(&docID, &filepath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", err
	}
	return docID, filepath, nil
}

// PendingOrErrorDocuments returns every (doc_id, filepath) for batchID whose
// status is pending or error, ordered by filename — used by Resume to
// re-dispatch a whole batch's worth of outstanding work at once.
func (s *Store) PendingOrErrorDocuments(ctx context.Context, batchID string) ([][2]string, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, filepath FROM documents
		 WHERE batch_id = ? AND status IN ('pending', 'error')
		 ORDER BY filename`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, err
		}
		out = append(out, [2]string{id, fp})
	}
	return out, rows.Err()
}

// RecordDocumentResult is a single transaction: it deletes any prior
// findings for docID, writes the new findings (empty on error), updates the
// document row (including processed_at = now), and adjusts the owning
// batch's processed_docs/docs_with_findings counters. On status=error,
// findings MUST be empty.
func (s *Store) RecordDocumentResult(ctx context.Context, docID string, pageCount int, status string, findings []Finding) error {
	if status == DocError && len(findings) != 0 {
		return fmt.Errorf("record document result: error status must carry no findings")
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var batchID string
		var prevFindingCount int
		var prevStatus string
		if err := tx.QueryRowContext(ctx,
			`SELECT batch_id, finding_count, status FROM documents WHERE id = ?`, docID,
		).Scan(&batchID, &prevFindingCount, &prevStatus); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE document_id = ?`, docID); err != nil {
			return err
		}

		if len(findings) > 0 {
			stmt, err := tx.PrepareContext(ctx,
				`INSERT INTO findings
					(id, document_id, page_number, pii_type, confidence, context_snippet, char_offset, char_length)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, f := range findings {
				if _, err := stmt.ExecContext(ctx, newID(), docID, f.PageNumber, f.PIIType, f.Confidence, f.ContextSnippet, f.CharOffset, f.CharLength); err != nil {
					return err
				}
			}
		}

		now := nowISO()
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET page_count=?, status=?, finding_count=?, processed_at=? WHERE id=?`,
			pageCount, status, len(findings), now, docID,
		); err != nil {
			return err
		}

		wasProcessed := prevStatus == DocCompleted || prevStatus == DocError
		if !wasProcessed {
			if _, err := tx.ExecContext(ctx,
				`UPDATE batches SET processed_docs = processed_docs + 1 WHERE id = ?`, batchID,
			); err != nil {
				return err
			}
		}

		hadFindings := prevFindingCount > 0
		hasFindings := len(findings) > 0
		switch {
		case hasFindings && !hadFindings:
			if _, err := tx.ExecContext(ctx,
				`UPDATE batches SET docs_with_findings = docs_with_findings + 1 WHERE id = ?`, batchID,
			); err != nil {
				return err
			}
		case !hasFindings && hadFindings:
			if _, err := tx.ExecContext(ctx,
				`UPDATE batches SET docs_with_findings = docs_with_findings - 1 WHERE id = ?`, batchID,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetBatchStatus transitions a batch's status field.
func (s *Store) SetBatchStatus(ctx context.Context, batchID, status string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE batches SET status=? WHERE id=?`, status, batchID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetBatch returns the Batch row for id.
func (s *Store) GetBatch(ctx context.Context, id string) (Batch, error) {
	var b Batch
	err := s.read.QueryRowContext(ctx,
		`SELECT id, name, source_path, created_at, status, total_docs, processed_docs, docs_with_findings
		 FROM batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.SourcePath, &b.CreatedAt, &b.Status, &b.TotalDocs, &b.ProcessedDocs, &b.DocsWithFindings)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, ErrNotFound
	}
	return b, err
}

// ListBatches returns all batches, most recently created first.
func (s *Store) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, name, source_path, created_at, status, total_docs, processed_docs, docs_with_findings
		 FROM batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Name, &b.SourcePath, &b.CreatedAt, &b.Status, &b.TotalDocs, &b.ProcessedDocs, &b.DocsWithFindings); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBatch cascade-deletes a batch and all its documents/findings.
func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetDocument returns the Document row for id.
func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	var d Document
	err := s.read.QueryRowContext(ctx,
		`SELECT id, batch_id, filename, filepath, page_count, status, finding_count, processed_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.BatchID, &d.Filename, &d.Filepath, &d.PageCount, &d.Status, &d.FindingCount, &d.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// ListDocuments returns a filtered, paginated view of batchID's documents.
func (s *Store) ListDocuments(ctx context.Context, batchID string, filter DocumentFilter, page Page) ([]Document, int, error) {
	page = page.Normalize()

	where := []string{"batch_id = ?"}
	args := []any{batchID}
	if filter.PIIType != "" {
		where = append(where, "id IN (SELECT document_id FROM findings WHERE pii_type = ?)")
		args = append(args, filter.PIIType)
	}
	if filter.MinConfidence != nil {
		where = append(where, "id IN (SELECT document_id FROM findings WHERE confidence >= ?)")
		args = append(args, *filter.MinConfidence)
	}
	if filter.HasFindings != nil {
		if *filter.HasFindings {
			where = append(where, "finding_count > 0")
		} else {
			where = append(where, "finding_count = 0")
		}
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE `+whereSQL, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PageSize, page.offset())
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, batch_id, filename, filepath, page_count, status, finding_count, processed_at
		 FROM documents WHERE `+whereSQL+` ORDER BY filename LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.BatchID, &d.Filename, &d.Filepath, &d.PageCount, &d.Status, &d.FindingCount, &d.ProcessedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// ListFindings returns a filtered, paginated view of docID's findings.
func (s *Store) ListFindings(ctx context.Context, docID string, filter FindingFilter, page Page) ([]Finding, int, error) {
	page = page.Normalize()

	where := []string{"document_id = ?"}
	args := []any{docID}
	if filter.PIIType != "" {
		where = append(where, "pii_type = ?")
		args = append(args, filter.PIIType)
	}
	if filter.MinConfidence != nil {
		where = append(where, "confidence >= ?")
		args = append(args, *filter.MinConfidence)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE `+whereSQL, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.PageSize, page.offset())
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, document_id, page_number, pii_type, confidence, context_snippet, char_offset, char_length
		 FROM findings WHERE `+whereSQL+` ORDER BY page_number, char_offset LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Finding
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.PageNumber, &f.PIIType, &f.Confidence, &f.ContextSnippet, &f.CharOffset, &f.CharLength); err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

// GlobalStats aggregates counts across all batches.
func (s *Store) GlobalStats(ctx context.Context) (GlobalStats, error) {
	var g GlobalStats
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`).Scan(&g.TotalBatches); err != nil {
		return g, err
	}
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&g.TotalDocuments); err != nil {
		return g, err
	}
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings`).Scan(&g.TotalFindings); err != nil {
		return g, err
	}
	if err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE status = 'error'`).Scan(&g.DocsWithErrors); err != nil {
		return g, err
	}
	return g, nil
}

// PIITypeDistribution returns count and average confidence per pii_type.
func (s *Store) PIITypeDistribution(ctx context.Context) ([]PIITypeCount, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT pii_type, COUNT(*), AVG(confidence) FROM findings GROUP BY pii_type ORDER BY pii_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PIITypeCount
	for rows.Next() {
		var c PIITypeCount
		if err := rows.Scan(&c.PIIType, &c.Count, &c.AvgConfidence); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PIICategorySeverity returns the severity_level of a pii_type from the
// pii_categories table, or 0 if unknown.
func (s *Store) PIICategorySeverity(ctx context.Context, piiType string) (int, error) {
	var sev int
	err := s.read.QueryRowContext(ctx, `SELECT severity_level FROM pii_categories WHERE name = ?`, piiType).Scan(&sev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return sev, err
}

// CreateReport inserts a pending report metadata row.
func (s *Store) CreateReport(ctx context.Context, batchID, format string) (string, error) {
	id := newID()
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO reports (id, batch_id, format, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, batchID, format, ReportPending, nowISO())
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// CompleteReport marks a report ready with its output path, or failed with an error.
func (s *Store) CompleteReport(ctx context.Context, id, status, path, errMsg string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE reports SET status=?, path=?, error=? WHERE id=?`, status, path, errMsg, id)
		return err
	})
}

// GetReport returns a report's metadata row.
func (s *Store) GetReport(ctx context.Context, id string) (Report, error) {
	var r Report
	err := s.read.QueryRowContext(ctx,
		`SELECT id, batch_id, format, status, path, created_at, error FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.BatchID, &r.Format, &r.Status, &r.Path, &r.CreatedAt, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	return r, err
}

// ExpiredReports returns reports created before cutoff, for the retention janitor.
func (s *Store) ExpiredReports(ctx context.Context, cutoff time.Time) ([]Report, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, batch_id, format, status, path, created_at, error FROM reports WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.BatchID, &r.Format, &r.Status, &r.Path, &r.CreatedAt, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReport removes a report's metadata row.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		return err
	})
}
