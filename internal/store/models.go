package store

// Batch is a scan job over one source folder.
type Batch struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	SourcePath       string `json:"source_path"`
	CreatedAt        string `json:"created_at"`
	Status           string `json:"status"`
	TotalDocs        int    `json:"total_docs"`
	ProcessedDocs    int    `json:"processed_docs"`
	DocsWithFindings int    `json:"docs_with_findings"`
}

const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchError      = "error"
)

// Document is one PDF file within a batch.
type Document struct {
	ID           string  `json:"id"`
	BatchID      string  `json:"batch_id"`
	Filename     string  `json:"filename"`
	Filepath     string  `json:"filepath"`
	PageCount    int     `json:"page_count"`
	Status       string  `json:"status"`
	FindingCount int     `json:"finding_count"`
	ProcessedAt  *string `json:"processed_at"`
}

const (
	DocPending   = "pending"
	DocCompleted = "completed"
	DocError     = "error"
)

// Finding is one detected PII instance on one page of one document.
type Finding struct {
	ID             string  `json:"id"`
	DocumentID     string  `json:"document_id"`
	PageNumber     int     `json:"page_number"`
	PIIType        string  `json:"pii_type"`
	Confidence     float64 `json:"confidence"`
	ContextSnippet string  `json:"context_snippet"`
	CharOffset     int     `json:"char_offset"`
	CharLength     int     `json:"char_length"`
}

// NewDocument is the input to InsertDocuments: a filename/filepath pair
// discovered during batch inventory.
type NewDocument struct {
	Filename string
	Filepath string
}

// PIICategory is the static reference table keyed by pii_type name.
type PIICategory struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	SeverityLevel int    `json:"severity_level"`
}

// Report is a generated report's metadata row (§6 reports contract).
type Report struct {
	ID        string `json:"id"`
	BatchID   string `json:"batch_id"`
	Format    string `json:"format"`
	Status    string `json:"status"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
	Error     string `json:"error,omitempty"`
}

const (
	ReportPending = "pending"
	ReportReady   = "ready"
	ReportFailed  = "failed"
)

const (
	ReportFormatPDF = "pdf"
	ReportFormatCSV = "csv"
)

// DocumentFilter narrows ListDocuments results.
type DocumentFilter struct {
	PIIType       string
	MinConfidence *float64
	HasFindings   *bool
}

// FindingFilter narrows ListFindings results.
type FindingFilter struct {
	PIIType       string
	MinConfidence *float64
}

// Page bounds a paginated query. Page is 1-based.
type Page struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Normalize clamps Page/PageSize to their spec-mandated bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.PageSize
}

// GlobalStats aggregates counts across all batches.
type GlobalStats struct {
	TotalBatches   int `json:"total_batches"`
	TotalDocuments int `json:"total_documents"`
	TotalFindings  int `json:"total_findings"`
	DocsWithErrors int `json:"docs_with_errors"`
}

// PIITypeCount is one row of the pii-type distribution aggregate.
type PIITypeCount struct {
	PIIType       string  `json:"pii_type"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}
