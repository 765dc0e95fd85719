package workerpool

// Job is one unit of work dispatched to a worker process: detect PII in a
// single document at confidence_threshold.
type Job struct {
	DocID               string  `json:"doc_id"`
	FilePath            string  `json:"file_path"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// controlMsg is sent in place of a Job to tell an idle worker to exit, or to
// ask an in-flight worker to finish its current page and report Cancelled.
type controlMsg struct {
	Control string `json:"control,omitempty"` // "cancel" | "shutdown"
}

// request is the wire shape written to a worker's stdin: either a Job or a
// control message, never both.
type request struct {
	Job     *Job    `json:"job,omitempty"`
	Control *string `json:"control,omitempty"`
}

// Finding mirrors pipeline.Finding for the wire — the workerpool package
// carries its own copy so the child/parent protocol is independent of
// pipeline's in-process types changing shape.
type Finding struct {
	PageNumber     int     `json:"page_number"`
	PIIType        string  `json:"pii_type"`
	Confidence     float64 `json:"confidence"`
	CharOffset     int     `json:"char_offset"`
	CharLength     int     `json:"char_length"`
	ContextSnippet string  `json:"context_snippet"`
}

const (
	OutcomeOk        = "ok"
	OutcomeCancelled = "cancelled"
	OutcomeErr       = "err"
)

// Outcome is the result of one Job, as reported by on_result.
type Outcome struct {
	DocID     string    `json:"doc_id"`
	Status    string    `json:"status"`
	PageCount int       `json:"page_count"`
	Findings  []Finding `json:"findings,omitempty"`
	ErrReason string    `json:"err_reason,omitempty"`
}
