package workerpool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/redactqc/redactqc/internal/pipeline"
)

// pipelineRunner is the narrow surface WorkerLoop needs from a
// *pipeline.Pipeline, so tests can substitute a fake.
type pipelineRunner interface {
	ProcessDocument(ctx context.Context, filepath string, confidenceThreshold float64) pipeline.Result
}

// WorkerLoop is the body of the "worker" subcommand: it reads Jobs (and
// interleaved cancel/shutdown control messages) from in, processes each job
// through p, and writes an Outcome per job to out. A "cancel" control
// message takes effect immediately even if a job is mid-flight, by
// cancelling that job's context — the running pipeline observes it on its
// next per-page check and returns Cancelled. A panic while processing one
// document is contained and reported as Err, never crashing the worker.
func WorkerLoop(ctx context.Context, in io.Reader, out io.Writer, p pipelineRunner) error {
	jobCh := make(chan Job)

	var mu sync.Mutex
	var currentCancel context.CancelFunc

	decodeErr := make(chan error, 1)
	go func() {
		defer close(jobCh)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			var req request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			if req.Control != nil {
				switch *req.Control {
				case "cancel":
					mu.Lock()
					if currentCancel != nil {
						currentCancel()
					}
					mu.Unlock()
				case "shutdown":
					return
				}
				continue
			}
			if req.Job != nil {
				select {
				case jobCh <- *req.Job:
				case <-ctx.Done():
					return
				}
			}
		}
		decodeErr <- scanner.Err()
	}()

	enc := json.NewEncoder(out)

	for job := range jobCh {
		jobCtx, cancel := context.WithCancel(ctx)
		mu.Lock()
		currentCancel = cancel
		mu.Unlock()

		outcome := runJob(jobCtx, p, job)

		mu.Lock()
		currentCancel = nil
		mu.Unlock()
		cancel()

		if err := enc.Encode(outcome); err != nil {
			return err
		}
	}

	select {
	case err := <-decodeErr:
		return err
	default:
		return nil
	}
}

// runJob processes one job, converting a panic in the pipeline into an Err
// outcome rather than taking down the worker process.
func runJob(ctx context.Context, p pipelineRunner, job Job) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{DocID: job.DocID, Status: OutcomeErr, ErrReason: "internal error"}
		}
	}()

	res := p.ProcessDocument(ctx, job.FilePath, job.ConfidenceThreshold)
	switch res.Status {
	case pipeline.StatusOk:
		findings := make([]Finding, 0, len(res.Findings))
		for _, f := range res.Findings {
			findings = append(findings, Finding{
				PageNumber:     f.PageNumber,
				PIIType:        f.PIIType,
				Confidence:     f.Confidence,
				CharOffset:     f.CharOffset,
				CharLength:     f.CharLength,
				ContextSnippet: f.ContextSnippet,
			})
		}
		return Outcome{DocID: job.DocID, Status: OutcomeOk, PageCount: res.PageCount, Findings: findings}
	case pipeline.StatusCancelled:
		return Outcome{DocID: job.DocID, Status: OutcomeCancelled}
	default:
		reason := "internal error"
		if errors.Is(res.Err, pipeline.ErrInternal) {
			reason = "internal error"
		} else {
			reason = "extract failed"
		}
		return Outcome{DocID: job.DocID, Status: OutcomeErr, ErrReason: reason}
	}
}
