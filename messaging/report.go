package messaging

import "time"

// TargetResult is the per-target outcome of a bulk send.
type TargetResult struct {
	Index   int      `json:"index"`
	Target  string   `json:"target"`
	State   JobState `json:"state"`
	Receipt *Receipt `json:"receipt,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Succeeded reports whether the target was sent.
func (r TargetResult) Succeeded() bool {
	return r.State == JobSent
}

// BulkReport aggregates the outcome of a batch. Every job of the batch appears
// exactly once in Results after Finish.
type BulkReport struct {
	BatchID      string         `json:"batchId"`
	Total        int            `json:"total"`
	SuccessCount int            `json:"successCount"`
	FailureCount int            `json:"failureCount"`
	SkippedCount int            `json:"skippedCount"`
	Results      []TargetResult `json:"results"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`

	batch *Batch
}

// NewBulkReport starts a report for batch.
func NewBulkReport(batch *Batch) *BulkReport {
	return &BulkReport{
		BatchID:   batch.ID,
		Total:     batch.Len(),
		Results:   make([]TargetResult, 0, batch.Len()),
		StartedAt: time.Now(),
		batch:     batch,
	}
}

// Record folds the outcome of one attempted job into the report.
func (r *BulkReport) Record(job *Job, receipt *Receipt, err error) {
	result := TargetResult{
		Index:  job.Index,
		Target: job.Target,
	}
	if err != nil {
		job.SetState(JobFailed)
		result.State = JobFailed
		result.Error = err.Error()
		r.FailureCount++
	} else {
		job.SetState(JobSent)
		result.State = JobSent
		result.Receipt = receipt
		r.SuccessCount++
	}
	r.Results = append(r.Results, result)
}

// Finish marks every unattempted job as skipped and stamps the end time.
func (r *BulkReport) Finish() {
	for _, job := range r.batch.Pending() {
		job.SetState(JobSkipped)
		r.Results = append(r.Results, TargetResult{
			Index:  job.Index,
			Target: job.Target,
			State:  JobSkipped,
		})
		r.SkippedCount++
	}
	r.FinishedAt = time.Now()
}

// Failed returns the targets that failed, in input order, so callers can
// re-drive only that subset.
func (r *BulkReport) Failed() []string {
	var failed []string
	for _, res := range r.Results {
		if res.State == JobFailed {
			failed = append(failed, res.Target)
		}
	}
	return failed
}
