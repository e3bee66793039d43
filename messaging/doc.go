// Package messaging models outbound send jobs and their outcomes.
//
// # Overview
//
// A [Job] is the ephemeral OutboundSendJob passed through the retry wrapper:
// a target, a payload and an attempt counter. Jobs are never persisted; once a
// send settles the job's outcome is folded into a [Receipt] or a failed
// [TargetResult] and the job is dropped.
//
// Bulk sends are modelled as a [Batch]: a producer that yields one job at a
// time, in input order, through [Batch.Jobs]. The consumer (the channel
// facade) owns pacing, so the batch itself never sleeps:
//
//	batch := messaging.NewBatch(targets, payload, opts)
//	report := messaging.NewBulkReport(batch)
//	for _, job := range batch.Jobs() {
//	    receipt, err := send(job)
//	    report.Record(job, receipt, err)
//	}
//	report.Finish()
//
// # Job States
//
// Jobs move through [JobPending] → [JobSending] → [JobSent] or [JobFailed].
// Jobs a batch never attempts (abort-on-error mode, cancellation) end in
// [JobSkipped], so every target is reported exactly once.
package messaging
