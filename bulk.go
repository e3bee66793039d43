package courier

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/messaging"
)

// SendBulk sends payload to every target, one at a time and in input order.
//
// Options left nil in opts take their value from Options.Bulk. Consecutive
// transport sends are separated by the pacing delay. Before each send the
// connection state is re-checked and, if the channel is not ready, the loop
// pauses for the not-ready pause instead of failing fast. A target that fails
// is recorded and the loop moves on, unless ContinueOnError is false, in which
// case the remaining targets are reported as skipped. Bulk calls on one
// channel never overlap.
//
// The returned report lists every target exactly once. An error is returned
// only for an empty target list, an invalid payload, or ctx ending mid-batch;
// in the last case the report is still returned.
func (c *Channel) SendBulk(ctx context.Context, targets []string, payload interfaces.Payload, opts BulkOptions) (*messaging.BulkReport, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets", ErrInvalidTarget)
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	policy := opts.resolve(c.options.Bulk)

	c.bulkMu.Lock()
	defer c.bulkMu.Unlock()
	c.stats.bulkBatches.Add(1)

	batch := messaging.NewBatch(targets, payload, interfaces.SendOptions{})
	report := messaging.NewBulkReport(batch)

	logrus.WithFields(logrus.Fields{
		"function":          "Channel.SendBulk",
		"batch_id":          batch.ID,
		"targets":           batch.Len(),
		"pacing":            policy.Pacing,
		"continue_on_error": policy.ContinueOnError,
	}).Info("Starting bulk send")

	var runErr error
	sentBefore := false
	for _, job := range batch.Jobs() {
		addr, err := normalizeTarget(job.Target)
		if err != nil {
			report.Record(job, nil, err)
			if !policy.ContinueOnError {
				break
			}
			continue
		}
		job.Target = addr

		if sentBefore {
			if runErr = c.clock.Sleep(ctx, policy.Pacing); runErr != nil {
				break
			}
		}
		if runErr = c.waitReady(ctx, batch.ID, policy.NotReadyPause); runErr != nil {
			break
		}

		var receipt *messaging.Receipt
		err = c.checkReady("sendBulk", opts.Lenient)
		if err == nil {
			sentBefore = true
			receipt, err = c.sendJob(ctx, job)
		}
		report.Record(job, receipt, err)
		if err != nil && !policy.ContinueOnError {
			break
		}
	}
	report.Finish()

	logrus.WithFields(logrus.Fields{
		"function": "Channel.SendBulk",
		"batch_id": batch.ID,
		"sent":     report.SuccessCount,
		"failed":   report.FailureCount,
		"skipped":  report.SkippedCount,
	}).Info("Bulk send finished")

	if runErr != nil {
		return report, fmt.Errorf("bulk send interrupted: %w", runErr)
	}
	return report, nil
}

// waitReady pauses once when the channel is not ready, giving a pending
// restart or QR scan time to complete.
func (c *Channel) waitReady(ctx context.Context, batchID string, pause time.Duration) error {
	s := c.manager.Snapshot()
	if s.IsReady() {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"function": "Channel.waitReady",
		"batch_id": batchID,
		"phase":    s.Phase.String(),
		"pause":    pause,
	}).Warn("Channel not ready, pausing bulk send")
	return c.clock.Sleep(ctx, pause)
}
