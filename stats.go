package courier

import (
	"sync/atomic"
	"time"

	"github.com/opd-ai/courier/lifecycle"
)

type counters struct {
	sent          atomic.Int64
	failed        atomic.Int64
	retries       atomic.Int64
	retryRestarts atomic.Int64
	bulkBatches   atomic.Int64
}

// Stats summarizes the channel for diagnostics.
type Stats struct {
	Phase              string          `json:"phase"`
	IsReady            bool            `json:"isReady"`
	ConnectionAttempts int             `json:"connectionAttempts"`
	StartedAt          time.Time       `json:"startedAt"`
	Uptime             time.Duration   `json:"uptime"`
	MessagesSent       int64           `json:"messagesSent"`
	MessagesFailed     int64           `json:"messagesFailed"`
	Retries            int64           `json:"retries"`
	RetryRestarts      int64           `json:"retryRestarts"`
	BulkBatches        int64           `json:"bulkBatches"`
	Lifecycle          lifecycle.Stats `json:"lifecycle"`
}

// Stats returns the current counters. It never blocks on the transport.
func (c *Channel) Stats() Stats {
	s := c.manager.Snapshot()
	return Stats{
		Phase:              s.Phase.String(),
		IsReady:            s.IsReady(),
		ConnectionAttempts: s.ConnectionAttempts,
		StartedAt:          c.startedAt,
		Uptime:             c.clock.Since(c.startedAt),
		MessagesSent:       c.stats.sent.Load(),
		MessagesFailed:     c.stats.failed.Load(),
		Retries:            c.stats.retries.Load(),
		RetryRestarts:      c.stats.retryRestarts.Load(),
		BulkBatches:        c.stats.bulkBatches.Load(),
		Lifecycle:          c.manager.Stats(),
	}
}
