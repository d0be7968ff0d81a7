package metrics

import (
	"context"
	"time"

	"github.com/deltadb/deltadb/internal/dbtypes"
)

// WorkerLister is the subset of registry.Registry the collector needs,
// kept narrow so this package doesn't depend on internal/registry.
type WorkerLister interface {
	List() []dbtypes.WorkerRecord
}

// Collector periodically refreshes the worker-registry gauges. Adapted
// from the teacher's pkg/metrics/collector.go ticker pattern, trimmed to
// the series this repo actually has (no node/service/container/secret/
// volume/raft metrics).
type Collector struct {
	workers  WorkerLister
	interval time.Duration
}

// NewCollector constructs a Collector polling workers every interval.
func NewCollector(workers WorkerLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{workers: workers, interval: interval}
}

// Run blocks, collecting until ctx is canceled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	records := c.workers.List()
	available := 0
	for _, r := range records {
		if r.Status == dbtypes.WorkerAvailable {
			available++
		}
	}
	WorkersTotal.Set(float64(len(records)))
	WorkersAvailable.Set(float64(available))
}
