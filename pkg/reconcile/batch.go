package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/metrics"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

type batchItem struct {
	index int
	p     *parsedRecord
}

type batchResult struct {
	outcome *Outcome
	err     error
	done    bool
}

// ProcessBatch reconciles records on a bounded worker pool. Records naming the
// same contest form one group and run in input order on a single worker.
// Cancelling ctx stops scheduling; committed records stand and the rest are
// reported as cancelled.
func (e *Engine) ProcessBatch(ctx context.Context, records []models.RawRecord) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine.ProcessBatch")
	defer span.End()

	start := time.Now()
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(records),
		"workers":    e.config.Workers,
	})

	results := make([]batchResult, len(records))
	var order []string
	groups := map[string][]batchItem{}
	for i, raw := range records {
		p, err := e.parse(ctx, raw)
		if err != nil {
			results[i] = batchResult{err: err, done: true}
			continue
		}
		key := p.groupKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], batchItem{index: i, p: p})
	}

	work := make(chan []batchItem)
	var wg sync.WaitGroup
	for w := 0; w < e.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range work {
				for _, item := range group {
					if err := ctx.Err(); err != nil {
						results[item.index] = batchResult{err: err, done: true}
						continue
					}
					out, err := e.processParsed(ctx, item.p)
					results[item.index] = batchResult{outcome: out, err: err, done: true}
				}
			}
		}()
	}

dispatch:
	for _, key := range order {
		select {
		case <-ctx.Done():
			break dispatch
		case work <- groups[key]:
		}
	}
	close(work)
	wg.Wait()

	report := &Report{Total: len(records), StartedAt: start}
	for i, res := range results {
		err := res.err
		if !res.done {
			err = ctx.Err()
		}
		if err != nil {
			report.fail(records[i].RecordID(), err)
			continue
		}
		report.record(res.outcome)
	}
	report.FinishedAt = time.Now()
	metrics.BatchDuration.Observe(report.FinishedAt.Sub(start).Seconds())

	log.WithFields(map[string]any{
		"processed":   report.Processed,
		"linked":      report.Linked,
		"created":     report.Created,
		"queued":      report.Queued,
		"revalidated": report.Revalidated,
		"conflicts":   report.Conflicts,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"duration_ms": report.FinishedAt.Sub(start).Milliseconds(),
	}).Info("Reconciled batch")

	return report, ctx.Err()
}
