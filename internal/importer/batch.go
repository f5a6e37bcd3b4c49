package importer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rpattn/stockflow/internal/domain"
)

// maxDetailedErrors caps the error list carried in batch results; the full
// set is always available through the import log repository.
const maxDetailedErrors = 100

// BatchPolicy sets batch size and parallelism for one run.
type BatchPolicy struct {
	Size           int
	Concurrency    int
	ReportProgress bool
}

// PolicyFor scales batching to the total record count. Small files run
// sequentially without progress events; large files fan out.
func PolicyFor(total int) BatchPolicy {
	switch {
	case total <= 100:
		return BatchPolicy{Size: 50, Concurrency: 1, ReportProgress: false}
	case total <= 1000:
		return BatchPolicy{Size: 100, Concurrency: 2, ReportProgress: true}
	case total <= 10000:
		return BatchPolicy{Size: 200, Concurrency: 3, ReportProgress: true}
	default:
		return BatchPolicy{Size: 500, Concurrency: 4, ReportProgress: true}
	}
}

// BatchConfig tunes retry, timeout, and backpressure behavior.
type BatchConfig struct {
	RetryAttempts      int
	BackoffDelay       time.Duration
	BatchTimeout       time.Duration
	MemoryCeilingBytes uint64
}

// DefaultBatchConfig returns the production defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		RetryAttempts:      3,
		BackoffDelay:       500 * time.Millisecond,
		BatchTimeout:       30 * time.Second,
		MemoryCeilingBytes: 512 << 20,
	}
}

// Progress is a snapshot reported after each completed batch. Percentages are
// computed from the completed-batch count, so progress never goes backwards
// even when batches finish out of order.
type Progress struct {
	TotalRecords     int           `json:"total_records"`
	Processed        int           `json:"processed"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	BatchesCompleted int           `json:"batches_completed"`
	BatchesTotal     int           `json:"batches_total"`
	Percent          float64       `json:"percent"`
	EstimatedRemain  time.Duration `json:"estimated_remaining"`
	Throughput       float64       `json:"throughput"`
}

// BatchResult consolidates a whole run.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
	Errors    []domain.ImportError
	State     domain.JobState
	Cancelled bool
}

// RecordOperation performs the persistence work for one row. A returned
// error fails only that record unless it wraps ErrBatchRetry, in which case
// the whole batch is retried.
type RecordOperation func(ctx context.Context, row domain.Row) error

// ErrBatchRetry marks an infrastructure failure that should retry the whole
// batch rather than fail a single record.
var ErrBatchRetry = errors.New("transient batch failure")

// BatchProcessor executes a per-record operation across many records with
// bounded parallelism, per-batch timeouts, and linear-backoff retries.
type BatchProcessor struct {
	cfg        BatchConfig
	cache      *ValidationCache
	onProgress func(Progress)
	logf       func(format string, args ...any)
}

// NewBatchProcessor builds a processor. cache may be nil when no reference
// data is involved; onProgress and logf may be nil.
func NewBatchProcessor(cfg BatchConfig, cache *ValidationCache, onProgress func(Progress), logf func(string, ...any)) *BatchProcessor {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultBatchConfig().RetryAttempts
	}
	if cfg.BackoffDelay <= 0 {
		cfg.BackoffDelay = DefaultBatchConfig().BackoffDelay
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchConfig().BatchTimeout
	}
	if cfg.MemoryCeilingBytes == 0 {
		cfg.MemoryCeilingBytes = DefaultBatchConfig().MemoryCeilingBytes
	}
	return &BatchProcessor{cfg: cfg, cache: cache, onProgress: onProgress, logf: logf}
}

// Run splits rows into batches and executes op across them. cancelled is
// polled before each dispatch: once it reports true no new batch starts, but
// in-flight batches are allowed to finish.
func (p *BatchProcessor) Run(ctx context.Context, rows []domain.Row, op RecordOperation, cancelled func() bool) BatchResult {
	start := time.Now()
	total := len(rows)
	if total == 0 {
		return BatchResult{State: domain.JobStateCompleted}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	policy := PolicyFor(total)
	batches := splitBatches(rows, policy.Size)

	sem := make(chan struct{}, policy.Concurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	result := BatchResult{}
	completed := 0
	lastDecile := 0
	var batchDurations []time.Duration

	for index, batch := range batches {
		if cancelled() {
			result.Cancelled = true
			break
		}

		p.relieveMemoryPressure()

		sem <- struct{}{}
		wg.Add(1)
		go func(index int, batch []domain.Row) {
			defer wg.Done()
			defer func() { <-sem }() // never leak a permit, even on panic

			batchStart := time.Now()
			succeeded, errs := p.runBatchWithRetry(ctx, index, batch, op)

			mu.Lock()
			defer mu.Unlock()

			result.Processed += len(batch)
			result.Succeeded += succeeded
			result.Failed += len(batch) - succeeded
			for _, err := range errs {
				if len(result.Errors) < maxDetailedErrors {
					result.Errors = append(result.Errors, err)
				}
			}

			completed++
			batchDurations = append(batchDurations, time.Since(batchStart))
			p.report(start, total, completed, len(batches), result, batchDurations, &lastDecile, policy.ReportProgress)
		}(index, batch)
	}

	wg.Wait()

	result.Elapsed = time.Since(start)
	switch {
	case result.Cancelled:
		result.State = domain.JobStateCancelled
	case result.Failed > 0:
		result.State = domain.JobStateError
	default:
		result.State = domain.JobStateCompleted
	}
	return result
}

// runBatchWithRetry executes one batch under a timeout, retrying with
// linearly increasing delay on transient failures. Rows that already
// committed (or already failed at the record level) are remembered across
// attempts and never replayed, so a retry cannot double-insert earlier rows.
// When every attempt fails, only the rows that never completed count as
// failed; sibling batches are unaffected.
func (p *BatchProcessor) runBatchWithRetry(ctx context.Context, index int, batch []domain.Row, op RecordOperation) (int, []domain.ImportError) {
	done := make(map[int]bool, len(batch))
	succeeded := 0
	var errs []domain.ImportError

	var lastErr error
	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		attemptOK, attemptErrs, retryErr := p.runBatchOnce(ctx, batch, op, done)
		succeeded += attemptOK
		errs = append(errs, attemptErrs...)
		if retryErr == nil {
			return succeeded, errs
		}
		lastErr = retryErr
		if attempt < p.cfg.RetryAttempts {
			delay := p.cfg.BackoffDelay * time.Duration(attempt)
			if p.logf != nil {
				p.logf("batch %d attempt %d failed, retrying in %s: %v", index+1, attempt, delay, retryErr)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = p.cfg.RetryAttempts
			}
		}
	}

	for _, row := range batch {
		if done[row.Number] {
			continue
		}
		errs = append(errs, domain.ImportError{
			Row:     row.Number,
			Message: fmt.Sprintf("batch failed after %d attempts: %v", p.cfg.RetryAttempts, lastErr),
			Type:    domain.ErrorTypeSystem,
		})
	}
	return succeeded, errs
}

// runBatchOnce runs the operation for every row in the batch not yet marked
// done, recording each row's outcome in done as it completes. Record-level
// errors are collected; a transient error or the batch deadline aborts the
// attempt for retry, leaving the remaining rows untouched.
func (p *BatchProcessor) runBatchOnce(ctx context.Context, batch []domain.Row, op RecordOperation, done map[int]bool) (int, []domain.ImportError, error) {
	batchCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	succeeded := 0
	var errs []domain.ImportError
	for _, row := range batch {
		if done[row.Number] {
			continue
		}
		if err := batchCtx.Err(); err != nil {
			return succeeded, errs, fmt.Errorf("batch timed out: %w", err)
		}
		err := op(batchCtx, row)
		switch {
		case err == nil:
			done[row.Number] = true
			succeeded++
		case errors.Is(err, ErrBatchRetry) || errors.Is(err, context.DeadlineExceeded):
			return succeeded, errs, err
		default:
			done[row.Number] = true
			var importErr domain.ImportError
			if errors.As(err, &importErr) {
				errs = append(errs, importErr)
			} else {
				errs = append(errs, domain.ImportError{
					Row:     row.Number,
					Message: err.Error(),
					Type:    domain.ErrorTypeSystem,
				})
			}
		}
	}
	return succeeded, errs, nil
}

// relieveMemoryPressure samples heap usage before dispatching a batch and,
// over the ceiling, hints a collection and compacts the validation cache.
func (p *BatchProcessor) relieveMemoryPressure() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc <= p.cfg.MemoryCeilingBytes {
		return
	}
	if p.logf != nil {
		p.logf("heap usage %d bytes over ceiling %d, requesting gc and cache optimization", stats.HeapAlloc, p.cfg.MemoryCeilingBytes)
	}
	runtime.GC()
	if p.cache != nil {
		p.cache.Optimize()
	}
}

// report pushes a progress snapshot to the observer and logs once per 10%
// crossing so large imports do not flood the logs.
func (p *BatchProcessor) report(start time.Time, total, completed, batchesTotal int, result BatchResult, durations []time.Duration, lastDecile *int, enabled bool) {
	if !enabled {
		return
	}
	processed := result.Processed

	percent := float64(completed) / float64(batchesTotal) * 100
	elapsed := time.Since(start)

	var remaining time.Duration
	if completed > 0 {
		var sum time.Duration
		for _, d := range durations {
			sum += d
		}
		meanPerBatch := sum / time.Duration(completed)
		remaining = meanPerBatch * time.Duration(batchesTotal-completed)
	}

	var throughput float64
	if elapsed > 0 {
		throughput = float64(processed) / elapsed.Seconds()
	}

	snapshot := Progress{
		TotalRecords:     total,
		Processed:        processed,
		Succeeded:        result.Succeeded,
		Failed:           result.Failed,
		BatchesCompleted: completed,
		BatchesTotal:     batchesTotal,
		Percent:          percent,
		EstimatedRemain:  remaining,
		Throughput:       throughput,
	}
	if p.onProgress != nil {
		p.onProgress(snapshot)
	}

	decile := int(percent) / 10
	if decile > *lastDecile {
		*lastDecile = decile
		if p.logf != nil {
			p.logf("progress %.0f%%: %d/%d records, %.1f records/s, ~%s remaining", percent, processed, total, throughput, remaining.Round(time.Second))
		}
	}
}

func splitBatches(rows []domain.Row, size int) [][]domain.Row {
	if size <= 0 {
		size = 50
	}
	batches := make([][]domain.Row, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[start:end])
	}
	return batches
}
