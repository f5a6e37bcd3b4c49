package importer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultLogCap        = 500
	defaultFlushInterval = 5 * time.Second
	defaultFlushSize     = 50
	maxMessageLength     = 500
	maxValueLength       = 200
)

// LogEntry is one structured record in a job's log buffer.
type LogEntry struct {
	JobID   uuid.UUID            `json:"job_id"`
	Level   slog.Level           `json:"level"`
	Stage   string               `json:"stage"`
	Message string               `json:"message"`
	At      time.Time            `json:"at"`
	Data    map[string]any       `json:"data,omitempty"`
	Errors  []domain.ImportError `json:"errors,omitempty"`
}

// Metrics is the mutable per-job performance object. Created at job start,
// updated incrementally, finalized at job end.
type Metrics struct {
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Processed    int           `json:"processed"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	AvgPerRecord time.Duration `json:"avg_per_record"`
	Throughput   float64       `json:"throughput"`
	HeapBytes    uint64        `json:"heap_bytes"`
	Goroutines   int           `json:"goroutines"`
}

// JobSummary is the condensed view of a job's log activity.
type JobSummary struct {
	JobID        uuid.UUID `json:"job_id"`
	TotalEntries int       `json:"total_entries"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
	LastActivity time.Time `json:"last_activity"`
	Efficiency   float64   `json:"efficiency"`
}

type jobLog struct {
	entries []LogEntry
	metrics Metrics
	context map[string]any
}

// Tracker keeps a bounded, structured log buffer and a metrics object per
// job, flushing queued entries in batches through slog so a noisy import
// cannot flood the process log.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*jobLog
	queue  []LogEntry
	logger *slog.Logger

	capPerJob     int
	flushInterval time.Duration
	flushSize     int

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTracker creates a tracker flushing to logger (slog.Default when nil)
// and starts the periodic flush loop.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		jobs:          make(map[uuid.UUID]*jobLog),
		logger:        logger,
		capPerJob:     defaultLogCap,
		flushInterval: defaultFlushInterval,
		flushSize:     defaultFlushSize,
		stop:          make(chan struct{}),
	}
	go t.flushLoop()
	return t
}

// Close flushes remaining entries and stops the background loop.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.Flush()
}

// Start allocates the metrics object and log buffer for a job.
func (t *Tracker) Start(jobID uuid.UUID, context map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[jobID] = &jobLog{
		metrics: Metrics{StartedAt: time.Now()},
		context: context,
	}
}

// Record appends a sanitized log entry to the job's buffer and queues it for
// batched emission. Entries beyond the per-job cap evict the oldest 10%.
func (t *Tracker) Record(jobID uuid.UUID, level slog.Level, stage, message string, data map[string]any, errs ...domain.ImportError) {
	entry := LogEntry{
		JobID:   jobID,
		Level:   level,
		Stage:   stage,
		Message: truncate(message, maxMessageLength),
		At:      time.Now(),
		Data:    sanitizeData(data),
		Errors:  errs,
	}

	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok {
		job = &jobLog{metrics: Metrics{StartedAt: time.Now()}}
		t.jobs[jobID] = job
	}
	job.entries = append(job.entries, entry)
	if len(job.entries) > t.capPerJob {
		drop := t.capPerJob / 10
		if drop < 1 {
			drop = 1
		}
		job.entries = append(job.entries[:0:0], job.entries[drop:]...)
	}

	t.queue = append(t.queue, entry)
	flushNow := len(t.queue) >= t.flushSize
	t.mu.Unlock()

	if flushNow {
		t.Flush()
	}
}

// Update recomputes derived metrics from elapsed wall time.
func (t *Tracker) Update(jobID uuid.UUID, processed, succeeded, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	job.metrics.Processed = processed
	job.metrics.Succeeded = succeeded
	job.metrics.Failed = failed

	elapsed := time.Since(job.metrics.StartedAt)
	if processed > 0 {
		job.metrics.AvgPerRecord = elapsed / time.Duration(processed)
	}
	if elapsed > 0 {
		job.metrics.Throughput = float64(processed) / elapsed.Seconds()
	}
}

// Finish stamps the end time, snapshots runtime state, emits a summary log
// entry, and returns the finalized metrics.
func (t *Tracker) Finish(jobID uuid.UUID) Metrics {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return Metrics{}
	}

	job.metrics.EndedAt = time.Now()
	elapsed := job.metrics.EndedAt.Sub(job.metrics.StartedAt)
	if job.metrics.Processed > 0 {
		job.metrics.AvgPerRecord = elapsed / time.Duration(job.metrics.Processed)
	}
	if elapsed > 0 {
		job.metrics.Throughput = float64(job.metrics.Processed) / elapsed.Seconds()
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	job.metrics.HeapBytes = stats.HeapAlloc
	job.metrics.Goroutines = runtime.NumGoroutine()

	metrics := job.metrics
	t.mu.Unlock()

	t.Record(jobID, slog.LevelInfo, "finish", fmt.Sprintf(
		"job finished: %d processed, %d succeeded, %d failed in %s",
		metrics.Processed, metrics.Succeeded, metrics.Failed, elapsed.Round(time.Millisecond),
	), map[string]any{"throughput": metrics.Throughput})

	return metrics
}

// Metrics returns the current metrics snapshot for a job.
func (t *Tracker) Metrics(jobID uuid.UUID) (Metrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return Metrics{}, false
	}
	return job.metrics, true
}

// Logs returns the buffered entries for a job, optionally filtered by level.
func (t *Tracker) Logs(jobID uuid.UUID, level *slog.Level) []LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return nil
	}
	if level == nil {
		return append([]LogEntry(nil), job.entries...)
	}
	var filtered []LogEntry
	for _, entry := range job.entries {
		if entry.Level == *level {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Summary condenses a job's buffered activity.
func (t *Tracker) Summary(jobID uuid.UUID) JobSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := JobSummary{JobID: jobID}
	job, ok := t.jobs[jobID]
	if !ok {
		return summary
	}

	summary.TotalEntries = len(job.entries)
	for _, entry := range job.entries {
		switch entry.Level {
		case slog.LevelError:
			summary.ErrorCount++
		case slog.LevelWarn:
			summary.WarningCount++
		}
		if entry.At.After(summary.LastActivity) {
			summary.LastActivity = entry.At
		}
	}
	if job.metrics.Processed > 0 {
		summary.Efficiency = float64(job.metrics.Succeeded) / float64(job.metrics.Processed)
	}
	return summary
}

// Release drops a finished job's buffer. External retention owns persisted
// state; this only frees process memory.
func (t *Tracker) Release(jobID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}

func (t *Tracker) flushLoop() {
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Flush()
		}
	}
}

// Flush drains the queue, grouping repeated same-level/same-job entries into
// a single summary line.
func (t *Tracker) Flush() {
	t.mu.Lock()
	pending := t.queue
	t.queue = nil
	t.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	type groupKey struct {
		jobID uuid.UUID
		level slog.Level
	}
	order := []groupKey{}
	grouped := map[groupKey][]LogEntry{}
	for _, entry := range pending {
		key := groupKey{jobID: entry.JobID, level: entry.Level}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], entry)
	}

	for _, key := range order {
		entries := grouped[key]
		if len(entries) == 1 {
			entry := entries[0]
			t.logger.Log(context.Background(), entry.Level, entry.Message, "job_id", entry.JobID, "stage", entry.Stage)
			continue
		}
		t.logger.Log(context.Background(), key.level, fmt.Sprintf("%d entries (first: %s)", len(entries), entries[0].Message),
			"job_id", key.jobID, "stage", entries[0].Stage, "count", len(entries))
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

func sanitizeData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	cleaned := make(map[string]any, len(data))
	for key, value := range data {
		if str, ok := value.(string); ok {
			cleaned[key] = truncate(str, maxValueLength)
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}
