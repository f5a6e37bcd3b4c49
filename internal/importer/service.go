package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rpattn/stockflow/internal/auth"
	"github.com/rpattn/stockflow/internal/domain"
	"github.com/rpattn/stockflow/internal/fileparse"
	"github.com/rpattn/stockflow/internal/repository"

	"github.com/google/uuid"
)

// ImportOptions control a single import run.
type ImportOptions struct {
	// AllowPartial lets the import proceed when some rows fail, as long as
	// the failure rate stays within bounds and no system error occurred.
	AllowPartial bool
	// ValidateOnly runs parsing, validation, and resolution without writing
	// any records.
	ValidateOnly bool
	// AutoCreateRefs creates placeholder records for missing references
	// instead of failing the referencing row.
	AutoCreateRefs bool
}

// RowOutcome describes what happened to one input row.
type RowOutcome struct {
	Row              int                  `json:"row"`
	Imported         bool                 `json:"imported"`
	CreatedReference string               `json:"created_reference,omitempty"`
	Corrections      []domain.Correction  `json:"corrections,omitempty"`
	Errors           []domain.ImportError `json:"errors,omitempty"`
}

// ImportResult is the full outcome of a run: the final job record, the error
// analysis, what the resolver did, and per-row outcomes.
type ImportResult struct {
	Job        domain.ImportJob   `json:"job"`
	Report     domain.ErrorReport `json:"report"`
	Resolution Resolution         `json:"resolution"`
	Rows       []RowOutcome       `json:"rows"`
	Metrics    Metrics            `json:"metrics"`
}

// Service orchestrates the import pipeline: parse, default, validate,
// resolve, analyze, batch-persist, finalize.
type Service struct {
	products  repository.ProductRepository
	suppliers repository.SupplierRepository
	movements repository.MovementRepository
	jobs      repository.ImportJobRepository
	logs      repository.ImportLogRepository

	cache    *ValidationCache
	resolver *Resolver
	tracker  *Tracker
	batchCfg BatchConfig
	logger   *slog.Logger

	cancels  sync.Map // jobID -> *atomic.Bool
	progress sync.Map // jobID -> Progress
}

// NewService wires the orchestrator. logger falls back to slog.Default.
func NewService(
	products repository.ProductRepository,
	suppliers repository.SupplierRepository,
	movements repository.MovementRepository,
	jobs repository.ImportJobRepository,
	logs repository.ImportLogRepository,
	cache *ValidationCache,
	tracker *Tracker,
	batchCfg BatchConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		products:  products,
		suppliers: suppliers,
		movements: movements,
		jobs:      jobs,
		logs:      logs,
		cache:     cache,
		resolver:  NewResolver(),
		tracker:   tracker,
		batchCfg:  batchCfg,
		logger:    logger,
	}
}

// StartImport runs the whole pipeline synchronously and returns the final
// result. The returned job is persisted at every state change, so concurrent
// status queries observe the run as it advances.
func (s *Service) StartImport(ctx context.Context, tenantID, userID uuid.UUID, entityType domain.EntityType, fileName string, payload []byte, opts ImportOptions) (*ImportResult, error) {
	if err := auth.EnforceTenantScope(ctx, tenantID); err != nil {
		return nil, err
	}
	cfg, err := ConfigFor(entityType)
	if err != nil {
		return nil, err
	}

	table, err := fileparse.Parse(fileName, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fileName, err)
	}

	job := domain.NewImportJob(tenantID, userID, entityType, fileName, table.TotalRows())
	job, err = s.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}

	s.tracker.Start(job.ID, map[string]any{"file": fileName, "entity": string(entityType)})
	cancelFlag := &atomic.Bool{}
	s.cancels.Store(job.ID, cancelFlag)
	defer s.cancels.Delete(job.ID)

	rows := make([]domain.Row, len(table.Rows))
	for i, row := range table.Rows {
		rows[i] = ApplyDefaults(row, cfg)
	}

	validationErrs, err := s.validator().ValidateRows(ctx, tenantID, cfg, rows)
	if err != nil {
		s.failJob(ctx, &job, nil)
		return nil, fmt.Errorf("failed to validate rows: %w", err)
	}

	resolution := s.resolver.Resolve(validationErrs, cfg)
	rows = applyCorrections(rows, resolution.Corrections)
	for _, c := range resolution.Corrections {
		s.tracker.Record(job.ID, slog.LevelInfo, "resolve", describeCorrection(c), nil)
	}

	// Corrected rows are clean now; only the unresolved errors count against
	// the continuation decision. Missing references are excluded when the run
	// auto-creates placeholders, since those rows will be repaired in flight.
	unresolved := resolution.Unresolved
	if opts.AutoCreateRefs {
		unresolved = withoutReferenceErrors(unresolved)
	}
	report := AnalyzeErrors(unresolved, cfg, len(rows), opts.AllowPartial)

	result := &ImportResult{Job: job, Report: report, Resolution: resolution}

	if opts.ValidateOnly {
		job = job.WithState(domain.JobStateProcessing).WithState(domain.JobStateCompleted)
		if err := s.transitionJob(ctx, job.ID, domain.JobStatePending, domain.JobStateProcessing, domain.JobStateCompleted); err != nil {
			return nil, err
		}
		result.Job = job
		result.Rows = outcomesFromValidation(rows, resolution)
		s.tracker.Finish(job.ID)
		return result, nil
	}

	s.recordValidationLogs(ctx, tenantID, job.ID, fileName, unresolved)

	if !report.CanContinue {
		job = job.WithErrors(unresolved).WithCounts(len(rows), 0, len(rows))
		s.failJob(ctx, &job, unresolved)
		result.Job = job
		result.Rows = outcomesFromValidation(rows, resolution)
		result.Metrics = s.tracker.Finish(job.ID)
		return result, nil
	}

	failedRows := rowsWithErrors(unresolved)
	valid := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		if _, bad := failedRows[row.Number]; !bad {
			valid = append(valid, row)
		}
	}

	if err := s.transitionJob(ctx, job.ID, domain.JobStatePending, domain.JobStateProcessing); err != nil {
		return nil, err
	}
	job = job.WithState(domain.JobStateProcessing)

	run := &importRun{
		service:   s,
		tenantID:  tenantID,
		userID:    userID,
		cfg:       cfg,
		autoRefs:  opts.AutoCreateRefs,
		outcomes:  make(map[int]*RowOutcome),
		resolved:  resolution,
		skipped:   failedRows,
	}
	if err := run.prime(ctx); err != nil {
		s.failJob(ctx, &job, unresolved)
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}

	processor := NewBatchProcessor(s.batchCfg, s.cache, func(p Progress) {
		s.progress.Store(job.ID, p)
		s.tracker.Update(job.ID, p.Processed+len(failedRows), p.Succeeded, p.Failed+len(failedRows))
		if err := s.jobs.UpdateCounts(ctx, job.ID, p.Processed+len(failedRows), p.Succeeded, p.Failed+len(failedRows)); err != nil {
			s.logger.Warn("failed to persist progress counts", "job_id", job.ID, "error", err)
		}
	}, func(format string, args ...any) {
		s.tracker.Record(job.ID, slog.LevelInfo, "batch", fmt.Sprintf(format, args...), nil)
	})

	batchResult := processor.Run(ctx, valid, run.persistRow, cancelFlag.Load)

	processed := batchResult.Processed + len(failedRows)
	failed := batchResult.Failed + len(failedRows)
	job = job.WithCounts(processed, batchResult.Succeeded, failed).WithErrors(append(unresolved, batchResult.Errors...))
	job = job.WithState(batchResult.State)

	if err := s.jobs.UpdateCounts(ctx, job.ID, processed, batchResult.Succeeded, failed); err != nil {
		s.logger.Warn("failed to persist final counts", "job_id", job.ID, "error", err)
	}
	if err := s.transitionJob(ctx, job.ID, domain.JobStateProcessing, batchResult.State); err != nil {
		s.logger.Warn("failed to persist final state", "job_id", job.ID, "error", err)
	}
	s.recordValidationLogs(ctx, tenantID, job.ID, fileName, batchResult.Errors)

	s.tracker.Update(job.ID, processed, batchResult.Succeeded, failed)
	result.Job = job
	result.Rows = run.collect(rows, batchResult)
	result.Metrics = s.tracker.Finish(job.ID)
	return result, nil
}

// GetJobStatus returns the persisted job record.
func (s *Service) GetJobStatus(ctx context.Context, tenantID, jobID uuid.UUID) (domain.ImportJob, error) {
	if err := auth.EnforceTenantScope(ctx, tenantID); err != nil {
		return domain.ImportJob{}, err
	}
	return s.jobs.GetByID(ctx, tenantID, jobID)
}

// GetDetailedProgress returns the latest in-memory progress snapshot plus the
// tracker's metrics for a running job. The job must belong to tenantID; the
// in-memory maps are keyed by job ID alone, so ownership is checked against
// the persisted record before anything is returned.
func (s *Service) GetDetailedProgress(ctx context.Context, tenantID, jobID uuid.UUID) (Progress, Metrics, bool, error) {
	if err := auth.EnforceTenantScope(ctx, tenantID); err != nil {
		return Progress{}, Metrics{}, false, err
	}
	if _, err := s.jobs.GetByID(ctx, tenantID, jobID); err != nil {
		return Progress{}, Metrics{}, false, err
	}
	metrics, tracked := s.tracker.Metrics(jobID)
	value, ok := s.progress.Load(jobID)
	if !ok {
		return Progress{}, metrics, tracked, nil
	}
	return value.(Progress), metrics, true, nil
}

// CancelJob requests cancellation. Pending jobs are cancelled immediately;
// processing jobs stop dispatching new batches and finish in-flight work.
func (s *Service) CancelJob(ctx context.Context, tenantID, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	if !job.State.Cancellable() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.State, repository.ErrStateConflict)
	}

	if flag, ok := s.cancels.Load(jobID); ok {
		flag.(*atomic.Bool).Store(true)
	}
	if job.State == domain.JobStatePending {
		if err := s.jobs.UpdateState(ctx, jobID, domain.JobStatePending, domain.JobStateCancelled); err != nil {
			return fmt.Errorf("failed to cancel pending job: %w", err)
		}
	}
	s.tracker.Record(jobID, slog.LevelWarn, "cancel", "cancellation requested", nil)
	return nil
}

// ListJobs returns recent jobs for a tenant.
func (s *Service) ListJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error) {
	return s.jobs.List(ctx, tenantID, limit, offset)
}

// JobLogs returns persisted row-level log entries for a job.
func (s *Service) JobLogs(ctx context.Context, tenantID, jobID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	return s.logs.ListByJob(ctx, tenantID, jobID, limit, offset)
}

// CacheHealth reports the validation cache's health snapshot.
func (s *Service) CacheHealth() CacheHealth {
	return s.cache.Health()
}

func (s *Service) validator() *Validator {
	return NewValidator(s.cache)
}

// transitionJob applies one or more persisted state transitions in order.
func (s *Service) transitionJob(ctx context.Context, jobID uuid.UUID, states ...domain.JobState) error {
	for i := 0; i+1 < len(states); i++ {
		if err := s.jobs.UpdateState(ctx, jobID, states[i], states[i+1]); err != nil {
			return fmt.Errorf("failed to move job %s to %s: %w", jobID, states[i+1], err)
		}
	}
	return nil
}

func (s *Service) failJob(ctx context.Context, job *domain.ImportJob, errs []domain.ImportError) {
	from := job.State
	*job = job.WithState(domain.JobStateProcessing).WithState(domain.JobStateError)
	if from == domain.JobStatePending {
		if err := s.transitionJob(ctx, job.ID, domain.JobStatePending, domain.JobStateProcessing, domain.JobStateError); err != nil {
			s.logger.Warn("failed to persist error state", "job_id", job.ID, "error", err)
		}
	} else {
		if err := s.transitionJob(ctx, job.ID, from, domain.JobStateError); err != nil {
			s.logger.Warn("failed to persist error state", "job_id", job.ID, "error", err)
		}
	}
	if len(errs) > 0 {
		s.tracker.Record(job.ID, slog.LevelError, "validate", fmt.Sprintf("import blocked by %d unresolved errors", len(errs)), nil)
	}
}

func (s *Service) recordValidationLogs(ctx context.Context, tenantID, jobID uuid.UUID, fileName string, errs []domain.ImportError) {
	if len(errs) == 0 {
		return
	}
	entries := make([]domain.ImportLogEntry, len(errs))
	for i, e := range errs {
		rowNumber := e.Row
		entries[i] = domain.ImportLogEntry{
			ID:           uuid.New(),
			TenantID:     tenantID,
			JobID:        jobID,
			FileName:     fileName,
			RowNumber:    &rowNumber,
			Column:       e.Column,
			ErrorType:    e.Type,
			ErrorMessage: e.Message,
		}
	}
	if err := s.logs.RecordBatch(ctx, entries); err != nil {
		s.logger.Warn("failed to persist import log entries", "job_id", jobID, "error", err)
	}
}

// importRun carries the mutable per-run state shared by concurrent batch
// workers: reference lookups and per-row outcomes.
type importRun struct {
	service   *Service
	tenantID  uuid.UUID
	userID    uuid.UUID
	cfg       EntityConfig
	autoRefs  bool

	mu        sync.Mutex
	products  LookupMap
	suppliers LookupMap
	outcomes  map[int]*RowOutcome
	resolved  Resolution
	skipped   map[int][]domain.ImportError
}

// prime loads the reference lookups the run will need.
func (r *importRun) prime(ctx context.Context) error {
	var err error
	switch r.cfg.Type {
	case domain.EntityTypeProduct:
		r.suppliers, err = r.service.cache.Get(ctx, r.tenantID, domain.EntityTypeSupplier)
	case domain.EntityTypeMovement:
		r.products, err = r.service.cache.Get(ctx, r.tenantID, domain.EntityTypeProduct)
	}
	return err
}

// persistRow writes one row's record. Reference misses either fail the row or
// auto-create a placeholder, depending on the run's options.
func (r *importRun) persistRow(ctx context.Context, row domain.Row) error {
	switch r.cfg.Type {
	case domain.EntityTypeProduct:
		return r.persistProduct(ctx, row)
	case domain.EntityTypeSupplier:
		return r.persistSupplier(ctx, row)
	case domain.EntityTypeMovement:
		return r.persistMovement(ctx, row)
	default:
		return ErrUnsupportedEntityType
	}
}

func (r *importRun) persistProduct(ctx context.Context, row domain.Row) error {
	if name := strings.TrimSpace(row.Get("supplier")); name != "" {
		if _, err := r.ensureSupplier(ctx, row.Number, name); err != nil {
			return err
		}
	}

	r.mu.Lock()
	product := RowToProduct(r.tenantID, row, r.suppliers)
	r.mu.Unlock()

	created, err := r.service.products.Create(ctx, product)
	if err != nil {
		return fmt.Errorf("failed to create product at row %d: %w", row.Number, wrapPersistence(err))
	}
	r.addReference(domain.EntityTypeProduct, Reference{ID: created.ID, Name: created.Name, Code: created.Code})
	r.markImported(row.Number)
	return nil
}

func (r *importRun) persistSupplier(ctx context.Context, row domain.Row) error {
	supplier := RowToSupplier(r.tenantID, row)
	created, err := r.service.suppliers.Create(ctx, supplier)
	if err != nil {
		return fmt.Errorf("failed to create supplier at row %d: %w", row.Number, wrapPersistence(err))
	}
	r.addReference(domain.EntityTypeSupplier, Reference{ID: created.ID, Name: created.Name})
	r.markImported(row.Number)
	return nil
}

func (r *importRun) persistMovement(ctx context.Context, row domain.Row) error {
	name := strings.TrimSpace(row.Get("product"))

	r.mu.Lock()
	_, known := r.products.Lookup(name)
	r.mu.Unlock()

	if !known {
		if !r.autoRefs {
			return domain.ImportError{
				Row: row.Number, Column: "product", Value: name,
				Message: fmt.Sprintf("product %q not found", name),
				Type:    domain.ErrorTypeReference,
			}
		}
		if _, err := r.ensureProduct(ctx, row.Number, name); err != nil {
			return err
		}
	}

	r.mu.Lock()
	movement, ok := RowToMovement(r.tenantID, r.userID, row, r.products)
	r.mu.Unlock()
	if !ok {
		return domain.ImportError{
			Row: row.Number, Column: "product", Value: name,
			Message: fmt.Sprintf("could not build movement for product %q", name),
			Type:    domain.ErrorTypeValidation,
		}
	}

	if _, err := r.service.movements.Create(ctx, movement); err != nil {
		return fmt.Errorf("failed to create movement at row %d: %w", row.Number, wrapPersistence(err))
	}

	delta := movement.Quantity
	if movement.Kind == domain.MovementOut {
		delta = -delta
	}
	if movement.Kind != domain.MovementAdjustment {
		if err := r.service.products.AdjustStock(ctx, r.tenantID, movement.ProductID, delta); err != nil {
			return fmt.Errorf("failed to adjust stock at row %d: %w", row.Number, wrapPersistence(err))
		}
	}
	r.markImported(row.Number)
	return nil
}

// ensureProduct resolves a product by name, auto-creating a placeholder when
// allowed. Creation is serialized so concurrent rows referencing the same
// missing product create it once.
func (r *importRun) ensureProduct(ctx context.Context, rowNumber int, name string) (Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref, ok := r.products.Lookup(name); ok {
		return ref, nil
	}
	if !r.autoRefs {
		return Reference{}, domain.ImportError{
			Row: rowNumber, Column: "product", Value: name,
			Message: fmt.Sprintf("product %q not found", name),
			Type:    domain.ErrorTypeReference,
		}
	}

	created, err := r.service.products.Create(ctx, domain.NewPlaceholderProduct(r.tenantID, name))
	if err != nil {
		return Reference{}, fmt.Errorf("failed to auto-create product %q: %w", name, wrapPersistence(err))
	}
	ref := Reference{ID: created.ID, Name: created.Name, Code: created.Code}
	r.addReferenceLocked(domain.EntityTypeProduct, ref)
	r.service.cache.Invalidate(r.tenantID, domain.EntityTypeProduct)
	r.outcomeLocked(rowNumber).CreatedReference = created.Name
	return ref, nil
}

// ensureSupplier mirrors ensureProduct for product rows referencing a
// supplier that does not exist yet.
func (r *importRun) ensureSupplier(ctx context.Context, rowNumber int, name string) (Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref, ok := r.suppliers.Lookup(name); ok {
		return ref, nil
	}
	if !r.autoRefs {
		return Reference{}, domain.ImportError{
			Row: rowNumber, Column: "supplier", Value: name,
			Message: fmt.Sprintf("supplier %q not found", name),
			Type:    domain.ErrorTypeReference,
		}
	}

	created, err := r.service.suppliers.Create(ctx, domain.NewPlaceholderSupplier(r.tenantID, name))
	if err != nil {
		return Reference{}, fmt.Errorf("failed to auto-create supplier %q: %w", name, wrapPersistence(err))
	}
	ref := Reference{ID: created.ID, Name: created.Name}
	r.addReferenceLocked(domain.EntityTypeSupplier, ref)
	r.service.cache.Invalidate(r.tenantID, domain.EntityTypeSupplier)
	r.outcomeLocked(rowNumber).CreatedReference = created.Name
	return ref, nil
}

func (r *importRun) addReference(kind domain.EntityType, ref Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addReferenceLocked(kind, ref)
}

func (r *importRun) addReferenceLocked(kind domain.EntityType, ref Reference) {
	switch kind {
	case domain.EntityTypeProduct:
		if r.products == nil {
			r.products = LookupMap{}
		}
		for key, value := range BuildLookupMap([]Reference{ref}) {
			r.products[key] = value
		}
	case domain.EntityTypeSupplier:
		if r.suppliers == nil {
			r.suppliers = LookupMap{}
		}
		for key, value := range BuildLookupMap([]Reference{ref}) {
			r.suppliers[key] = value
		}
	}
}

func (r *importRun) markImported(rowNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomeLocked(rowNumber).Imported = true
}

func (r *importRun) outcomeLocked(rowNumber int) *RowOutcome {
	outcome, ok := r.outcomes[rowNumber]
	if !ok {
		outcome = &RowOutcome{Row: rowNumber}
		r.outcomes[rowNumber] = outcome
	}
	return outcome
}

// collect assembles the final per-row outcomes from validation skips, applied
// corrections, and batch errors.
func (r *importRun) collect(rows []domain.Row, batch BatchResult) []RowOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	corrections := correctionsByRow(r.resolved.Corrections)
	batchErrs := rowsWithErrors(batch.Errors)

	outcomes := make([]RowOutcome, 0, len(rows))
	for _, row := range rows {
		outcome := RowOutcome{Row: row.Number}
		if tracked, ok := r.outcomes[row.Number]; ok {
			outcome = *tracked
		}
		outcome.Corrections = corrections[row.Number]
		if errs, ok := r.skipped[row.Number]; ok {
			outcome.Errors = errs
		} else if errs, ok := batchErrs[row.Number]; ok {
			outcome.Errors = errs
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// wrapPersistence tags repository failures so the batch layer retries the
// whole batch instead of failing one record.
func wrapPersistence(err error) error {
	return fmt.Errorf("%w: %w", ErrBatchRetry, err)
}

func applyCorrections(rows []domain.Row, corrections []domain.Correction) []domain.Row {
	if len(corrections) == 0 {
		return rows
	}
	byRow := correctionsByRow(corrections)
	out := make([]domain.Row, len(rows))
	for i, row := range rows {
		for _, c := range byRow[row.Number] {
			row = row.WithValue(c.Field, c.Corrected)
		}
		out[i] = row
	}
	return out
}

func correctionsByRow(corrections []domain.Correction) map[int][]domain.Correction {
	byRow := make(map[int][]domain.Correction)
	for _, c := range corrections {
		byRow[c.Row] = append(byRow[c.Row], c)
	}
	return byRow
}

func withoutReferenceErrors(errs []domain.ImportError) []domain.ImportError {
	kept := make([]domain.ImportError, 0, len(errs))
	for _, e := range errs {
		if e.Type != domain.ErrorTypeReference {
			kept = append(kept, e)
		}
	}
	return kept
}

func rowsWithErrors(errs []domain.ImportError) map[int][]domain.ImportError {
	byRow := make(map[int][]domain.ImportError)
	for _, e := range errs {
		byRow[e.Row] = append(byRow[e.Row], e)
	}
	return byRow
}

func outcomesFromValidation(rows []domain.Row, resolution Resolution) []RowOutcome {
	corrections := correctionsByRow(resolution.Corrections)
	failed := rowsWithErrors(resolution.Unresolved)

	outcomes := make([]RowOutcome, 0, len(rows))
	for _, row := range rows {
		outcomes = append(outcomes, RowOutcome{
			Row:         row.Number,
			Corrections: corrections[row.Number],
			Errors:      failed[row.Number],
		})
	}
	return outcomes
}
