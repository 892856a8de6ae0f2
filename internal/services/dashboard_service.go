package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"painel/internal/cache"
	"painel/internal/core"
	"painel/internal/kpi"
	"painel/internal/log"
	"painel/internal/metrics"
	"painel/internal/parsers"
	"painel/internal/sheets"
	"painel/internal/storage"
)

var (
	// ErrSheetsUnavailable is returned by ImportSheet when no sheet reader
	// is configured.
	ErrSheetsUnavailable = errors.New("spreadsheet source not configured")
	ErrInvalidSettings   = errors.New("invalid settings")
)

// DashboardService owns ingestion, merging and KPI queries for projects.
type DashboardService struct {
	store   storage.Store
	reports cache.Cache[core.Report]
	sheets  sheets.MatrixReader
	metrics *metrics.Metrics
	locks   *keyedMutex
	now     func() time.Time
	newID   func() string
}

type Option func(*DashboardService)

// WithReportCache memoizes computed reports per project and period.
func WithReportCache(c cache.Cache[core.Report]) Option {
	return func(s *DashboardService) { s.reports = c }
}

// WithSheetReader enables ImportSheet.
func WithSheetReader(r sheets.MatrixReader) Option {
	return func(s *DashboardService) { s.sheets = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *DashboardService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *DashboardService) { s.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(s *DashboardService) { s.newID = f }
}

func NewDashboardService(store storage.Store, opts ...Option) *DashboardService {
	s := &DashboardService{
		store: store,
		locks: newKeyedMutex(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UploadFile decodes an uploaded spreadsheet, parses it with the layout of
// kind and merges the rows into the month buckets they belong to. The
// outcome is recorded in the upload history either way.
func (s *DashboardService) UploadFile(ctx context.Context, projectID, filename string, data []byte, kind core.Kind, headerRow *int) (int, error) {
	if err := checkProject(projectID); err != nil {
		return 0, err
	}
	if !kind.IsValid() {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}

	start := s.now()
	rec := core.UploadRecord{
		ProjectID: projectID,
		Filename:  filename,
		Kind:      kind,
		FileSize:  int64(len(data)),
	}

	m, err := sheets.Decode(data)
	if err != nil {
		err = fmt.Errorf("decode %s: %w", filename, err)
		s.finishUpload(ctx, rec, start, 0, nil, err)
		return 0, err
	}

	n, periods, err := s.ingest(ctx, projectID, m, kind, headerRow)
	s.finishUpload(ctx, rec, start, n, periods, err)
	return n, err
}

// ImportSheet reads a range of a remote spreadsheet and ingests it like an
// uploaded file.
func (s *DashboardService) ImportSheet(ctx context.Context, projectID, spreadsheetID, rng string, kind core.Kind, headerRow *int) (int, error) {
	if err := checkProject(projectID); err != nil {
		return 0, err
	}
	if !kind.IsValid() {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	if s.sheets == nil {
		return 0, ErrSheetsUnavailable
	}

	start := s.now()
	rec := core.UploadRecord{
		ProjectID: projectID,
		Filename:  spreadsheetID + "!" + rng,
		Kind:      kind,
	}

	m, err := s.sheets.ReadMatrix(ctx, spreadsheetID, rng)
	if err != nil {
		err = fmt.Errorf("read sheet %s: %w", spreadsheetID, err)
		s.finishUpload(ctx, rec, start, 0, nil, err)
		return 0, err
	}

	n, periods, err := s.ingest(ctx, projectID, m, kind, headerRow)
	s.finishUpload(ctx, rec, start, n, periods, err)
	return n, err
}

func (s *DashboardService) ingest(ctx context.Context, projectID string, m sheets.Matrix, kind core.Kind, headerRow *int) (int, []string, error) {
	if kind == core.KindMeta {
		rows, err := parsers.ParseAdSpend(m, headerRow)
		if err != nil {
			return 0, nil, err
		}
		periods, err := s.applyAdSpend(ctx, projectID, rows, ReplaceAdSpend)
		if err != nil {
			return 0, nil, err
		}
		s.metrics.AddRows(string(kind), len(rows))
		return len(rows), periods, nil
	}

	source, ok := kind.SaleSource()
	if !ok {
		return 0, nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	parse := parsers.ParseHotmart
	if kind == core.KindKiwify {
		parse = parsers.ParseKiwify
	}
	rows, err := parse(m)
	if err != nil {
		return 0, nil, err
	}
	periods, err := s.applySales(ctx, projectID, rows, func(b *core.PeriodBucket, rows []core.SaleRow) {
		MergeSalesBySource(b, source, rows)
	})
	if err != nil {
		return 0, nil, err
	}
	s.metrics.AddRows(string(kind), len(rows))
	return len(rows), periods, nil
}

func (s *DashboardService) applyAdSpend(ctx context.Context, projectID string, rows []core.AdSpendRow, merge func(*core.PeriodBucket, []core.AdSpendRow)) ([]string, error) {
	groups, keys, err := splitByPeriod(rows, adSpendDate)
	if err != nil {
		return nil, err
	}
	return s.updateBuckets(ctx, projectID, keys, func(b *core.PeriodBucket) {
		merge(b, groups[b.Period])
	})
}

func (s *DashboardService) applySales(ctx context.Context, projectID string, rows []core.SaleRow, merge func(*core.PeriodBucket, []core.SaleRow)) ([]string, error) {
	groups, keys, err := splitByPeriod(rows, saleDate)
	if err != nil {
		return nil, err
	}
	return s.updateBuckets(ctx, projectID, keys, func(b *core.PeriodBucket) {
		merge(b, groups[b.Period])
	})
}

// updateBuckets loads, mutates and stores each bucket while holding the
// project lock.
func (s *DashboardService) updateBuckets(ctx context.Context, projectID string, keys []core.PeriodKey, mutate func(*core.PeriodBucket)) ([]string, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	periods := make([]string, 0, len(keys))
	for _, p := range keys {
		b, err := s.loadBucket(ctx, projectID, p)
		if err != nil {
			return periods, err
		}
		mutate(&b)
		b.UpdatedAt = s.now().UTC()
		if err := s.store.PutPeriod(ctx, b); err != nil {
			return periods, fmt.Errorf("save period %s: %w", p, err)
		}
		s.invalidate(projectID, p)
		periods = append(periods, p.String())
	}
	return periods, nil
}

func (s *DashboardService) loadBucket(ctx context.Context, projectID string, p core.PeriodKey) (core.PeriodBucket, error) {
	b, err := s.store.GetPeriod(ctx, projectID, p)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return core.NewBucket(projectID, p), nil
	case err != nil:
		return core.PeriodBucket{}, fmt.Errorf("load period %s: %w", p, err)
	}
	return b, nil
}

func (s *DashboardService) finishUpload(ctx context.Context, rec core.UploadRecord, start time.Time, n int, periods []string, err error) {
	rec.ID = s.newID()
	rec.UploadedAt = s.now().UTC()
	rec.RecordsProcessed = n
	rec.Periods = periods
	rec.Status = core.UploadSuccess
	if err != nil {
		rec.Status = core.UploadError
		rec.ErrorMessage = err.Error()
	}
	s.metrics.ObserveUpload(string(rec.Kind), string(rec.Status), s.now().Sub(start))

	if err != nil {
		slog.WarnContext(ctx, "Upload rejected",
			log.FieldComponent, log.ComponentDashboard, "project", rec.ProjectID, "file", rec.Filename,
			"kind", rec.Kind, "error", err)
	} else {
		slog.InfoContext(ctx, "Upload processed",
			log.FieldComponent, log.ComponentDashboard, "project", rec.ProjectID, "file", rec.Filename,
			"kind", rec.Kind, "rows", n, "periods", periods)
	}

	// History is best effort; the rows are already merged.
	if herr := s.store.AddUpload(ctx, rec); herr != nil {
		slog.ErrorContext(ctx, "Failed to record upload history",
			log.FieldComponent, log.ComponentDashboard, "project", rec.ProjectID, "error", herr)
	}
}

// GetKPIsForPeriod returns the report of one month. Months without data
// yield a zeroed report.
func (s *DashboardService) GetKPIsForPeriod(ctx context.Context, projectID, period string) (core.Report, error) {
	if err := checkProject(projectID); err != nil {
		return core.Report{}, err
	}
	p, err := core.ParsePeriodKey(period)
	if err != nil {
		return core.Report{}, err
	}
	return s.report(ctx, projectID, p)
}

func (s *DashboardService) report(ctx context.Context, projectID string, p core.PeriodKey) (core.Report, error) {
	key := cacheKey(projectID, p)
	if s.reports != nil {
		if r, ok := s.reports.Get(key); ok {
			s.metrics.CacheLookup(true)
			return r, nil
		}
		s.metrics.CacheLookup(false)
	}

	b, err := s.store.GetPeriod(ctx, projectID, p)
	if errors.Is(err, storage.ErrNotFound) {
		return core.EmptyReport(), nil
	}
	if err != nil {
		return core.Report{}, fmt.Errorf("load period %s: %w", p, err)
	}
	settings, err := s.GetSettings(ctx, projectID)
	if err != nil {
		return core.Report{}, err
	}

	r := kpi.AggregateBucket(b, settings)
	if s.reports != nil {
		s.reports.Set(key, r)
	}
	return r, nil
}

// AddManualSale appends a hand-entered sale. The date accepts any format
// the spreadsheet parsers understand.
func (s *DashboardService) AddManualSale(ctx context.Context, projectID, date, product string, net, gross decimal.Decimal) (core.SaleRow, error) {
	if err := checkProject(projectID); err != nil {
		return core.SaleRow{}, err
	}
	row := core.SaleRow{
		Date:       parsers.NormalizeDate(date),
		Product:    strings.TrimSpace(product),
		Net:        net,
		Gross:      gross,
		Source:     core.SourceManual,
		ExternalID: s.newID(),
	}
	if err := row.Validate(); err != nil {
		return core.SaleRow{}, fmt.Errorf("manual sale: %w", err)
	}
	p, err := core.PeriodOf(row.Date)
	if err != nil {
		return core.SaleRow{}, err
	}

	if _, err := s.updateBuckets(ctx, projectID, []core.PeriodKey{p}, func(b *core.PeriodBucket) {
		AppendSales(b, row)
	}); err != nil {
		return core.SaleRow{}, err
	}
	s.metrics.AddRows(string(core.SourceManual), 1)
	slog.InfoContext(ctx, "Manual sale added",
		log.FieldComponent, log.ComponentDashboard, "project", projectID, "period", p.String(), "product", row.Product)
	return row, nil
}

// ListManualSales returns the hand-entered sales of a project, newest
// month first.
func (s *DashboardService) ListManualSales(ctx context.Context, projectID string) ([]core.SaleRow, error) {
	if err := checkProject(projectID); err != nil {
		return nil, err
	}
	keys, err := s.store.ListPeriods(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	out := []core.SaleRow{}
	for _, p := range keys {
		b, err := s.store.GetPeriod(ctx, projectID, p)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load period %s: %w", p, err)
		}
		for _, sale := range b.Sales {
			if sale.Source == core.SourceManual {
				out = append(out, sale)
			}
		}
	}
	return out, nil
}

// RemoveManualSale deletes one hand-entered sale from a month.
func (s *DashboardService) RemoveManualSale(ctx context.Context, projectID, period, id string) error {
	if err := checkProject(projectID); err != nil {
		return err
	}
	p, err := core.ParsePeriodKey(period)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	b, err := s.store.GetPeriod(ctx, projectID, p)
	if err != nil {
		return err
	}
	if !RemoveSale(&b, core.SourceManual, id) {
		return storage.ErrNotFound
	}
	b.UpdatedAt = s.now().UTC()
	if err := s.store.PutPeriod(ctx, b); err != nil {
		return fmt.Errorf("save period %s: %w", p, err)
	}
	s.invalidate(projectID, p)
	return nil
}

// RecordWebhookSale upserts a sale received from a platform notification.
// Redelivered notifications replace the earlier row.
func (s *DashboardService) RecordWebhookSale(ctx context.Context, projectID string, sale core.SaleRow) error {
	if err := checkProject(projectID); err != nil {
		return err
	}
	if err := sale.Validate(); err != nil {
		return fmt.Errorf("webhook sale: %w", err)
	}
	p, err := core.PeriodOf(sale.Date)
	if err != nil {
		return err
	}

	var replaced bool
	if _, err := s.updateBuckets(ctx, projectID, []core.PeriodKey{p}, func(b *core.PeriodBucket) {
		replaced = UpsertSaleByExternalID(b, sale)
	}); err != nil {
		return err
	}
	if !replaced {
		s.metrics.AddRows("webhook", 1)
	}
	slog.InfoContext(ctx, "Webhook sale recorded",
		log.FieldComponent, log.ComponentDashboard, "project", projectID, "source", sale.Source,
		"external_id", sale.ExternalID, "replaced", replaced)
	return nil
}

// SyncAdSpend merges rows fetched from the ad platform API. Existing rows
// on fetched dates are replaced.
func (s *DashboardService) SyncAdSpend(ctx context.Context, projectID string, rows []core.AdSpendRow) (int, error) {
	if err := checkProject(projectID); err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("ad spend %s: %w", r.Date, err)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if _, err := s.applyAdSpend(ctx, projectID, rows, UpsertAdSpendByDate); err != nil {
		return 0, err
	}
	s.metrics.AddRows("sync", len(rows))
	return len(rows), nil
}

// ClearPeriod removes every row of one month. Clearing an absent month is
// not an error.
func (s *DashboardService) ClearPeriod(ctx context.Context, projectID, period string) error {
	if err := checkProject(projectID); err != nil {
		return err
	}
	p, err := core.ParsePeriodKey(period)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	if err := s.store.DeletePeriod(ctx, projectID, p); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete period %s: %w", p, err)
	}
	s.invalidate(projectID, p)
	slog.InfoContext(ctx, "Period cleared", log.FieldComponent, log.ComponentDashboard, "project", projectID, "period", p.String())
	return nil
}

// DeleteProject removes every bucket, upload record and setting of a project.
func (s *DashboardService) DeleteProject(ctx context.Context, projectID string) error {
	if err := checkProject(projectID); err != nil {
		return err
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if s.reports != nil {
		s.reports.DeletePrefix(projectID + "|")
	}
	slog.InfoContext(ctx, "Project deleted", log.FieldComponent, log.ComponentDashboard, "project", projectID)
	return nil
}

// AvailablePeriods lists the months holding data, newest first.
func (s *DashboardService) AvailablePeriods(ctx context.Context, projectID string) ([]string, error) {
	if err := checkProject(projectID); err != nil {
		return nil, err
	}
	keys, err := s.store.ListPeriods(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	out := make([]string, len(keys))
	for i, p := range keys {
		out[i] = p.String()
	}
	return out, nil
}

// GetTrends compares a month's totals with the month before.
func (s *DashboardService) GetTrends(ctx context.Context, projectID, period string) ([]core.Trend, error) {
	if err := checkProject(projectID); err != nil {
		return nil, err
	}
	p, err := core.ParsePeriodKey(period)
	if err != nil {
		return nil, err
	}
	cur, err := s.report(ctx, projectID, p)
	if err != nil {
		return nil, err
	}
	prev, err := s.report(ctx, projectID, p.Previous())
	if err != nil {
		return nil, err
	}
	return kpi.CompareTotals(cur.Totals, prev.Totals), nil
}

func (s *DashboardService) GetPayout(ctx context.Context, projectID, period string) (core.Payout, error) {
	if err := checkProject(projectID); err != nil {
		return core.Payout{}, err
	}
	p, err := core.ParsePeriodKey(period)
	if err != nil {
		return core.Payout{}, err
	}
	r, err := s.report(ctx, projectID, p)
	if err != nil {
		return core.Payout{}, err
	}
	settings, err := s.GetSettings(ctx, projectID)
	if err != nil {
		return core.Payout{}, err
	}
	return kpi.ComputePayout(projectID, p, r.Totals, settings), nil
}

// GetSettings returns the stored settings or the defaults.
func (s *DashboardService) GetSettings(ctx context.Context, projectID string) (core.ProjectSettings, error) {
	if err := checkProject(projectID); err != nil {
		return core.ProjectSettings{}, err
	}
	settings, err := s.store.GetSettings(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.DefaultProjectSettings(projectID), nil
	}
	if err != nil {
		return core.ProjectSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings validates and stores settings. Cached reports of the
// project are dropped since overrides change product classification.
func (s *DashboardService) SaveSettings(ctx context.Context, settings core.ProjectSettings) error {
	if err := checkProject(settings.ProjectID); err != nil {
		return err
	}
	if err := validateSettings(settings); err != nil {
		return err
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if s.reports != nil {
		s.reports.DeletePrefix(settings.ProjectID + "|")
	}
	return nil
}

func (s *DashboardService) UploadHistory(ctx context.Context, projectID string, limit int) ([]core.UploadRecord, error) {
	if err := checkProject(projectID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > storage.DefaultUploadLimit {
		limit = storage.DefaultUploadLimit
	}
	recs, err := s.store.ListUploads(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return recs, nil
}

// DeleteUpload removes a history entry. Rows merged by that upload stay.
func (s *DashboardService) DeleteUpload(ctx context.Context, projectID, id string) error {
	if err := checkProject(projectID); err != nil {
		return err
	}
	return s.store.DeleteUpload(ctx, projectID, id)
}

// Ping checks the store when it supports health checks.
func (s *DashboardService) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *DashboardService) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *DashboardService) invalidate(projectID string, p core.PeriodKey) {
	if s.reports != nil {
		s.reports.Delete(cacheKey(projectID, p))
	}
}

func cacheKey(projectID string, p core.PeriodKey) string {
	return projectID + "|" + p.String()
}

func checkProject(projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return core.ErrEmptyProjectID
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

func validateSettings(s core.ProjectSettings) error {
	var problems []string
	check := func(name string, v decimal.Decimal) {
		if v.IsNegative() || v.GreaterThan(hundred) {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 100, got %s", name, v))
		}
	}
	check("platformTax", s.PlatformTaxPct)
	check("tax", s.TaxPct)
	check("participation", s.ParticipationPct)
	for product, c := range s.Classifications {
		if c != core.Principal && c != core.Upsell {
			problems = append(problems, fmt.Sprintf("classification of %q must be Principal or Upsell, got %q", product, c))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}
