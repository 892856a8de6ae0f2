package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"painel/internal/core"
	"painel/internal/log"

	_ "modernc.org/sqlite"
)

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", log.FieldComponent, log.ComponentStorage, "path", dbPath, "version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetPeriod(ctx context.Context, projectID string, period core.PeriodKey) (core.PeriodBucket, error) {
	var adJSON, salesJSON, updated string
	err := r.db.QueryRowContext(ctx,
		`SELECT ad_spend, sales, updated_at FROM period_buckets WHERE project_id = ? AND year = ? AND month = ?`,
		projectID, period.Year, period.Month).Scan(&adJSON, &salesJSON, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PeriodBucket{}, ErrNotFound
	}
	if err != nil {
		return core.PeriodBucket{}, fmt.Errorf("get period %s: %w", period, err)
	}

	b := core.NewBucket(projectID, period)
	if err := json.Unmarshal([]byte(adJSON), &b.AdSpend); err != nil {
		return core.PeriodBucket{}, fmt.Errorf("decode ad spend of %s: %w", period, err)
	}
	if err := json.Unmarshal([]byte(salesJSON), &b.Sales); err != nil {
		return core.PeriodBucket{}, fmt.Errorf("decode sales of %s: %w", period, err)
	}
	b.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return b, nil
}

func (r *SQLiteRepository) PutPeriod(ctx context.Context, b core.PeriodBucket) error {
	if b.ProjectID == "" {
		return core.ErrEmptyProjectID
	}
	ad := b.AdSpend
	if ad == nil {
		ad = []core.AdSpendRow{}
	}
	sales := b.Sales
	if sales == nil {
		sales = []core.SaleRow{}
	}
	adJSON, err := json.Marshal(ad)
	if err != nil {
		return fmt.Errorf("encode ad spend: %w", err)
	}
	salesJSON, err := json.Marshal(sales)
	if err != nil {
		return fmt.Errorf("encode sales: %w", err)
	}
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO period_buckets (project_id, year, month, ad_spend, sales, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, year, month) DO UPDATE SET
			ad_spend = excluded.ad_spend,
			sales = excluded.sales,
			updated_at = excluded.updated_at`,
		b.ProjectID, b.Period.Year, b.Period.Month, string(adJSON), string(salesJSON), updated.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put period %s: %w", b.Period, err)
	}

	slog.DebugContext(ctx, "Period saved to SQLite", log.FieldComponent, log.ComponentStorage,
		"project_id", b.ProjectID,
		"period", b.Period.String(),
		"ad_spend_rows", len(ad),
		"sale_rows", len(sales))
	return nil
}

func (r *SQLiteRepository) DeletePeriod(ctx context.Context, projectID string, period core.PeriodKey) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM period_buckets WHERE project_id = ? AND year = ? AND month = ?`,
		projectID, period.Year, period.Month)
	if err != nil {
		return fmt.Errorf("delete period %s: %w", period, err)
	}
	return nil
}

func (r *SQLiteRepository) ListPeriods(ctx context.Context, projectID string) ([]core.PeriodKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT year, month FROM period_buckets WHERE project_id = ? ORDER BY year DESC, month DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var out []core.PeriodKey
	for rows.Next() {
		var p core.PeriodKey
		if err := rows.Scan(&p.Year, &p.Month); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, projectID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM period_buckets WHERE project_id = ?`,
		`DELETE FROM uploads WHERE project_id = ?`,
		`DELETE FROM project_settings WHERE project_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, projectID); err != nil {
			return fmt.Errorf("delete project %s: %w", projectID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete project: %w", err)
	}

	slog.InfoContext(ctx, "Project deleted from SQLite", log.FieldComponent, log.ComponentStorage, "project_id", projectID)
	return nil
}

func (r *SQLiteRepository) AddUpload(ctx context.Context, rec core.UploadRecord) error {
	periods := rec.Periods
	if periods == nil {
		periods = []string{}
	}
	periodsJSON, err := json.Marshal(periods)
	if err != nil {
		return fmt.Errorf("encode upload periods: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO uploads (id, project_id, filename, kind, periods, file_size, records_processed, status, error_message, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProjectID, rec.Filename, string(rec.Kind), string(periodsJSON), rec.FileSize,
		rec.RecordsProcessed, string(rec.Status), rec.ErrorMessage, rec.UploadedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("add upload: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListUploads(ctx context.Context, projectID string, limit int) ([]core.UploadRecord, error) {
	if limit <= 0 {
		limit = DefaultUploadLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, filename, kind, periods, file_size, records_processed, status, error_message, uploaded_at
		FROM uploads WHERE project_id = ?
		ORDER BY uploaded_at DESC, rowid DESC
		LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []core.UploadRecord
	for rows.Next() {
		var (
			rec               core.UploadRecord
			kind, status      string
			periods, uploaded string
		)
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.Filename, &kind, &periods, &rec.FileSize,
			&rec.RecordsProcessed, &status, &rec.ErrorMessage, &uploaded); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		rec.Kind = core.Kind(kind)
		rec.Status = core.UploadStatus(status)
		if err := json.Unmarshal([]byte(periods), &rec.Periods); err != nil {
			return nil, fmt.Errorf("decode upload periods: %w", err)
		}
		rec.UploadedAt, _ = time.Parse(timeLayout, uploaded)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteUpload(ctx context.Context, projectID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE project_id = ? AND id = ?`, projectID, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetSettings(ctx context.Context, projectID string) (core.ProjectSettings, error) {
	var platformTax, tax, participation, classifications string
	err := r.db.QueryRowContext(ctx,
		`SELECT platform_tax, tax, participation, classifications FROM project_settings WHERE project_id = ?`,
		projectID).Scan(&platformTax, &tax, &participation, &classifications)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProjectSettings{}, ErrNotFound
	}
	if err != nil {
		return core.ProjectSettings{}, fmt.Errorf("get settings: %w", err)
	}

	s := core.ProjectSettings{ProjectID: projectID}
	if s.PlatformTaxPct, err = decimal.NewFromString(platformTax); err != nil {
		return core.ProjectSettings{}, fmt.Errorf("decode platform tax: %w", err)
	}
	if s.TaxPct, err = decimal.NewFromString(tax); err != nil {
		return core.ProjectSettings{}, fmt.Errorf("decode tax: %w", err)
	}
	if s.ParticipationPct, err = decimal.NewFromString(participation); err != nil {
		return core.ProjectSettings{}, fmt.Errorf("decode participation: %w", err)
	}
	if err := json.Unmarshal([]byte(classifications), &s.Classifications); err != nil {
		return core.ProjectSettings{}, fmt.Errorf("decode classifications: %w", err)
	}
	if len(s.Classifications) == 0 {
		s.Classifications = nil
	}
	return s, nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.ProjectSettings) error {
	if s.ProjectID == "" {
		return core.ErrEmptyProjectID
	}
	classifications := s.Classifications
	if classifications == nil {
		classifications = map[string]core.Classification{}
	}
	classJSON, err := json.Marshal(classifications)
	if err != nil {
		return fmt.Errorf("encode classifications: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO project_settings (project_id, platform_tax, tax, participation, classifications, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id) DO UPDATE SET
			platform_tax = excluded.platform_tax,
			tax = excluded.tax,
			participation = excluded.participation,
			classifications = excluded.classifications,
			updated_at = excluded.updated_at`,
		s.ProjectID, s.PlatformTaxPct.String(), s.TaxPct.String(), s.ParticipationPct.String(),
		string(classJSON), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
