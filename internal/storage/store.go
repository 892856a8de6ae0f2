package storage

import (
	"context"
	"errors"

	"painel/internal/core"
)

// ErrNotFound is returned when a bucket, upload or settings row is absent.
var ErrNotFound = errors.New("not found")

// DefaultUploadLimit caps upload history listings.
const DefaultUploadLimit = 50

// Store persists period buckets and project metadata. At most one bucket
// exists per project and period; PutPeriod replaces it.
type Store interface {
	GetPeriod(ctx context.Context, projectID string, period core.PeriodKey) (core.PeriodBucket, error)
	PutPeriod(ctx context.Context, b core.PeriodBucket) error
	DeletePeriod(ctx context.Context, projectID string, period core.PeriodKey) error
	// ListPeriods returns the periods of a project, newest first.
	ListPeriods(ctx context.Context, projectID string) ([]core.PeriodKey, error)
	// DeleteProject removes buckets, upload history and settings.
	DeleteProject(ctx context.Context, projectID string) error

	AddUpload(ctx context.Context, rec core.UploadRecord) error
	// ListUploads returns the newest records first.
	ListUploads(ctx context.Context, projectID string, limit int) ([]core.UploadRecord, error)
	DeleteUpload(ctx context.Context, projectID, id string) error

	GetSettings(ctx context.Context, projectID string) (core.ProjectSettings, error)
	SaveSettings(ctx context.Context, s core.ProjectSettings) error

	Close() error
}
