package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"painel/internal/core"
)

type bucketKey struct {
	project string
	period  core.PeriodKey
}

// MemoryStore keeps everything in process memory. Values are copied on the
// way in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	buckets  map[bucketKey]core.PeriodBucket
	uploads  map[string][]core.UploadRecord
	settings map[string]core.ProjectSettings
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:  map[bucketKey]core.PeriodBucket{},
		uploads:  map[string][]core.UploadRecord{},
		settings: map[string]core.ProjectSettings{},
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetPeriod(_ context.Context, projectID string, period core.PeriodKey) (core.PeriodBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[bucketKey{projectID, period}]
	if !ok {
		return core.PeriodBucket{}, ErrNotFound
	}
	return cloneBucket(b), nil
}

func (m *MemoryStore) PutPeriod(_ context.Context, b core.PeriodBucket) error {
	if b.ProjectID == "" {
		return core.ErrEmptyProjectID
	}
	b = cloneBucket(b)
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucketKey{b.ProjectID, b.Period}] = b
	return nil
}

func (m *MemoryStore) DeletePeriod(_ context.Context, projectID string, period core.PeriodKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, bucketKey{projectID, period})
	return nil
}

func (m *MemoryStore) ListPeriods(_ context.Context, projectID string) ([]core.PeriodKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.PeriodKey
	for k := range m.buckets {
		if k.project == projectID {
			out = append(out, k.period)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() > out[j].String() })
	return out, nil
}

func (m *MemoryStore) DeleteProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.buckets {
		if k.project == projectID {
			delete(m.buckets, k)
		}
	}
	delete(m.uploads, projectID)
	delete(m.settings, projectID)
	return nil
}

func (m *MemoryStore) AddUpload(_ context.Context, rec core.UploadRecord) error {
	rec.Periods = append([]string(nil), rec.Periods...)
	m.mu.Lock()
	defer m.mu.Unlock()
	// newest first
	m.uploads[rec.ProjectID] = append([]core.UploadRecord{rec}, m.uploads[rec.ProjectID]...)
	return nil
}

func (m *MemoryStore) ListUploads(_ context.Context, projectID string, limit int) ([]core.UploadRecord, error) {
	if limit <= 0 {
		limit = DefaultUploadLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.uploads[projectID]
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]core.UploadRecord, len(list))
	for i, rec := range list {
		rec.Periods = append([]string(nil), rec.Periods...)
		out[i] = rec
	}
	return out, nil
}

func (m *MemoryStore) DeleteUpload(_ context.Context, projectID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.uploads[projectID]
	for i, rec := range list {
		if rec.ID == id {
			m.uploads[projectID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) GetSettings(_ context.Context, projectID string) (core.ProjectSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[projectID]
	if !ok {
		return core.ProjectSettings{}, ErrNotFound
	}
	return cloneSettings(s), nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s core.ProjectSettings) error {
	if s.ProjectID == "" {
		return core.ErrEmptyProjectID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.ProjectID] = cloneSettings(s)
	return nil
}

func cloneBucket(b core.PeriodBucket) core.PeriodBucket {
	b.AdSpend = append([]core.AdSpendRow{}, b.AdSpend...)
	b.Sales = append([]core.SaleRow{}, b.Sales...)
	return b
}

func cloneSettings(s core.ProjectSettings) core.ProjectSettings {
	if s.Classifications == nil {
		return s
	}
	c := make(map[string]core.Classification, len(s.Classifications))
	for k, v := range s.Classifications {
		c[k] = v
	}
	s.Classifications = c
	return s
}
