package metasync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/metrics"
)

// Fetcher reads daily spend for one ad account.
type Fetcher interface {
	FetchDailySpend(ctx context.Context, accountID string, since, until time.Time) ([]core.AdSpendRow, error)
}

// Sink merges fetched rows into a project.
type Sink interface {
	SyncAdSpend(ctx context.Context, projectID string, rows []core.AdSpendRow) (int, error)
}

type Syncer struct {
	fetcher     Fetcher
	sink        Sink
	accounts    map[string]string
	lookback    int
	concurrency int
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewSyncer syncs every project in accounts (project id to ad account id).
// lookback is the number of past days fetched on each run, today included.
func NewSyncer(f Fetcher, sink Sink, accounts map[string]string, lookback, concurrency int, m *metrics.Metrics) *Syncer {
	if lookback <= 0 {
		lookback = 7
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Syncer{
		fetcher:     f,
		sink:        sink,
		accounts:    accounts,
		lookback:    lookback,
		concurrency: concurrency,
		metrics:     m,
		now:         time.Now,
	}
}

// SyncAll runs one pass over all projects. A failing project does not stop
// the others; the failures are joined in the returned error.
func (s *Syncer) SyncAll(ctx context.Context) error {
	until := s.now()
	since := until.AddDate(0, 0, -(s.lookback - 1))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, project := range s.projects() {
		project := project
		account := s.accounts[project]
		g.Go(func() error {
			n, err := s.syncProject(ctx, project, account, since, until)
			if err != nil {
				s.metrics.SyncRun("error")
				slog.ErrorContext(ctx, "Ad spend sync failed",
					log.FieldComponent, log.ComponentMetaSync, "project", project, "account", account, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("project %s: %w", project, err))
				mu.Unlock()
				return nil
			}
			s.metrics.SyncRun("success")
			slog.InfoContext(ctx, "Ad spend synced",
				log.FieldComponent, log.ComponentMetaSync, "project", project, "rows", n)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Syncer) syncProject(ctx context.Context, project, account string, since, until time.Time) (int, error) {
	rows, err := s.fetcher.FetchDailySpend(ctx, account, since, until)
	if err != nil {
		return 0, err
	}
	return s.sink.SyncAdSpend(ctx, project, rows)
}

func (s *Syncer) projects() []string {
	out := make([]string, 0, len(s.accounts))
	for p := range s.accounts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ParseAccounts reads "project=account,project2=account2".
func ParseAccounts(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		project, account, ok := strings.Cut(pair, "=")
		project, account = strings.TrimSpace(project), strings.TrimSpace(account)
		if !ok || project == "" || account == "" {
			return nil, fmt.Errorf("invalid ad account mapping %q (expected project=account)", pair)
		}
		out[project] = account
	}
	return out, nil
}
