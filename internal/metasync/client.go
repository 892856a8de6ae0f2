// Package metasync pulls daily ad spend from the Meta Marketing API and
// merges it into project buckets.
package metasync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"painel/internal/core"
)

const (
	DefaultBaseURL = "https://graph.facebook.com/v19.0"
	maxPages       = 50
)

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("meta api: status %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Client struct {
	httpc     HTTPClient
	baseURL   string
	token     string
	retries   int
	baseDelay time.Duration
}

func NewClient(httpc HTTPClient, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpc:     httpc,
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		retries:   3,
		baseDelay: 200 * time.Millisecond,
	}
}

type insightsPage struct {
	Data []struct {
		Spend     string `json:"spend"`
		DateStart string `json:"date_start"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchDailySpend returns one row per day with positive spend for the
// account between since and until, both inclusive.
func (c *Client) FetchDailySpend(ctx context.Context, accountID string, since, until time.Time) ([]core.AdSpendRow, error) {
	if !strings.HasPrefix(accountID, "act_") {
		accountID = "act_" + accountID
	}
	q := url.Values{}
	q.Set("fields", "spend,date_start")
	q.Set("level", "account")
	q.Set("time_increment", "1")
	q.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`, since.Format("2006-01-02"), until.Format("2006-01-02")))
	q.Set("access_token", c.token)
	next := c.baseURL + "/" + accountID + "/insights?" + q.Encode()

	var rows []core.AdSpendRow
	for page := 0; next != "" && page < maxPages; page++ {
		var p insightsPage
		if err := c.getJSONWithRetry(ctx, next, &p); err != nil {
			return nil, fmt.Errorf("fetch insights for %s: %w", accountID, err)
		}
		for _, d := range p.Data {
			spend, err := decimal.NewFromString(d.Spend)
			if err != nil || !spend.IsPositive() || !core.IsISODate(d.DateStart) {
				continue
			}
			rows = append(rows, core.AdSpendRow{Date: d.DateStart, Investment: spend})
		}
		next = p.Paging.Next
	}
	return rows, nil
}

// getJSONWithRetry retries transport errors, 429 and 5xx with exponential
// backoff plus jitter. Other statuses fail at once.
func (c *Client) getJSONWithRetry(ctx context.Context, u string, dst any) error {
	var lastErr error
	for i := 0; i <= c.retries; i++ {
		if i > 0 {
			sleep := time.Duration(1<<(i-1)) * c.baseDelay
			sleep += time.Duration(rand.Int63n(int64(c.baseDelay) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		}

		err := c.getJSON(ctx, u, dst)
		if err == nil {
			return nil
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
