package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/metrics"
	"painel/internal/services"
	"painel/internal/storage"
	"painel/internal/webhook"
)

const hotmartCSV = "Data da transação;STATUS DA TRANSAÇÃO;PRODUTO;FATURAMENTO LÍQUIDO DO(A) PRODUTOR(A)\n" +
	"10/01/2025;Aprovado;Curso;100,00\n" +
	"11/01/2025;Aprovado;Curso Upsell;50,00\n"

const hotmartEvent = `{
  "event": "%s",
  "hottok": "tok",
  "data": {
    "product": {"name": "Curso"},
    "purchase": {
      "transaction": "HP1",
      "approved_date": 1736510400000,
      "price": {"value": 100},
      "commission": {"value": 10}
    }
  }
}`

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) PublishWebhookSale(_ context.Context, _ string, _ core.SaleRow) error {
	f.calls++
	return f.err
}

type testEnv struct {
	srv  *Server
	dash *services.DashboardService
}

func newTestEnv(t *testing.T, opts Options, pub services.SalePublisher) testEnv {
	t.Helper()
	n := 0
	dash := services.NewDashboardService(storage.NewMemoryStore(),
		services.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }))
	hooks := services.NewWebhookService(dash, pub, opts.Metrics)
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	}
	srv := NewServer(":0", dash, hooks, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return testEnv{srv: srv, dash: dash}
}

func (e testEnv) do(t *testing.T, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e testEnv) upload(t *testing.T, target, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return e.do(t, http.MethodPost, target, &buf, http.Header{"Content-Type": {mw.FormDataContentType()}})
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	rr := env.do(t, http.MethodGet, "/healthz", nil, http.Header{"X-Request-Id": {"abc-123"}})
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestUploadThenQuery(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.upload(t, "/projects/p1/uploads?kind=hotmart", "vendas.csv", hotmartCSV)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rr.Code, rr.Body.String())
	}
	up := decodeBody[uploadResponse](t, rr)
	if up.RecordsProcessed != 2 || up.Kind != core.KindHotmart || up.Filename != "vendas.csv" {
		t.Errorf("upload response = %+v", up)
	}

	rr = env.do(t, http.MethodGet, "/projects/p1/periods/2025-01/kpis", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("kpis status = %d", rr.Code)
	}
	report := decodeBody[core.Report](t, rr)
	if report.Totals.TotalSales != 2 || !report.Totals.TotalRevenueNet.Equal(decimal.NewFromInt(150)) {
		t.Errorf("totals = %+v", report.Totals)
	}
	if len(report.ByProduct) != 2 {
		t.Errorf("products = %d, want 2", len(report.ByProduct))
	}

	rr = env.do(t, http.MethodGet, "/projects/p1/periods", nil, nil)
	periods := decodeBody[map[string][]string](t, rr)
	if got := periods["periods"]; len(got) != 1 || got[0] != "2025-01" {
		t.Errorf("periods = %v", got)
	}

	rr = env.do(t, http.MethodGet, "/projects/p1/uploads", nil, nil)
	history := decodeBody[[]core.UploadRecord](t, rr)
	if len(history) != 1 || history[0].Status != core.UploadSuccess || history[0].RecordsProcessed != 2 {
		t.Errorf("history = %+v", history)
	}

	rr = env.do(t, http.MethodDelete, "/projects/p1/uploads/"+history[0].ID, nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("delete upload status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, "/projects/p1/uploads/"+history[0].ID, nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete upload status = %d, want 404", rr.Code)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		filename string
		content  string
		want     int
	}{
		{"missing kind", "/projects/p1/uploads", "a.csv", hotmartCSV, http.StatusBadRequest},
		{"unknown kind", "/projects/p1/uploads?kind=eduzz", "a.csv", hotmartCSV, http.StatusBadRequest},
		{"bad header row", "/projects/p1/uploads?kind=meta&header_row=x", "a.csv", hotmartCSV, http.StatusBadRequest},
		{"missing file", "/projects/p1/uploads?kind=hotmart", "", "", http.StatusBadRequest},
		{"unrecognized layout", "/projects/p1/uploads?kind=hotmart", "a.csv", "foo;bar\n1;2\n", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{}, nil)
			rr := env.upload(t, tt.target, tt.filename, tt.content)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
			if body := decodeBody[errorBody](t, rr); body.Error == "" {
				t.Error("error body is empty")
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, Options{MaxUploadBytes: 64}, nil)
	rr := env.upload(t, "/projects/p1/uploads?kind=hotmart", "big.csv", strings.Repeat(hotmartCSV, 10))
	if rr.Code != http.StatusRequestEntityTooLarge && rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 413 or 400", rr.Code)
	}
}

func TestKPIsPeriodValidation(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.do(t, http.MethodGet, "/projects/p1/periods/2025-13/kpis", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid period status = %d, want 400", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/projects/p1/periods/2024-02/kpis", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("empty period status = %d", rr.Code)
	}
	report := decodeBody[core.Report](t, rr)
	if report.Totals.TotalSales != 0 || !report.Totals.TotalInvestment.IsZero() {
		t.Errorf("empty report totals = %+v", report.Totals)
	}
}

func TestManualSaleLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	body := `{"date":"15/01/2025","product":"Mentoria","net":300,"gross":"320.50"}`
	rr := env.do(t, http.MethodPost, "/projects/p1/sales", strings.NewReader(body), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rr.Code, rr.Body.String())
	}
	sale := decodeBody[core.SaleRow](t, rr)
	if sale.Date != "2025-01-15" || sale.Source != core.SourceManual || sale.ExternalID != "id-1" {
		t.Errorf("sale = %+v", sale)
	}

	rr = env.do(t, http.MethodGet, "/projects/p1/sales", nil, nil)
	if sales := decodeBody[[]core.SaleRow](t, rr); len(sales) != 1 {
		t.Fatalf("manual sales = %d, want 1", len(sales))
	}

	rr = env.do(t, http.MethodDelete, "/projects/p1/periods/2025-01/sales/id-1", nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, "/projects/p1/periods/2025-01/sales/id-1", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rr.Code)
	}
}

func TestManualSaleValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero net", `{"date":"2025-01-15","product":"X","net":0}`},
		{"bad date", `{"date":"soon","product":"X","net":10}`},
		{"empty product", `{"date":"2025-01-15","product":"  ","net":10}`},
		{"unknown field", `{"date":"2025-01-15","product":"X","net":10,"qty":2}`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{}, nil)
			rr := env.do(t, http.MethodPost, "/projects/p1/sales", strings.NewReader(tt.body), nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.do(t, http.MethodGet, "/projects/p1/settings", nil, nil)
	got := decodeBody[core.ProjectSettings](t, rr)
	if !got.PlatformTaxPct.Equal(decimal.NewFromInt(6)) || got.ProjectID != "p1" {
		t.Errorf("default settings = %+v", got)
	}

	body := `{"projectId":"other","platformTax":10,"tax":5,"participation":50,"classifications":{"Curso":"Upsell"}}`
	rr = env.do(t, http.MethodPut, "/projects/p1/settings", strings.NewReader(body), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rr.Code, rr.Body.String())
	}
	got = decodeBody[core.ProjectSettings](t, rr)
	if got.ProjectID != "p1" || !got.ParticipationPct.Equal(decimal.NewFromInt(50)) || got.Classifications["Curso"] != core.Upsell {
		t.Errorf("saved settings = %+v", got)
	}

	rr = env.do(t, http.MethodPut, "/projects/p1/settings", strings.NewReader(`{"platformTax":150}`), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("out of range status = %d, want 400", rr.Code)
	}
}

func TestTrendsAndPayout(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	env.upload(t, "/projects/p1/uploads?kind=hotmart", "vendas.csv", hotmartCSV)

	rr := env.do(t, http.MethodGet, "/projects/p1/periods/2025-01/trends", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("trends status = %d", rr.Code)
	}
	trends := decodeBody[struct {
		Period string       `json:"period"`
		Trends []core.Trend `json:"trends"`
	}](t, rr)
	if trends.Period != "2025-01" || len(trends.Trends) == 0 {
		t.Errorf("trends = %+v", trends)
	}

	rr = env.do(t, http.MethodGet, "/projects/p1/periods/2025-01/payout", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("payout status = %d", rr.Code)
	}
	payout := decodeBody[core.Payout](t, rr)
	if !payout.RevenueNet.Equal(decimal.NewFromInt(150)) {
		t.Errorf("payout revenue = %s, want 150", payout.RevenueNet)
	}
}

func TestClearPeriodAndDeleteProject(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	env.upload(t, "/projects/p1/uploads?kind=hotmart", "vendas.csv", hotmartCSV)

	for _, target := range []string{"/projects/p1/periods/2025-01", "/projects/p1/periods/2025-01"} {
		if rr := env.do(t, http.MethodDelete, target, nil, nil); rr.Code != http.StatusNoContent {
			t.Fatalf("clear status = %d", rr.Code)
		}
	}
	rr := env.do(t, http.MethodGet, "/projects/p1/periods/2025-01/kpis", nil, nil)
	if report := decodeBody[core.Report](t, rr); report.Totals.TotalSales != 0 {
		t.Errorf("sales after clear = %d", report.Totals.TotalSales)
	}

	if rr := env.do(t, http.MethodDelete, "/projects/p1", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete project status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/projects/p1/uploads", nil, nil)
	if history := decodeBody[[]core.UploadRecord](t, rr); len(history) != 0 {
		t.Errorf("history after delete = %d records", len(history))
	}
}

func TestImportWithoutSheetSource(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	body := `{"spreadsheet_id":"abc","range":"Vendas!A1:Z","kind":"hotmart"}`
	rr := env.do(t, http.MethodPost, "/projects/p1/imports", strings.NewReader(body), nil)
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/projects/p1/imports", strings.NewReader(`{"kind":"hotmart"}`), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing fields status = %d, want 400", rr.Code)
	}
}

func TestWebhookHotmart(t *testing.T) {
	approved := fmt.Sprintf(hotmartEvent, "PURCHASE_APPROVED")
	refunded := fmt.Sprintf(hotmartEvent, "PURCHASE_REFUNDED")

	tests := []struct {
		name       string
		target     string
		body       string
		header     http.Header
		wantCode   int
		wantStatus string
	}{
		{"recorded via header token", "/webhooks/hotmart?project_id=p1", approved, http.Header{"X-Hotmart-Hottok": {"tok"}}, http.StatusOK, "recorded"},
		{"recorded via body token", "/webhooks/hotmart?project_id=p1", approved, nil, http.StatusOK, "recorded"},
		{"wrong token", "/webhooks/hotmart?project_id=p1", approved, http.Header{"X-Hotmart-Hottok": {"nope"}}, http.StatusUnauthorized, ""},
		{"ignored event", "/webhooks/hotmart?project_id=p1", refunded, nil, http.StatusOK, "ignored"},
		{"missing project", "/webhooks/hotmart", approved, nil, http.StatusBadRequest, ""},
		{"malformed", "/webhooks/hotmart?project_id=p1", `{"hottok":"tok","event":`, http.Header{"X-Hotmart-Hottok": {"tok"}}, http.StatusBadRequest, ""},
		{"unknown platform", "/webhooks/eduzz?project_id=p1", approved, nil, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{HotmartHottok: "tok"}, nil)
			rr := env.do(t, http.MethodPost, tt.target, strings.NewReader(tt.body), tt.header)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantStatus != "" {
				if got := decodeBody[webhookResponse](t, rr); got.Status != tt.wantStatus {
					t.Errorf("status field = %q, want %q", got.Status, tt.wantStatus)
				}
			}
		})
	}
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	approved := fmt.Sprintf(hotmartEvent, "PURCHASE_APPROVED")
	for i := 0; i < 3; i++ {
		rr := env.do(t, http.MethodPost, "/webhooks/hotmart?project_id=p1", strings.NewReader(approved), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d", i, rr.Code)
		}
	}
	report, err := env.dash.GetKPIsForPeriod(context.Background(), "p1", "2025-01")
	if err != nil {
		t.Fatal(err)
	}
	if report.Totals.TotalSales != 1 || !report.Totals.TotalRevenueNet.Equal(decimal.NewFromInt(90)) {
		t.Errorf("totals = %+v, want 1 sale of 90", report.Totals)
	}
}

func TestWebhookQueuedAndFallback(t *testing.T) {
	approved := fmt.Sprintf(hotmartEvent, "PURCHASE_APPROVED")

	pub := &fakePublisher{}
	env := newTestEnv(t, Options{}, pub)
	rr := env.do(t, http.MethodPost, "/webhooks/hotmart?project_id=p1", strings.NewReader(approved), nil)
	if rr.Code != http.StatusAccepted || pub.calls != 1 {
		t.Fatalf("queued: status = %d, calls = %d", rr.Code, pub.calls)
	}

	failing := &fakePublisher{err: errors.New("broker down")}
	env = newTestEnv(t, Options{}, failing)
	rr = env.do(t, http.MethodPost, "/webhooks/hotmart?project_id=p1", strings.NewReader(approved), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("fallback status = %d", rr.Code)
	}
	if got := decodeBody[webhookResponse](t, rr); got.Status != "recorded" || got.Period != "2025-01" {
		t.Errorf("fallback response = %+v", got)
	}
}

func TestWebhookKiwifySignature(t *testing.T) {
	body := `{"event":"order.paid","data":{"order":{"id":"ord_1","created_at":"2025-01-10 09:15:00",` +
		`"Product":{"name":"Ebook"},"charges":[{"amount":50,"net_amount":45}]}}}`
	sig := webhook.Sign([]byte(body), "secret")

	env := newTestEnv(t, Options{KiwifySecret: "secret"}, nil)
	rr := env.do(t, http.MethodPost, "/webhooks/kiwify?project_id=p1&signature="+sig, strings.NewReader(body), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("signed status = %d, body %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/webhooks/kiwify?project_id=p1&signature=deadbeef", strings.NewReader(body), nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d, want 401", rr.Code)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	env := newTestEnv(t, Options{RequestsPerMinute: 2}, nil)
	body := `{"date":"2025-01-15","product":"X","net":10}`

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = env.do(t, http.MethodPost, "/projects/p1/sales", strings.NewReader(body), nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third write status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Error("missing Retry-After")
	}

	if rr := env.do(t, http.MethodGet, "/projects/p1/sales", nil, nil); rr.Code != http.StatusOK {
		t.Errorf("reads are not limited, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	env := newTestEnv(t, Options{Metrics: m}, nil)

	env.do(t, http.MethodGet, "/projects/p1/periods/2025-01/kpis", nil, nil)
	rr := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	want := `painel_http_requests_total{code="200",method="GET",route="/projects/{project}/periods/{period}/kpis"} 1`
	if !strings.Contains(rr.Body.String(), want) {
		t.Errorf("exposition missing %s", want)
	}
}
