package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"painel/internal/cache"
	"painel/internal/core"
	"painel/internal/parsers"
	"painel/internal/sheets"
	"painel/internal/sheets/memory"
	"painel/internal/storage"
)

const (
	hotmartJan = "Data da transação;STATUS DA TRANSAÇÃO;PRODUTO;FATURAMENTO LÍQUIDO DO(A) PRODUTOR(A)\n" +
		"10/01/2025;Aprovado;Curso;100,00\n" +
		"11/01/2025;Aprovado;Curso Upsell;50,00\n"
	hotmartJanAgain = "Data da transação;STATUS DA TRANSAÇÃO;PRODUTO;FATURAMENTO LÍQUIDO DO(A) PRODUTOR(A)\n" +
		"12/01/2025;Aprovado;Curso;80,00\n"
	hotmartTwoMonths = "Data da transação;STATUS DA TRANSAÇÃO;PRODUTO;FATURAMENTO LÍQUIDO DO(A) PRODUTOR(A)\n" +
		"31/01/2025;Aprovado;Curso;100,00\n" +
		"01/02/2025;Aprovado;Curso;70,00\n"
	kiwifyJan = "Data de Criação,Status,Produto,Preço base do produto,Taxas\n" +
		"2025-01-12,paid,Ebook,40.00,4.00\n"
	metaJan = "Data,Valor usado (BRL)\n" +
		"2025-01-10,100\n" +
		"2025-01-11,50\n"
)

// stepClock advances one second per call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T, opts ...Option) (*DashboardService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := &stepClock{t: time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)}
	n := 0
	base := []Option{
		WithReportCache(cache.NewLRUCache[core.Report](100, time.Hour)),
		WithClock(clock.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	}
	return NewDashboardService(store, append(base, opts...)...), store
}

func mustUpload(t *testing.T, s *DashboardService, project, name, body string, kind core.Kind) int {
	t.Helper()
	n, err := s.UploadFile(context.Background(), project, name, []byte(body), kind, nil)
	if err != nil {
		t.Fatalf("UploadFile(%s) error = %v", name, err)
	}
	return n
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestUploadFile_ReuploadReplacesOnlyThatPlatform(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if n := mustUpload(t, s, "p1", "hotmart.csv", hotmartJan, core.KindHotmart); n != 2 {
		t.Fatalf("hotmart rows = %d, want 2", n)
	}
	mustUpload(t, s, "p1", "kiwify.csv", kiwifyJan, core.KindKiwify)
	mustUpload(t, s, "p1", "meta.csv", metaJan, core.KindMeta)

	r, err := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if err != nil {
		t.Fatalf("GetKPIsForPeriod() error = %v", err)
	}
	if r.Totals.TotalSales != 3 || !r.Totals.TotalRevenueNet.Equal(dec("186")) {
		t.Fatalf("before re-upload: sales=%d net=%s, want 3 and 186", r.Totals.TotalSales, r.Totals.TotalRevenueNet)
	}

	mustUpload(t, s, "p1", "hotmart2.csv", hotmartJanAgain, core.KindHotmart)

	r, err = s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if err != nil {
		t.Fatalf("GetKPIsForPeriod() error = %v", err)
	}
	if r.Totals.TotalSales != 2 {
		t.Errorf("TotalSales = %d, want 2", r.Totals.TotalSales)
	}
	if !r.Totals.TotalRevenueNet.Equal(dec("116")) {
		t.Errorf("TotalRevenueNet = %s, want 116", r.Totals.TotalRevenueNet)
	}
	if !r.Totals.TotalInvestment.Equal(dec("150")) {
		t.Errorf("TotalInvestment = %s, want 150", r.Totals.TotalInvestment)
	}
	if !r.Totals.Profit.Equal(dec("-34")) {
		t.Errorf("Profit = %s, want -34", r.Totals.Profit)
	}
}

func TestUploadFile_MetaReuploadReplacesAdSpend(t *testing.T) {
	s, _ := newTestService(t)
	mustUpload(t, s, "p1", "meta.csv", metaJan, core.KindMeta)
	mustUpload(t, s, "p1", "meta.csv", "Data,Valor usado (BRL)\n2025-01-20,30\n", core.KindMeta)

	r, _ := s.GetKPIsForPeriod(context.Background(), "p1", "2025-01")
	if !r.Totals.TotalInvestment.Equal(dec("30")) || r.Totals.TotalDays != 1 {
		t.Errorf("investment=%s days=%d, want 30 and 1", r.Totals.TotalInvestment, r.Totals.TotalDays)
	}
}

func TestUploadFile_SplitsRowsByMonth(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustUpload(t, s, "p1", "hotmart.csv", hotmartTwoMonths, core.KindHotmart)

	periods, err := s.AvailablePeriods(ctx, "p1")
	if err != nil {
		t.Fatalf("AvailablePeriods() error = %v", err)
	}
	if len(periods) != 2 || periods[0] != "2025-02" || periods[1] != "2025-01" {
		t.Fatalf("periods = %v, want [2025-02 2025-01]", periods)
	}

	feb, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-02")
	if feb.Totals.TotalSales != 1 || !feb.Totals.TotalRevenueNet.Equal(dec("70")) {
		t.Errorf("february = %d sales / %s, want 1 / 70", feb.Totals.TotalSales, feb.Totals.TotalRevenueNet)
	}

	hist, _ := s.UploadHistory(ctx, "p1", 0)
	if len(hist) != 1 {
		t.Fatalf("history len = %d, want 1", len(hist))
	}
	if got := hist[0].Periods; len(got) != 2 || got[0] != "2025-01" || got[1] != "2025-02" {
		t.Errorf("recorded periods = %v", got)
	}
	if hist[0].Status != core.UploadSuccess || hist[0].RecordsProcessed != 2 {
		t.Errorf("record = %+v", hist[0])
	}
}

func TestUploadFile_Failures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    core.Kind
		wantErr func(error) bool
	}{
		{
			name:    "empty file",
			body:    "   ",
			kind:    core.KindMeta,
			wantErr: func(err error) bool { return errors.Is(err, sheets.ErrEmptySheet) },
		},
		{
			name: "meta without recognizable header",
			body: "foo,bar\n1,2\n",
			kind: core.KindMeta,
			wantErr: func(err error) bool {
				var h *parsers.HeaderNotFoundError
				return errors.As(err, &h)
			},
		},
		{
			name: "kiwify with missing columns",
			body: "Produto,Valor\nCurso,10\n",
			kind: core.KindKiwify,
			wantErr: func(err error) bool {
				var m *parsers.MissingColumnsError
				return errors.As(err, &m)
			},
		},
		{
			name: "hotmart with no approved rows",
			body: "Data da transação;STATUS DA TRANSAÇÃO;PRODUTO;FATURAMENTO LÍQUIDO DO(A) PRODUTOR(A)\n10/01/2025;Cancelado;Curso;10\n",
			kind: core.KindHotmart,
			wantErr: func(err error) bool {
				var nv *parsers.NoValidTransactionsError
				return errors.As(err, &nv)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t)
			ctx := context.Background()
			n, err := s.UploadFile(ctx, "p1", "file.csv", []byte(tt.body), tt.kind, nil)
			if err == nil || !tt.wantErr(err) {
				t.Fatalf("UploadFile() error = %v", err)
			}
			if n != 0 {
				t.Errorf("rows = %d, want 0", n)
			}

			hist, _ := s.UploadHistory(ctx, "p1", 10)
			if len(hist) != 1 || hist[0].Status != core.UploadError || hist[0].ErrorMessage == "" {
				t.Errorf("history = %+v, want one error record", hist)
			}
			periods, _ := s.AvailablePeriods(ctx, "p1")
			if len(periods) != 0 {
				t.Errorf("periods = %v, want none", periods)
			}
		})
	}
}

func TestUploadFile_RejectsBadInput(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.UploadFile(ctx, "p1", "x.csv", []byte(metaJan), core.Kind("tiktok"), nil); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("bad kind error = %v", err)
	}
	if _, err := s.UploadFile(ctx, " ", "x.csv", []byte(metaJan), core.KindMeta, nil); !errors.Is(err, core.ErrEmptyProjectID) {
		t.Errorf("empty project error = %v", err)
	}
}

func TestUploadFile_ExplicitHeaderRow(t *testing.T) {
	s, _ := newTestService(t)
	body := "Relatório,\n,\nData,Valor usado (BRL)\n2025-01-10,25\n"
	hr := 2
	n, err := s.UploadFile(context.Background(), "p1", "meta.csv", []byte(body), core.KindMeta, &hr)
	if err != nil || n != 1 {
		t.Fatalf("UploadFile() = %d, %v", n, err)
	}
}

func TestUploadFile_SkipsImpossibleDatesInsteadOfFailing(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	body := "Data da transação;STATUS DA TRANSAÇÃO;PRODUTO;FATURAMENTO LÍQUIDO DO(A) PRODUTOR(A)\n" +
		"15/08/2025;Aprovado;Curso;100,00\n" +
		"08/15/2025;Aprovado;Curso;70,00\n"
	if n := mustUpload(t, s, "p1", "hotmart.csv", body, core.KindHotmart); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
	mustUpload(t, s, "p1", "meta.csv", "Data,Valor usado (BRL)\n2025-08-15,40\n2025-13-01,99\n", core.KindMeta)

	r, err := s.GetKPIsForPeriod(ctx, "p1", "2025-08")
	if err != nil {
		t.Fatalf("GetKPIsForPeriod() error = %v", err)
	}
	if r.Totals.TotalSales != 1 || !r.Totals.TotalRevenueNet.Equal(dec("100")) || !r.Totals.TotalInvestment.Equal(dec("40")) {
		t.Errorf("totals = %+v", r.Totals)
	}
	periods, _ := s.AvailablePeriods(ctx, "p1")
	if len(periods) != 1 || periods[0] != "2025-08" {
		t.Errorf("periods = %v, want [2025-08]", periods)
	}
}

func TestUploadFile_XLSXDatetimeCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]any{"Data de Criação", "Status", "Produto", "Preço base do produto", "Taxas"}); err != nil {
		t.Fatalf("set header: %v", err)
	}
	created := time.Date(2024, time.August, 16, 12, 19, 20, 0, time.UTC)
	if err := f.SetSheetRow(sheet, "A2", &[]any{created, "paid", "Curso", 100, 10}); err != nil {
		t.Fatalf("set row: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	s, _ := newTestService(t)
	ctx := context.Background()
	n, err := s.UploadFile(ctx, "p1", "kiwify.xlsx", buf.Bytes(), core.KindKiwify, nil)
	if err != nil || n != 1 {
		t.Fatalf("UploadFile() = %d, %v", n, err)
	}
	r, err := s.GetKPIsForPeriod(ctx, "p1", "2024-08")
	if err != nil {
		t.Fatalf("GetKPIsForPeriod() error = %v", err)
	}
	if len(r.ByDay) != 1 || r.ByDay[0].Date != "2024-08-16" || !r.Totals.TotalRevenueNet.Equal(dec("90")) {
		t.Errorf("report = %+v", r)
	}
}

func TestIngest_RejectsKindWithoutSaleSource(t *testing.T) {
	s, store := newTestService(t)
	m := sheets.Matrix{{"Data"}, {"2025-01-10"}}
	if _, _, err := s.ingest(context.Background(), "p1", m, core.Kind("tiktok"), nil); !errors.Is(err, core.ErrInvalidKind) {
		t.Fatalf("ingest() error = %v, want ErrInvalidKind", err)
	}
	periods, _ := store.ListPeriods(context.Background(), "p1")
	if len(periods) != 0 {
		t.Errorf("periods = %v, want none", periods)
	}
}

func TestGetKPIsForPeriod(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.GetKPIsForPeriod(ctx, "p1", "2025-13"); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Errorf("malformed period error = %v, want ErrInvalidPeriod", err)
	}
	if _, err := s.GetKPIsForPeriod(ctx, "p1", "jan"); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Errorf("malformed period error = %v, want ErrInvalidPeriod", err)
	}

	r, err := s.GetKPIsForPeriod(ctx, "p1", "2030-01")
	if err != nil {
		t.Fatalf("unknown period error = %v", err)
	}
	if r.Totals.TotalSales != 0 || !r.Totals.ROAS.IsZero() || len(r.ByDay) != 0 || r.ByProduct == nil {
		t.Errorf("unknown period report = %+v, want zeroed", r)
	}
}

func TestReportCacheIsInvalidatedOnWrite(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustUpload(t, s, "p1", "hotmart.csv", hotmartJan, core.KindHotmart)

	first, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if first.Totals.TotalSales != 2 {
		t.Fatalf("TotalSales = %d, want 2", first.Totals.TotalSales)
	}

	if _, err := s.AddManualSale(ctx, "p1", "2025-01-20", "Mentoria", dec("500"), dec("500")); err != nil {
		t.Fatalf("AddManualSale() error = %v", err)
	}
	second, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if second.Totals.TotalSales != 3 {
		t.Errorf("TotalSales after manual sale = %d, want 3", second.Totals.TotalSales)
	}
}

func TestAddManualSale(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	row, err := s.AddManualSale(ctx, "p1", "15/03/2025", "  Consultoria  ", dec("85"), dec("100"))
	if err != nil {
		t.Fatalf("AddManualSale() error = %v", err)
	}
	if row.Date != "2025-03-15" || row.Product != "Consultoria" || row.Source != core.SourceManual || row.ExternalID == "" {
		t.Errorf("row = %+v", row)
	}

	r, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-03")
	if r.Totals.TotalSales != 1 || !r.Totals.TotalRevenueGross.Equal(dec("100")) {
		t.Errorf("report totals = %+v", r.Totals)
	}

	bad := []struct {
		name    string
		date    string
		product string
		net     string
		wantErr error
	}{
		{"zero net", "2025-03-15", "Curso", "0", core.ErrInvalidAmount},
		{"blank product", "2025-03-15", "  ", "10", core.ErrEmptyProduct},
		{"bad date", "someday", "Curso", "10", core.ErrInvalidDate},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.AddManualSale(ctx, "p1", tt.date, tt.product, dec(tt.net), decimal.Zero); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManualSaleHistoryAndRemoval(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustUpload(t, s, "p1", "hotmart.csv", hotmartJan, core.KindHotmart)
	a, _ := s.AddManualSale(ctx, "p1", "2025-01-05", "A", dec("10"), dec("10"))
	if _, err := s.AddManualSale(ctx, "p1", "2025-02-05", "B", dec("20"), dec("20")); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListManualSales(ctx, "p1")
	if err != nil {
		t.Fatalf("ListManualSales() error = %v", err)
	}
	if len(list) != 2 || list[0].Product != "B" || list[1].Product != "A" {
		t.Fatalf("manual sales = %+v, want B then A", list)
	}

	if err := s.RemoveManualSale(ctx, "p1", "2025-01", a.ExternalID); err != nil {
		t.Fatalf("RemoveManualSale() error = %v", err)
	}
	if err := s.RemoveManualSale(ctx, "p1", "2025-01", a.ExternalID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second removal error = %v, want ErrNotFound", err)
	}
	r, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if r.Totals.TotalSales != 2 {
		t.Errorf("TotalSales = %d, want the 2 hotmart sales", r.Totals.TotalSales)
	}
}

func TestRecordWebhookSale_IsIdempotent(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sale := core.SaleRow{
		Date: "2025-04-02", Product: "Curso", Net: dec("90"), Gross: dec("97"),
		Source: core.SourceHotmart, ExternalID: "HP123",
	}
	for i := 0; i < 3; i++ {
		if err := s.RecordWebhookSale(ctx, "p1", sale); err != nil {
			t.Fatalf("RecordWebhookSale() error = %v", err)
		}
	}
	sale.ExternalID = "HP124"
	if err := s.RecordWebhookSale(ctx, "p1", sale); err != nil {
		t.Fatal(err)
	}

	r, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-04")
	if r.Totals.TotalSales != 2 {
		t.Errorf("TotalSales = %d, want 2", r.Totals.TotalSales)
	}

	if err := s.RecordWebhookSale(ctx, "p1", core.SaleRow{Date: "2025-04-02", Product: "x", Net: decimal.Zero, Source: core.SourceKiwify}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("invalid webhook sale error = %v", err)
	}
}

func TestSyncAdSpend_ReplacesFetchedDates(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustUpload(t, s, "p1", "meta.csv", metaJan, core.KindMeta)

	n, err := s.SyncAdSpend(ctx, "p1", []core.AdSpendRow{
		{Date: "2025-01-11", Investment: dec("70")},
		{Date: "2025-02-01", Investment: dec("5")},
	})
	if err != nil || n != 2 {
		t.Fatalf("SyncAdSpend() = %d, %v", n, err)
	}

	jan, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if !jan.Totals.TotalInvestment.Equal(dec("170")) {
		t.Errorf("january investment = %s, want 170", jan.Totals.TotalInvestment)
	}
	feb, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-02")
	if !feb.Totals.TotalInvestment.Equal(dec("5")) {
		t.Errorf("february investment = %s, want 5", feb.Totals.TotalInvestment)
	}

	if _, err := s.SyncAdSpend(ctx, "p1", []core.AdSpendRow{{Date: "2025-01-01", Investment: dec("-1")}}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative spend error = %v", err)
	}
	if n, err := s.SyncAdSpend(ctx, "p1", nil); n != 0 || err != nil {
		t.Errorf("empty sync = %d, %v", n, err)
	}
}

func TestClearPeriodAndDeleteProject(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustUpload(t, s, "p1", "hotmart.csv", hotmartTwoMonths, core.KindHotmart)
	mustUpload(t, s, "p2", "hotmart.csv", hotmartJan, core.KindHotmart)

	// warm the cache so clearing has to drop it
	if _, err := s.GetKPIsForPeriod(ctx, "p1", "2025-01"); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearPeriod(ctx, "p1", "2025-01"); err != nil {
		t.Fatalf("ClearPeriod() error = %v", err)
	}
	if err := s.ClearPeriod(ctx, "p1", "2025-01"); err != nil {
		t.Errorf("clearing twice error = %v", err)
	}
	r, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if r.Totals.TotalSales != 0 {
		t.Errorf("cleared period still has %d sales", r.Totals.TotalSales)
	}
	periods, _ := s.AvailablePeriods(ctx, "p1")
	if len(periods) != 1 || periods[0] != "2025-02" {
		t.Errorf("periods = %v, want [2025-02]", periods)
	}

	if err := s.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	periods, _ = s.AvailablePeriods(ctx, "p1")
	hist, _ := s.UploadHistory(ctx, "p1", 0)
	if len(periods) != 0 || len(hist) != 0 {
		t.Errorf("after delete: periods=%v history=%d", periods, len(hist))
	}
	other, _ := s.GetKPIsForPeriod(ctx, "p2", "2025-01")
	if other.Totals.TotalSales != 2 {
		t.Errorf("other project affected: %d sales", other.Totals.TotalSales)
	}
}

func TestGetTrends(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.AddManualSale(ctx, "p1", "2024-12-10", "Curso", dec("100"), dec("100")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddManualSale(ctx, "p1", "2025-01-10", "Curso", dec("150"), dec("150")); err != nil {
		t.Fatal(err)
	}

	trends, err := s.GetTrends(ctx, "p1", "2025-01")
	if err != nil {
		t.Fatalf("GetTrends() error = %v", err)
	}
	byMetric := map[string]core.Trend{}
	for _, tr := range trends {
		byMetric[tr.Metric] = tr
	}
	rev := byMetric["revenue"]
	if rev.PercentChange == nil || !rev.PercentChange.Equal(dec("50")) || rev.Direction != core.TrendUp {
		t.Errorf("revenue trend = %+v", rev)
	}
	inv := byMetric["investment"]
	if inv.PercentChange != nil || inv.Direction != core.TrendNeutral {
		t.Errorf("investment trend = %+v, want neutral without percent", inv)
	}
}

func TestGetPayout(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustUpload(t, s, "p1", "meta.csv", metaJan, core.KindMeta)
	if _, err := s.AddManualSale(ctx, "p1", "2025-01-10", "Curso", dec("400"), dec("400")); err != nil {
		t.Fatal(err)
	}

	p, err := s.GetPayout(ctx, "p1", "2025-01")
	if err != nil {
		t.Fatalf("GetPayout() error = %v", err)
	}
	// profit 250, fee 6% of 400 = 24, no tax, full participation
	if !p.PlatformFee.Equal(dec("24")) || !p.Amount.Equal(dec("226")) {
		t.Errorf("payout = %+v", p)
	}
}

func TestSettings(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	got, err := s.GetSettings(ctx, "p1")
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if !got.PlatformTaxPct.Equal(dec("6")) || !got.ParticipationPct.Equal(dec("100")) {
		t.Errorf("defaults = %+v", got)
	}

	mustUpload(t, s, "p1", "hotmart.csv", hotmartJan, core.KindHotmart)
	before, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if c := classificationOf(before, "Curso Upsell"); c != core.Upsell {
		t.Fatalf("keyword classification = %q, want Upsell", c)
	}

	settings := core.DefaultProjectSettings("p1")
	settings.ParticipationPct = dec("50")
	settings.Classifications = map[string]core.Classification{"Curso Upsell": core.Principal}
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	after, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if c := classificationOf(after, "Curso Upsell"); c != core.Principal {
		t.Errorf("override classification = %q, want Principal", c)
	}

	invalid := core.DefaultProjectSettings("p1")
	invalid.TaxPct = dec("120")
	invalid.Classifications = map[string]core.Classification{"x": "Bundle"}
	if err := s.SaveSettings(ctx, invalid); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("invalid settings error = %v", err)
	}
}

func classificationOf(r core.Report, product string) core.Classification {
	for _, p := range r.ByProduct {
		if p.Product == product {
			return p.Classification
		}
	}
	return ""
}

func TestImportSheet(t *testing.T) {
	reader := memory.New()
	reader.Put("sheet-1", "Vendas!A:Z", sheets.Matrix{
		{"Data de Criação", "Status", "Produto", "Preço base do produto", "Taxas"},
		{"45658", "paid", "Curso", "100", "10"},
	})
	s, _ := newTestService(t, WithSheetReader(reader))
	ctx := context.Background()

	n, err := s.ImportSheet(ctx, "p1", "sheet-1", "Vendas!A:Z", core.KindKiwify, nil)
	if err != nil || n != 1 {
		t.Fatalf("ImportSheet() = %d, %v", n, err)
	}
	r, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if !r.Totals.TotalRevenueNet.Equal(dec("90")) {
		t.Errorf("net = %s, want 90", r.Totals.TotalRevenueNet)
	}

	if _, err := s.ImportSheet(ctx, "p1", "missing", "A:Z", core.KindKiwify, nil); err == nil {
		t.Error("expected error for unknown spreadsheet")
	}
	hist, _ := s.UploadHistory(ctx, "p1", 0)
	if len(hist) != 2 || hist[0].Status != core.UploadError || hist[1].Filename != "sheet-1!Vendas!A:Z" {
		t.Errorf("history = %+v", hist)
	}

	plain, _ := newTestService(t)
	if _, err := plain.ImportSheet(ctx, "p1", "sheet-1", "A:Z", core.KindKiwify, nil); !errors.Is(err, ErrSheetsUnavailable) {
		t.Errorf("error without reader = %v", err)
	}
}

func TestDeleteUpload(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustUpload(t, s, "p1", "meta.csv", metaJan, core.KindMeta)
	hist, _ := s.UploadHistory(ctx, "p1", 0)
	if len(hist) != 1 {
		t.Fatalf("history len = %d", len(hist))
	}
	if err := s.DeleteUpload(ctx, "p1", hist[0].ID); err != nil {
		t.Fatalf("DeleteUpload() error = %v", err)
	}
	if err := s.DeleteUpload(ctx, "p1", hist[0].ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete error = %v", err)
	}
	// rows stay
	r, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-01")
	if !r.Totals.TotalInvestment.Equal(dec("150")) {
		t.Errorf("investment = %s, want 150", r.Totals.TotalInvestment)
	}
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sale := core.SaleRow{
				Date: "2025-05-01", Product: "Curso", Net: dec("10"), Gross: dec("10"),
				Source: core.SourceKiwify, ExternalID: fmt.Sprintf("o-%d", i),
			}
			if err := s.RecordWebhookSale(ctx, "p1", sale); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	r, _ := s.GetKPIsForPeriod(ctx, "p1", "2025-05")
	if r.Totals.TotalSales != 20 {
		t.Errorf("TotalSales = %d, want 20", r.Totals.TotalSales)
	}
}
