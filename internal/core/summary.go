package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	Principal Classification = "Principal"
	Upsell    Classification = "Upsell"
)

const (
	TrendUp      Direction = "up"
	TrendDown    Direction = "down"
	TrendNeutral Direction = "neutral"
)

const (
	UploadSuccess UploadStatus = "success"
	UploadError   UploadStatus = "error"
)

type (
	// Classification separates front-end products from add-ons.
	Classification string

	// Direction is the sign of a month-over-month change.
	Direction string

	UploadStatus string
)

// KPISummary holds the period totals. It is always recomputed from rows.
type KPISummary struct {
	TotalDays         int             `json:"totalDays"`
	TotalInvestment   decimal.Decimal `json:"totalInvestment"`
	TotalSales        int             `json:"totalSales"`
	TotalRevenueNet   decimal.Decimal `json:"totalRevenueNet"`
	TotalRevenueGross decimal.Decimal `json:"totalRevenueGross"`
	AverageTicket     decimal.Decimal `json:"averageTicket"`
	ROAS              decimal.Decimal `json:"roas"`
	Profit            decimal.Decimal `json:"profit"`
	EffectiveSales    int             `json:"effectiveSales"`
	Refunds           int             `json:"refunds"`
}

// ProductKPI aggregates the sales of one product name.
type ProductKPI struct {
	Product        string          `json:"product"`
	Sales          int             `json:"sales"`
	RevenueNet     decimal.Decimal `json:"revenueNet"`
	AverageTicket  decimal.Decimal `json:"averageTicket"`
	Classification Classification  `json:"classification"`
}

// DailyKPI aggregates one calendar day.
type DailyKPI struct {
	Date          string          `json:"date"`
	Investment    decimal.Decimal `json:"investment"`
	Sales         int             `json:"sales"`
	Revenue       decimal.Decimal `json:"revenue"`
	AverageTicket decimal.Decimal `json:"averageTicket"`
	ROAS          decimal.Decimal `json:"roas"`
	CAC           decimal.Decimal `json:"cac"`
}

// Report is the full KPI view of a period.
type Report struct {
	Totals    KPISummary   `json:"kpis"`
	ByProduct []ProductKPI `json:"productKpis"`
	ByDay     []DailyKPI   `json:"dailyKpis"`
}

// EmptyReport returns the zeroed view served for periods without data.
func EmptyReport() Report {
	return Report{
		Totals: KPISummary{
			TotalInvestment:   decimal.Zero,
			TotalRevenueNet:   decimal.Zero,
			TotalRevenueGross: decimal.Zero,
			AverageTicket:     decimal.Zero,
			ROAS:              decimal.Zero,
			Profit:            decimal.Zero,
		},
		ByProduct: []ProductKPI{},
		ByDay:     []DailyKPI{},
	}
}

// Trend compares one metric against the previous month.
type Trend struct {
	Metric        string           `json:"metric"`
	Current       decimal.Decimal  `json:"current"`
	Previous      decimal.Decimal  `json:"previous"`
	PercentChange *decimal.Decimal `json:"percentChange,omitempty"`
	Direction     Direction        `json:"direction"`
}

// ProjectSettings holds the percentages used for the partnership payout.
type ProjectSettings struct {
	ProjectID        string          `json:"projectId"`
	PlatformTaxPct   decimal.Decimal `json:"platformTax"`
	TaxPct           decimal.Decimal `json:"tax"`
	ParticipationPct decimal.Decimal `json:"participation"`
	// Classifications overrides the keyword heuristic for named products.
	Classifications map[string]Classification `json:"classifications,omitempty"`
}

// DefaultProjectSettings mirrors the dashboard defaults: 6% platform fee,
// no tax and full participation.
func DefaultProjectSettings(projectID string) ProjectSettings {
	return ProjectSettings{
		ProjectID:        projectID,
		PlatformTaxPct:   decimal.NewFromInt(6),
		TaxPct:           decimal.Zero,
		ParticipationPct: decimal.NewFromInt(100),
	}
}

// Payout is the partnership share of a period's profit.
type Payout struct {
	ProjectID     string          `json:"projectId"`
	Period        string          `json:"period"`
	RevenueNet    decimal.Decimal `json:"revenueNet"`
	Profit        decimal.Decimal `json:"profit"`
	PlatformFee   decimal.Decimal `json:"platformFee"`
	Tax           decimal.Decimal `json:"tax"`
	Participation decimal.Decimal `json:"participation"`
	Amount        decimal.Decimal `json:"amount"`
}

// UploadRecord is one entry of a project's upload history.
type UploadRecord struct {
	ID               string       `json:"id"`
	ProjectID        string       `json:"projectId"`
	Filename         string       `json:"filename"`
	Kind             Kind         `json:"type"`
	Periods          []string     `json:"periods,omitempty"`
	FileSize         int64        `json:"fileSize"`
	RecordsProcessed int          `json:"recordsProcessed"`
	Status           UploadStatus `json:"status"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
	UploadedAt       time.Time    `json:"uploadDate"`
}
