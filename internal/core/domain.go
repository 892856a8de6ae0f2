package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceHotmart Source = "hotmart"
	SourceKiwify  Source = "kiwify"
	SourceManual  Source = "manual"
)

const (
	KindMeta    Kind = "meta"
	KindHotmart Kind = "hotmart"
	KindKiwify  Kind = "kiwify"
)

// UnknownProduct is used when a sales row has no product name.
const UnknownProduct = "Produto desconhecido"

type (
	// Source identifies where a sale row came from.
	Source string

	// Kind identifies the layout of an uploaded file.
	Kind string

	AdSpendRow struct {
		Date       string          `json:"date"`
		Investment decimal.Decimal `json:"investment"`
	}

	SaleRow struct {
		Date    string          `json:"date"`
		Product string          `json:"product"`
		Net     decimal.Decimal `json:"net"`
		Gross   decimal.Decimal `json:"gross"`
		Source  Source          `json:"source"`
		// ExternalID is the platform transaction id for webhook rows.
		ExternalID string `json:"external_id,omitempty"`
	}

	// PeriodKey identifies a calendar month bucket.
	PeriodKey struct {
		Year  string
		Month string
	}

	// PeriodBucket holds every row of one project for one calendar month.
	PeriodBucket struct {
		ProjectID string
		Period    PeriodKey
		AdSpend   []AdSpendRow
		Sales     []SaleRow
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidPeriod  = errors.New("invalid period")
	ErrEmptyProduct   = errors.New("empty product")
	ErrProductTooLong = errors.New("product too long (max 200 characters)")
	ErrEmptyProjectID = errors.New("empty project id")
	ErrInvalidKind    = errors.New("invalid upload kind")
	ErrInvalidSource  = errors.New("invalid sale source")
)

var (
	isoDateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	periodKeyRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// IsISODate reports whether s has the YYYY-MM-DD shape.
func IsISODate(s string) bool {
	return isoDateRe.MatchString(s)
}

// IsValid returns true if the source is one of the known sale sources.
func (s Source) IsValid() bool {
	switch s {
	case SourceHotmart, SourceKiwify, SourceManual:
		return true
	default:
		return false
	}
}

// IsValid returns true if the kind is one of the supported file layouts.
func (k Kind) IsValid() bool {
	switch k {
	case KindMeta, KindHotmart, KindKiwify:
		return true
	default:
		return false
	}
}

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q (expected meta, hotmart or kiwify)", ErrInvalidKind, s)
	}
	return k, nil
}

// SaleSource maps a sales file kind onto the source stored on its rows.
func (k Kind) SaleSource() (Source, bool) {
	switch k {
	case KindHotmart:
		return SourceHotmart, true
	case KindKiwify:
		return SourceKiwify, true
	default:
		return "", false
	}
}

// String returns the YYYY-MM form.
func (p PeriodKey) String() string {
	return p.Year + "-" + p.Month
}

// IsZero reports whether the key is unset.
func (p PeriodKey) IsZero() bool {
	return p.Year == "" && p.Month == ""
}

// ParsePeriodKey parses a YYYY-MM string.
func ParsePeriodKey(s string) (PeriodKey, error) {
	s = strings.TrimSpace(s)
	if !periodKeyRe.MatchString(s) {
		return PeriodKey{}, fmt.Errorf("%w: %q (expected YYYY-MM)", ErrInvalidPeriod, s)
	}
	month := s[5:7]
	if month < "01" || month > "12" {
		return PeriodKey{}, fmt.Errorf("%w: month out of range in %q", ErrInvalidPeriod, s)
	}
	return PeriodKey{Year: s[:4], Month: month}, nil
}

// PeriodOf returns the month bucket a canonical date belongs to.
func PeriodOf(date string) (PeriodKey, error) {
	if !IsISODate(date) {
		return PeriodKey{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return ParsePeriodKey(date[:7])
}

// Previous returns the calendar month before p.
func (p PeriodKey) Previous() PeriodKey {
	t, err := time.Parse("2006-01", p.String())
	if err != nil {
		return PeriodKey{}
	}
	prev := t.AddDate(0, -1, 0)
	return PeriodKey{Year: prev.Format("2006"), Month: prev.Format("01")}
}

func (r AdSpendRow) Validate() error {
	if !IsISODate(r.Date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, r.Date)
	}
	if !r.Investment.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (r SaleRow) Validate() error {
	if !IsISODate(r.Date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, r.Date)
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, r.Date)
	}
	if strings.TrimSpace(r.Product) == "" {
		return ErrEmptyProduct
	}
	if len(r.Product) > 200 {
		return ErrProductTooLong
	}
	if !r.Net.IsPositive() {
		return fmt.Errorf("%w: net must be greater than zero", ErrInvalidAmount)
	}
	if r.Gross.IsNegative() {
		return fmt.Errorf("%w: gross cannot be negative", ErrInvalidAmount)
	}
	if !r.Source.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, r.Source)
	}
	return nil
}

// NewBucket creates an empty bucket for a project and period.
func NewBucket(projectID string, period PeriodKey) PeriodBucket {
	return PeriodBucket{
		ProjectID: projectID,
		Period:    period,
		AdSpend:   []AdSpendRow{},
		Sales:     []SaleRow{},
	}
}

// IsEmpty reports whether the bucket carries no rows.
func (b PeriodBucket) IsEmpty() bool {
	return len(b.AdSpend) == 0 && len(b.Sales) == 0
}
