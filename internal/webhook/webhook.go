// Package webhook verifies and decodes sale notifications sent by the
// sales platforms. Only purchase-confirmed events yield a sale; any other
// event is reported with ErrIgnoredEvent.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"painel/internal/core"
	"painel/internal/parsers"
)

var (
	ErrUnauthorized     = errors.New("webhook signature mismatch")
	ErrIgnoredEvent     = errors.New("event ignored")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnknownPlatform  = errors.New("unsupported webhook platform")
)

// Sales are dated in Brasília time, which has no daylight saving.
var brasilia = time.FixedZone("BRT", -3*60*60)

type hotmartPayload struct {
	ID     string `json:"id"`
	Event  string `json:"event"`
	Hottok string `json:"hottok"`
	Data   struct {
		Product struct {
			Name string `json:"name"`
		} `json:"product"`
		Purchase struct {
			Transaction  string `json:"transaction"`
			Status       string `json:"status"`
			ApprovedDate int64  `json:"approved_date"`
			Price        struct {
				Value decimal.Decimal `json:"value"`
			} `json:"price"`
			Commission *struct {
				Value decimal.Decimal `json:"value"`
			} `json:"commission"`
		} `json:"purchase"`
	} `json:"data"`
}

type kiwifyPayload struct {
	Event string `json:"event"`
	Data  struct {
		Order struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
			Product   struct {
				Name string `json:"name"`
			} `json:"Product"`
			Charges []struct {
				Amount    decimal.Decimal `json:"amount"`
				NetAmount decimal.Decimal `json:"net_amount"`
			} `json:"charges"`
		} `json:"order"`
	} `json:"data"`
}

// Parse dispatches on the platform name.
func Parse(platform string, body []byte) (core.SaleRow, error) {
	switch core.Source(strings.ToLower(platform)) {
	case core.SourceHotmart:
		return ParseHotmart(body)
	case core.SourceKiwify:
		return ParseKiwify(body)
	default:
		return core.SaleRow{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
}

// ParseHotmart decodes a PURCHASE_APPROVED or PURCHASE_COMPLETE event. Net
// revenue is the price minus the commission; gross is the price.
func ParseHotmart(body []byte) (core.SaleRow, error) {
	var p hotmartPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return core.SaleRow{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Event != "PURCHASE_APPROVED" && p.Event != "PURCHASE_COMPLETE" {
		return core.SaleRow{}, fmt.Errorf("%w: hotmart %s", ErrIgnoredEvent, p.Event)
	}

	purchase := p.Data.Purchase
	if purchase.Transaction == "" {
		return core.SaleRow{}, fmt.Errorf("%w: missing transaction", ErrMalformedPayload)
	}
	if purchase.ApprovedDate <= 0 {
		return core.SaleRow{}, fmt.Errorf("%w: missing approved_date", ErrMalformedPayload)
	}

	gross := purchase.Price.Value
	net := gross
	if purchase.Commission != nil {
		net = gross.Sub(purchase.Commission.Value)
	}

	return core.SaleRow{
		Date:       unixDate(purchase.ApprovedDate),
		Product:    productName(p.Data.Product.Name),
		Net:        net,
		Gross:      gross,
		Source:     core.SourceHotmart,
		ExternalID: purchase.Transaction,
	}, nil
}

// ParseKiwify decodes an order.paid event. Amounts are summed over the
// order's charges.
func ParseKiwify(body []byte) (core.SaleRow, error) {
	var p kiwifyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return core.SaleRow{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Event != "order.paid" {
		return core.SaleRow{}, fmt.Errorf("%w: kiwify %s", ErrIgnoredEvent, p.Event)
	}

	order := p.Data.Order
	if order.ID == "" {
		return core.SaleRow{}, fmt.Errorf("%w: missing order id", ErrMalformedPayload)
	}
	date := parsers.NormalizeDate(order.CreatedAt)
	if !core.IsISODate(date) {
		return core.SaleRow{}, fmt.Errorf("%w: created_at %q", ErrMalformedPayload, order.CreatedAt)
	}

	gross, net := decimal.Zero, decimal.Zero
	for _, c := range order.Charges {
		gross = gross.Add(c.Amount)
		net = net.Add(c.NetAmount)
	}

	return core.SaleRow{
		Date:       date,
		Product:    productName(order.Product.Name),
		Net:        net,
		Gross:      gross,
		Source:     core.SourceKiwify,
		ExternalID: order.ID,
	}, nil
}

// VerifyHotmart compares the hottok sent in the X-Hotmart-Hottok header or
// the payload with the configured token. An empty token disables the check.
func VerifyHotmart(header string, body []byte, token string) error {
	if token == "" {
		return nil
	}
	got := header
	if got == "" {
		var p struct {
			Hottok string `json:"hottok"`
		}
		_ = json.Unmarshal(body, &p)
		got = p.Hottok
	}
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// VerifyKiwify checks the hex HMAC-SHA1 signature of the raw body. An
// empty secret disables the check.
func VerifyKiwify(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	want := Sign(body, secret)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(want)) {
		return ErrUnauthorized
	}
	return nil
}

// Sign returns the signature Kiwify attaches to a body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// unixDate accepts seconds or milliseconds since the epoch.
func unixDate(ts int64) string {
	var t time.Time
	if ts > 1e11 {
		t = time.UnixMilli(ts)
	} else {
		t = time.Unix(ts, 0)
	}
	return t.In(brasilia).Format("2006-01-02")
}

func productName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.UnknownProduct
	}
	return name
}
