package quote

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"quotedesk/internal"
	"quotedesk/internal/storage"
)

type Assembler struct {
	db     *storage.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewAssembler(db *storage.DB, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{db: db, logger: logger, now: time.Now}
}

// AssembleDraft turns extracted line items into a persisted draft quote.
// The quote total equals the sum of all line totals; a missing total falls
// back to unit price times quantity, and a missing quantity counts as one.
// Every line keeps the raw extraction payload in its metadata.
func (a *Assembler) AssembleDraft(accountID int, messageID *int, externalMessageID string, items []internal.ExtractedLineItem) (internal.QuoteRow, error) {
	if len(items) == 0 {
		return internal.QuoteRow{}, fmt.Errorf("cannot assemble a quote from zero line items")
	}

	lines := make([]internal.QuoteLineItem, 0, len(items))
	total := 0.0
	for _, item := range items {
		line := internal.QuoteLineItem{
			Description: lineDescription(item),
			SKU:         item.SKU,
			Quantity:    valueOr(item.Quantity, 1),
			UnitPrice:   valueOr(item.UnitPrice, 0),
			Meta: map[string]any{
				"extraction": item.Meta,
				"confidence": item.Confidence,
			},
		}
		if item.TotalPrice != nil {
			line.TotalPrice = *item.TotalPrice
		} else {
			line.TotalPrice = line.Quantity * line.UnitPrice
		}
		total += line.TotalPrice
		lines = append(lines, line)
	}

	number := QuoteNumber(a.now(), externalMessageID)
	row, err := a.db.InsertQuote(number, accountID, messageID, internal.QuoteDraft, total, lines)
	if err != nil {
		return internal.QuoteRow{}, err
	}

	a.logger.Info("assembled draft quote",
		zap.String("quoteNumber", number),
		zap.Int("lineItems", len(lines)),
		zap.Float64("total", total))
	return row, nil
}

// QuoteNumber derives a human-readable identifier from the timestamp and a
// prefix of the source message id. Uniqueness is good enough, not
// guaranteed; direct uploads with no message get a timestamp-only number.
func QuoteNumber(at time.Time, externalMessageID string) string {
	stamp := at.UTC().Format("20060102-150405")
	prefix := messageIDPrefix(externalMessageID)
	if prefix == "" {
		return "Q-" + stamp
	}
	return "Q-" + stamp + "-" + prefix
}

func messageIDPrefix(externalMessageID string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(externalMessageID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
		if sb.Len() == 8 {
			break
		}
	}
	return sb.String()
}

func lineDescription(item internal.ExtractedLineItem) string {
	for _, v := range []*string{item.Name, item.Description, item.SKU} {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return "(unnamed item)"
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
