package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quotedesk/internal/util"
)

type PartKind string

const (
	PartPlainText PartKind = "plain-text"
	PartPDF       PartKind = "pdf"
	PartImage     PartKind = "image"
	PartTabular   PartKind = "tabular"
)

// DocumentPart is one extractable unit of an inbound message: the body
// text or a single decoded attachment.
type DocumentPart struct {
	Kind     PartKind
	Filename string
	MimeType string
	Content  []byte
}

// ClassifyAttachment maps an attachment to a part kind. Unsupported
// content is reported with ok=false and skipped by the caller.
func ClassifyAttachment(filename, contentType string) (PartKind, bool) {
	lower := strings.ToLower(filename)
	ct := strings.ToLower(contentType)

	switch {
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"),
		strings.Contains(ct, "spreadsheet"), strings.Contains(ct, "ms-excel"):
		return PartTabular, true
	case strings.HasSuffix(lower, ".pdf"), strings.Contains(ct, "application/pdf"):
		return PartPDF, true
	case strings.HasPrefix(ct, "image/"),
		strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".jpg"),
		strings.HasSuffix(lower, ".jpeg"), strings.HasSuffix(lower, ".webp"):
		return PartImage, true
	case strings.HasPrefix(ct, "text/"), strings.HasSuffix(lower, ".txt"),
		strings.HasSuffix(lower, ".csv"):
		return PartPlainText, true
	default:
		return "", false
	}
}

// Item is one extracted line item before persistence. Nil fields were
// missing from the document. Raw holds the untouched extraction payload.
type Item struct {
	Name        *string
	Description *string
	SKU         *string
	Quantity    *float64
	UnitPrice   *float64
	TotalPrice  *float64
	Raw         map[string]any
}

// BatchResult is the aggregate outcome of extracting one message: either
// a set of items with a batch confidence, or a failure reason.
type BatchResult struct {
	Success       bool
	Items         []Item
	Confidence    float64
	FailureReason string
}

// Options carries the extraction schema so tests and callers can substitute
// it without global state.
type Options struct {
	Schema map[string]any
}

// DefaultSchema describes the line-item shape requested from the
// extraction service.
func DefaultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"item_name":   map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"sku":         map[string]any{"type": "string"},
						"quantity":    map[string]any{"type": "number"},
						"unit_price":  map[string]any{"type": "number"},
						"total_price": map[string]any{"type": "number"},
					},
				},
			},
			"metadata": map[string]any{"type": "object"},
		},
	}
}

type Orchestrator struct {
	extractor Extractor
	schema    map[string]any
	logger    *zap.Logger
}

func NewOrchestrator(extractor Extractor, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema := opts.Schema
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Orchestrator{extractor: extractor, schema: schema, logger: logger}
}

// Run extracts all attachments, then the body text only if no attachment
// yielded items (attachments are authoritative, body text is fallback).
// A failing part is logged and skipped; the batch succeeds if at least one
// part yields items.
func (o *Orchestrator) Run(ctx context.Context, attachments []DocumentPart, bodyText string) BatchResult {
	items := make([]Item, 0)

	for _, part := range attachments {
		extra, err := o.extractPart(ctx, part)
		if err != nil {
			o.logger.Warn("document part extraction failed",
				zap.String("filename", part.Filename),
				zap.String("kind", string(part.Kind)),
				zap.Error(err))
			continue
		}
		items = append(items, extra...)
	}

	if len(items) == 0 && strings.TrimSpace(bodyText) != "" {
		extra, err := o.extractPart(ctx, DocumentPart{Kind: PartPlainText, Content: []byte(bodyText)})
		if err != nil {
			o.logger.Warn("body text extraction failed", zap.Error(err))
		} else {
			items = append(items, extra...)
		}
	}

	if len(items) == 0 {
		return BatchResult{
			Success:       false,
			FailureReason: fmt.Sprintf("no line items extracted from %d document part(s)", len(attachments)),
		}
	}

	return BatchResult{
		Success:    true,
		Items:      items,
		Confidence: batchConfidence(items),
	}
}

func (o *Orchestrator) extractPart(ctx context.Context, part DocumentPart) ([]Item, error) {
	req, err := o.buildRequest(part)
	if err != nil {
		return nil, err
	}

	raw, err := o.extractor.Extract(ctx, req)
	if err == nil {
		if items, parseErr := parseItems(raw); parseErr == nil {
			return items, nil
		} else {
			err = parseErr
		}
	}

	// A scanned or oddly encoded PDF sometimes defeats the service while a
	// local text rendition still works.
	if part.Kind == PartPDF {
		text, textErr := pdfPlainText(part.Content)
		if textErr != nil {
			return nil, err
		}
		retry := part
		retry.Kind = PartPlainText
		retry.Content = []byte(text)
		return o.extractPart(ctx, retry)
	}

	return nil, err
}

func (o *Orchestrator) buildRequest(part DocumentPart) (Request, error) {
	req := Request{Schema: o.schema}

	switch part.Kind {
	case PartPlainText:
		req.Content = string(part.Content)
		req.MimeHint = "text/plain"
	case PartTabular:
		flat, err := FlattenWorkbook(part.Content)
		if err != nil {
			return Request{}, err
		}
		req.Content = flat
		req.MimeHint = "text/plain"
		req.Context = "flattened spreadsheet: " + part.Filename
	case PartPDF:
		req.Content = encodeBinary(part.Content)
		req.Encoding = "base64"
		req.MimeHint = "application/pdf"
	case PartImage:
		req.Content = encodeBinary(part.Content)
		req.Encoding = "base64"
		req.MimeHint = part.MimeType
		if req.MimeHint == "" {
			req.MimeHint = "image/png"
		}
	default:
		return Request{}, fmt.Errorf("unsupported part kind: %s", part.Kind)
	}

	return req, nil
}

// StripFences removes Markdown code-fence wrapping that extraction models
// routinely put around JSON output.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.HasPrefix(s, "\n") {
		// drop a language tag such as "json"
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type rawBatch struct {
	LineItems []map[string]any `json:"line_items"`
	Metadata  map[string]any   `json:"metadata"`
}

func parseItems(raw string) ([]Item, error) {
	var batch rawBatch
	if err := json.Unmarshal([]byte(StripFences(raw)), &batch); err != nil {
		return nil, fmt.Errorf("parse extraction output: %w", err)
	}

	out := make([]Item, 0, len(batch.LineItems))
	for _, entry := range batch.LineItems {
		item := Item{Raw: entry}
		item.Name = fieldString(entry, "item_name", "name")
		item.Description = fieldString(entry, "description")
		item.SKU = fieldString(entry, "sku", "part_number", "item_number")
		item.Quantity = fieldNumber(entry, "quantity", "qty")
		item.UnitPrice = fieldNumber(entry, "unit_price", "price")
		item.TotalPrice = fieldNumber(entry, "total_price", "total")
		if item.Name == nil && item.Description == nil && item.SKU == nil {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// batchConfidence is the fraction of required fields (name, quantity, unit
// price, total price) populated across all items. A completeness heuristic,
// not a probability.
func batchConfidence(items []Item) float64 {
	if len(items) == 0 {
		return 0
	}
	filled := 0
	for _, item := range items {
		if item.Name != nil {
			filled++
		}
		if item.Quantity != nil {
			filled++
		}
		if item.UnitPrice != nil {
			filled++
		}
		if item.TotalPrice != nil {
			filled++
		}
	}
	return float64(filled) / float64(4*len(items))
}

func fieldString(entry map[string]any, keys ...string) *string {
	for _, key := range keys {
		if s, ok := entry[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return util.StringPtr(trimmed)
			}
		}
	}
	return nil
}

func fieldNumber(entry map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		switch v := entry[key].(type) {
		case float64:
			return util.FloatPtr(v)
		case int:
			return util.FloatPtr(float64(v))
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return util.FloatPtr(f)
			}
		case string:
			if parsed := util.ParseNumber(v); parsed != nil {
				return parsed
			}
		}
	}
	return nil
}
