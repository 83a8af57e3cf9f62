package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quotedesk/internal"
	"quotedesk/internal/config"
	"quotedesk/internal/extract"
	"quotedesk/internal/intake"
	"quotedesk/internal/match"
	"quotedesk/internal/quote"
	"quotedesk/internal/storage"
)

// Service is the intake pipeline: gate, then extraction, then draft quote
// assembly. Matching runs separately, on demand, against already-assembled
// line items.
type Service struct {
	db           *storage.DB
	gate         *intake.Gate
	orchestrator *extract.Orchestrator
	assembler    *quote.Assembler
	engine       *match.Engine
	logger       *zap.Logger
}

func NewService(db *storage.DB, extractor extract.Extractor, searcher match.SemanticSearcher, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:           db,
		gate:         intake.NewGate(db, logger),
		orchestrator: extract.NewOrchestrator(extractor, extract.Options{}, logger),
		assembler:    quote.NewAssembler(db, logger),
		engine:       match.NewEngine(db, searcher, cfg, logger),
		logger:       logger,
	}
}

// Outcome reports what processing one inbound message produced. For a
// duplicate delivery it carries the previously stored message and quote.
type Outcome struct {
	Decision  intake.Decision
	Message   *internal.MessageRow
	Quote     *internal.QuoteRow
	ItemCount int
}

// ProcessInbound runs one message through the whole intake pipeline.
// Authorization failures surface as errors with no partial state; a batch
// with zero extracted items marks the message failed and creates no quote.
func (s *Service) ProcessInbound(ctx context.Context, email internal.InboundEmail, rawRef *string) (Outcome, error) {
	admission, err := s.gate.Admit(email, rawRef)
	if err != nil {
		return Outcome{Decision: admission.Decision}, err
	}

	if admission.Decision == intake.Duplicate {
		existing := admission.Message
		priorQuote, err := s.db.GetQuoteByMessageID(existing.ID)
		if err != nil {
			return Outcome{}, err
		}
		s.logger.Info("duplicate delivery, returning prior result",
			zap.String("externalMessageId", strings.TrimSpace(email.ExternalMessageID)),
			zap.Int("messageId", existing.ID))
		return Outcome{Decision: intake.Duplicate, Message: existing, Quote: priorQuote}, nil
	}

	message := admission.Message
	result := s.orchestrator.Run(ctx, BuildParts(email.Attachments, s.logger), email.BodyText)
	if !result.Success {
		if err := s.db.FailMessage(message.ID, result.FailureReason); err != nil {
			return Outcome{}, err
		}
		message.Status = internal.MessageFailed
		message.ErrorMessage = &result.FailureReason
		return Outcome{Decision: intake.Authorized, Message: message}, nil
	}

	items := make([]internal.ExtractedLineItem, 0, len(result.Items))
	for _, extracted := range result.Items {
		item := internal.ExtractedLineItem{
			MessageID:   message.ID,
			Name:        extracted.Name,
			Description: extracted.Description,
			SKU:         extracted.SKU,
			Quantity:    extracted.Quantity,
			UnitPrice:   extracted.UnitPrice,
			TotalPrice:  extracted.TotalPrice,
			Confidence:  result.Confidence,
			Meta:        extracted.Raw,
		}
		id, err := s.db.InsertLineItem(item)
		if err != nil {
			return Outcome{}, s.failWith(message.ID, fmt.Errorf("persist line item: %w", err))
		}
		item.ID = id
		items = append(items, item)
	}

	quoteRow, err := s.assembler.AssembleDraft(message.AccountID, &message.ID, email.ExternalMessageID, items)
	if err != nil {
		return Outcome{}, s.failWith(message.ID, fmt.Errorf("assemble quote: %w", err))
	}

	if err := s.db.UpdateMessageStatus(message.ID, internal.MessageProcessed); err != nil {
		return Outcome{}, err
	}
	message.Status = internal.MessageProcessed

	return Outcome{
		Decision:  intake.Authorized,
		Message:   message,
		Quote:     &quoteRow,
		ItemCount: len(items),
	}, nil
}

// ProcessUpload handles a human uploading a single file: same extraction
// and assembly contracts, no sender authorization or idempotency checks.
// Each upload gets a generated reference so its quote number stays unique.
func (s *Service) ProcessUpload(ctx context.Context, accountID int, part extract.DocumentPart) (internal.QuoteRow, error) {
	account, err := s.db.GetAccountByID(accountID)
	if err != nil {
		return internal.QuoteRow{}, err
	}
	if account == nil {
		return internal.QuoteRow{}, fmt.Errorf("unknown account id: %d", accountID)
	}

	uploadRef := uuid.NewString()
	s.logger.Info("processing upload",
		zap.Int("accountId", accountID),
		zap.String("filename", part.Filename),
		zap.String("uploadRef", uploadRef))

	result := s.orchestrator.Run(ctx, []extract.DocumentPart{part}, "")
	if !result.Success {
		return internal.QuoteRow{}, fmt.Errorf("extraction failed: %s", result.FailureReason)
	}

	items := make([]internal.ExtractedLineItem, 0, len(result.Items))
	for _, extracted := range result.Items {
		items = append(items, internal.ExtractedLineItem{
			Name:        extracted.Name,
			Description: extracted.Description,
			SKU:         extracted.SKU,
			Quantity:    extracted.Quantity,
			UnitPrice:   extracted.UnitPrice,
			TotalPrice:  extracted.TotalPrice,
			Confidence:  result.Confidence,
			Meta:        extracted.Raw,
		})
	}

	return s.assembler.AssembleDraft(accountID, nil, uploadRef, items)
}

// LineMatches pairs one quote line item with its ranked candidates.
type LineMatches struct {
	LineItem   internal.QuoteLineItem
	Candidates []internal.CandidateMatch
}

// MatchQuote ranks catalog candidates for every line item of a quote.
func (s *Service) MatchQuote(ctx context.Context, quoteID int) ([]LineMatches, error) {
	quoteRow, err := s.db.GetQuoteByID(quoteID)
	if err != nil {
		return nil, err
	}
	if quoteRow == nil {
		return nil, fmt.Errorf("quote not found: id=%d", quoteID)
	}

	lines, err := s.db.ListQuoteLineItems(quoteID)
	if err != nil {
		return nil, err
	}

	out := make([]LineMatches, 0, len(lines))
	for _, line := range lines {
		sku := ""
		if line.SKU != nil {
			sku = *line.SKU
		}
		candidates, err := s.engine.Match(ctx, match.Query{
			AccountID:   quoteRow.AccountID,
			SKU:         sku,
			Description: line.Description,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, LineMatches{LineItem: line, Candidates: candidates})
	}
	return out, nil
}

// ApplyMatches ranks candidates like MatchQuote and additionally stamps the
// top candidate into each line item's stored metadata under the "match" key,
// so review exports carry the engine's pick and its score.
func (s *Service) ApplyMatches(ctx context.Context, quoteID int) ([]LineMatches, error) {
	matches, err := s.MatchQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if len(matches[i].Candidates) == 0 {
			continue
		}
		top := matches[i].Candidates[0]
		line := matches[i].LineItem
		if line.Meta == nil {
			line.Meta = map[string]any{}
		}
		line.Meta["match"] = map[string]any{
			"kind":  string(top.Kind),
			"score": top.Score,
			"sku":   top.Product.SKU,
		}
		if err := s.db.UpdateQuoteLineMeta(line.ID, line.Meta); err != nil {
			return nil, err
		}
		matches[i].LineItem = line
	}
	return matches, nil
}

// BuildParts classifies attachments into extractable document parts,
// skipping kinds the extraction service cannot take.
func BuildParts(attachments []internal.InboundAttachment, logger *zap.Logger) []extract.DocumentPart {
	if logger == nil {
		logger = zap.NewNop()
	}
	parts := make([]extract.DocumentPart, 0, len(attachments))
	for _, att := range attachments {
		kind, ok := extract.ClassifyAttachment(att.Filename, att.ContentType)
		if !ok {
			logger.Info("skipping unsupported attachment",
				zap.String("filename", att.Filename),
				zap.String("contentType", att.ContentType))
			continue
		}
		parts = append(parts, extract.DocumentPart{
			Kind:     kind,
			Filename: att.Filename,
			MimeType: att.ContentType,
			Content:  att.Content,
		})
	}
	return parts
}

func (s *Service) failWith(messageID int, cause error) error {
	if err := s.db.FailMessage(messageID, cause.Error()); err != nil {
		s.logger.Error("failed to record message failure", zap.Int("messageId", messageID), zap.Error(err))
	}
	return cause
}
