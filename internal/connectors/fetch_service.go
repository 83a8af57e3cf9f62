package connectors

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"quotedesk/internal"
	"quotedesk/internal/intake"
	"quotedesk/internal/pipeline"
)

// FetchService pulls mail from a connector and feeds each message through
// the intake pipeline. Per-message rejections (unknown sender, quota) are
// counted and logged, never fatal for the batch.
type FetchService struct {
	connector MailConnector
	store     *MailStore
	pipeline  *pipeline.Service
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched    int
	Processed  int
	Duplicates int
	Rejected   int
	Failed     int

	// Quotes assembled during this batch, in processing order. Duplicate
	// deliveries do not reappear here.
	Quotes []internal.QuoteRow
}

func NewFetchService(connector MailConnector, rawMailDir string, svc *pipeline.Service, logger *zap.Logger) *FetchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchService{
		connector: connector,
		store:     NewMailStore(rawMailDir),
		pipeline:  svc,
		logger:    logger,
	}
}

func (s *FetchService) FetchAndProcess(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		rawPath, email, err := s.store.Store(msg)
		if err != nil {
			s.logger.Warn("unparseable inbound message",
				zap.String("provider", msg.Provider),
				zap.String("messageId", msg.MessageID),
				zap.Error(err))
			result.Failed++
			continue
		}

		outcome, err := s.pipeline.ProcessInbound(ctx, email, &rawPath)
		switch {
		case err != nil && (errors.Is(err, intake.ErrUnauthorizedSender) ||
			errors.Is(err, intake.ErrInactiveAccount) ||
			errors.Is(err, intake.ErrQuotaExceeded)):
			s.logger.Info("message rejected at intake",
				zap.String("sender", email.Sender),
				zap.String("decision", string(outcome.Decision)),
				zap.Error(err))
			result.Rejected++
		case err != nil:
			s.logger.Error("pipeline failure",
				zap.String("messageId", email.ExternalMessageID),
				zap.Error(err))
			result.Failed++
		case outcome.Decision == intake.Duplicate:
			result.Duplicates++
		case outcome.Quote == nil:
			result.Failed++
		default:
			result.Processed++
			result.Quotes = append(result.Quotes, *outcome.Quote)
		}
	}

	return result, nil
}
