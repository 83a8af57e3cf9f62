// Package listener polls a mailbox on an interval and feeds new messages
// through the intake pipeline.
package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"quotedesk/internal"
	"quotedesk/internal/config"
	"quotedesk/internal/connectors"
	gmailconnector "quotedesk/internal/connectors/gmail"
	imapconnector "quotedesk/internal/connectors/imap"
	"quotedesk/internal/pipeline"
	"quotedesk/internal/quote"
	"quotedesk/internal/storage"
)

type Service struct {
	db       *storage.DB
	pipeline *pipeline.Service
	cfg      config.Config
	logger   *zap.Logger
}

func NewService(db *storage.DB, svc *pipeline.Service, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, pipeline: svc, cfg: cfg, logger: logger}
}

// Run polls until the context is cancelled. Cycle errors are logged and the
// next tick retries; a broken mail server should not kill the process.
func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.MailListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.makeConnector(provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(mailConnector, s.cfg.RawMailDir, s.pipeline, s.logger)
	result, err := fetchService.FetchAndProcess(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	if s.cfg.MailListenerAutoExport {
		if err := s.exportQuotes(result.Quotes); err != nil {
			return err
		}
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", result.Fetched),
		zap.Int("processed", result.Processed),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("rejected", result.Rejected),
		zap.Int("failed", result.Failed))
	return nil
}

func (s *Service) exportQuotes(quotes []internal.QuoteRow) error {
	for _, q := range quotes {
		items, err := s.db.ListQuoteLineItems(q.ID)
		if err != nil {
			return err
		}
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", q.QuoteNumber+".xlsx")
		if err := quote.ExportQuoteXLSX(q, items, outputPath); err != nil {
			return err
		}
		s.logger.Info("exported draft quote",
			zap.String("quoteNumber", q.QuoteNumber),
			zap.String("path", outputPath))
	}
	return nil
}

func (s *Service) makeConnector(provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
