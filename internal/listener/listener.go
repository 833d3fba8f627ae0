package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"nexus/internal"
	"nexus/internal/config"
	"nexus/internal/connectors"
	gmailconnector "nexus/internal/connectors/gmail"
	imapconnector "nexus/internal/connectors/imap"
	"nexus/internal/pipeline"
	"nexus/internal/storage"
	"nexus/internal/template"
)

// Service polls a mailbox on a fixed interval: fetch new mail, process
// pending messages into batches, optionally export the results. The
// first cycle runs immediately.
type Service struct {
	cfg       config.Config
	db        *storage.DB
	processor *pipeline.Processor
	log       *slog.Logger
}

func NewService(cfg config.Config, db *storage.DB, processor *pipeline.Processor, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, db: db, processor: processor, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			s.log.Error("listener.cycle.error", "error", err)
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
	if provider == "none" {
		provider = ""
	}

	var fetchResult connectors.FetchResult
	if provider != "" {
		mailConnector, err := s.makeConnector(provider)
		if err != nil {
			return err
		}
		fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.log)
		fetchResult, err = fetchService.FetchAndStore(s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
		if err != nil {
			return err
		}
	}

	tpl, err := template.Get(s.cfg.DefaultTemplate)
	if err != nil {
		return err
	}
	processedEmails, processedItems, err := s.processor.ProcessPendingMail(ctx, s.cfg.MailListenerProcessBatch, provider, tpl)
	if err != nil {
		return err
	}

	if s.cfg.MailListenerAutoExport {
		if err := s.exportProcessed(provider); err != nil {
			return err
		}
	}

	s.log.Info("listener.cycle.done",
		"provider", provider,
		"fetched", fetchResult.Fetched,
		"stored", fetchResult.Stored,
		"processed", processedEmails,
		"items", processedItems)
	return nil
}

func (s *Service) exportProcessed(provider string) error {
	emails, err := s.db.ListEmailsByStatus("processed", 200)
	if err != nil {
		return err
	}
	for _, email := range emails {
		if provider != "" && email.Provider != provider {
			continue
		}
		if err := s.exportEmail(email); err != nil {
			return err
		}
	}
	return nil
}

// exportEmail writes the email's batch rows as a workbook and advances
// the row to exported. Batches with no items advance without a file so
// the next cycle does not pick them up again.
func (s *Service) exportEmail(email internal.EmailRow) error {
	if email.BatchID != "" {
		items, err := s.db.GetBatchItems(email.BatchID)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			summary, err := s.db.GetBatchSummaries(email.BatchID)
			if err != nil {
				return err
			}
			filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
			outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
			if err := pipeline.ExportItemsToXLSX(items, summary, outputPath); err != nil {
				return err
			}
			s.log.Info("listener.export.done", "email_id", email.ID, "path", outputPath, "items", len(items))
		}
	}
	return s.db.UpdateEmailStatus(email.ID, "exported")
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

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
