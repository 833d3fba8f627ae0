package connectors

import (
	"log/slog"

	"nexus/internal/storage"
)

// FetchService pulls new messages from a connector and lands them
// locally, one emails row per unseen (provider, message id) pair.
type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStore
	log       *slog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, log *slog.Logger) *FetchService {
	if log == nil {
		log = slog.Default()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStore(db, rawMailDir),
		log:       log,
	}
}

func (s *FetchService) FetchAndStore(label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, created, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if !created {
			res.Known++
			continue
		}
		res.Stored++
		s.log.Info("mail.fetch.stored",
			"provider", msg.Provider,
			"email_id", row.ID,
			"subject", msg.Subject)
	}
	return res, nil
}
