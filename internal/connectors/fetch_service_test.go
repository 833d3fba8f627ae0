package connectors

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"nexus/internal"
	"nexus/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
}

func (f *fakeConnector) FetchInbox(_ string, max int) ([]internal.FetchedMailMessage, error) {
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func newTestService(t *testing.T, messages []internal.FetchedMailMessage) (*FetchService, *storage.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rawDir := filepath.Join(dir, "raw")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFetchService(db, rawDir, &fakeConnector{messages: messages}, log), db, rawDir
}

func mail(provider, messageID, subject, raw string) internal.FetchedMailMessage {
	return internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  messageID,
		Subject:    subject,
		From:       "proveedor@example.com",
		ReceivedAt: "2026-08-22T10:00:00Z",
		Raw:        []byte(raw),
	}
}

func TestFetchAndStoreNewMessages(t *testing.T) {
	svc, db, _ := newTestService(t, []internal.FetchedMailMessage{
		mail("imap", "<m1@example.com>", "Factura 1", "raw one"),
		mail("imap", "<m2@example.com>", "Factura 2", "raw two"),
	})

	res, err := svc.FetchAndStore("INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 2 || res.Known != 0 {
		t.Fatalf("result = %+v", res)
	}

	rows, err := db.ListEmailsByStatus("fetched", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("fetched rows = %d", len(rows))
	}
	for _, row := range rows {
		if len(row.Hash) != 64 {
			t.Fatalf("hash = %q", row.Hash)
		}
		raw, err := os.ReadFile(row.RawRef)
		if err != nil {
			t.Fatal(err)
		}
		if len(raw) == 0 {
			t.Fatalf("empty raw file %s", row.RawRef)
		}
	}
}

func TestFetchAndStoreKeepsKnownStatus(t *testing.T) {
	messages := []internal.FetchedMailMessage{mail("imap", "<m1@example.com>", "Factura 1", "raw one")}
	svc, db, _ := newTestService(t, messages)

	if _, err := svc.FetchAndStore("INBOX", 10); err != nil {
		t.Fatal(err)
	}
	row, err := db.MustEmailByProviderMessageID("imap", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateEmailStatus(row.ID, "processed"); err != nil {
		t.Fatal(err)
	}

	res, err := svc.FetchAndStore("INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 0 || res.Known != 1 {
		t.Fatalf("result = %+v", res)
	}

	row, err = db.MustEmailByProviderMessageID("imap", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != "processed" {
		t.Fatalf("status = %q after refetch", row.Status)
	}
}

func TestFetchAndStoreSharesRawByContent(t *testing.T) {
	svc, db, rawDir := newTestService(t, []internal.FetchedMailMessage{
		mail("imap", "<m1@example.com>", "Factura 1", "same raw"),
		mail("imap", "<m2@example.com>", "Factura 1 reenviada", "same raw"),
	})

	res, err := svc.FetchAndStore("INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 2 {
		t.Fatalf("stored = %d", res.Stored)
	}

	first, err := db.MustEmailByProviderMessageID("imap", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.MustEmailByProviderMessageID("imap", "<m2@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if first.RawRef != second.RawRef {
		t.Fatalf("raw refs differ: %s vs %s", first.RawRef, second.RawRef)
	}

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("raw files = %d", len(entries))
	}
}

func TestFetchAndStoreHonorsMax(t *testing.T) {
	svc, _, _ := newTestService(t, []internal.FetchedMailMessage{
		mail("imap", "<m1@example.com>", "Factura 1", "raw one"),
		mail("imap", "<m2@example.com>", "Factura 2", "raw two"),
		mail("imap", "<m3@example.com>", "Factura 3", "raw three"),
	})

	res, err := svc.FetchAndStore("INBOX", 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 2 {
		t.Fatalf("result = %+v", res)
	}
}
