package storage

import (
	"path/filepath"
	"testing"

	"nexus/internal"
	"nexus/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBatchLifecycle(t *testing.T) {
	db := openTestDB(t)

	if err := db.InsertBatch("b1", "general", "upload"); err != nil {
		t.Fatal(err)
	}

	row, err := db.GetBatch("b1")
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.Status != "pending" || row.Template != "general" {
		t.Fatalf("row = %+v", row)
	}

	if err := db.UpdateBatchStatus("b1", "processing"); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishBatch("b1", "done", 2, 17, ""); err != nil {
		t.Fatal(err)
	}

	row, err = db.GetBatch("b1")
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != "done" || row.FileCount != 2 || row.ItemCount != 17 {
		t.Fatalf("row = %+v", row)
	}

	missing, err := db.GetBatch("nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatalf("missing = %+v", missing)
	}

	recent, err := db.ListRecentBatches(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %d", len(recent))
	}
}

func TestInsertFileResultRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.InsertBatch("b1", "general", "upload"); err != nil {
		t.Fatal(err)
	}
	doc1, err := db.InsertDocument("b1", "a.pdf", "h1")
	if err != nil {
		t.Fatal(err)
	}
	doc2, err := db.InsertDocument("b1", "b.pdf", "h2")
	if err != nil {
		t.Fatal(err)
	}

	if err := db.InsertFileResult(doc1, internal.FileResult{
		SourceFile: "a.pdf",
		Items: []internal.ItemRow{
			{ModelCode: "X-1", Description: "Motor", Quantity: 2, UnitPrice: 10, Origin: "CN", InvoiceID: "F-1", SourceFile: "a.pdf", Page: 1},
			{ModelCode: "X-2", Description: "Bomba", Quantity: 1, UnitPrice: 5.5, Origin: "", InvoiceID: "F-1", SourceFile: "a.pdf", Page: 2, LineTotal: util.FloatPtr(5.5)},
		},
		Summary:  []internal.SummaryRow{{SourceFile: "a.pdf", InvoiceID: "F-1", TotalAmount: util.FloatPtr(25.5), Customer: "ACME"}},
		Failures: []internal.PageFailure{{Page: 3, Reason: "timeout"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertFileResult(doc2, internal.FileResult{
		SourceFile: "b.pdf",
		Items: []internal.ItemRow{
			{ModelCode: "Y-1", Description: "Eje", Quantity: 4, UnitPrice: 2, InvoiceID: "F-2", SourceFile: "b.pdf", Page: 1},
		},
		Summary: []internal.SummaryRow{{SourceFile: "b.pdf", InvoiceID: "F-2", Customer: ""}},
	}); err != nil {
		t.Fatal(err)
	}

	items, err := db.GetBatchItems("b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].SourceFile != "a.pdf" || items[0].ModelCode != "X-1" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].LineTotal == nil || *items[1].LineTotal != 5.5 {
		t.Fatalf("items[1].LineTotal = %v", items[1].LineTotal)
	}
	if items[2].SourceFile != "b.pdf" || items[2].InvoiceID != "F-2" {
		t.Fatalf("items[2] = %+v", items[2])
	}

	sums, err := db.GetBatchSummaries("b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("sums = %d", len(sums))
	}
	if sums[0].InvoiceID != "F-1" || sums[0].TotalAmount == nil || *sums[0].TotalAmount != 25.5 {
		t.Fatalf("sums[0] = %+v", sums[0])
	}
	if sums[1].TotalAmount != nil {
		t.Fatalf("sums[1] = %+v", sums[1])
	}

	fails, err := db.DocumentFailures(int(doc1))
	if err != nil {
		t.Fatal(err)
	}
	if len(fails) != 1 || fails[0].Page != 3 || fails[0].Reason != "timeout" {
		t.Fatalf("fails = %+v", fails)
	}

	docs, err := db.ListDocuments("b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Filename != "a.pdf" || docs[1].Filename != "b.pdf" {
		t.Fatalf("docs = %+v", docs)
	}
}

func TestSummaryUniquePerDocument(t *testing.T) {
	db := openTestDB(t)

	if err := db.InsertBatch("b1", "general", "upload"); err != nil {
		t.Fatal(err)
	}
	doc1, _ := db.InsertDocument("b1", "a.pdf", "")
	doc2, _ := db.InsertDocument("b1", "b.pdf", "")

	sum := internal.SummaryRow{InvoiceID: "12345", Customer: "ACME"}
	if err := db.InsertFileResult(doc1, internal.FileResult{Summary: []internal.SummaryRow{sum}}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertFileResult(doc1, internal.FileResult{Summary: []internal.SummaryRow{sum}}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertFileResult(doc2, internal.FileResult{Summary: []internal.SummaryRow{sum}}); err != nil {
		t.Fatal(err)
	}

	sums, err := db.GetBatchSummaries("b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("same invoice on two documents should give two rows, got %d", len(sums))
	}
}

func TestEmailUpsertAndStatus(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertEmail("gmail", "msg-1", "Factura 123", "ventas@acme.test", "2025-03-01T10:00:00Z", "hash1", "/raw/msg-1.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if row.ID == 0 || row.Status != "fetched" {
		t.Fatalf("row = %+v", row)
	}

	again, err := db.UpsertEmail("gmail", "msg-1", "Factura 123 (rev)", "ventas@acme.test", "2025-03-01T10:00:00Z", "hash2", "/raw/msg-1.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != row.ID {
		t.Fatalf("upsert created a second row: %d vs %d", again.ID, row.ID)
	}
	if again.Subject != "Factura 123 (rev)" || again.Hash != "hash2" {
		t.Fatalf("again = %+v", again)
	}

	if err := db.UpdateEmailStatus(row.ID, "processed"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetEmailBatch(row.ID, "b9"); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetEmailByID(row.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "processed" || got.BatchID != "b9" {
		t.Fatalf("got = %+v", got)
	}

	fetched, err := db.ListEmailsByStatus("fetched", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 0 {
		t.Fatalf("fetched = %+v", fetched)
	}

	if _, err := db.MustEmailByProviderMessageID("gmail", "msg-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MustEmailByProviderMessageID("gmail", "nope"); err == nil {
		t.Fatal("expected error for unknown email")
	}
}
