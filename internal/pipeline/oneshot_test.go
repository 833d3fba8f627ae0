package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nexus/internal"
)

func TestRunOneshotWritesReports(t *testing.T) {
	source := &stubSource{pages: map[string]int{"a.pdf": 1}}
	extractor := &stubExtractor{recs: map[string]*internal.PageRecord{
		"a.pdf:1": rec("FA-1", "ORIGINAL", li("X-1", 2, 10)),
	}}
	p, _ := newTestProcessor(t, extractor, source)

	dir := t.TempDir()
	opts := OneshotOptions{
		Template: "general",
		OutPath:  filepath.Join(dir, "out.xlsx"),
		CSVPath:  filepath.Join(dir, "out.csv"),
		DPRPath:  filepath.Join(dir, "dpr.xlsx"),
	}
	batch, err := p.RunOneshot(context.Background(), opts, []string{"a.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Items) != 1 || batch.Items[0].InvoiceID != "FA-1" {
		t.Fatalf("items = %+v", batch.Items)
	}

	for _, path := range []string{opts.OutPath, opts.DPRPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing report %s: %v", path, err)
		}
	}
	csv, err := os.ReadFile(opts.CSVPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(csv), "modelo,descripcion,") {
		t.Fatalf("csv = %q", csv)
	}
}

func TestRunOneshotUnknownTemplate(t *testing.T) {
	p, _ := newTestProcessor(t, &stubExtractor{}, &stubSource{})
	if _, err := p.RunOneshot(context.Background(), OneshotOptions{Template: "nope"}, []string{"a.pdf"}); err == nil {
		t.Fatal("expected unknown template error")
	}
}

func TestRunOneshotNoFiles(t *testing.T) {
	p, _ := newTestProcessor(t, &stubExtractor{}, &stubSource{})
	if _, err := p.RunOneshot(context.Background(), OneshotOptions{Template: "general"}, nil); err == nil {
		t.Fatal("expected error for empty file list")
	}
}
