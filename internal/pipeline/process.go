package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexus/internal"
	"nexus/internal/config"
	"nexus/internal/extract"
	"nexus/internal/reconcile"
	"nexus/internal/storage"
	"nexus/internal/template"
)

// PageSource turns a document on disk into per-page extraction inputs.
type PageSource interface {
	Pages(ctx context.Context, path string, mode template.Mode) ([]extract.PageInput, error)
}

type Processor struct {
	cfg       config.Config
	db        *storage.DB
	extractor extract.PageExtractor
	source    PageSource
	log       *slog.Logger
}

func NewProcessor(cfg config.Config, db *storage.DB, extractor extract.PageExtractor, source PageSource, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{cfg: cfg, db: db, extractor: extractor, source: source, log: log}
}

func (p *Processor) NewBatch(tpl template.Template, source string) (string, error) {
	id := uuid.New().String()
	if err := p.db.InsertBatch(id, tpl.ID, source); err != nil {
		return "", err
	}
	return id, nil
}

// ProcessFiles runs every document of a batch and persists the outcome.
// Files run concurrently up to the worker limit; results are written back
// in the order the paths were given. A file that cannot be read records
// its error and the batch carries on.
func (p *Processor) ProcessFiles(ctx context.Context, batchID string, tpl template.Template, paths []string) (*internal.BatchResult, error) {
	start := time.Now()
	p.log.Info("pipeline.batch.start", "batch", batchID, "template", tpl.ID, "files", len(paths))

	if err := p.db.UpdateBatchStatus(batchID, "processing"); err != nil {
		return nil, err
	}

	docIDs := make([]int64, len(paths))
	for i, path := range paths {
		docID, err := p.db.InsertDocument(batchID, filepath.Base(path), fileSHA256(path))
		if err != nil {
			p.failBatch(batchID, err)
			return nil, err
		}
		docIDs[i] = docID
	}

	workers := p.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]internal.FileResult, len(paths))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.processFile(ctx, path, tpl)
		}(i, path)
	}
	wg.Wait()

	batch := &internal.BatchResult{BatchID: batchID}
	troubled := 0
	for i := range results {
		res := results[i]
		status := "done"
		if res.Error != "" {
			status = "failed"
		}
		if res.Error != "" || len(res.Failures) > 0 {
			troubled++
		}
		if err := p.db.InsertFileResult(docIDs[i], res); err != nil {
			p.failBatch(batchID, err)
			return nil, err
		}
		if err := p.db.FinishDocument(docIDs[i], status, res.Pages, res.Error); err != nil {
			p.failBatch(batchID, err)
			return nil, err
		}

		p.log.Info("pipeline.file.done",
			"batch", batchID, "file", res.SourceFile,
			"pages", res.Pages, "items", len(res.Items),
			"invoices", len(res.Summary), "failures", len(res.Failures),
			"error", res.Error,
		)

		batch.Files = append(batch.Files, res)
		batch.Items = append(batch.Items, res.Items...)
		batch.Summary = append(batch.Summary, res.Summary...)
	}

	batchStatus := "done"
	if troubled > 0 {
		batchStatus = "done_with_errors"
	}
	if err := p.db.FinishBatch(batchID, batchStatus, len(paths), len(batch.Items), ""); err != nil {
		return nil, err
	}

	p.log.Info("pipeline.batch.done",
		"batch", batchID, "status", batchStatus, "files", len(paths), "items", len(batch.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return batch, nil
}

// processFile folds one document page by page. Pages run strictly in
// order: the invoice id carried from page to page makes the loop
// order-dependent.
func (p *Processor) processFile(ctx context.Context, path string, tpl template.Template) internal.FileResult {
	name := filepath.Base(path)
	r := reconcile.NewFile(name)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		blob, err := os.ReadFile(path)
		if err != nil {
			return failedResult(r, err)
		}
		records, err := extract.ParseInvoiceHTML(bytes.NewReader(blob))
		if err != nil {
			return failedResult(r, err)
		}
		for i, rec := range records {
			r.Page(i+1, rec)
		}
	default:
		pages, err := p.source.Pages(ctx, path, tpl.Mode)
		if err != nil {
			p.log.Error("pipeline.file.unreadable", "file", name, "error", err)
			return failedResult(r, err)
		}
		for _, page := range pages {
			rec, err := p.extractor.ExtractPage(ctx, page, tpl)
			if err != nil {
				r.Fail(page.Number, err.Error())
				continue
			}
			r.Page(page.Number, rec)
		}
	}

	return r.Result()
}

func (p *Processor) failBatch(batchID string, err error) {
	if dbErr := p.db.FinishBatch(batchID, "failed", 0, 0, err.Error()); dbErr != nil {
		p.log.Error("pipeline.batch.fail_mark", "batch", batchID, "error", dbErr)
	}
}

func failedResult(r *reconcile.FileReconciler, err error) internal.FileResult {
	res := r.Result()
	res.Error = err.Error()
	return res
}

func fileSHA256(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}
