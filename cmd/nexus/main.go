package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"nexus/internal"
	"nexus/internal/config"
	"nexus/internal/connectors"
	gmailconnector "nexus/internal/connectors/gmail"
	imapconnector "nexus/internal/connectors/imap"
	"nexus/internal/extract/groq"
	"nexus/internal/listener"
	"nexus/internal/pipeline"
	"nexus/internal/rasterize"
	"nexus/internal/server"
	"nexus/internal/storage"
	"nexus/internal/template"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		tplID := fs.String("template", cfg.DefaultTemplate, "extraction template id")
		out := fs.String("out", filepath.Join(cfg.OutputDir, pipeline.DefaultExportName), "items workbook path, empty to skip")
		csvPath := fs.String("csv", "", "items csv path")
		dprPath := fs.String("dpr", "", "DPR workbook path")
		forceText := fs.Bool("text", false, "use the embedded PDF text instead of page images")
		_ = fs.Parse(os.Args[2:])
		paths := fs.Args()
		if len(paths) == 0 {
			must(fmt.Errorf("usage: nexus run [flags] file.pdf [file2.pdf ...]"))
		}

		processor := newProcessor(cfg, db, log)
		fmt.Printf("processing %d files with template %s\n", len(paths), *tplID)
		opts := pipeline.OneshotOptions{
			Template:  *tplID,
			OutPath:   *out,
			CSVPath:   *csvPath,
			DPRPath:   *dprPath,
			ForceText: *forceText,
		}
		batch, err := processor.RunOneshot(ctx, opts, paths)
		must(err)
		printBatch(batch)
		if *out != "" {
			fmt.Printf("report: %s\n", *out)
		}
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		cfg.HTTPAddr = *addr

		srv := server.New(cfg, db, newProcessor(cfg, db, log), log)
		must(srv.Run(ctx))
	case "templates":
		for _, tpl := range template.List() {
			fmt.Printf("%-12s %-7s %s\n", tpl.ID, tpl.Mode, tpl.Name)
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", cfg.MailListenerFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])

		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, log)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d\n", *provider, result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap, empty for all")
		messageID := fs.String("messageId", "", "specific message-id")
		limit := fs.Int("limit", cfg.MailListenerProcessBatch, "max emails per run")
		tplID := fs.String("template", cfg.DefaultTemplate, "extraction template id")
		_ = fs.Parse(os.Args[2:])

		tpl, err := template.Get(*tplID)
		must(err)
		processor := newProcessor(cfg, db, log)
		if strings.TrimSpace(*messageID) != "" {
			if strings.TrimSpace(*provider) == "" {
				must(fmt.Errorf("-provider is required with -messageId"))
			}
			out, err := processor.ProcessEmailByProviderMessageID(ctx, *provider, *messageID, tpl)
			must(err)
			if out.Skipped {
				fmt.Printf("email id=%d skipped\n", out.EmailID)
				return
			}
			fmt.Printf("processed email id=%d batch=%s items=%d\n", out.EmailID, out.BatchID, out.Items)
			return
		}
		emails, items, err := processor.ProcessPendingMail(ctx, *limit, *provider, tpl)
		must(err)
		fmt.Printf("processed pending emails=%d items=%d\n", emails, items)
	case "mail:listen":
		svc := listener.NewService(cfg, db, newProcessor(cfg, db, log), log)
		must(svc.Run(ctx))
	case "export:xlsx":
		batchID, out := exportFlags(cmd, filepath.Join(cfg.OutputDir, pipeline.DefaultExportName))
		items, summary := loadBatchRows(db, batchID)
		must(pipeline.ExportItemsToXLSX(items, summary, out))
		fmt.Printf("exported %d items to %s\n", len(items), out)
	case "export:csv":
		batchID, out := exportFlags(cmd, filepath.Join(cfg.OutputDir, pipeline.CSVExportName))
		items, _ := loadBatchRows(db, batchID)
		must(pipeline.ExportItemsToCSV(items, out))
		fmt.Printf("exported %d items to %s\n", len(items), out)
	case "export:dpr":
		batchID, out := exportFlags(cmd, filepath.Join(cfg.OutputDir, pipeline.DPRExportName))
		items, _ := loadBatchRows(db, batchID)
		must(pipeline.ExportDPRToXLSX(items, out))
		fmt.Printf("exported %d items to %s\n", len(items), out)
	default:
		usage()
		os.Exit(1)
	}
}

func newProcessor(cfg config.Config, db *storage.DB, log *slog.Logger) *pipeline.Processor {
	extractor := groq.NewClient(cfg, log)
	source := rasterize.NewRasterizer(cfg, log)
	return pipeline.NewProcessor(cfg, db, extractor, source, log)
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func exportFlags(cmd, defaultOut string) (string, string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	batchID := fs.String("batch", "", "batch id")
	out := fs.String("out", defaultOut, "output path")
	_ = fs.Parse(os.Args[2:])
	if strings.TrimSpace(*batchID) == "" {
		must(fmt.Errorf("-batch is required"))
	}
	return *batchID, *out
}

func loadBatchRows(db *storage.DB, batchID string) ([]internal.ItemRow, []internal.SummaryRow) {
	batch, err := db.GetBatch(batchID)
	must(err)
	if batch == nil {
		must(fmt.Errorf("batch not found: %s", batchID))
	}
	items, err := db.GetBatchItems(batchID)
	must(err)
	if len(items) == 0 {
		must(fmt.Errorf("no items in batch %s", batchID))
	}
	summary, err := db.GetBatchSummaries(batchID)
	must(err)
	return items, summary
}

func printBatch(batch *internal.BatchResult) {
	for _, file := range batch.Files {
		if file.Error != "" {
			fmt.Printf("  %s: FAILED: %s\n", file.SourceFile, file.Error)
			continue
		}
		fmt.Printf("  %s: %d pages, %d items, %d invoices\n", file.SourceFile, file.Pages, len(file.Items), len(file.Summary))
		for _, failure := range file.Failures {
			fmt.Printf("    page %d: %s\n", failure.Page, failure.Reason)
		}
	}
	if len(batch.Summary) > 0 {
		fmt.Println("invoices:")
		for _, row := range batch.Summary {
			total := "-"
			if row.TotalAmount != nil {
				total = fmt.Sprintf("%.2f", *row.TotalAmount)
			}
			fmt.Printf("  %-20s total=%-12s %s\n", row.InvoiceID, total, row.SourceFile)
		}
	}
	fmt.Printf("batch %s done: %d items\n", batch.BatchID, batch.ItemCount())
}

func usage() {
	fmt.Println("usage: nexus <command>")
	fmt.Println("commands:")
	fmt.Println("  run [-template=general] [-out=...xlsx] [-csv=...csv] [-dpr=...xlsx] [-text] file.pdf ...")
	fmt.Println("  serve [-addr=:8080]")
	fmt.Println("  templates")
	fmt.Println("  mail:fetch [-provider=gmail|imap] [-label=INBOX] [-max=20]")
	fmt.Println("  mail:process [-provider=...] [-messageId=...] [-limit=20] [-template=general]")
	fmt.Println("  mail:listen")
	fmt.Println("  export:xlsx -batch=<id> [-out=...xlsx]")
	fmt.Println("  export:csv -batch=<id> [-out=...csv]")
	fmt.Println("  export:dpr -batch=<id> [-out=...xlsx]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
