package pipeline

import (
	"context"
	"fmt"

	"nexus/internal"
	"nexus/internal/template"
)

// OneshotOptions control a single command-line run over local files.
type OneshotOptions struct {
	Template  string
	OutPath   string
	CSVPath   string
	DPRPath   string
	ForceText bool
}

// RunOneshot processes the files as one batch and writes the requested
// report files. Paths left empty produce no file; the caller still gets
// the in-memory result.
func (p *Processor) RunOneshot(ctx context.Context, opts OneshotOptions, paths []string) (*internal.BatchResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files")
	}

	tplID := opts.Template
	if tplID == "" {
		tplID = p.cfg.DefaultTemplate
	}
	tpl, err := template.Get(tplID)
	if err != nil {
		return nil, err
	}
	if opts.ForceText {
		tpl.Mode = template.ModeText
	}

	batchID, err := p.NewBatch(tpl, "cli")
	if err != nil {
		return nil, err
	}
	batch, err := p.ProcessFiles(ctx, batchID, tpl, paths)
	if err != nil {
		return nil, err
	}

	if opts.OutPath != "" {
		if err := ExportItemsToXLSX(batch.Items, batch.Summary, opts.OutPath); err != nil {
			return batch, err
		}
	}
	if opts.CSVPath != "" {
		if err := ExportItemsToCSV(batch.Items, opts.CSVPath); err != nil {
			return batch, err
		}
	}
	if opts.DPRPath != "" {
		if err := ExportDPRToXLSX(batch.Items, opts.DPRPath); err != nil {
			return batch, err
		}
	}
	return batch, nil
}
