package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"

	"nexus/internal/config"
	"nexus/internal/extract"
	"nexus/internal/template"
	"nexus/internal/util"
)

// Rasterizer turns a PDF on disk into per-page inputs for extraction.
// Vision templates get JPEG renders via pdftoppm, text templates get the
// embedded text layer.
type Rasterizer struct {
	cfg    config.Config
	runner Runner
	log    *slog.Logger
}

func NewRasterizer(cfg config.Config, log *slog.Logger) *Rasterizer {
	if log == nil {
		log = slog.Default()
	}
	return &Rasterizer{cfg: cfg, runner: execRunner{}, log: log}
}

func (r *Rasterizer) Pages(ctx context.Context, path string, mode template.Mode) ([]extract.PageInput, error) {
	if mode == template.ModeText {
		return r.textPages(path)
	}
	return r.imagePages(ctx, path)
}

func (r *Rasterizer) imagePages(ctx context.Context, path string) ([]extract.PageInput, error) {
	tmpDir, err := os.MkdirTemp("", "nexus-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.log.Warn("rasterize.tmp_cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := r.runner.Run(ctx, r.cfg.PdftoppmBin, "-r", strconv.Itoa(r.cfg.RasterDPI), "-jpeg", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, util.Truncate(string(errb), 400))
	}

	matches, _ := filepath.Glob(prefix + "-*.jpg")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, errors.New("pdftoppm produced no pages")
	}

	pages := make([]extract.PageInput, 0, len(matches))
	for i, file := range matches {
		img, err := imaging.Open(file)
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", i+1, err)
		}
		if r.cfg.ImageMaxEdge > 0 {
			img = imaging.Fit(img, r.cfg.ImageMaxEdge, r.cfg.ImageMaxEdge, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.cfg.JPEGQuality)); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		pages = append(pages, extract.PageInput{Number: i + 1, Image: buf.Bytes()})
	}
	return pages, nil
}

func (r *Rasterizer) textPages(path string) ([]extract.PageInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rd, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	pages := make([]extract.PageInput, 0, rd.NumPage())
	for i := 1; i <= rd.NumPage(); i++ {
		in := extract.PageInput{Number: i}
		p := rd.Page(i)
		if !p.V.IsNull() {
			if text, err := p.GetPlainText(nil); err == nil {
				in.Text = text
			}
		}
		pages = append(pages, in)
	}
	return pages, nil
}
