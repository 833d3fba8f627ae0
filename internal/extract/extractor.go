package extract

import (
	"context"

	"nexus/internal"
	"nexus/internal/template"
)

// PageInput is one page ready for extraction: a rendered JPEG for vision
// templates, the embedded page text for text templates. Numbers are
// 1-based physical page numbers.
type PageInput struct {
	Number int
	Image  []byte
	Text   string
}

// PageExtractor turns one page into a structured candidate record.
// (nil, nil) means the page yielded no usable record and is skipped
// silently; a non-nil error is a reported per-page failure. The output
// is noisy evidence; callers must not depend on determinism across
// identical calls.
type PageExtractor interface {
	ExtractPage(ctx context.Context, page PageInput, tpl template.Template) (*internal.PageRecord, error)
}
