package reconcile

import (
	"strings"
	"unicode/utf8"

	"nexus/internal"
)

// NoInvoice is the placeholder id carried until a file yields a usable
// invoice number.
const NoInvoice = "S/N"

// Placeholder tokens the extractor emits on pages that carry no real
// invoice number.
var sentinelWords = map[string]struct{}{
	"none":         {},
	"null":         {},
	"continuacion": {},
	"pendiente":    {},
}

// State is the only thing that survives from one page to the next within
// a single file.
type State struct {
	LastInvoiceID string
}

func NewState() State {
	return State{LastInvoiceID: NoInvoice}
}

// UsableID reports whether a raw invoice id can identify an invoice on
// its own: non-empty after trimming, not a placeholder word, at least
// three characters.
func UsableID(raw string) bool {
	id := strings.TrimSpace(raw)
	if id == "" {
		return false
	}
	if _, ok := sentinelWords[strings.ToLower(id)]; ok {
		return false
	}
	return utf8.RuneCountInString(id) >= 3
}

// IsCopyMarking reports whether a document marking flags the page as a
// duplicate. Copy pages contribute nothing: their items would double
// totals downstream.
func IsCopyMarking(marking string) bool {
	lower := strings.ToLower(marking)
	return strings.Contains(lower, "copia") || strings.Contains(lower, "copy")
}

// Outcome is one page's contribution: the resolved invoice id, the tagged
// items, and at most one candidate summary row (before dedup).
type Outcome struct {
	Skipped    bool
	ResolvedID string
	Items      []internal.ItemRow
	Summary    *internal.SummaryRow
}

// Step folds a single page record into the state. A nil record or a copy
// page is skipped without touching the state. Failure pages never reach
// Step; they are recorded by FileReconciler.Fail.
func Step(st State, file string, pageNo int, rec *internal.PageRecord) (State, Outcome) {
	if rec == nil || IsCopyMarking(rec.DocumentMarking) {
		return st, Outcome{Skipped: true}
	}

	resolved := st.LastInvoiceID
	if candidate := strings.TrimSpace(rec.InvoiceID); UsableID(candidate) {
		resolved = candidate
		st.LastInvoiceID = candidate
	}

	out := Outcome{ResolvedID: resolved}
	for _, it := range rec.Items {
		out.Items = append(out.Items, internal.ItemRow{
			ModelCode:   derefString(it.ModelCode),
			Description: derefString(it.Description),
			Quantity:    derefInt(it.Quantity),
			UnitPrice:   derefFloat(it.UnitPrice),
			Origin:      derefString(it.Origin),
			LineTotal:   it.LineTotal,
			InvoiceID:   resolved,
			SourceFile:  file,
			Page:        pageNo,
		})
	}

	if resolved != NoInvoice {
		out.Summary = &internal.SummaryRow{
			SourceFile:  file,
			InvoiceID:   resolved,
			TotalAmount: rec.TotalAmount,
			Customer:    rec.Customer,
		}
	}

	return st, out
}

// FileReconciler folds one file's pages, in page order, into the tagged
// item collection, the deduplicated summary and the failure list.
type FileReconciler struct {
	file       string
	state      State
	pages      int
	items      []internal.ItemRow
	summary    []internal.SummaryRow
	summarized map[string]struct{}
	failures   []internal.PageFailure
}

func NewFile(file string) *FileReconciler {
	return &FileReconciler{
		file:       file,
		state:      NewState(),
		summarized: map[string]struct{}{},
	}
}

// Page folds one extracted record. Pass nil when the extractor returned
// no usable record for the page.
func (r *FileReconciler) Page(pageNo int, rec *internal.PageRecord) {
	r.pages++
	st, out := Step(r.state, r.file, pageNo, rec)
	r.state = st
	if out.Skipped {
		return
	}
	r.items = append(r.items, out.Items...)
	if out.Summary != nil {
		if _, seen := r.summarized[out.Summary.InvoiceID]; !seen {
			r.summarized[out.Summary.InvoiceID] = struct{}{}
			r.summary = append(r.summary, *out.Summary)
		}
	}
}

// Fail records a reported extraction failure for one page. The page
// contributes nothing; the file continues.
func (r *FileReconciler) Fail(pageNo int, reason string) {
	r.pages++
	r.failures = append(r.failures, internal.PageFailure{Page: pageNo, Reason: reason})
}

func (r *FileReconciler) Result() internal.FileResult {
	return internal.FileResult{
		SourceFile: r.file,
		Pages:      r.pages,
		Items:      r.items,
		Summary:    r.summary,
		Failures:   r.failures,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
