package reconcile

import (
	"testing"

	"nexus/internal"
)

func sp(s string) *string { return &s }

func fp(f float64) *float64 { return &f }

func ip(i int) *int { return &i }

func page(marking, invoiceID string, items ...internal.LineItem) *internal.PageRecord {
	return &internal.PageRecord{DocumentMarking: marking, InvoiceID: invoiceID, Items: items}
}

func item(code string) internal.LineItem {
	return internal.LineItem{
		ModelCode:   sp(code),
		Description: sp("desc " + code),
		Quantity:    ip(1),
		UnitPrice:   fp(10),
		Origin:      sp("BR"),
	}
}

func TestUsableID(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "real id", input: "300098911", want: true},
		{name: "alnum id", input: "FA-102", want: true},
		{name: "empty", input: "", want: false},
		{name: "spaces only", input: "   ", want: false},
		{name: "none", input: "none", want: false},
		{name: "null upper", input: "NULL", want: false},
		{name: "continuacion", input: "CONTINUACION", want: false},
		{name: "pendiente mixed", input: "Pendiente", want: false},
		{name: "too short", input: "12", want: false},
		{name: "three chars", input: "123", want: true},
		{name: "padded", input: "  301  ", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UsableID(tc.input); got != tc.want {
				t.Fatalf("UsableID(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsCopyMarking(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{input: "Copia", want: true},
		{input: "COPIA FIEL", want: true},
		{input: "Copy", want: true},
		{input: "Duplicado - Copia", want: true},
		{input: "Original", want: false},
		{input: "", want: false},
	}

	for _, tc := range cases {
		if got := IsCopyMarking(tc.input); got != tc.want {
			t.Fatalf("IsCopyMarking(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestContinuationCarriesForward(t *testing.T) {
	r := NewFile("goodyear.pdf")
	r.Page(1, page("Original", "300098911", item("A")))
	r.Page(2, page("Original", "CONTINUACION", item("B")))
	res := r.Result()

	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	for _, it := range res.Items {
		if it.InvoiceID != "300098911" {
			t.Fatalf("item %s resolved to %q", it.ModelCode, it.InvoiceID)
		}
		if it.SourceFile != "goodyear.pdf" {
			t.Fatalf("item %s tagged file %q", it.ModelCode, it.SourceFile)
		}
	}
	if len(res.Summary) != 1 {
		t.Fatalf("expected 1 summary row, got %d", len(res.Summary))
	}
	if res.Summary[0].InvoiceID != "300098911" {
		t.Fatalf("summary invoice %q", res.Summary[0].InvoiceID)
	}
}

func TestCopyPageContributesNothing(t *testing.T) {
	r := NewFile("copia.pdf")
	r.Page(1, page("Copia", "999", item("X")))
	res := r.Result()

	if len(res.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(res.Items))
	}
	if len(res.Summary) != 0 {
		t.Fatalf("expected no summary rows, got %d", len(res.Summary))
	}
	if res.Pages != 1 {
		t.Fatalf("expected 1 page counted, got %d", res.Pages)
	}
}

func TestLeadingPagesStayUnnumbered(t *testing.T) {
	r := NewFile("orphan.pdf")
	r.Page(1, page("Original", "", item("A")))
	res := r.Result()

	if len(res.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(res.Items))
	}
	if res.Items[0].InvoiceID != NoInvoice {
		t.Fatalf("resolved %q, want %q", res.Items[0].InvoiceID, NoInvoice)
	}
	if len(res.Summary) != 0 {
		t.Fatalf("sentinel id must not produce a summary row, got %d", len(res.Summary))
	}
}

func TestFileThenPageOrderAcrossFiles(t *testing.T) {
	first := NewFile("first.pdf")
	first.Page(1, page("Original", "12345", item("A1"), item("A2")))
	second := NewFile("second.pdf")
	second.Page(1, page("Original", "12345", item("B1")))

	all := append(first.Result().Items, second.Result().Items...)
	wantCodes := []string{"A1", "A2", "B1"}
	if len(all) != len(wantCodes) {
		t.Fatalf("expected %d items, got %d", len(wantCodes), len(all))
	}
	for i, code := range wantCodes {
		if all[i].ModelCode != code {
			t.Fatalf("position %d: got %q want %q", i, all[i].ModelCode, code)
		}
	}

	summaries := append(first.Result().Summary, second.Result().Summary...)
	if len(summaries) != 2 {
		t.Fatalf("same invoice id in two files must keep two summary rows, got %d", len(summaries))
	}
	if summaries[0].SourceFile == summaries[1].SourceFile {
		t.Fatalf("summary rows collapsed onto one file")
	}
}

func TestSummaryFirstSeenWins(t *testing.T) {
	r := NewFile("inv.pdf")
	p1 := page("Original", "FA-555", item("A"))
	p1.TotalAmount = fp(100)
	p1.Customer = "ACME"
	p2 := page("Original", "FA-555", item("B"))
	p2.TotalAmount = fp(999)
	p2.Customer = "OTHER"
	r.Page(1, p1)
	r.Page(2, p2)
	res := r.Result()

	if len(res.Items) != 2 {
		t.Fatalf("expected both pages' items, got %d", len(res.Items))
	}
	if len(res.Summary) != 1 {
		t.Fatalf("expected 1 summary row, got %d", len(res.Summary))
	}
	s := res.Summary[0]
	if s.TotalAmount == nil || *s.TotalAmount != 100 || s.Customer != "ACME" {
		t.Fatalf("later page overwrote the summary row: %+v", s)
	}
}

func TestItemDefaulting(t *testing.T) {
	r := NewFile("sparse.pdf")
	r.Page(1, page("Original", "FA-777", internal.LineItem{Description: sp("bare item")}))
	res := r.Result()

	if len(res.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(res.Items))
	}
	it := res.Items[0]
	if it.Quantity != 0 {
		t.Fatalf("quantity defaulted to %d, want 0", it.Quantity)
	}
	if it.UnitPrice != 0.0 {
		t.Fatalf("unit price defaulted to %v, want 0.0", it.UnitPrice)
	}
	if it.Origin != "" {
		t.Fatalf("origin defaulted to %q, want empty", it.Origin)
	}
	if it.ModelCode != "" {
		t.Fatalf("model code defaulted to %q, want empty", it.ModelCode)
	}
	if it.InvoiceID != "FA-777" {
		t.Fatalf("resolved %q", it.InvoiceID)
	}
}

func TestFailureDoesNotAbortFile(t *testing.T) {
	r := NewFile("flaky.pdf")
	r.Page(1, page("Original", "FA-100", item("A")))
	r.Fail(2, "chat completion: status 500")
	r.Page(3, page("Original", "", item("C")))
	res := r.Result()

	if len(res.Failures) != 1 || res.Failures[0].Page != 2 {
		t.Fatalf("failures = %+v", res.Failures)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[1].InvoiceID != "FA-100" {
		t.Fatalf("carry across a failed page broke: %q", res.Items[1].InvoiceID)
	}
	if res.Pages != 3 {
		t.Fatalf("pages = %d, want 3", res.Pages)
	}
}

func TestCopyPageDoesNotTouchState(t *testing.T) {
	r := NewFile("mix.pdf")
	r.Page(1, page("Original", "FA-200", item("A")))
	r.Page(2, page("Copia", "ZZZ-999", item("X")))
	r.Page(3, page("Original", "continuacion", item("C")))
	res := r.Result()

	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[1].InvoiceID != "FA-200" {
		t.Fatalf("copy page leaked its id: %q", res.Items[1].InvoiceID)
	}
}

func TestEmptyRecordSkippedSilently(t *testing.T) {
	r := NewFile("gap.pdf")
	r.Page(1, page("Original", "FA-300", item("A")))
	r.Page(2, nil)
	r.Page(3, page("Original", "None", item("C")))
	res := r.Result()

	if len(res.Failures) != 0 {
		t.Fatalf("empty record must not count as failure: %+v", res.Failures)
	}
	if len(res.Items) != 2 || res.Items[1].InvoiceID != "FA-300" {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestSummaryRowWithoutItems(t *testing.T) {
	r := NewFile("cover.pdf")
	p := page("Original", "FA-400")
	p.TotalAmount = fp(250.5)
	p.Customer = "Cliente SA"
	r.Page(1, p)
	res := r.Result()

	if len(res.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(res.Items))
	}
	if len(res.Summary) != 1 || res.Summary[0].InvoiceID != "FA-400" {
		t.Fatalf("summary = %+v", res.Summary)
	}
}

func TestCandidateIsTrimmed(t *testing.T) {
	r := NewFile("pad.pdf")
	r.Page(1, page("Original", "  300098911  ", item("A")))
	res := r.Result()

	if res.Items[0].InvoiceID != "300098911" {
		t.Fatalf("resolved %q, want trimmed id", res.Items[0].InvoiceID)
	}
}

func TestStepIsPure(t *testing.T) {
	st := NewState()
	next, out := Step(st, "f.pdf", 1, page("Original", "FA-900", item("A")))

	if st.LastInvoiceID != NoInvoice {
		t.Fatalf("input state mutated: %q", st.LastInvoiceID)
	}
	if next.LastInvoiceID != "FA-900" {
		t.Fatalf("next state = %q", next.LastInvoiceID)
	}
	if out.ResolvedID != "FA-900" {
		t.Fatalf("resolved = %q", out.ResolvedID)
	}
}
