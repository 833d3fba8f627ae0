package pipeline

import (
	"path/filepath"
	"strings"
)

type DetectResult struct {
	IsInvoice bool
	Score     float64
	Reason    string
}

var detectKeywords = []string{"factura", "invoice", "comprobante", "remito", "nota de credito", "nota de crédito"}

// DetectInvoiceEmail scores an email on cheap textual rules. Anything at
// or above 0.45 is treated as an invoice delivery; the rest is skipped
// without touching the extractor.
func DetectInvoiceEmail(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.3
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".pdf") {
			score += 0.4
			break
		}
	}
	for _, name := range attachmentNames {
		base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		hit := false
		for _, kw := range detectKeywords {
			if strings.Contains(base, kw) {
				score += 0.2
				hit = true
				break
			}
		}
		if hit {
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}

	isInvoice := score >= 0.45
	reason := "rules_negative"
	if isInvoice {
		reason = "rules_positive"
	}

	return DetectResult{IsInvoice: isInvoice, Score: score, Reason: reason}
}
