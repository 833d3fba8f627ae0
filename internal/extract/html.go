package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"nexus/internal"
	"nexus/internal/util"
)

var (
	invoiceIDPattern = regexp.MustCompile(`(?i)(?:factura|invoice)[ \t]*(?:no\.?|n[º°o]\.?|#|:)*[ \t]*([A-Z0-9][A-Z0-9/-]{2,})`)
	totalPattern     = regexp.MustCompile(`(?i)\btotal\b[ \t]*:?[ \t]*\$?[ \t]*([0-9][0-9.,]*)`)
	customerPattern  = regexp.MustCompile(`(?i)(?:cliente|sold to)[ \t]*:[ \t]*([^\n:<>|]{3,60})`)
	copyPattern      = regexp.MustCompile(`(?i)\b(copia|copy|duplicado|duplicate)\b`)
	blockEndPattern  = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|li|tr|table|title)>|<br[^>]*>`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// ParseInvoiceHTML reads an HTML invoice (uploaded file or mail body)
// into a single-page record sequence. The first table with a
// recognizable item header supplies the line items; invoice id, total
// and customer come from the surrounding text.
func ParseInvoiceHTML(r io.Reader) ([]*internal.PageRecord, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	// Minified HTML renders as one long line; restore a break after each
	// block element so the label patterns cannot run into neighbouring
	// content.
	blob = blockEndPattern.ReplaceAll(blob, []byte("$0\n"))

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	text := doc.Text()
	rec := &internal.PageRecord{DocumentMarking: "Original"}
	if copyPattern.MatchString(text) {
		rec.DocumentMarking = "Copia"
	}
	if m := invoiceIDPattern.FindStringSubmatch(text); len(m) > 1 {
		rec.InvoiceID = m[1]
	}
	if m := totalPattern.FindStringSubmatch(text); len(m) > 1 {
		rec.TotalAmount = util.ParseDecimal(m[1])
	}
	if m := customerPattern.FindStringSubmatch(text); len(m) > 1 {
		rec.Customer = strings.TrimSpace(m[1])
	}

	rec.Items = parseItemTable(doc)
	if len(rec.Items) == 0 && rec.InvoiceID == "" {
		return nil, fmt.Errorf("no invoice content in html document")
	}

	return []*internal.PageRecord{rec}, nil
}

func parseItemTable(doc *goquery.Document) []internal.LineItem {
	var out []internal.LineItem

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}

		headers := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, strings.ToLower(normalizeSpaces(cell.Text())))
		})

		modelIdx := findHeaderIndex(headers, []string{"modelo", "codigo", "código", "code", "sku", "material", "part"})
		descIdx := findHeaderIndex(headers, []string{"descripcion", "descripción", "description", "detalle", "concepto"})
		qtyIdx := findHeaderIndex(headers, []string{"cantidad", "cant", "qty", "quantity"})
		priceIdx := findHeaderIndex(headers, []string{"precio", "price", "unit value", "unitario"})
		originIdx := findHeaderIndex(headers, []string{"origen", "origin", "ctry", "orig"})
		lineTotalIdx := findHeaderIndex(headers, []string{"importe", "amount", "subtotal"})

		if (modelIdx < 0 && descIdx < 0) || (qtyIdx < 0 && priceIdx < 0) {
			return true
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})

			model := pickCell(cells, modelIdx, -1)
			desc := pickCell(cells, descIdx, -1)
			if model == "" && desc == "" {
				return
			}
			if strings.HasPrefix(strings.ToLower(model+desc), "total") {
				return
			}

			item := internal.LineItem{
				Quantity:  util.ParseCount(pickCell(cells, qtyIdx, -1)),
				UnitPrice: util.ParseDecimal(pickCell(cells, priceIdx, -1)),
				LineTotal: util.ParseDecimal(pickCell(cells, lineTotalIdx, -1)),
			}
			if model != "" {
				item.ModelCode = util.StringPtr(model)
			}
			if desc != "" {
				item.Description = util.StringPtr(desc)
			}
			if origin := pickCell(cells, originIdx, -1); origin != "" {
				item.Origin = util.StringPtr(origin)
			}
			out = append(out, item)
		})

		return len(out) == 0
	})

	return out
}

func findHeaderIndex(headers []string, probes []string) int {
	for i, h := range headers {
		for _, probe := range probes {
			if strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(input, " "))
}
