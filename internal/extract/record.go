package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"nexus/internal"
	"nexus/internal/util"
)

// The gate is deliberately loose: the answer must be an object and items,
// if present, an array of objects. Field types are unioned because the
// model mixes strings and numbers freely; coercion happens afterwards.
const pageRecordSchema = `{
	"type": "object",
	"properties": {
		"tipo_documento": {"type": ["string", "null"]},
		"numero_factura": {"type": ["string", "number", "null"]},
		"fecha": {"type": ["string", "number", "null"]},
		"orden_compra": {"type": ["string", "number", "null"]},
		"proveedor": {"type": ["string", "null"]},
		"cliente": {"type": ["string", "null"]},
		"total_factura": {"type": ["number", "string", "null"]},
		"items": {
			"type": ["array", "null"],
			"items": {"type": "object"}
		}
	}
}`

var pageRecordGate = jsonschema.MustCompileString("page_record.json", pageRecordSchema)

// DecodePageRecord turns a raw model answer into a PageRecord: markdown
// fences stripped, shape validated, loosely-typed fields coerced. An
// error means the payload is not a usable structured record.
func DecodePageRecord(raw []byte) (*internal.PageRecord, error) {
	cleaned := StripJSONFences(string(raw))

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("parse model answer: %w", err)
	}
	if err := pageRecordGate.Validate(v); err != nil {
		return nil, fmt.Errorf("model answer shape: %w", err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("model answer is not an object")
	}

	rec := &internal.PageRecord{
		DocumentMarking: toText(obj["tipo_documento"]),
		InvoiceID:       toText(obj["numero_factura"]),
		Date:            toText(obj["fecha"]),
		PurchaseOrder:   toText(obj["orden_compra"]),
		Vendor:          toText(obj["proveedor"]),
		Customer:        toText(obj["cliente"]),
		TotalAmount:     toFloatPtr(obj["total_factura"]),
	}

	if arr, ok := obj["items"].([]any); ok {
		for _, el := range arr {
			m, ok := el.(map[string]any)
			if !ok {
				continue
			}
			rec.Items = append(rec.Items, internal.LineItem{
				ModelCode:   toTextPtr(m["modelo"]),
				Description: toTextPtr(m["descripcion"]),
				Quantity:    toIntPtr(m["cantidad"]),
				UnitPrice:   toFloatPtr(m["precio_unitario"]),
				Origin:      toTextPtr(m["origen"]),
				LineTotal:   toFloatPtr(m["importe"]),
			})
		}
	}

	return rec, nil
}

// StripJSONFences removes the ```json fences some model revisions wrap
// their answer in.
func StripJSONFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// toText renders a JSON scalar the way the reconciler expects invoice
// ids: numbers without a float suffix, null as empty.
func toText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func toTextPtr(v any) *string {
	s := toText(v)
	if s == "" {
		return nil
	}
	return util.StringPtr(s)
}

func toIntPtr(v any) *int {
	switch t := v.(type) {
	case float64:
		return util.IntPtr(int(t))
	case int:
		return util.IntPtr(t)
	case string:
		return util.ParseCount(t)
	default:
		return nil
	}
}

func toFloatPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return util.FloatPtr(t)
	case int:
		return util.FloatPtr(float64(t))
	case string:
		return util.ParseDecimal(t)
	default:
		return nil
	}
}
