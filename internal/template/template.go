package template

import (
	"fmt"
	"sort"
)

type Mode string

const (
	// ModeVision sends rendered page images to the model.
	ModeVision Mode = "vision"
	// ModeText sends the page's embedded text instead. Usable for
	// born-digital PDFs; scanned documents need vision.
	ModeText Mode = "text"
)

// Template is a document-type profile: the extraction prompt for one
// vendor's invoice layout plus the mode it runs in. The prompt fixes the
// JSON keys the model must answer with; the record decoder depends on
// them.
type Template struct {
	ID     string
	Name   string
	Mode   Mode
	Prompt string
}

var registry = map[string]Template{
	"general": {
		ID:   "general",
		Name: "Factura Internacional (Regal/General)",
		Mode: ModeVision,
		Prompt: `Eres un experto en extracción de datos. Analiza la imagen de la factura.
REGLA DE FILTRADO:
1. Si el documento dice explícitamente "Duplicado" o "Copia", marca "tipo_documento" como "Copia" y deja "items" vacío.
2. Si dice "Original" o no especifica, extrae todo.
Responde SOLAMENTE con un JSON válido:
{"tipo_documento": "Original/Copia", "numero_factura": "Invoice #", "fecha": "YYYY-MM-DD", "orden_compra": "PO #", "proveedor": "Vendor Name", "cliente": "Sold To", "items": [{"modelo": "Model No", "descripcion": "Description", "cantidad": 0, "precio_unitario": 0.00, "origen": ""}], "total_factura": 0.00}`,
	},
	"radioshack": {
		ID:   "radioshack",
		Name: "Factura RadioShack",
		Mode: ModeVision,
		Prompt: `Analiza esta factura de RadioShack. Extrae datos en JSON. Usa SKU como modelo.
JSON: {"tipo_documento": "Original", "numero_factura": "...", "fecha": "...", "proveedor": "RadioShack", "cliente": "...", "items": [{"modelo": "...", "descripcion": "...", "cantidad": 0, "precio_unitario": 0.0, "origen": ""}], "total_factura": 0.0}`,
	},
	"mabe": {
		ID:   "mabe",
		Name: "Factura Mabe",
		Mode: ModeVision,
		Prompt: `Analiza esta factura de Mabe. Extrae datos en JSON. Usa CODIGO MABE como modelo. Ignora impuestos.
JSON: {"tipo_documento": "Original", "numero_factura": "...", "fecha": "...", "proveedor": "Mabe", "cliente": "...", "items": [{"modelo": "...", "descripcion": "...", "cantidad": 0, "precio_unitario": 0.0, "origen": ""}], "total_factura": 0.0}`,
	},
	"goodyear": {
		ID:   "goodyear",
		Name: "Factura Goodyear",
		Mode: ModeVision,
		Prompt: `Analiza esta factura de Goodyear.

INSTRUCCIONES CRÍTICAS DE LECTURA:
1. NÚMERO DE FACTURA:
   - Busca "INVOICE NUMBER" (ej: 300098911).
   - IMPORTANTE: Si en esta página NO aparece el texto "INVOICE NUMBER", devuelve null o "CONTINUACION".

2. TABLA DE ITEMS:
   - Busca la tabla principal de productos.
   - Mapeo de columnas obligatorio:
     'Code' o 'Material' -> modelo
     'Description' -> descripcion
     'Qty' o 'Quantity' -> cantidad (número entero)
     'Unit Value' o 'Unit Price' -> precio_unitario (decimal)
     'Origin', 'Orig', 'Ctry' -> origen

   - SOBRE EL ORIGEN:
     Busca explícitamente una columna llamada "Origin", "Orig" o "Ctry".
     El valor suele ser "Brazil", "BR", "China", "US", etc.
     SI NO ENCUENTRAS EL DATO DE ORIGEN EN LA FILA, DÉJALO COMO CADENA VACÍA "".
     NO INVENTES EL ORIGEN.

   - MANEJO DE SALTOS DE LÍNEA:
     Si la descripción o los datos se dividen en dos líneas visuales para un mismo producto, únelos en un solo objeto JSON.

Responde SOLAMENTE con este JSON:
{
    "tipo_documento": "Original",
    "numero_factura": "...",
    "fecha": "...",
    "orden_compra": "...",
    "proveedor": "Goodyear International Corporation",
    "cliente": "...",
    "items": [
        {
            "modelo": "...",
            "descripcion": "...",
            "cantidad": 0,
            "precio_unitario": 0.00,
            "origen": "..."
        }
    ],
    "total_factura": 0.00
}`,
	},
}

func Get(id string) (Template, error) {
	tpl, ok := registry[id]
	if !ok {
		return Template{}, fmt.Errorf("unknown template: %s", id)
	}
	return tpl, nil
}

// List returns the registry in stable id order.
func List() []Template {
	out := make([]Template, 0, len(registry))
	for _, tpl := range registry {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
