package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"nexus/internal"
)

// Download filenames for the three report shapes.
const (
	DefaultExportName = "Reporte_Extraido.xlsx"
	CSVExportName     = "Reporte_Extraido.csv"
	DPRExportName     = "Reporte_DPR.xlsx"
)

var itemHeaders = []string{"modelo", "descripcion", "cantidad", "precio_unitario", "origen", "Factura_Origen", "Archivo"}

// BuildItemsWorkbook renders the reconciled rows into the two-sheet
// report: Detalle_Items with one row per line item, Resumen_Facturas with
// one row per (file, invoice). Row order is the reconciler's and is never
// re-sorted.
func BuildItemsWorkbook(items []internal.ItemRow, summary []internal.SummaryRow) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Detalle_Items"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	for i, h := range itemHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, item := range items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
		set(1, item.ModelCode)
		set(2, item.Description)
		set(3, item.Quantity)
		set(4, item.UnitPrice)
		set(5, item.Origin)
		set(6, item.InvoiceID)
		set(7, item.SourceFile)
	}

	for col, width := range map[string]float64{"A": 15, "B": 50, "C": 10, "D": 12, "E": 15, "F": 20, "G": 28} {
		_ = f.SetColWidth(sheet, col, col, width)
	}

	const resumen = "Resumen_Facturas"
	if _, err := f.NewSheet(resumen); err != nil {
		return nil, err
	}
	for i, h := range []string{"Archivo", "Factura", "Total", "Cliente"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(resumen, cell, h)
	}
	for i, row := range summary {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(resumen, cell, value)
		}
		set(1, row.SourceFile)
		set(2, row.InvoiceID)
		set(3, derefFloat(row.TotalAmount))
		set(4, row.Customer)
	}

	return f, nil
}

// BuildDPRWorkbook renders items into the fixed external declaration
// layout. The middle placeholder columns and the observations column stay
// empty; they are filled in by hand downstream.
func BuildDPRWorkbook(items []internal.ItemRow) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "DPR"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"ITEM", "CODIGO", "DESCRIPCION", "CANTIDAD", "PRECIO UNITARIO", "TOTAL", "ORIGEN",
		"", "", "", "FACTURA", "",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, item := range items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		total := float64(item.Quantity) * item.UnitPrice
		if item.LineTotal != nil {
			total = *item.LineTotal
		}

		set(1, i+1)
		set(2, item.ModelCode)
		set(3, item.Description)
		set(4, item.Quantity)
		set(5, item.UnitPrice)
		set(6, total)
		set(7, item.Origin)
		set(11, item.InvoiceID)
	}

	return f, nil
}

// WriteItemsCSV writes the Detalle_Items columns as CSV.
func WriteItemsCSV(w io.Writer, items []internal.ItemRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(itemHeaders); err != nil {
		return err
	}
	for _, item := range items {
		record := []string{
			item.ModelCode,
			item.Description,
			strconv.Itoa(item.Quantity),
			strconv.FormatFloat(item.UnitPrice, 'f', -1, 64),
			item.Origin,
			item.InvoiceID,
			item.SourceFile,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportItemsToXLSX builds the item workbook and saves it to outputPath.
func ExportItemsToXLSX(items []internal.ItemRow, summary []internal.SummaryRow, outputPath string) error {
	f, err := BuildItemsWorkbook(items, summary)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// ExportItemsToCSV writes the Detalle_Items columns to outputPath.
func ExportItemsToCSV(items []internal.ItemRow, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteItemsCSV(f, items)
}

// ExportDPRToXLSX builds the DPR workbook and saves it to outputPath.
func ExportDPRToXLSX(items []internal.ItemRow, outputPath string) error {
	f, err := BuildDPRWorkbook(items)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
