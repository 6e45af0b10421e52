package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// Payroll export renderers. One exporter per format; the payroll service picks
// by format key. All three render the same logical rows: one line per claim
// plus the batch summary.

var csvHeader = []string{
	"claim_number", "employee_id", "title",
	"claim_type", "currency", "amount",
}

// CSVExporter renders a batch as UTF-8 CSV
type CSVExporter struct{}

// NewCSVExporter creates a new CSV exporter
func NewCSVExporter() *CSVExporter { return &CSVExporter{} }

// Export implements port.BatchExporter
func (e *CSVExporter) Export(batch *entity.PayrollBatch) ([]byte, string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, "", fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range claimRows(batch) {
		if err := w.Write(row); err != nil {
			return nil, "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), "text/csv", nil
}

// JSONExporter renders a batch as a JSON document
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter
func NewJSONExporter() *JSONExporter { return &JSONExporter{} }

type jsonBatch struct {
	BatchNumber string      `json:"batch_number"`
	PeriodStart string      `json:"period_start"`
	PeriodEnd   string      `json:"period_end"`
	TotalAmount string      `json:"total_amount"`
	ClaimCount  int         `json:"claim_count"`
	Claims      []jsonClaim `json:"claims"`
}

type jsonClaim struct {
	ClaimNumber string `json:"claim_number"`
	EmployeeID  string `json:"employee_id"`
	Title       string `json:"title"`
	ClaimType   string `json:"claim_type"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
}

// Export implements port.BatchExporter
func (e *JSONExporter) Export(batch *entity.PayrollBatch) ([]byte, string, error) {
	doc := jsonBatch{
		BatchNumber: batch.BatchNumber,
		PeriodStart: batch.PeriodStart.Format("2006-01-02"),
		PeriodEnd:   batch.PeriodEnd.Format("2006-01-02"),
		TotalAmount: batch.TotalAmount.String(),
		ClaimCount:  batch.ClaimCount,
		Claims:      make([]jsonClaim, 0, len(batch.Claims)),
	}
	for _, claim := range batch.Claims {
		doc.Claims = append(doc.Claims, jsonClaim{
			ClaimNumber: claim.ClaimNumber,
			EmployeeID:  claim.UserID,
			Title:       claim.Title,
			ClaimType:   string(claim.ClaimType),
			Currency:    claim.Currency,
			Amount:      claim.TotalAmount.String(),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal batch: %w", err)
	}
	return data, "application/json", nil
}

// XLSXExporter renders a batch as an Excel workbook
type XLSXExporter struct{}

// NewXLSXExporter creates a new XLSX exporter
func NewXLSXExporter() *XLSXExporter { return &XLSXExporter{} }

const xlsxSheet = "Payroll"

// Export implements port.BatchExporter
func (e *XLSXExporter) Export(batch *entity.PayrollBatch) ([]byte, string, error) {
	file := excelize.NewFile()
	defer file.Close()

	index, err := file.NewSheet(xlsxSheet)
	if err != nil {
		return nil, "", fmt.Errorf("create sheet: %w", err)
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("delete default sheet: %w", err)
	}

	// Batch summary block
	summary := [][]interface{}{
		{"Batch Number", batch.BatchNumber},
		{"Period", fmt.Sprintf("%s to %s",
			batch.PeriodStart.Format("2006-01-02"), batch.PeriodEnd.Format("2006-01-02"))},
		{"Claims", batch.ClaimCount},
		{"Total Amount", batch.TotalAmount.String()},
	}
	for i, row := range summary {
		cell := fmt.Sprintf("A%d", i+1)
		if err := file.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, "", fmt.Errorf("write summary row: %w", err)
		}
	}

	headerRow := 6
	header := make([]interface{}, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := file.SetSheetRow(xlsxSheet, fmt.Sprintf("A%d", headerRow), &header); err != nil {
		return nil, "", fmt.Errorf("write header row: %w", err)
	}

	for i, row := range claimRows(batch) {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		cell := fmt.Sprintf("A%d", headerRow+1+i)
		if err := file.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return nil, "", fmt.Errorf("write claim row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
}

func claimRows(batch *entity.PayrollBatch) [][]string {
	rows := make([][]string, 0, len(batch.Claims))
	for _, claim := range batch.Claims {
		rows = append(rows, []string{
			claim.ClaimNumber,
			claim.UserID,
			claim.Title,
			string(claim.ClaimType),
			claim.Currency,
			claim.TotalAmount.String(),
		})
	}
	return rows
}

// Registry returns the exporters keyed by export format
func Registry() map[string]port.BatchExporter {
	return map[string]port.BatchExporter{
		entity.ExportFormatCSV:  NewCSVExporter(),
		entity.ExportFormatJSON: NewJSONExporter(),
		entity.ExportFormatXLSX: NewXLSXExporter(),
	}
}

// Verify interface compliance
var (
	_ port.BatchExporter = (*CSVExporter)(nil)
	_ port.BatchExporter = (*JSONExporter)(nil)
	_ port.BatchExporter = (*XLSXExporter)(nil)
)
