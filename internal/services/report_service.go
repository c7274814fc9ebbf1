// internal/services/report_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/models"
)

const dateLayout = "2006-01-02"

// ReportService renders compliance reports as XLSX workbooks.
type ReportService struct {
	licences     *LicenceService
	transactions *TransactionService
}

type Workbook struct {
	FileName string
	Data     []byte
}

func NewReportService(licences *LicenceService, transactions *TransactionService) *ReportService {
	return &ReportService{licences: licences, transactions: transactions}
}

// ImpactWorkbook previews a licence date correction and exports the impact.
func (s *ReportService) ImpactWorkbook(ctx context.Context, licenceID uuid.UUID, req *CorrectLicenceDatesRequest) (*Workbook, error) {
	report, err := s.licences.PreviewCorrection(ctx, licenceID, req)
	if err != nil {
		return nil, err
	}
	data, err := RenderImpactReport(report)
	if err != nil {
		return nil, err
	}
	return &Workbook{
		FileName: fmt.Sprintf("impact_%s_%s.xlsx", sanitizeFileName(report.LicenceNumber), time.Now().UTC().Format("20060102")),
		Data:     data,
	}, nil
}

func (s *ReportService) PendingOverridesWorkbook(ctx context.Context) (*Workbook, error) {
	txs, err := s.transactions.ListPendingOverrides(ctx)
	if err != nil {
		return nil, err
	}
	data, err := RenderPendingOverrides(txs, time.Now())
	if err != nil {
		return nil, err
	}
	return &Workbook{
		FileName: fmt.Sprintf("pending_overrides_%s.xlsx", time.Now().UTC().Format("20060102")),
		Data:     data,
	}, nil
}

// RenderImpactReport writes a summary sheet and one row per impacted
// transaction.
func RenderImpactReport(report *compliance.ImpactReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summary := "Summary"
	f.SetSheetName("Sheet1", summary)
	rows := [][]interface{}{
		{"Licence", report.LicenceNumber},
		{"Window start", report.WindowStart.Format(dateLayout)},
		{"Window end", report.WindowEnd.Format(dateLayout)},
		{"Analyzed", report.Summary.Analyzed},
		{"Critical", report.Summary.Critical},
		{"Major", report.Summary.Major},
		{"Minor", report.Summary.Minor},
	}
	if err := writeRows(f, summary, 1, rows); err != nil {
		return nil, err
	}

	items := "Impacted transactions"
	if _, err := f.NewSheet(items); err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}
	headers := []interface{}{"Reference", "Transaction date", "Customer", "Original status", "Corrected status", "Severity", "Requires review", "Explanation"}
	rows = [][]interface{}{headers}
	for _, item := range report.Items {
		rows = append(rows, []interface{}{
			item.ExternalReference,
			item.TransactionDate.Format(dateLayout),
			item.CustomerID.String(),
			string(item.OriginalStatus),
			string(item.CorrectedStatus),
			string(item.Severity),
			item.RequiresReview,
			item.Explanation,
		})
	}
	if err := writeRows(f, items, 1, rows); err != nil {
		return nil, err
	}
	if err := boldHeader(f, items, len(headers)); err != nil {
		return nil, err
	}
	return finalizeExcel(f)
}

// RenderPendingOverrides lists failed transactions waiting for a decision,
// oldest first, with their age in days.
func RenderPendingOverrides(txs []models.Transaction, now time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Pending overrides"
	f.SetSheetName("Sheet1", sheet)
	headers := []interface{}{"Reference", "Transaction date", "Customer", "Validated at", "Age (days)", "Findings"}
	rows := [][]interface{}{headers}
	for _, tx := range txs {
		validatedAt, age := "", 0
		if tx.ValidatedAt != nil {
			validatedAt = tx.ValidatedAt.UTC().Format(time.RFC3339)
			age = int(now.Sub(*tx.ValidatedAt).Hours() / 24)
		}
		customer := tx.CustomerID.String()
		if tx.Customer != nil {
			customer = tx.Customer.Name
		}
		rows = append(rows, []interface{}{
			tx.ExternalReference,
			tx.TransactionDate.Format(dateLayout),
			customer,
			validatedAt,
			age,
			strings.Join(tx.ComplianceErrors, "; "),
		})
	}
	if err := writeRows(f, sheet, 1, rows); err != nil {
		return nil, err
	}
	if err := boldHeader(f, sheet, len(headers)); err != nil {
		return nil, err
	}
	return finalizeExcel(f)
}

func writeRows(f *excelize.File, sheet string, startRow int, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, startRow+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", startRow+i, err)
		}
	}
	return nil
}

func boldHeader(f *excelize.File, sheet string, columns int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(columns, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func finalizeExcel(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
