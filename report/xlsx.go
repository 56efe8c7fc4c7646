package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// HistoryWorkbook writes one employee's credit history with a running
// balance per category.
func HistoryWorkbook(w io.Writer, emp leave.Employee, txs []generic.Transaction) error {
	columns := []string{"Date", "Category", "Type", "Days", "Balance", "Reason", "Reference", "Recorded by"}
	running := map[string]generic.Amount{}

	rows := make([][]any, 0, len(txs))
	for _, tx := range txs {
		cat := tx.Resource.ResourceID()
		bal, ok := running[cat]
		if !ok {
			bal = tx.Delta.Zero()
		}
		bal = bal.Add(tx.Delta)
		running[cat] = bal
		rows = append(rows, []any{
			tx.EffectiveAt.Date().String(), cat, string(tx.Type),
			tx.Delta.Float(), bal.Float(), tx.Reason, tx.ReferenceID, tx.CreatedBy,
		})
	}
	return writeSheet(w, fmt.Sprintf("History %s", emp.ID), columns, rows)
}

// AlertsWorkbook writes expiring-credit alerts, soonest first.
func AlertsWorkbook(w io.Writer, alerts []leave.ExpiryAlert) error {
	columns := []string{"Employee", "Name", "Email", "Category", "Remaining", "Balance", "Expires", "Days left", "Severity"}
	rows := make([][]any, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []any{
			string(a.EmployeeID), a.EmployeeName, a.Email, a.DisplayName,
			a.Remaining.Float(), a.Balance.Float(), a.ExpiryDate.String(), a.DaysUntilExpiry, string(a.Severity),
		})
	}
	return writeSheet(w, "Expiring credits", columns, rows)
}

func writeSheet(w io.Writer, sheetName string, columns []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	// sheet names are limited to 31 characters
	if len(sheetName) > 31 {
		sheetName = sheetName[:31]
	}
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	for i := range columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 16)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
