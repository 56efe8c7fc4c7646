/*
Package report renders leave data for download.

PURPOSE:
  Read-only renderings of the engine's read models. Nothing here touches
  the ledger: callers fetch balances, history and alerts from leave.Engine
  and pass them in.

FORMATS:
  BalanceStatement  PDF, one employee: balances, next expiry, recent history
  HistoryWorkbook   XLSX, one employee's credit history with running balance
  AlertsWorkbook    XLSX, expiring-credit alerts for HR follow-up

SEE ALSO:
  - api/reports.go: Download endpoints
*/
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// Statement is everything printed on a balance statement.
type Statement struct {
	Employee    leave.Employee
	Balances    []leave.BalanceLine
	History     []generic.Transaction
	GeneratedAt time.Time
	AsOf        generic.TimePoint // zero for a current statement
}

// maxStatementRows keeps the statement to a page or two.
const maxStatementRows = 40

// BalanceStatement writes s as an A4 PDF.
func BalanceStatement(w io.Writer, s Statement) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Leave Credit Statement", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Leave Credit Statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	e := s.Employee
	pdf.Cell(0, 7, fmt.Sprintf("Employee: %s (%s)", e.Name, e.ID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Department: %s", e.Department))
	pdf.Ln(6)
	if !e.LastAccrualAt.IsZero() {
		pdf.Cell(0, 7, fmt.Sprintf("Last accrual: %s", e.LastAccrualAt))
		pdf.Ln(6)
	}
	if !s.AsOf.IsZero() {
		pdf.Cell(0, 7, fmt.Sprintf("Balances as of: %s", s.AsOf.Date()))
		pdf.Ln(6)
	}
	pdf.Cell(0, 7, fmt.Sprintf("Generated: %s", s.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(224, 224, 224)
	for _, h := range []struct {
		label string
		width float64
	}{{"Category", 80}, {"Balance", 30}, {"Next expiry", 35}, {"Notes", 45}} {
		pdf.CellFormat(h.width, 7, h.label, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, b := range s.Balances {
		next := "-"
		if !b.NextExpiry.IsZero() {
			next = b.NextExpiry.String()
		}
		pdf.CellFormat(80, 6, b.DisplayName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, b.Balance.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, next, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, notes(b), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	if len(s.History) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Recent transactions")
		pdf.Ln(9)

		pdf.SetFont("Helvetica", "B", 10)
		for _, h := range []struct {
			label string
			width float64
		}{{"Date", 25}, {"Category", 40}, {"Type", 25}, {"Days", 20}, {"Reason", 80}} {
			pdf.CellFormat(h.width, 6, h.label, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 9)
		rows := s.History
		if len(rows) > maxStatementRows {
			rows = rows[len(rows)-maxStatementRows:]
		}
		for _, tx := range rows {
			pdf.CellFormat(25, 5, tx.EffectiveAt.Date().String(), "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 5, tx.Resource.ResourceID(), "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 5, string(tx.Type), "1", 0, "L", false, 0, "")
			pdf.CellFormat(20, 5, tx.Delta.String(), "1", 0, "R", false, 0, "")
			pdf.CellFormat(80, 5, truncate(tx.Reason, 48), "1", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render statement: %w", err)
	}
	return nil
}

func notes(b leave.BalanceLine) string {
	switch {
	case b.Expires:
		return "expires 1 year after grant"
	case b.Cumulative && b.Commutable:
		return "cumulative, commutable"
	case b.Cumulative:
		return "cumulative"
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
