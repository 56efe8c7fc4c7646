package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
	"github.com/govhr/leave-engine/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// The report is rendered into a buffer first so a rendering failure can
// still produce a JSON error instead of a truncated download.
func writeFile(w http.ResponseWriter, contentType, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// BalanceStatement downloads a PDF of balances and recent history. An
// as_of=YYYY-MM-DD query limits both to transactions effective by then.
func (h *Handler) BalanceStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	var asOf generic.TimePoint
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := generic.ParseDate(raw)
		if err != nil {
			h.writeDomainError(w, r, &generic.ValidationError{Fields: []generic.FieldError{{Field: "as_of", Message: "must be YYYY-MM-DD"}}})
			return
		}
		asOf = parsed
	}

	ctx := r.Context()
	emp, err := h.engine.Employee(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var balances []leave.BalanceLine
	if asOf.IsZero() {
		balances, err = h.engine.Balances(ctx, id)
	} else {
		balances, err = h.engine.BalancesAsOf(ctx, id, asOf)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	history, err := h.engine.History(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if !asOf.IsZero() {
		kept := history[:0]
		for _, tx := range history {
			if tx.EffectiveAt.BeforeOrEqual(asOf) {
				kept = append(kept, tx)
			}
		}
		history = kept
	}

	var buf bytes.Buffer
	err = report.BalanceStatement(&buf, report.Statement{
		Employee:    emp,
		Balances:    balances,
		History:     history,
		GeneratedAt: h.engine.Clock().Now(),
		AsOf:        asOf,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeFile(w, "application/pdf", fmt.Sprintf("leave-statement-%s.pdf", id), &buf)
}

// HistoryWorkbook downloads the credit history as XLSX.
func (h *Handler) HistoryWorkbook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	emp, err := h.engine.Employee(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	history, err := h.engine.History(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.HistoryWorkbook(&buf, emp, history); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeFile(w, xlsxContentType, fmt.Sprintf("leave-history-%s.xlsx", id), &buf)
}

// AlertsWorkbook downloads expiring-credit alerts as XLSX.
func (h *Handler) AlertsWorkbook(w http.ResponseWriter, r *http.Request) {
	alerts, ok := h.alertsFor(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.AlertsWorkbook(&buf, alerts); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	name := fmt.Sprintf("expiring-credits-%s.xlsx", h.engine.Clock().Today())
	writeFile(w, xlsxContentType, name, &buf)
}
