/*
handlers.go - HTTP API handlers for the leave credit engine

PURPOSE:
  Exposes leave.Engine over REST. Handlers parse and validate the request,
  resolve the caller from the bearer token, delegate to the engine and
  serialize the result. No leave rule lives here.

ENDPOINTS:
  Catalog:
    GET    /api/categories                      Leave categories in force

  Employees:
    GET    /api/employees                       List employees (HR)
    POST   /api/employees                       Register employee (HR)
    GET    /api/employees/{id}                  Employee record
    GET    /api/employees/{id}/balances         Balance per credit category
    GET    /api/employees/{id}/history          Credit history
    GET    /api/employees/{id}/grants           Expiry grants
    POST   /api/employees/{id}/credits          Grant credit (HR)
    GET    /api/employees/{id}/statement.pdf    Balance statement (?as_of=YYYY-MM-DD)
    GET    /api/employees/{id}/history.xlsx     History workbook

  Requests:
    POST   /api/requests                        Submit leave
    GET    /api/requests                        List (?employee_id, ?status, ?limit)
    GET    /api/requests/{id}                   Request detail
    POST   /api/requests/{id}/cancel            Withdraw and refund
    POST   /api/requests/{id}/approvals         Record a level decision

  Operations (HR):
    POST   /api/accrual/runs                    Run this month's accrual
    GET    /api/accrual/runs                    Recent runs
    GET    /api/expiry/alerts                   Expiring credits (?within)
    GET    /api/expiry/alerts.xlsx              Same, as a workbook
    POST   /api/expiry/alerts/dispatch          Notify affected employees
    POST   /api/expiry/sweep                    Forfeit expired grants
    GET    /api/audit                           Audit trail

ACCESS:
  Employees see their own records. Department heads and directors may read
  any employee's record and requests because they review them. HR admins
  see everything. Write permissions are enforced by the engine.

ERROR HANDLING:
  Engine errors are mapped in errors.go:
  - 400: Validation errors, invalid input
  - 403: Caller may not perform the operation
  - 404: Employee, request or grant not found
  - 409: Request state conflict, duplicate decision
  - 422: Insufficient credits, ineligible, over allotment
  - 503: Lost write race, safe to retry
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - reports.go: PDF/XLSX downloads
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/govhr/leave-engine/factory"
	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine      *leave.Engine
	store       Pinger
	validate    *validator.Validate
	logger      *zap.Logger
	alertWindow int
}

// NewHandler creates a handler. alertWindow is the default look-ahead for
// expiry alerts, in days.
func NewHandler(engine *leave.Engine, store Pinger, logger *zap.Logger, alertWindow int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:      engine,
		store:       store,
		validate:    validator.New(),
		logger:      logger,
		alertWindow: alertWindow,
	}
}

func actorOf(r *http.Request) leave.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

// canView reports whether a may read employee id's records.
func canView(a leave.Actor, id generic.EntityID) bool {
	return a.CanActFor(id) || a.Role == leave.RoleDepartmentHead || a.Role == leave.RoleDirector
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidation(w, err)
		return false
	}
	return true
}

// viewableEmployee resolves {id} and checks read access.
func (h *Handler) viewableEmployee(w http.ResponseWriter, r *http.Request) (generic.EntityID, bool) {
	id := generic.EntityID(chi.URLParam(r, "id"))
	if !canView(actorOf(r), id) {
		h.writeDomainError(w, r, leave.ErrForbidden)
		return "", false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &generic.ValidationError{Fields: []generic.FieldError{{Field: key, Message: "must be a non-negative integer"}}}
	}
	return n, nil
}

// Health is unauthenticated and checks the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListCategories returns the catalog in force.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	policies := h.engine.Registry().All()
	out := make([]factory.CategoryJSON, len(policies))
	for i, p := range policies {
		out[i] = factory.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.engine.Employees(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp := leave.Employee{
		ID:         generic.EntityID(req.ID),
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		Gender:     leave.Gender(req.Gender),
		SoloParent: req.SoloParent,
		Role:       leave.Role(req.Role),
		Status:     leave.EmployeeStatus(req.Status),
	}
	if emp.Status == "" {
		emp.Status = leave.EmployeeActive
	}
	if req.ServiceStart != "" {
		start, err := generic.ParseDate(req.ServiceStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid service_start", err)
			return
		}
		emp.ServiceStart = start
	}

	created, err := h.engine.RegisterEmployee(r.Context(), actorOf(r), emp)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(created))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	emp, err := h.engine.Employee(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	lines, err := h.engine.Balances(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOs(lines))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	txs, err := h.engine.History(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	grants, err := h.engine.Grants(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]GrantDTO, len(grants))
	for i, g := range grants {
		dtos[i] = toGrantDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GrantCredit posts an administrative credit. The effective date defaults
// to today.
func (h *Handler) GrantCredit(w http.ResponseWriter, r *http.Request) {
	var req GrantCreditRequest
	if !h.decode(w, r, &req) {
		return
	}
	effective := h.engine.Clock().Today()
	if req.EffectiveDate != "" {
		d, err := generic.ParseDate(req.EffectiveDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
			return
		}
		effective = d
	}

	tx, err := h.engine.GrantCredit(r.Context(), actorOf(r),
		generic.EntityID(chi.URLParam(r, "id")), req.Category, generic.Days(req.Amount), effective, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := actorOf(r)
	empID := generic.EntityID(req.EmployeeID)
	if empID == "" {
		empID = actor.ID
	}

	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	res, err := h.engine.SubmitRequest(r.Context(), actor, leave.SubmitInput{
		EmployeeID: empID,
		Category:   req.Category,
		StartDate:  start,
		EndDate:    end,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{
		RequestID:     res.RequestID,
		DaysRequested: res.DaysRequested,
		Status:        string(res.Status),
	})
}

// ListRequests filters by employee and status. Staff only ever see their
// own requests.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	q := r.URL.Query()

	var filter leave.RequestFilter
	if v := q.Get("employee_id"); v != "" {
		id := generic.EntityID(v)
		if !canView(actor, id) {
			h.writeDomainError(w, r, leave.ErrForbidden)
			return
		}
		filter.EmployeeID = &id
	} else if actor.Role == leave.RoleStaff {
		id := actor.ID
		filter.EmployeeID = &id
	}
	if v := q.Get("status"); v != "" {
		status := leave.RequestStatus(v)
		switch status {
		case leave.StatusPending, leave.StatusApproved, leave.StatusRejected, leave.StatusCancelled:
		default:
			writeError(w, http.StatusBadRequest, "Invalid status", nil)
			return
		}
		filter.Status = &status
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	filter.Limit = limit

	reqs, err := h.engine.Requests(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(reqs))
	for i, lr := range reqs {
		dtos[i] = toRequestDTO(lr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.engine.Request(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if !canView(actorOf(r), lr.EmployeeID) {
		h.writeDomainError(w, r, leave.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(lr))
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.engine.CancelRequest(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(lr))
}

func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	var req ApprovalDecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	lr, err := h.engine.RecordApproval(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Level, req.Decision, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(lr))
}

// =============================================================================
// OPERATIONS HANDLERS
// =============================================================================

// RunAccrual triggers the monthly accrual manually. Re-running within the
// same month reports every employee as already accrued.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.RunMonthlyAccrual(r.Context(), actorOf(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccrualRunDTO(run, true))
}

func (h *Handler) ListAccrualRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 12)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	runs, err := h.engine.AccrualRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AccrualRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toAccrualRunDTO(run, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) alertsFor(w http.ResponseWriter, r *http.Request) ([]leave.ExpiryAlert, bool) {
	within, err := queryInt(r, "within", h.alertWindow)
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	alerts, err := h.engine.ExpiryAlerts(r.Context(), within)
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	return alerts, true
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, ok := h.alertsFor(w, r)
	if !ok {
		return
	}
	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = toAlertDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) DispatchAlerts(w http.ResponseWriter, r *http.Request) {
	within, err := queryInt(r, "within", h.alertWindow)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	sent, err := h.engine.DispatchExpiryAlerts(r.Context(), within)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"dispatched": sent})
}

func (h *Handler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.SweepExpired(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(res))
}

// ListAudit filters by ?employee_id, ?actor_id, repeated ?action and ?limit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter generic.AuditFilter
	if v := q.Get("employee_id"); v != "" {
		id := generic.EntityID(v)
		filter.EntityID = &id
	}
	if v := q.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, generic.AuditAction(a))
	}
	limit, err := queryInt(r, "limit", 200)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	filter.Limit = limit

	entries, err := h.engine.Audit(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}
