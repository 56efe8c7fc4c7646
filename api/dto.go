/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator tags for shape checks
  (required fields, enums, date format). Leave rules such as sufficiency,
  eligibility and approval order are enforced by the engine, not here.

AMOUNTS:
  Day amounts are JSON numbers with up to three decimals (1.25, 0.5).

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: CategoryJSON, served as-is by /api/categories
*/
package api

import (
	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateEmployeeRequest struct {
	ID           string `json:"id" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email" validate:"omitempty,email"`
	Department   string `json:"department" validate:"required,max=200"`
	Gender       string `json:"gender" validate:"omitempty,oneof=male female"`
	SoloParent   bool   `json:"solo_parent"`
	Role         string `json:"role" validate:"required,oneof=staff department_head director hr_admin"`
	Status       string `json:"status" validate:"omitempty,oneof=active inactive"`
	ServiceStart string `json:"service_start" validate:"omitempty,datetime=2006-01-02"`
}

// SubmitLeaveRequest files leave. EmployeeID defaults to the caller.
type SubmitLeaveRequest struct {
	EmployeeID string `json:"employee_id" validate:"omitempty,max=64"`
	Category   string `json:"category" validate:"required"`
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason     string `json:"reason" validate:"max=500"`
}

type ApprovalDecisionRequest struct {
	Level    string `json:"level" validate:"required,oneof=department admin director"`
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Reason   string `json:"reason" validate:"max=500"`
}

// GrantCreditRequest credits days outside the accrual schedule, e.g. CTO
// earned for overtime or a balance migration.
type GrantCreditRequest struct {
	Category      string  `json:"category" validate:"required"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	EffectiveDate string  `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	Reason        string  `json:"reason" validate:"required,max=500"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type EmployeeDTO struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Email         string            `json:"email,omitempty"`
	Department    string            `json:"department"`
	Gender        string            `json:"gender,omitempty"`
	SoloParent    bool              `json:"solo_parent"`
	Role          string            `json:"role"`
	Status        string            `json:"status"`
	ServiceStart  string            `json:"service_start,omitempty"`
	CreatedAt     string            `json:"created_at,omitempty"`
	LastAccrualAt string            `json:"last_accrual_at,omitempty"`
	NextExpiry    map[string]string `json:"next_expiry,omitempty"`
}

type BalanceDTO struct {
	Category    string  `json:"category"`
	DisplayName string  `json:"display_name"`
	Balance     float64 `json:"balance"`
	NextExpiry  string  `json:"next_expiry,omitempty"`
	Cumulative  bool    `json:"cumulative"`
	Commutable  bool    `json:"commutable"`
	Expires     bool    `json:"expires"`
}

type TransactionDTO struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Delta       float64 `json:"delta"`
	EffectiveAt string  `json:"effective_at"`
	Reason      string  `json:"reason,omitempty"`
	ReferenceID string  `json:"reference_id,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

type GrantDTO struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Used       float64 `json:"used"`
	Remaining  float64 `json:"remaining"`
	GrantDate  string  `json:"grant_date"`
	ExpiryDate string  `json:"expiry_date"`
	Expired    bool    `json:"expired"`
	UsedUp     bool    `json:"used_up"`
	Voided     bool    `json:"voided"`
}

type SubmitResponse struct {
	RequestID     string `json:"request_id"`
	DaysRequested int    `json:"days_requested"`
	Status        string `json:"status"`
}

type ApprovalDTO struct {
	Decision  string `json:"decision"`
	DecidedBy string `json:"decided_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
	DecidedAt string `json:"decided_at,omitempty"`
}

type LeaveRequestDTO struct {
	ID             string                 `json:"id"`
	EmployeeID     string                 `json:"employee_id"`
	Category       string                 `json:"category"`
	StartDate      string                 `json:"start_date"`
	EndDate        string                 `json:"end_date"`
	DaysRequested  int                    `json:"days_requested"`
	Reason         string                 `json:"reason,omitempty"`
	Status         string                 `json:"status"`
	RequiredLevels []string               `json:"required_levels"`
	Approvals      map[string]ApprovalDTO `json:"approvals"`
	Deducted       float64                `json:"deducted"`
	Refunded       bool                   `json:"refunded"`
	CreatedAt      string                 `json:"created_at"`
	UpdatedAt      string                 `json:"updated_at"`
}

type AccrualDetailDTO struct {
	EmployeeID string             `json:"employee_id"`
	Outcome    string             `json:"outcome"`
	Message    string             `json:"message,omitempty"`
	Credited   map[string]float64 `json:"credited,omitempty"`
}

type AccrualRunDTO struct {
	ID          string             `json:"id"`
	Period      string             `json:"period"`
	StartedAt   string             `json:"started_at"`
	FinishedAt  string             `json:"finished_at"`
	TriggeredBy string             `json:"triggered_by"`
	Processed   int                `json:"processed"`
	Skipped     int                `json:"skipped"`
	Errors      int                `json:"errors"`
	Details     []AccrualDetailDTO `json:"details,omitempty"`
}

type ForfeitureDTO struct {
	GrantID    string  `json:"grant_id"`
	EmployeeID string  `json:"employee_id"`
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
}

type SweepResultDTO struct {
	AsOf      string          `json:"as_of"`
	Expired   int             `json:"expired"`
	Forfeited []ForfeitureDTO `json:"forfeited"`
}

type AlertDTO struct {
	GrantID         string  `json:"grant_id"`
	EmployeeID      string  `json:"employee_id"`
	EmployeeName    string  `json:"employee_name"`
	Category        string  `json:"category"`
	DisplayName     string  `json:"display_name"`
	Remaining       float64 `json:"remaining"`
	Balance         float64 `json:"balance"`
	ExpiryDate      string  `json:"expiry_date"`
	DaysUntilExpiry int     `json:"days_until_expiry"`
	Severity        string  `json:"severity"`
}

type AuditEntryDTO struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	ActorID   string            `json:"actor_id"`
	Action    string            `json:"action"`
	EntityID  string            `json:"entity_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func dateString(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:            string(e.ID),
		Name:          e.Name,
		Email:         e.Email,
		Department:    e.Department,
		Gender:        string(e.Gender),
		SoloParent:    e.SoloParent,
		Role:          string(e.Role),
		Status:        string(e.Status),
		ServiceStart:  dateString(e.ServiceStart),
		CreatedAt:     dateString(e.CreatedAt),
		LastAccrualAt: dateString(e.LastAccrualAt),
	}
	if len(e.NextExpiry) > 0 {
		dto.NextExpiry = make(map[string]string, len(e.NextExpiry))
		for c, at := range e.NextExpiry {
			dto.NextExpiry[string(c)] = dateString(at)
		}
	}
	return dto
}

func toBalanceDTOs(lines []leave.BalanceLine) []BalanceDTO {
	out := make([]BalanceDTO, len(lines))
	for i, b := range lines {
		out[i] = BalanceDTO{
			Category:    string(b.Category),
			DisplayName: b.DisplayName,
			Balance:     b.Balance.Float(),
			NextExpiry:  dateString(b.NextExpiry),
			Cumulative:  b.Cumulative,
			Commutable:  b.Commutable,
			Expires:     b.Expires,
		}
	}
	return out
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Category:    tx.Resource.ResourceID(),
		Type:        string(tx.Type),
		Delta:       tx.Delta.Float(),
		EffectiveAt: dateString(tx.EffectiveAt),
		Reason:      tx.Reason,
		ReferenceID: tx.ReferenceID,
		CreatedBy:   tx.CreatedBy,
		CreatedAt:   dateString(tx.CreatedAt),
	}
}

func toGrantDTO(g leave.ExpiryGrant) GrantDTO {
	return GrantDTO{
		ID:         g.ID,
		Category:   string(g.Category),
		Amount:     g.Amount.Float(),
		Used:       g.UsedAmount.Float(),
		Remaining:  g.Remaining().Float(),
		GrantDate:  dateString(g.GrantDate),
		ExpiryDate: dateString(g.ExpiryDate),
		Expired:    g.Expired,
		UsedUp:     g.Used,
		Voided:     g.Voided,
	}
}

func toApprovalDTO(d leave.LevelDecision) ApprovalDTO {
	return ApprovalDTO{
		Decision:  string(d.Decision),
		DecidedBy: string(d.DecidedBy),
		Reason:    d.Reason,
		DecidedAt: dateString(d.DecidedAt),
	}
}

func toRequestDTO(r leave.LeaveRequest) LeaveRequestDTO {
	levels := make([]string, len(r.RequiredLevels))
	for i, l := range r.RequiredLevels {
		levels[i] = string(l)
	}
	approvals := make(map[string]ApprovalDTO, len(leave.Levels))
	for _, l := range leave.Levels {
		approvals[string(l)] = toApprovalDTO(r.Approvals.Get(l))
	}
	return LeaveRequestDTO{
		ID:             r.ID,
		EmployeeID:     string(r.EmployeeID),
		Category:       string(r.Category),
		StartDate:      dateString(r.StartDate),
		EndDate:        dateString(r.EndDate),
		DaysRequested:  r.DaysRequested,
		Reason:         r.Reason,
		Status:         string(r.Status),
		RequiredLevels: levels,
		Approvals:      approvals,
		Deducted:       r.Deducted.Float(),
		Refunded:       r.Refunded,
		CreatedAt:      dateString(r.CreatedAt),
		UpdatedAt:      dateString(r.UpdatedAt),
	}
}

func toAccrualRunDTO(run leave.AccrualRun, withDetails bool) AccrualRunDTO {
	dto := AccrualRunDTO{
		ID:          run.ID,
		Period:      run.Period,
		StartedAt:   dateString(run.StartedAt),
		FinishedAt:  dateString(run.FinishedAt),
		TriggeredBy: string(run.TriggeredBy),
		Processed:   run.Processed,
		Skipped:     run.Skipped,
		Errors:      run.Errors,
	}
	if !withDetails {
		return dto
	}
	for _, d := range run.Details {
		dd := AccrualDetailDTO{EmployeeID: string(d.EmployeeID), Outcome: string(d.Outcome), Message: d.Message}
		if len(d.Credited) > 0 {
			dd.Credited = make(map[string]float64, len(d.Credited))
			for c, amt := range d.Credited {
				dd.Credited[string(c)] = amt.Float()
			}
		}
		dto.Details = append(dto.Details, dd)
	}
	return dto
}

func toSweepDTO(res leave.SweepResult) SweepResultDTO {
	dto := SweepResultDTO{AsOf: dateString(res.AsOf), Expired: res.Expired, Forfeited: []ForfeitureDTO{}}
	for _, f := range res.Forfeited {
		dto.Forfeited = append(dto.Forfeited, ForfeitureDTO{
			GrantID:    f.GrantID,
			EmployeeID: string(f.EmployeeID),
			Category:   string(f.Category),
			Amount:     f.Amount.Float(),
		})
	}
	return dto
}

func toAlertDTO(a leave.ExpiryAlert) AlertDTO {
	return AlertDTO{
		GrantID:         a.GrantID,
		EmployeeID:      string(a.EmployeeID),
		EmployeeName:    a.EmployeeName,
		Category:        string(a.Category),
		DisplayName:     a.DisplayName,
		Remaining:       a.Remaining.Float(),
		Balance:         a.Balance.Float(),
		ExpiryDate:      dateString(a.ExpiryDate),
		DaysUntilExpiry: a.DaysUntilExpiry,
		Severity:        string(a.Severity),
	}
}

func toAuditDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: dateString(e.Timestamp),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		EntityID:  string(e.EntityID),
		Subject:   e.Subject,
		Payload:   e.Payload,
	}
}
