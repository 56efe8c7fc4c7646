package leave

import (
	"github.com/govhr/leave-engine/generic"
)

type Role string

const (
	RoleStaff          Role = "staff"
	RoleDepartmentHead Role = "department_head"
	RoleDirector       Role = "director"
	RoleHRAdmin        Role = "hr_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleDepartmentHead, RoleDirector, RoleHRAdmin:
		return true
	}
	return false
}

type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Employee is a flat employee/department record. Balances are not stored
// here; they are derived from the credit history.
type Employee struct {
	ID         generic.EntityID
	Name       string
	Email      string
	Department string
	Gender     Gender
	SoloParent bool
	Role       Role
	Status     EmployeeStatus

	ServiceStart  generic.TimePoint // zero when unknown
	CreatedAt     generic.TimePoint
	LastAccrualAt generic.TimePoint // zero until the first accrual

	// NextExpiry holds the soonest expiry date among open grants, per category.
	NextExpiry map[Category]generic.TimePoint
}

func (e Employee) IsActive() bool { return e.Status == EmployeeActive }

// TenureStart is the service start date, or the account creation date when
// no service start was recorded.
func (e Employee) TenureStart() generic.TimePoint {
	if !e.ServiceStart.IsZero() {
		return e.ServiceStart.Date()
	}
	return e.CreatedAt.Date()
}

// Eligible checks gender and solo-parent restrictions.
func (e Employee) Eligible(p CategoryPolicy) error {
	if p.Gender != GenderAny && e.Gender != p.Gender {
		return &IneligibleError{EmployeeID: e.ID, Category: p.Category, Reason: "restricted to " + string(p.Gender) + " employees"}
	}
	if p.SoloParentOnly && !e.SoloParent {
		return &IneligibleError{EmployeeID: e.ID, Category: p.Category, Reason: "restricted to solo parents"}
	}
	return nil
}

func (e *Employee) setNextExpiry(c Category, at generic.TimePoint) {
	if at.IsZero() {
		delete(e.NextExpiry, c)
		return
	}
	if e.NextExpiry == nil {
		e.NextExpiry = make(map[Category]generic.TimePoint)
	}
	e.NextExpiry[c] = at
}

// Validate checks the fields required to register an employee.
func (e Employee) Validate() error {
	ve := &generic.ValidationError{}
	if e.ID == "" {
		ve.Add("id", "required")
	}
	if e.Name == "" {
		ve.Add("name", "required")
	}
	if !e.Role.Valid() {
		ve.Add("role", "must be one of staff, department_head, director, hr_admin")
	}
	switch e.Gender {
	case GenderMale, GenderFemale, GenderAny:
	default:
		ve.Add("gender", "must be male or female")
	}
	switch e.Status {
	case EmployeeActive, EmployeeInactive:
	default:
		ve.Add("status", "must be active or inactive")
	}
	return ve.OrNil()
}

// =============================================================================
// ACTOR - Authenticated caller
// =============================================================================

// Actor is the caller identity supplied by the session layer.
type Actor struct {
	ID   generic.EntityID
	Role Role
}

// SystemActor is used by scheduled jobs.
var SystemActor = Actor{ID: "system", Role: RoleHRAdmin}

func (a Actor) IsAdmin() bool { return a.Role == RoleHRAdmin }

// CanActFor reports whether a may file or view leave for employee id.
func (a Actor) CanActFor(id generic.EntityID) bool {
	return a.IsAdmin() || a.ID == id
}
