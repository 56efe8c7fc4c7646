/*
approval.go - Three-slot approval state and status derivation

PURPOSE:
  A leave request is reviewed by three authorities that act independently:
  the department head, HR/admin and the director. Each slot moves once from
  pending to approved or rejected. The request status is computed from the
  slots by DeriveStatus and never stored separately from them.

CASCADING REJECTION:
  One rejection does not end a request. The request is rejected only once
  all three slots are rejected, so the remaining authorities can still act.

  department  admin     director   required               status
  rejected    pending   pending    any                    pending
  rejected    rejected  rejected   any                    rejected
  pending     approved  approved   admin+director         approved
  approved    approved  pending    dept+admin+director    pending

REQUIRED LEVELS:
  staff, hr_admin   -> department, admin, director
  department_head   -> admin, director
  director          -> director
*/
package leave

import (
	"fmt"

	"github.com/govhr/leave-engine/generic"
)

type Level string

const (
	LevelDepartment Level = "department"
	LevelAdmin      Level = "admin"
	LevelDirector   Level = "director"
)

// Levels in review order.
var Levels = []Level{LevelDepartment, LevelAdmin, LevelDirector}

func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelDepartment, LevelAdmin, LevelDirector:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ParseDecision accepts only final decisions.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApproved, DecisionRejected:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
}

type LevelDecision struct {
	Decision  Decision
	DecidedBy generic.EntityID
	Reason    string
	DecidedAt generic.TimePoint
}

func (d LevelDecision) Decided() bool {
	return d.Decision == DecisionApproved || d.Decision == DecisionRejected
}

type ApprovalState struct {
	Department LevelDecision
	Admin      LevelDecision
	Director   LevelDecision
}

// NewApprovalState returns all three slots pending.
func NewApprovalState() ApprovalState {
	p := LevelDecision{Decision: DecisionPending}
	return ApprovalState{Department: p, Admin: p, Director: p}
}

func (s ApprovalState) Get(l Level) LevelDecision {
	switch l {
	case LevelDepartment:
		return s.Department
	case LevelAdmin:
		return s.Admin
	default:
		return s.Director
	}
}

// With returns a copy of s with slot l set to d.
func (s ApprovalState) With(l Level, d LevelDecision) ApprovalState {
	switch l {
	case LevelDepartment:
		s.Department = d
	case LevelAdmin:
		s.Admin = d
	case LevelDirector:
		s.Director = d
	}
	return s
}

func (s ApprovalState) AnyApproved() bool {
	for _, l := range Levels {
		if s.Get(l).Decision == DecisionApproved {
			return true
		}
	}
	return false
}

// RequiredLevels returns the slots that must approve a request filed by role.
func RequiredLevels(role Role) []Level {
	switch role {
	case RoleDirector:
		return []Level{LevelDirector}
	case RoleDepartmentHead:
		return []Level{LevelAdmin, LevelDirector}
	default:
		return []Level{LevelDepartment, LevelAdmin, LevelDirector}
	}
}

// DeriveStatus computes the workflow status from the three slots.
func DeriveStatus(s ApprovalState, required []Level) RequestStatus {
	allRejected := true
	for _, l := range Levels {
		if s.Get(l).Decision != DecisionRejected {
			allRejected = false
			break
		}
	}
	if allRejected {
		return StatusRejected
	}
	if len(required) == 0 {
		return StatusPending
	}
	for _, l := range required {
		if s.Get(l).Decision != DecisionApproved {
			return StatusPending
		}
	}
	return StatusApproved
}

// CanDecide reports whether actor may record a decision at level for a
// request filed by requester.
func CanDecide(actor Actor, actorDept string, level Level, requester Employee) bool {
	if actor.ID == requester.ID {
		return false
	}
	switch level {
	case LevelDepartment:
		return actor.Role == RoleDepartmentHead && actorDept == requester.Department
	case LevelAdmin:
		return actor.Role == RoleHRAdmin
	case LevelDirector:
		return actor.Role == RoleDirector
	}
	return false
}
