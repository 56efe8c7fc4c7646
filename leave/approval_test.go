package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/govhr/leave-engine/leave"
)

func state(dept, adm, dir leave.Decision) leave.ApprovalState {
	return leave.NewApprovalState().
		With(leave.LevelDepartment, leave.LevelDecision{Decision: dept}).
		With(leave.LevelAdmin, leave.LevelDecision{Decision: adm}).
		With(leave.LevelDirector, leave.LevelDecision{Decision: dir})
}

func TestDeriveStatus(t *testing.T) {
	const (
		p = leave.DecisionPending
		a = leave.DecisionApproved
		r = leave.DecisionRejected
	)
	staffLevels := leave.RequiredLevels(leave.RoleStaff)
	headLevels := leave.RequiredLevels(leave.RoleDepartmentHead)
	directorLevels := leave.RequiredLevels(leave.RoleDirector)

	cases := []struct {
		name     string
		state    leave.ApprovalState
		required []leave.Level
		want     leave.RequestStatus
	}{
		{"nothing decided", state(p, p, p), staffLevels, leave.StatusPending},
		{"all approve", state(a, a, a), staffLevels, leave.StatusApproved},
		{"department rejects, others pending", state(r, p, p), staffLevels, leave.StatusPending},
		{"two reject", state(r, r, p), staffLevels, leave.StatusPending},
		{"all reject", state(r, r, r), staffLevels, leave.StatusRejected},
		{"mixed decisions", state(r, a, a), staffLevels, leave.StatusPending},
		{"head needs admin and director", state(p, a, a), headLevels, leave.StatusApproved},
		{"director needs director only", state(p, p, a), directorLevels, leave.StatusApproved},
		{"director request rejected only when all reject", state(p, p, r), directorLevels, leave.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, leave.DeriveStatus(tc.state, tc.required))
		})
	}
}

func TestApprovalState_WithDoesNotMutate(t *testing.T) {
	s := leave.NewApprovalState()
	next := s.With(leave.LevelAdmin, leave.LevelDecision{Decision: leave.DecisionApproved})

	assert.Equal(t, leave.DecisionPending, s.Get(leave.LevelAdmin).Decision)
	assert.Equal(t, leave.DecisionApproved, next.Get(leave.LevelAdmin).Decision)
	assert.True(t, next.AnyApproved())
	assert.False(t, s.AnyApproved())
}

func TestCanDecide(t *testing.T) {
	requester := leave.Employee{ID: "emp-1", Department: "Finance", Role: leave.RoleStaff}

	assert.True(t, leave.CanDecide(deptHead, "Finance", leave.LevelDepartment, requester))
	assert.False(t, leave.CanDecide(deptHead, "Legal", leave.LevelDepartment, requester))
	assert.False(t, leave.CanDecide(deptHead, "Finance", leave.LevelAdmin, requester))
	assert.True(t, leave.CanDecide(admin, "", leave.LevelAdmin, requester))
	assert.True(t, leave.CanDecide(director, "", leave.LevelDirector, requester))
	assert.False(t, leave.CanDecide(director, "", leave.LevelDepartment, requester))

	self := leave.Employee{ID: "dir-1", Role: leave.RoleDirector}
	assert.False(t, leave.CanDecide(director, "", leave.LevelDirector, self))
}
