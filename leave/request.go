package leave

import (
	"fmt"

	"github.com/govhr/leave-engine/generic"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Terminal() bool { return s != StatusPending }

// LeaveRequest is one filed leave. DaysRequested counts Monday-Friday dates
// in [StartDate, EndDate].
type LeaveRequest struct {
	ID             string
	EmployeeID     generic.EntityID
	Category       Category
	StartDate      generic.TimePoint
	EndDate        generic.TimePoint
	DaysRequested  int
	Reason         string
	Status         RequestStatus
	Approvals      ApprovalState
	RequiredLevels []Level

	// Deducted is what submission took from the balance; zero for
	// non-credit categories. Allocations record which expiry grants fed it.
	Deducted    generic.Amount
	Allocations []Allocation
	Refunded    bool

	CreatedAt generic.TimePoint
	UpdatedAt generic.TimePoint
}

// Cancellable returns nil while the employee may still withdraw the request.
func (r LeaveRequest) Cancellable() error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
	}
	if r.Approvals.AnyApproved() {
		return fmt.Errorf("%w: an approval level has already approved", ErrInvalidState)
	}
	return nil
}

type RequestFilter struct {
	EmployeeID *generic.EntityID
	Status     *RequestStatus
	Limit      int
}

// SubmitInput carries a new request from the caller.
type SubmitInput struct {
	EmployeeID generic.EntityID
	Category   string
	StartDate  generic.TimePoint
	EndDate    generic.TimePoint
	Reason     string
}

type SubmitResult struct {
	RequestID     string
	DaysRequested int
	Status        RequestStatus
}
