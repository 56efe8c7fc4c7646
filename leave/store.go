package leave

import (
	"context"

	"github.com/govhr/leave-engine/generic"
)

// Store is the leave persistence contract. Transactions stay append-only;
// employees, grants, requests and accrual runs are upserted by ID.
type Store interface {
	generic.Store
	generic.AuditLog

	GetEmployee(ctx context.Context, id generic.EntityID) (Employee, error)
	ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error)
	SaveEmployee(ctx context.Context, e Employee) error

	SaveGrant(ctx context.Context, g ExpiryGrant) error
	GetGrant(ctx context.Context, id string) (ExpiryGrant, error)
	// ListGrants returns every grant for emp+cat ordered by grant date.
	ListGrants(ctx context.Context, emp generic.EntityID, cat Category) ([]ExpiryGrant, error)
	// ListGrantsByEmployee returns every grant for emp ordered by grant date.
	ListGrantsByEmployee(ctx context.Context, emp generic.EntityID) ([]ExpiryGrant, error)
	// ListOpenGrants returns grants not yet expired or used, across employees.
	ListOpenGrants(ctx context.Context) ([]ExpiryGrant, error)

	SaveRequest(ctx context.Context, r LeaveRequest) error
	GetRequest(ctx context.Context, id string) (LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)

	SaveAccrualRun(ctx context.Context, run AccrualRun) error
	ListAccrualRuns(ctx context.Context, limit int) ([]AccrualRun, error)
}

// TxStore runs a function against a Store bound to one database transaction.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
