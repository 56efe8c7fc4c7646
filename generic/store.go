/*
store.go - Persistence interface for transactions and the audit trail

PURPOSE:
  Defines the boundary between the credit rules and the database. The Store
  persists transactions with append-only semantics; richer domain stores
  (leave.Store) embed it and add their own tables.

KEY INTERFACES:
  Store:    Core transaction persistence (append, load, exists)
  TxStore:  Transactional operations (atomic multi-table writes)
  AuditLog: Who did what when, also append-only

IDEMPOTENCY:
  A write carrying an idempotency key that already exists is rejected. The
  monthly accrual uses keys like "accrual-<employee>-<yyyy-mm>-<category>" so
  two scheduler runs for one month cannot both credit.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for tests

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store handles persistence of transactions. No Update, no Delete.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for entity+resource, ordered by EffectiveAt.
	Load(ctx context.Context, entityID EntityID, resource ResourceType) ([]Transaction, error)

	// LoadByEntity returns every transaction for an entity across resources.
	LoadByEntity(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. A non-nil error from fn rolls
	// back every write fn made.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who did what when
// =============================================================================

type AuditEntry struct {
	ID        string
	Timestamp TimePoint
	ActorID   string
	Action    AuditAction
	EntityID  EntityID
	Subject   string // request ID, category, run ID
	Payload   map[string]string
}

type AuditAction string

const (
	AuditRequestSubmitted AuditAction = "request_submitted"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditRequestCancelled AuditAction = "request_cancelled"
	AuditCreditGranted    AuditAction = "credit_granted"
	AuditAccrualRun       AuditAction = "accrual_run"
	AuditExpirySweep      AuditAction = "expiry_sweep"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EntityID *EntityID
	ActorID  *string
	Actions  []AuditAction
	Limit    int
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityID != nil && *f.EntityID != e.EntityID {
		return false
	}
	if f.ActorID != nil && *f.ActorID != e.ActorID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}
