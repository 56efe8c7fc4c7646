/*
Package sqlite provides a SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Persists the credit history, employees, expiry grants, leave requests,
  accrual runs and the audit log. Every method is written once against a
  querier, so the same code runs on the connection pool and inside WithTx.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on the transactions table
  - No UPDATE or DELETE statements on the audit_log table
  - Corrections are refund/adjustment transactions

KEY TABLES:
  transactions:  Immutable credit history (grants, accruals, deductions...)
  employees:     Flat employee/department records
  expiry_grants: One-year grants for mandatory, CTO and SLP credits
  leave_requests: Requests with their three approval slots as JSON
  accrual_runs:  Summary of each monthly accrual run
  audit_log:     Who did what when

CONCURRENCY:
  One open connection and _txlock=immediate: a WithTx block holds the write
  lock from its first statement, so two deductions for the same employee
  run one after the other and the second sees the first's debit. A mutex
  additionally serialises WithTx callers inside the process.

  Inside WithTx only the tx-bound Store passed to fn may be used. Calling
  the outer Store there would wait for the single connection forever.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := leave.NewEngine(store, leave.DefaultRegistry())

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - leave/store.go: Interface definition
  - generic/store/memory.go: In-memory transaction store for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements leave.Store on top of a querier.
type queries struct {
	q querier
}

// Store implements leave.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

var (
	_ leave.TxStore = (*Store)(nil)
	_ leave.Store   = (*queries)(nil)
)

// New opens (and migrates) a SQLite database.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases live per connection; keep exactly one.
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_entity_resource
		ON transactions(entity_id, resource_type, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		department TEXT,
		gender TEXT,
		solo_parent INTEGER NOT NULL DEFAULT 0,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		service_start TEXT,
		created_at TEXT NOT NULL,
		last_accrual_at TEXT,
		next_expiry_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_employees_status ON employees(status);

	CREATE TABLE IF NOT EXISTS expiry_grants (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		used_amount TEXT NOT NULL,
		unit TEXT NOT NULL,
		grant_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		expired INTEGER NOT NULL DEFAULT 0,
		used INTEGER NOT NULL DEFAULT 0,
		voided INTEGER NOT NULL DEFAULT 0,
		source_tx_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_grants_employee_category
		ON expiry_grants(employee_id, category, grant_date);
	CREATE INDEX IF NOT EXISTS idx_grants_open
		ON expiry_grants(expiry_date) WHERE expired = 0 AND used = 0 AND voided = 0;

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		category TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_requested INTEGER NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		approvals_json TEXT NOT NULL,
		required_levels TEXT NOT NULL,
		deducted TEXT NOT NULL,
		allocations_json TEXT,
		refunded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee ON leave_requests(employee_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON leave_requests(status);

	CREATE TABLE IF NOT EXISTS accrual_runs (
		id TEXT PRIMARY KEY,
		period TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		triggered_by TEXT,
		processed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		details_json TEXT
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		entity_id TEXT,
		subject TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx runs fn inside one database transaction. fn must only use the
// Store it is given.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", generic.ErrConcurrentModification, err)
		}
		return err
	}
	return nil
}

// AppendBatch on the pool opens its own transaction.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return s.WithTx(ctx, func(store leave.Store) error {
		return store.AppendBatch(ctx, txs)
	})
}

// =============================================================================
// TRANSACTIONS (generic.Store interface)
// =============================================================================

const txColumns = `id, entity_id, resource_type, effective_at, delta_value, delta_unit,
	tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at`

func (s *queries) Append(ctx context.Context, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)

	query := `INSERT INTO transactions (` + txColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = generic.Instant(time.Now())
	}
	_, err := s.q.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.EntityID),
		tx.Resource.ResourceID(),
		formatTime(tx.EffectiveAt),
		tx.Delta.Value.String(),
		string(tx.Delta.Unit),
		string(tx.Type),
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		nullString(tx.CreatedBy),
		formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", generic.ErrConcurrentModification, err)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// AppendBatch inside a transaction; the outer Store wraps it in WithTx.
func (s *queries) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}
	for _, tx := range txs {
		if err := s.Append(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *queries) Load(ctx context.Context, entityID generic.EntityID, resource generic.ResourceType) ([]generic.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
		WHERE entity_id = ? AND resource_type = ?
		ORDER BY effective_at ASC, rowid ASC`
	return s.queryTransactions(ctx, query, string(entityID), resource.ResourceID())
}

func (s *queries) LoadByEntity(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
		WHERE entity_id = ?
		ORDER BY effective_at ASC, rowid ASC`
	return s.queryTransactions(ctx, query, string(entityID))
}

func (s *queries) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (s *queries) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		id, entityID   string
		resourceID     string
		effectiveAt    string
		deltaValue     string
		deltaUnit      string
		txType         string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)
	err := rows.Scan(
		&id, &entityID, &resourceID, &effectiveAt, &deltaValue, &deltaUnit, &txType,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ID = generic.TransactionID(id)
	tx.EntityID = generic.EntityID(entityID)
	tx.Resource = generic.GetOrCreateResource(resourceID)
	tx.EffectiveAt = parseTime(effectiveAt)
	tx.Delta = parseAmount(deltaValue, deltaUnit)
	tx.Type = generic.TransactionType(txType)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseTime(createdAt)
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}
	return tx, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, email, department, gender, solo_parent, role, status,
	service_start, created_at, last_accrual_at, next_expiry_json`

func (s *queries) SaveEmployee(ctx context.Context, e leave.Employee) error {
	next := make(map[string]string, len(e.NextExpiry))
	for c, at := range e.NextExpiry {
		next[string(c)] = formatDate(at)
	}
	nextJSON, _ := json.Marshal(next)

	query := `INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department = excluded.department,
			gender = excluded.gender,
			solo_parent = excluded.solo_parent,
			role = excluded.role,
			status = excluded.status,
			service_start = excluded.service_start,
			last_accrual_at = excluded.last_accrual_at,
			next_expiry_json = excluded.next_expiry_json`

	_, err := s.q.ExecContext(ctx, query,
		string(e.ID), e.Name, e.Email, e.Department, string(e.Gender), e.SoloParent,
		string(e.Role), string(e.Status),
		nullString(formatDate(e.ServiceStart)),
		formatTime(e.CreatedAt),
		nullString(formatDate(e.LastAccrualAt)),
		string(nextJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee %s: %w", e.ID, err)
	}
	return nil
}

func (s *queries) GetEmployee(ctx context.Context, id generic.EntityID) (leave.Employee, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, string(id))
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Employee{}, fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, id)
	}
	return e, err
}

func (s *queries) ListEmployees(ctx context.Context, activeOnly bool) ([]leave.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	var args []any
	if activeOnly {
		query += ` WHERE status = ?`
		args = append(args, string(leave.EmployeeActive))
	}
	query += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		e                         leave.Employee
		id, gender, role, status  string
		email, department         sql.NullString
		serviceStart, lastAccrual sql.NullString
		createdAt                 string
		nextJSON                  sql.NullString
	)
	err := row.Scan(&id, &e.Name, &email, &department, &gender, &e.SoloParent, &role, &status,
		&serviceStart, &createdAt, &lastAccrual, &nextJSON)
	if err != nil {
		return e, err
	}
	e.ID = generic.EntityID(id)
	e.Email = email.String
	e.Department = department.String
	e.Gender = leave.Gender(gender)
	e.Role = leave.Role(role)
	e.Status = leave.EmployeeStatus(status)
	e.ServiceStart = parseTime(serviceStart.String)
	e.CreatedAt = parseTime(createdAt)
	e.LastAccrualAt = parseTime(lastAccrual.String)
	if nextJSON.Valid && nextJSON.String != "" {
		var next map[string]string
		if err := json.Unmarshal([]byte(nextJSON.String), &next); err == nil && len(next) > 0 {
			e.NextExpiry = make(map[leave.Category]generic.TimePoint, len(next))
			for c, at := range next {
				e.NextExpiry[leave.Category(c)] = parseTime(at)
			}
		}
	}
	return e, nil
}

// =============================================================================
// EXPIRY GRANTS
// =============================================================================

const grantColumns = `id, employee_id, category, amount, used_amount, unit, grant_date, expiry_date,
	expired, used, voided, source_tx_id, created_at`

func (s *queries) SaveGrant(ctx context.Context, g leave.ExpiryGrant) error {
	query := `INSERT INTO expiry_grants (` + grantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			used_amount = excluded.used_amount,
			expired = excluded.expired,
			used = excluded.used,
			voided = excluded.voided`

	_, err := s.q.ExecContext(ctx, query,
		g.ID, string(g.EmployeeID), string(g.Category),
		g.Amount.Value.String(), g.UsedAmount.Value.String(), string(g.Amount.Unit),
		formatDate(g.GrantDate), formatDate(g.ExpiryDate),
		g.Expired, g.Used, g.Voided,
		nullString(g.SourceTxID), formatTime(g.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save grant %s: %w", g.ID, err)
	}
	return nil
}

func (s *queries) GetGrant(ctx context.Context, id string) (leave.ExpiryGrant, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM expiry_grants WHERE id = ?`, id)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.ExpiryGrant{}, fmt.Errorf("%w: %s", leave.ErrGrantNotFound, id)
	}
	return g, err
}

func (s *queries) ListGrants(ctx context.Context, emp generic.EntityID, cat leave.Category) ([]leave.ExpiryGrant, error) {
	return s.queryGrants(ctx, `SELECT `+grantColumns+` FROM expiry_grants
		WHERE employee_id = ? AND category = ?
		ORDER BY grant_date ASC, rowid ASC`, string(emp), string(cat))
}

func (s *queries) ListGrantsByEmployee(ctx context.Context, emp generic.EntityID) ([]leave.ExpiryGrant, error) {
	return s.queryGrants(ctx, `SELECT `+grantColumns+` FROM expiry_grants
		WHERE employee_id = ?
		ORDER BY grant_date ASC, rowid ASC`, string(emp))
}

func (s *queries) ListOpenGrants(ctx context.Context) ([]leave.ExpiryGrant, error) {
	return s.queryGrants(ctx, `SELECT `+grantColumns+` FROM expiry_grants
		WHERE expired = 0 AND used = 0 AND voided = 0
		ORDER BY expiry_date ASC, employee_id ASC, rowid ASC`)
}

func (s *queries) queryGrants(ctx context.Context, query string, args ...any) ([]leave.ExpiryGrant, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var out []leave.ExpiryGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrant(row scanner) (leave.ExpiryGrant, error) {
	var (
		g                            leave.ExpiryGrant
		employeeID, category         string
		amount, used, unit           string
		grantDate, expiryDate        string
		sourceTxID                   sql.NullString
		createdAt                    string
	)
	err := row.Scan(&g.ID, &employeeID, &category, &amount, &used, &unit, &grantDate, &expiryDate,
		&g.Expired, &g.Used, &g.Voided, &sourceTxID, &createdAt)
	if err != nil {
		return g, err
	}
	g.EmployeeID = generic.EntityID(employeeID)
	g.Category = leave.Category(category)
	g.Amount = parseAmount(amount, unit)
	g.UsedAmount = parseAmount(used, unit)
	g.GrantDate = parseTime(grantDate)
	g.ExpiryDate = parseTime(expiryDate)
	g.SourceTxID = sourceTxID.String
	g.CreatedAt = parseTime(createdAt)
	return g, nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, category, start_date, end_date, days_requested, reason, status,
	approvals_json, required_levels, deducted, allocations_json, refunded, created_at, updated_at`

type levelRecord struct {
	Decision  string `json:"decision"`
	DecidedBy string `json:"decided_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
	DecidedAt string `json:"decided_at,omitempty"`
}

type allocationRecord struct {
	GrantID string `json:"grant_id"`
	Amount  string `json:"amount"`
}

func (s *queries) SaveRequest(ctx context.Context, r leave.LeaveRequest) error {
	approvals := make(map[string]levelRecord, len(leave.Levels))
	for _, l := range leave.Levels {
		d := r.Approvals.Get(l)
		approvals[string(l)] = levelRecord{
			Decision:  string(d.Decision),
			DecidedBy: string(d.DecidedBy),
			Reason:    d.Reason,
			DecidedAt: formatTime(d.DecidedAt),
		}
	}
	approvalsJSON, _ := json.Marshal(approvals)

	allocs := make([]allocationRecord, len(r.Allocations))
	for i, a := range r.Allocations {
		allocs[i] = allocationRecord{GrantID: a.GrantID, Amount: a.Amount.Value.String()}
	}
	allocsJSON, _ := json.Marshal(allocs)

	levels := make([]string, len(r.RequiredLevels))
	for i, l := range r.RequiredLevels {
		levels[i] = string(l)
	}

	query := `INSERT INTO leave_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approvals_json = excluded.approvals_json,
			allocations_json = excluded.allocations_json,
			refunded = excluded.refunded,
			updated_at = excluded.updated_at`

	_, err := s.q.ExecContext(ctx, query,
		r.ID, string(r.EmployeeID), string(r.Category),
		formatDate(r.StartDate), formatDate(r.EndDate), r.DaysRequested,
		nullString(r.Reason), string(r.Status),
		string(approvalsJSON), strings.Join(levels, ","),
		r.Deducted.Value.String(), string(allocsJSON), r.Refunded,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save request %s: %w", r.ID, err)
	}
	return nil
}

func (s *queries) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveRequest{}, fmt.Errorf("%w: %s", leave.ErrRequestNotFound, id)
	}
	return r, err
}

func (s *queries) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE 1 = 1`
	var args []any
	if filter.EmployeeID != nil {
		query += ` AND employee_id = ?`
		args = append(args, string(*filter.EmployeeID))
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row scanner) (leave.LeaveRequest, error) {
	var (
		r                              leave.LeaveRequest
		employeeID, category, status   string
		startDate, endDate             string
		reason, allocsJSON             sql.NullString
		approvalsJSON, levels          string
		deducted                       string
		createdAt, updatedAt           string
	)
	err := row.Scan(&r.ID, &employeeID, &category, &startDate, &endDate, &r.DaysRequested, &reason, &status,
		&approvalsJSON, &levels, &deducted, &allocsJSON, &r.Refunded, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.EmployeeID = generic.EntityID(employeeID)
	r.Category = leave.Category(category)
	r.StartDate = parseTime(startDate)
	r.EndDate = parseTime(endDate)
	r.Reason = reason.String
	r.Status = leave.RequestStatus(status)
	r.Deducted = parseAmount(deducted, string(generic.UnitDays))
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	r.Approvals = leave.NewApprovalState()
	var approvals map[string]levelRecord
	if err := json.Unmarshal([]byte(approvalsJSON), &approvals); err != nil {
		return r, fmt.Errorf("failed to decode approvals of %s: %w", r.ID, err)
	}
	for _, l := range leave.Levels {
		rec, ok := approvals[string(l)]
		if !ok {
			continue
		}
		r.Approvals = r.Approvals.With(l, leave.LevelDecision{
			Decision:  leave.Decision(rec.Decision),
			DecidedBy: generic.EntityID(rec.DecidedBy),
			Reason:    rec.Reason,
			DecidedAt: parseTime(rec.DecidedAt),
		})
	}

	if levels != "" {
		for _, l := range strings.Split(levels, ",") {
			r.RequiredLevels = append(r.RequiredLevels, leave.Level(l))
		}
	}

	if allocsJSON.Valid && allocsJSON.String != "" {
		var allocs []allocationRecord
		if err := json.Unmarshal([]byte(allocsJSON.String), &allocs); err != nil {
			return r, fmt.Errorf("failed to decode allocations of %s: %w", r.ID, err)
		}
		for _, a := range allocs {
			r.Allocations = append(r.Allocations, leave.Allocation{
				GrantID: a.GrantID,
				Amount:  parseAmount(a.Amount, string(generic.UnitDays)),
			})
		}
	}
	return r, nil
}

// =============================================================================
// ACCRUAL RUNS
// =============================================================================

type accrualDetailRecord struct {
	EmployeeID string            `json:"employee_id"`
	Outcome    string            `json:"outcome"`
	Message    string            `json:"message,omitempty"`
	Credited   map[string]string `json:"credited,omitempty"`
}

func (s *queries) SaveAccrualRun(ctx context.Context, run leave.AccrualRun) error {
	details := make([]accrualDetailRecord, len(run.Details))
	for i, d := range run.Details {
		rec := accrualDetailRecord{EmployeeID: string(d.EmployeeID), Outcome: string(d.Outcome), Message: d.Message}
		if len(d.Credited) > 0 {
			rec.Credited = make(map[string]string, len(d.Credited))
			for c, a := range d.Credited {
				rec.Credited[string(c)] = a.Value.String()
			}
		}
		details[i] = rec
	}
	detailsJSON, _ := json.Marshal(details)

	query := `INSERT INTO accrual_runs
		(id, period, started_at, finished_at, triggered_by, processed, skipped, errors, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			processed = excluded.processed,
			skipped = excluded.skipped,
			errors = excluded.errors,
			details_json = excluded.details_json`

	_, err := s.q.ExecContext(ctx, query,
		run.ID, run.Period, formatTime(run.StartedAt), nullString(formatTime(run.FinishedAt)),
		nullString(string(run.TriggeredBy)), run.Processed, run.Skipped, run.Errors, string(detailsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save accrual run %s: %w", run.ID, err)
	}
	return nil
}

func (s *queries) ListAccrualRuns(ctx context.Context, limit int) ([]leave.AccrualRun, error) {
	query := `SELECT id, period, started_at, finished_at, triggered_by, processed, skipped, errors, details_json
		FROM accrual_runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accrual runs: %w", err)
	}
	defer rows.Close()

	var runs []leave.AccrualRun
	for rows.Next() {
		var (
			r                         leave.AccrualRun
			startedAt                 string
			finishedAt, triggeredBy   sql.NullString
			detailsJSON               sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Period, &startedAt, &finishedAt, &triggeredBy,
			&r.Processed, &r.Skipped, &r.Errors, &detailsJSON); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt.String)
		r.TriggeredBy = generic.EntityID(triggeredBy.String)
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details []accrualDetailRecord
			if err := json.Unmarshal([]byte(detailsJSON.String), &details); err != nil {
				return nil, fmt.Errorf("failed to decode accrual run %s: %w", r.ID, err)
			}
			for _, d := range details {
				detail := leave.AccrualDetail{
					EmployeeID: generic.EntityID(d.EmployeeID),
					Outcome:    leave.AccrualOutcome(d.Outcome),
					Message:    d.Message,
				}
				if len(d.Credited) > 0 {
					detail.Credited = make(map[leave.Category]generic.Amount, len(d.Credited))
					for c, v := range d.Credited {
						detail.Credited[leave.Category(c)] = parseAmount(v, string(generic.UnitDays))
					}
				}
				r.Details = append(r.Details, detail)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

func (s *queries) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	payloadJSON, _ := json.Marshal(entry.Payload)
	_, err := s.q.ExecContext(ctx, `INSERT INTO audit_log
		(id, timestamp, actor_id, action, entity_id, subject, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, formatTime(entry.Timestamp), nullString(entry.ActorID), string(entry.Action),
		nullString(string(entry.EntityID)), nullString(entry.Subject), string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *queries) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	query := `SELECT id, timestamp, actor_id, action, entity_id, subject, payload_json
		FROM audit_log WHERE 1 = 1`
	var args []any
	if filter.EntityID != nil {
		query += ` AND entity_id = ?`
		args = append(args, string(*filter.EntityID))
	}
	if filter.ActorID != nil {
		query += ` AND actor_id = ?`
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		query += ` AND action IN (?` + strings.Repeat(", ?", len(filter.Actions)-1) + `)`
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	query += ` ORDER BY timestamp ASC, rowid ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e                               generic.AuditEntry
			timestamp, action               string
			actorID, entityID, subject      sql.NullString
			payloadJSON                     sql.NullString
		)
		if err := rows.Scan(&e.ID, &timestamp, &actorID, &action, &entityID, &subject, &payloadJSON); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(timestamp)
		e.ActorID = actorID.String
		e.Action = generic.AuditAction(action)
		e.EntityID = generic.EntityID(entityID.String)
		e.Subject = subject.String
		if payloadJSON.Valid && payloadJSON.String != "" && payloadJSON.String != "null" {
			_ = json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

// formatDate stores day-granularity points as YYYY-MM-DD so they sort as text.
func formatDate(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(generic.DateLayout)
}

func formatTime(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	if tp.Granularity == generic.GranularityDay {
		return formatDate(tp)
	}
	return tp.Time.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) generic.TimePoint {
	if s == "" {
		return generic.TimePoint{}
	}
	if len(s) == len(generic.DateLayout) {
		tp, _ := generic.ParseDate(s)
		return tp
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return generic.TimePoint{}
	}
	return generic.Instant(t)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY"))
}
