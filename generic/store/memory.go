// Package store provides in-process Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/govhr/leave-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[key][]generic.Transaction
	idempotency  map[string]bool
	audit        []generic.AuditEntry
}

type key struct {
	EntityID generic.EntityID
	Resource string
}

func keyOf(entityID generic.EntityID, r generic.ResourceType) key {
	return key{EntityID: entityID, Resource: r.ResourceID()}
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[key][]generic.Transaction),
		idempotency:  make(map[string]bool),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendBatchLocked(txs)
}

func (m *Memory) appendBatchLocked(txs []generic.Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
	}
	for _, tx := range txs {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) error {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	k := keyOf(tx.EntityID, tx.Resource)
	txs := m.transactions[k]

	// keep EffectiveAt order; equal dates stay in insertion order
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})
	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[k] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Load(_ context.Context, entityID generic.EntityID, r generic.ResourceType) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(entityID, r), nil
}

func (m *Memory) loadLocked(entityID generic.EntityID, r generic.ResourceType) []generic.Transaction {
	src := m.transactions[keyOf(entityID, r)]
	result := make([]generic.Transaction, len(src))
	copy(result, src)
	return result
}

func (m *Memory) LoadByEntity(_ context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadByEntityLocked(entityID), nil
}

func (m *Memory) loadByEntityLocked(entityID generic.EntityID) []generic.Transaction {
	var result []generic.Transaction
	for k, txs := range m.transactions {
		if k.EntityID == entityID {
			result = append(result, txs...)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EffectiveAt.Before(result[j].EffectiveAt)
	})
	return result
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []generic.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			result = append(result, e)
			if filter.Limit > 0 && len(result) == filter.Limit {
				break
			}
		}
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against a locked view and restores a snapshot on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	txsCopy := make(map[key][]generic.Transaction, len(tm.transactions))
	for k, v := range tm.transactions {
		txsCopy[k] = append([]generic.Transaction{}, v...)
	}
	idempCopy := make(map[string]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idempCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, idempotency: idempCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.idempotency = s.idempotency
}

type memorySnapshot struct {
	transactions map[key][]generic.Transaction
	idempotency  map[string]bool
}

// txMemoryView runs with the parent lock already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, tx generic.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	return tv.parent.appendBatchLocked(txs)
}

func (tv *txMemoryView) Load(_ context.Context, entityID generic.EntityID, r generic.ResourceType) ([]generic.Transaction, error) {
	return tv.parent.loadLocked(entityID, r), nil
}

func (tv *txMemoryView) LoadByEntity(_ context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	return tv.parent.loadByEntityLocked(entityID), nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
