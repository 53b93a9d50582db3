// Package sync implements the reconciliation engine: the locally-held view
// of the transaction list, the queue of mutations awaiting remote
// confirmation, and the cycle that replays the queue and re-adopts the
// server's authoritative list.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RemoteStore is the engine's view of the remote transaction store.
// Implementations return typed failures, never panic across the boundary.
type RemoteStore interface {
	Online(ctx context.Context) bool
	List(ctx context.Context) ([]domain.Transaction, error)
	Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	Update(ctx context.Context, id string, tx domain.Transaction) (domain.Transaction, error)
	Delete(ctx context.Context, id string) error
	BulkSync(ctx context.Context, list []domain.Transaction) ([]domain.Transaction, error)
}

// LocalState is the engine's persistence surface: three independent slots.
// A failed write must leave the previously stored value intact.
type LocalState interface {
	Transactions() ([]domain.Transaction, error)
	SaveTransactions([]domain.Transaction) error
	Pending() ([]domain.PendingMutation, error)
	SavePending([]domain.PendingMutation) error
	ClearPending() error
	SyncNeeded() bool
	SetSyncNeeded(bool) error
}

// ClearPolicy decides what happens to the pending queue after a cycle's
// authoritative fetch succeeds.
type ClearPolicy string

const (
	// ClearAll resets the replayed portion of the queue unconditionally,
	// reproducing the historical behavior: mutations whose individual
	// replay failed are dropped too.
	ClearAll ClearPolicy = "all"
	// ClearConfirmed drops only mutations confirmed individually during
	// replay; failed ones stay queued and keep the sync-needed flag set.
	ClearConfirmed ClearPolicy = "confirmed"
)

// ParseClearPolicy maps a config string to a policy, defaulting to ClearAll.
func ParseClearPolicy(s string) ClearPolicy {
	if s == string(ClearConfirmed) {
		return ClearConfirmed
	}
	return ClearAll
}

// Status is a point-in-time view of the engine for diagnostics.
type Status struct {
	Online           bool       `json:"online"`
	SyncNeeded       bool       `json:"syncNeeded"`
	PendingCount     int        `json:"pendingCount"`
	TransactionCount int        `json:"transactionCount"`
	LastSyncAt       *time.Time `json:"lastSyncAt,omitempty"`
}

// Engine owns the reconciliation state. Construct one per process and pass
// the handle around; there is no package-level instance.
type Engine struct {
	mu           gosync.Mutex
	transactions []domain.Transaction
	pending      []domain.PendingMutation
	syncNeeded   bool
	lastSyncAt   *time.Time

	local   LocalState
	remote  RemoteStore
	policy  ClearPolicy
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	sf singleflight.Group
}

// NewEngine hydrates an engine from the local state slots.
func NewEngine(local LocalState, remote RemoteStore, policy ClearPolicy, metrics *observability.Metrics, logger *zap.Logger) (*Engine, error) {
	transactions, err := local.Transactions()
	if err != nil {
		return nil, err
	}
	pending, err := local.Pending()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		transactions: transactions,
		pending:      pending,
		syncNeeded:   local.SyncNeeded(),
		local:        local,
		remote:       remote,
		policy:       policy,
		metrics:      metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	metrics.SetPendingDepth(len(pending))
	return e, nil
}

// Transactions returns a copy of the locally-held view of truth.
func (e *Engine) Transactions() []domain.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Transaction, len(e.transactions))
	for i, t := range e.transactions {
		out[i] = t.Clone()
	}
	return out
}

// Status reports the engine's current sync state.
func (e *Engine) Status(ctx context.Context) Status {
	online := e.remote.Online(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Online:           online,
		SyncNeeded:       e.syncNeeded,
		PendingCount:     len(e.pending),
		TransactionCount: len(e.transactions),
		LastSyncAt:       e.lastSyncAt,
	}
}

// SyncNeeded reports whether at least one pending mutation awaits replay.
func (e *Engine) SyncNeeded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncNeeded
}

// RecordMutation queues a mutation that could not be confirmed against the
// remote store and raises the sync-needed flag. Only malformed mutations
// are rejected; everything else is accepted as-is.
func (e *Engine) RecordMutation(action domain.Action, tx domain.Transaction, targetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordMutationLocked(action, tx, targetID)
}

func (e *Engine) recordMutationLocked(action domain.Action, tx domain.Transaction, targetID string) error {
	m := domain.PendingMutation{
		Action:      action,
		Transaction: tx,
		TargetID:    targetID,
		QueuedAt:    e.now(),
	}
	if err := m.Validate(); err != nil {
		return err
	}

	e.pending = append(e.pending, m)
	e.syncNeeded = true
	e.metrics.SetPendingDepth(len(e.pending))
	e.persistPendingLocked()
	e.persistFlagLocked()

	e.logger.Info("mutation queued for sync",
		zap.String("action", string(action)),
		zap.String("id", m.ReplayID()),
		zap.Int("queue_depth", len(e.pending)),
	)
	return nil
}

// ApplyLocal updates the in-memory list to reflect a mutation regardless
// of the remote outcome, so the caller's view is always current: insert
// for create, replace-by-id for update, remove-by-id for delete.
func (e *Engine) ApplyLocal(action domain.Action, tx domain.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocalLocked(action, tx)
}

func (e *Engine) applyLocalLocked(action domain.Action, tx domain.Transaction) {
	switch action {
	case domain.ActionCreate:
		e.transactions = append(e.transactions, tx)
	case domain.ActionUpdate:
		for i := range e.transactions {
			if e.transactions[i].ID == tx.ID {
				e.transactions[i] = tx
				break
			}
		}
	case domain.ActionDelete:
		for i := range e.transactions {
			if e.transactions[i].ID == tx.ID {
				e.transactions = append(e.transactions[:i], e.transactions[i+1:]...)
				break
			}
		}
	}
	e.persistTransactionsLocked()
}

// MergeServerAndClient reconciles two divergent lists with the
// server-wins rule.
func (e *Engine) MergeServerAndClient(server, client []domain.Transaction) []domain.Transaction {
	return domain.MergeTransactions(server, client)
}

// Synchronize runs one reconciliation cycle. Concurrent invocations
// coalesce onto the in-flight cycle; the queue is never mutated by two
// cycles at once.
func (e *Engine) Synchronize(ctx context.Context) error {
	_, err, _ := e.sf.Do("synchronize", func() (any, error) {
		return nil, e.synchronize(ctx)
	})
	return err
}

func (e *Engine) synchronize(ctx context.Context) error {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.syncNeeded = false
		e.persistFlagLocked()
		e.mu.Unlock()
		e.metrics.IncrSyncCycle("noop")
		return nil
	}
	queue := make([]domain.PendingMutation, len(e.pending))
	copy(queue, e.pending)
	e.mu.Unlock()

	// Replay in enqueue order. A failed item never blocks the ones after
	// it; what happens to it afterwards is the clear policy's call.
	confirmed := make([]bool, len(queue))
	for i, m := range queue {
		if err := e.replay(ctx, m); err != nil {
			e.metrics.IncrReplay(string(m.Action), "failed")
			e.metrics.IncrRemoteError(string(m.Action), domain.FailureKind(err))
			e.logger.Warn("pending mutation replay failed",
				zap.String("action", string(m.Action)),
				zap.String("id", m.ReplayID()),
				zap.String("id_origin", string(domain.OriginOf(m.ReplayID()))),
				zap.Error(err),
			)
			continue
		}
		confirmed[i] = true
		e.metrics.IncrReplay(string(m.Action), "confirmed")

		e.mu.Lock()
		for j := range e.transactions {
			if e.transactions[j].ID == m.Transaction.ID {
				e.transactions[j].MarkConfirmed()
				break
			}
		}
		e.persistTransactionsLocked()
		e.mu.Unlock()
	}

	// Adopt the authoritative list. On fetch failure the queue and flag
	// stay untouched and the next tick retries.
	list, err := e.remote.List(ctx)
	if err != nil {
		e.metrics.IncrSyncCycle("fetch_failed")
		e.metrics.IncrRemoteError("list", domain.FailureKind(err))
		e.logger.Warn("authoritative fetch failed, keeping pending queue", zap.Error(err))
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.transactions = list

	// Mutations queued after this cycle snapshotted the queue are always
	// kept; they were never replayed.
	var remainder []domain.PendingMutation
	if e.policy == ClearConfirmed {
		for i, m := range queue {
			if !confirmed[i] {
				remainder = append(remainder, m)
			}
		}
	}
	if len(e.pending) > len(queue) {
		remainder = append(remainder, e.pending[len(queue):]...)
	}
	e.pending = remainder
	e.syncNeeded = len(e.pending) > 0

	e.persistTransactionsLocked()
	if len(e.pending) == 0 {
		if err := e.local.ClearPending(); err != nil {
			e.logger.Error("failed to clear pending queue slot", zap.Error(err))
		}
	} else {
		e.persistPendingLocked()
	}
	e.persistFlagLocked()

	now := e.now()
	e.lastSyncAt = &now
	e.metrics.SetPendingDepth(len(e.pending))
	e.metrics.IncrSyncCycle("success")
	e.logger.Info("synchronization cycle completed",
		zap.Int("replayed", len(queue)),
		zap.Int("remaining", len(e.pending)),
		zap.Int("transactions", len(e.transactions)),
	)
	return nil
}

func (e *Engine) replay(ctx context.Context, m domain.PendingMutation) error {
	switch m.Action {
	case domain.ActionCreate:
		_, err := e.remote.Create(ctx, m.Transaction)
		return err
	case domain.ActionUpdate:
		_, err := e.remote.Update(ctx, m.ReplayID(), m.Transaction)
		return err
	case domain.ActionDelete:
		return e.remote.Delete(ctx, m.ReplayID())
	}
	return &domain.ErrValidation{Field: "action", Message: "unknown action " + string(m.Action)}
}

// Persistence helpers. Local storage failures degrade to an in-memory-only
// view: logged, never fatal (the data may not survive a restart).

func (e *Engine) persistTransactionsLocked() {
	if err := e.local.SaveTransactions(e.transactions); err != nil {
		e.logger.Error("failed to persist transaction list", zap.Error(err))
	}
}

func (e *Engine) persistPendingLocked() {
	if err := e.local.SavePending(e.pending); err != nil {
		e.logger.Error("failed to persist pending queue", zap.Error(err))
	}
}

func (e *Engine) persistFlagLocked() {
	if err := e.local.SetSyncNeeded(e.syncNeeded); err != nil {
		e.logger.Error("failed to persist sync flag", zap.Error(err))
	}
}
