package sync

import (
	"context"

	"github.com/fintrack/fintrack-go/internal/domain"

	"go.uber.org/zap"
)

// The operations below are the offline-first write path: attempt the remote
// store when it looks reachable, queue the mutation when it cannot be
// confirmed, and apply the change to the local view exactly once either way.

// Load refreshes the local view from the remote store when reachable and
// returns it; when the store cannot be reached the cached view is served.
func (e *Engine) Load(ctx context.Context) ([]domain.Transaction, error) {
	if e.online(ctx) {
		list, err := e.remote.List(ctx)
		if err == nil {
			e.mu.Lock()
			e.transactions = list
			e.persistTransactionsLocked()
			e.mu.Unlock()
			return e.Transactions(), nil
		}
		e.metrics.IncrRemoteError("list", domain.FailureKind(err))
		e.logger.Warn("remote list failed, serving cached view", zap.Error(err))
	}
	return e.Transactions(), nil
}

// Create records a new transaction. The id is assigned locally up front so
// the transaction exists even when the remote store never hears about it;
// a confirmed remote create may swap it for the server-assigned one.
func (e *Engine) Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	tx.ID = domain.NewOfflineID()
	tx.CreatedAt = e.now()
	tx.UpdatedAt = nil
	tx.Synced = false
	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, err
	}

	confirmed := false
	if e.online(ctx) {
		created, err := e.remote.Create(ctx, tx)
		if err == nil {
			if created.ID != "" {
				tx.ID = created.ID
			}
			tx.MarkConfirmed()
			confirmed = true
		} else {
			e.metrics.IncrRemoteError("create", domain.FailureKind(err))
			e.logger.Warn("remote create failed, queueing", zap.String("id", tx.ID), zap.Error(err))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !confirmed {
		if err := e.recordMutationLocked(domain.ActionCreate, tx, ""); err != nil {
			return domain.Transaction{}, err
		}
	}
	e.applyLocalLocked(domain.ActionCreate, tx)
	return tx, nil
}

// Update overlays the patch onto the locally-known transaction. An unknown
// id is rejected; nothing is queued for it.
func (e *Engine) Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error) {
	e.mu.Lock()
	existing, ok := e.findLocked(id)
	e.mu.Unlock()
	if !ok {
		return domain.Transaction{}, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	updated := patch.Apply(existing)
	if err := updated.Validate(); err != nil {
		return domain.Transaction{}, err
	}
	now := e.now()
	updated.UpdatedAt = &now
	updated.Synced = false

	confirmed := false
	if e.online(ctx) {
		fromServer, err := e.remote.Update(ctx, id, updated)
		if err == nil {
			if fromServer.ID != "" {
				updated = fromServer
			}
			updated.MarkConfirmed()
			confirmed = true
		} else {
			e.metrics.IncrRemoteError("update", domain.FailureKind(err))
			e.logger.Warn("remote update failed, queueing", zap.String("id", id), zap.Error(err))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !confirmed {
		if err := e.recordMutationLocked(domain.ActionUpdate, updated, id); err != nil {
			return domain.Transaction{}, err
		}
	}
	e.applyLocalLocked(domain.ActionUpdate, updated)
	return updated, nil
}

// Delete removes the locally-known transaction. An unknown id is rejected.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	existing, ok := e.findLocked(id)
	e.mu.Unlock()
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	confirmed := false
	if e.online(ctx) {
		if err := e.remote.Delete(ctx, id); err == nil {
			confirmed = true
		} else {
			e.metrics.IncrRemoteError("delete", domain.FailureKind(err))
			e.logger.Warn("remote delete failed, queueing", zap.String("id", id), zap.Error(err))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !confirmed {
		if err := e.recordMutationLocked(domain.ActionDelete, existing, id); err != nil {
			return err
		}
	}
	e.applyLocalLocked(domain.ActionDelete, existing)
	return nil
}

func (e *Engine) findLocked(id string) (domain.Transaction, bool) {
	for _, t := range e.transactions {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return domain.Transaction{}, false
}

func (e *Engine) online(ctx context.Context) bool {
	online := e.remote.Online(ctx)
	if online {
		e.metrics.IncrProbe("online")
	} else {
		e.metrics.IncrProbe("offline")
	}
	return online
}
