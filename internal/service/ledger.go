// Package service implements the server-side ledger operations behind the
// transaction API.
package service

import (
	"context"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/store"

	"go.uber.org/zap"
)

// Ledger owns the authoritative transaction list.
type Ledger struct {
	store   *store.FileStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedger creates the ledger service.
func NewLedger(st *store.FileStore, metrics *observability.Metrics, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:   st,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns the full transaction list.
func (l *Ledger) List(ctx context.Context) ([]domain.Transaction, error) {
	defer l.observe("list")()
	return l.store.Load()
}

// Add stores a new transaction. A missing id gets a server-assigned one;
// the stored record is always synced and timestamped by the server.
func (l *Ledger) Add(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	defer l.observe("add")()

	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, err
	}

	if tx.ID == "" {
		tx.ID = domain.NewServerID()
	}
	tx.MarkConfirmed()
	tx.CreatedAt = l.now()
	tx.UpdatedAt = nil

	err := l.store.Mutate(func(list []domain.Transaction) ([]domain.Transaction, error) {
		return append(list, tx), nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	l.logger.Info("transaction added",
		zap.String("id", tx.ID),
		zap.String("id_origin", string(domain.OriginOf(tx.ID))),
		zap.String("type", string(tx.Type)),
		zap.String("category", tx.Category),
	)
	return tx, nil
}

// Update overlays the provided fields onto the stored transaction.
// Returns ErrNotFound for an unknown id.
func (l *Ledger) Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error) {
	defer l.observe("update")()

	var updated domain.Transaction
	err := l.store.Mutate(func(list []domain.Transaction) ([]domain.Transaction, error) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			candidate := patch.Apply(list[i])
			if err := candidate.Validate(); err != nil {
				return nil, err
			}
			candidate.MarkConfirmed()
			now := l.now()
			candidate.UpdatedAt = &now
			list[i] = candidate
			updated = candidate
			return list, nil
		}
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	l.logger.Info("transaction updated", zap.String("id", id))
	return updated, nil
}

// Delete removes a transaction. Returns ErrNotFound for an unknown id.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	defer l.observe("delete")()

	err := l.store.Mutate(func(list []domain.Transaction) ([]domain.Transaction, error) {
		for i := range list {
			if list[i].ID == id {
				return append(list[:i], list[i+1:]...), nil
			}
		}
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	})
	if err != nil {
		return err
	}

	l.logger.Info("transaction deleted", zap.String("id", id))
	return nil
}

// Merge reconciles a client-submitted list against the stored one using
// the server-wins rule and persists the result.
func (l *Ledger) Merge(ctx context.Context, client []domain.Transaction) ([]domain.Transaction, error) {
	defer l.observe("sync")()

	var merged []domain.Transaction
	err := l.store.Mutate(func(list []domain.Transaction) ([]domain.Transaction, error) {
		merged = domain.MergeTransactions(list, client)
		return merged, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("bulk merge completed",
		zap.Int("client_count", len(client)),
		zap.Int("merged_count", len(merged)),
	)
	return merged, nil
}

func (l *Ledger) observe(op string) func() {
	start := time.Now()
	return func() {
		l.metrics.RecordRequestDuration(op, time.Since(start))
	}
}
