package postgres

import (
	"context"
	"fmt"

	"github.com/tabellenwerk/standings/internal/infra/storage"
)

// TxManager bundles persistence operations into a single database
// transaction, ensuring atomicity (all succeed or all fail).
type TxManager struct {
	db *DB
}

func NewTxManager(db *DB) *TxManager { return &TxManager{db: db} }

// RunInTx begins a transaction, hands transaction-bound repositories to
// fn, and commits; any error (or panic) rolls everything back.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos storage.TxRepos) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	repos := storage.TxRepos{
		Standings: newTxStandingsRepo(tx),
	}

	if err := fn(ctx, repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
