package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuongbtq/learning-hub/internal/domain"
)

// MigratingStore is a Store whose migrations may still be outstanding
// because the database was unreachable at startup. ClaimNext applies them
// first, so a failed attempt surfaces as a claim error and the caller's
// backoff paces the retries.
type MigratingStore struct {
	*Store

	mu       sync.Mutex
	migrated bool
}

// NewMigratingStore wraps s. Pass migrated=true when Migrate already
// succeeded or is not wanted.
func NewMigratingStore(s *Store, migrated bool) *MigratingStore {
	return &MigratingStore{Store: s, migrated: migrated}
}

// Migrated reports whether migrations have been applied
func (m *MigratingStore) Migrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migrated
}

// ClaimNext migrates on first use, then claims as Store.ClaimNext does
func (m *MigratingStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	if err := m.ensureMigrated(ctx); err != nil {
		return nil, err
	}
	return m.Store.ClaimNext(ctx)
}

func (m *MigratingStore) ensureMigrated(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.migrated {
		return nil
	}
	if err := m.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("deferred migration: %w", err)
	}
	m.migrated = true
	return nil
}
