package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store bundles the repositories that must change together.
type Store interface {
	Messages() MessageRepository
	Statuses() TaskStatusRepository
	Checks() CheckRepository
	Seeds() FinalSeedRepository
	Catalog() CatalogRepository
	// Transaction runs fn with repositories bound to one database transaction.
	// Returning an error from fn rolls every change back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// NewStore constructs a Store over the connection.
func NewStore(db *gorm.DB) Store {
	return &store{
		db:       db,
		messages: NewMessageRepository(db),
		statuses: NewTaskStatusRepository(db),
		checks:   NewCheckRepository(db),
		seeds:    NewFinalSeedRepository(db),
		catalog:  NewCatalogRepository(db),
	}
}

type store struct {
	db       *gorm.DB
	messages MessageRepository
	statuses TaskStatusRepository
	checks   CheckRepository
	seeds    FinalSeedRepository
	catalog  CatalogRepository
}

func (s *store) Messages() MessageRepository {
	return s.messages
}

func (s *store) Statuses() TaskStatusRepository {
	return s.statuses
}

func (s *store) Checks() CheckRepository {
	return s.checks
}

func (s *store) Seeds() FinalSeedRepository {
	return s.seeds
}

func (s *store) Catalog() CatalogRepository {
	return s.catalog
}

func (s *store) Transaction(ctx context.Context, fn func(tx Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(NewStore(tx))
		return fnErr
	})
	if err != nil && fnErr == nil {
		return translate("transaction", err)
	}
	return err
}
