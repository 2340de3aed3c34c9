package store

import (
	"context"

	"github.com/hiwar-ai/hiwar/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate applies the schema to a fresh database. Existing databases are
// left untouched; the schema is append-only and versioned by release.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if initialized {
		return nil
	}
	return s.driver.Migrate(ctx)
}
