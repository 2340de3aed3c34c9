// Package db provides the store driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/hiwar-ai/hiwar/internal/profile"
	"github.com/hiwar-ai/hiwar/store"
	"github.com/hiwar-ai/hiwar/store/db/postgres"
	"github.com/hiwar-ai/hiwar/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
