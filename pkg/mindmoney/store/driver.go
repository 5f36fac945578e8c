package store

import (
	"context"
	"fmt"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/registry"
)

// Opener opens a Store from a driver-specific data source name.
type Opener func(ctx context.Context, dsn string) (Store, error)

var drivers = registry.New[string, Opener]("store driver")

func init() {
	Register("memory", func(context.Context, string) (Store, error) {
		return NewMemory(), nil
	})
	Register("sqlite", func(_ context.Context, dsn string) (Store, error) {
		if dsn == "" {
			return nil, fmt.Errorf("store: sqlite driver requires a database path")
		}
		return NewSQLite(dsn)
	})
	Register("postgres", func(ctx context.Context, dsn string) (Store, error) {
		if dsn == "" {
			return nil, fmt.Errorf("store: postgres driver requires a connection string")
		}
		return OpenPostgres(ctx, dsn)
	})
}

// Register makes a driver available to Open, replacing any driver with the
// same name.
func Register(name string, open Opener) {
	if open == nil {
		panic("store: opener cannot be nil")
	}
	drivers.Register(name, open)
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	return drivers.Keys()
}

// Open opens a store with the named driver. An unknown driver returns an
// error wrapping registry.ErrNotFound.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	open, err := drivers.Lookup(driver)
	if err != nil {
		return nil, err
	}
	s, err := open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return s, nil
}
