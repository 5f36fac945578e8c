// Package registry provides a generic thread-safe registry for values indexed by key.
//
// Registry is designed for read-heavy workloads using sync.RWMutex. Keys are
// ordered so listings and error messages are deterministic.
//
// # Factory Pattern
//
// Registries hold named constructors, selected by configuration:
//
//	type Opener func(ctx context.Context, dsn string) (Store, error)
//
//	drivers := registry.New[string, Opener]("store driver")
//	drivers.Register("memory", openMemory)
//	drivers.Register("sqlite", openSQLite)
//
//	open, err := drivers.Lookup(cfg.String("store.driver", "memory"))
//	if err != nil {
//	    // store driver "redis" not registered (available: [memory sqlite])
//	}
//
// Lookup returns a *NotFoundError that unwraps to ErrNotFound.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package registry
