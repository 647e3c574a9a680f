// sqlprovider is a ready-made singleton provider for a shared database/sql
// handle. A *sql.DB is already a pool that is meant to be opened once per
// process and shared; this package makes the "once" part explicit and
// concurrency-safe instead of relying on package-level init ordering.
package sqlprovider

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/peterldowns/singleton"
)

// Option provides a way to configure the provider returned by [New].
//
// See:
//   - [WithMode]
//   - [WithPing]
//   - [WithDBConfig]
type Option func(*settings)

type settings struct {
	mode      singleton.Mode
	ping      bool
	configure func(*sql.DB)
}

// WithMode sets the [singleton.Mode] of the underlying provider.
//
// Default: [singleton.ModeSafe]
func WithMode(mode singleton.Mode) Option {
	return func(s *settings) {
		s.mode = mode
	}
}

// WithPing verifies connectivity right after the handle is opened. If the
// ping fails, the handle is closed, construction fails, and a later Get will
// retry.
//
// Default: disabled, because sql.Open does not dial and opening the handle
// does not require a reachable server.
func WithPing() Option {
	return func(s *settings) {
		s.ping = true
	}
}

// WithDBConfig customizes the opened handle before it is shared, for example
// to call SetMaxOpenConns or SetConnMaxLifetime.
//
// Default: the handle as returned by sql.Open, unchanged.
func WithDBConfig(configure func(*sql.DB)) Option {
	return func(s *settings) {
		s.configure = configure
	}
}

// New returns a [singleton.Provider] that opens a single shared [sql.DB]
// for the given driver and dsn. Closing the provider closes the handle.
//
// The driver must have been registered, usually with a blank import like
// `_ "github.com/lib/pq"`. An unknown driver or invalid dsn surfaces as a
// [singleton.ConstructionError] from Get (or from New itself in
// [singleton.ModeEager]).
func New(ctx context.Context, driverName, dsn string, opts ...Option) (*singleton.Provider[*sql.DB], error) {
	s := settings{mode: singleton.ModeSafe}
	for _, opt := range opts {
		opt(&s)
	}
	factory := func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlprovider: failed to open %s handle: %w", driverName, err)
		}
		if s.configure != nil {
			s.configure(db)
		}
		if s.ping {
			if err := db.PingContext(ctx); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("sqlprovider: failed to ping: %w", err)
			}
		}
		return db, nil
	}
	cleanup := func(db *sql.DB) error {
		return db.Close()
	}
	return singleton.New(ctx, s.mode, factory, singleton.WithCleanup(cleanup))
}
