// pgxprovider is a ready-made singleton provider for a shared pgx connection
// pool. A connection pool is the textbook scarce resource: opening more than
// one per process wastes server connections, so the pool is constructed at
// most once and every caller shares it.
package pgxprovider

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peterldowns/singleton"
)

// Option provides a way to configure the provider returned by [New].
//
// See:
//   - [WithMode]
//   - [WithPing]
//   - [WithPoolConfig]
type Option func(*settings)

type settings struct {
	mode      singleton.Mode
	ping      bool
	configure func(*pgxpool.Config)
}

// WithMode sets the [singleton.Mode] of the underlying provider.
//
// Default: [singleton.ModeSafe]
func WithMode(mode singleton.Mode) Option {
	return func(s *settings) {
		s.mode = mode
	}
}

// WithPing verifies connectivity by pinging the server right after the pool
// is created. If the ping fails, the pool is closed, construction fails, and
// a later Get will retry.
//
// Default: disabled, because pgxpool connects lazily and creating the pool
// does not require a reachable server.
func WithPing() Option {
	return func(s *settings) {
		s.ping = true
	}
}

// WithPoolConfig customizes the parsed [pgxpool.Config] before the pool is
// created, for example to set MinConns or install a tracer.
//
// Default: the config parsed from the connection string, unchanged.
func WithPoolConfig(configure func(*pgxpool.Config)) Option {
	return func(s *settings) {
		s.configure = configure
	}
}

// New returns a [singleton.Provider] that constructs a single shared
// [pgxpool.Pool] for connString. Closing the provider closes the pool.
//
// The connection string is parsed during construction, not here, so an
// invalid connString surfaces as a [singleton.ConstructionError] from Get
// (or from New itself in [singleton.ModeEager]).
func New(ctx context.Context, connString string, opts ...Option) (*singleton.Provider[*pgxpool.Pool], error) {
	s := settings{mode: singleton.ModeSafe}
	for _, opt := range opts {
		opt(&s)
	}
	factory := func(ctx context.Context) (*pgxpool.Pool, error) {
		config, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("pgxprovider: failed to parse config: %w", err)
		}
		if s.configure != nil {
			s.configure(config)
		}
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("pgxprovider: failed to create pool: %w", err)
		}
		if s.ping {
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("pgxprovider: failed to ping: %w", err)
			}
		}
		return pool, nil
	}
	cleanup := func(pool *pgxpool.Pool) error {
		pool.Close()
		return nil
	}
	return singleton.New(ctx, s.mode, factory, singleton.WithCleanup(cleanup))
}
