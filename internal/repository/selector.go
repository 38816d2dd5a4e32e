package repository

import (
	"context"
	"log"

	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/infrastructure/db"
)

// NewStore binds the record store to the most capable engine available at
// startup. An empty database URL means the structured engine's bridge is not
// present in this runtime; a failed connect, ping, or migration also falls
// back. Selection happens exactly once — callers only ever see the
// domain.RecordStore contract, and failures here never propagate.
func NewStore(ctx context.Context, databaseURL string, poolCfg db.PoolConfig) domain.RecordStore {
	if databaseURL == "" {
		log.Println("store: no database configured, using memory engine")
		return NewMemoryStore()
	}

	pool, err := db.NewPool(ctx, databaseURL, poolCfg)
	if err != nil {
		log.Printf("store: postgres unavailable (%v), falling back to memory engine", err)
		return NewMemoryStore()
	}

	if err := pool.Ping(ctx); err != nil {
		log.Printf("store: postgres unreachable (%v), falling back to memory engine", err)
		pool.Close()
		return NewMemoryStore()
	}

	if err := db.Migrate(ctx, pool); err != nil {
		log.Printf("store: migration failed (%v), falling back to memory engine", err)
		pool.Close()
		return NewMemoryStore()
	}

	log.Println("store: using postgres engine")
	return NewPostgresStore(pool)
}
