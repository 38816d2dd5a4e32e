package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the tables the record store needs. This keeps setup simple
// (no external migration tool) while still giving durable persistence.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists records (
			collection text not null,
			id text not null,
			data jsonb not null default '{}'::jsonb,
			updated_at timestamptz not null default now(),
			primary key (collection, id)
		);`,
		`create index if not exists records_collection_idx on records(collection);`,
		`create index if not exists records_user_idx on records((data->>'userId'));`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
