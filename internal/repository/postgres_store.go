package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"portfolio-sync/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the structured storage engine. Records live in a single
// `records` table keyed by (collection, id) with the payload in a jsonb
// column; the adapter translates between that shape and the uniform
// {id, ...fields} record.
//
// Per the adapter failure policy, read errors are logged and degrade to
// nil/empty results; write errors propagate to the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(collection string, rec domain.Record) (domain.Record, error) {
	stored := rec.Clone()
	if stored == nil {
		stored = domain.Record{}
	}
	if stored.ID() == "" {
		stored["id"] = uuid.NewString()
	}

	data, err := marshalPayload(stored)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(context.Background(), `
		insert into records(collection, id, data, updated_at)
		values ($1, $2, $3, now())
		on conflict (collection, id) do update set
			data = excluded.data,
			updated_at = now()
	`, collection, stored.ID(), data)
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (s *PostgresStore) FindByID(collection, id string) domain.Record {
	row := s.pool.QueryRow(context.Background(),
		`select data from records where collection = $1 and id = $2`, collection, id)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("store: find %s/%s failed: %v", collection, id, err)
		}
		return nil
	}
	return unmarshalPayload(id, data)
}

func (s *PostgresStore) FindAll(collection string) []domain.Record {
	rows, err := s.pool.Query(context.Background(),
		`select id, data from records where collection = $1`, collection)
	if err != nil {
		log.Printf("store: list %s failed: %v", collection, err)
		return nil
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			log.Printf("store: scan %s failed: %v", collection, err)
			continue
		}
		if rec := unmarshalPayload(id, data); rec != nil {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		log.Printf("store: list %s failed: %v", collection, err)
	}
	return out
}

func (s *PostgresStore) Update(collection, id string, fields map[string]any) (domain.Record, error) {
	existing := s.FindByID(collection, id)
	if existing == nil {
		return nil, nil
	}

	for k, v := range fields {
		existing[k] = v
	}
	existing["id"] = id

	return s.Save(collection, existing)
}

func (s *PostgresStore) Delete(collection, id string) (bool, error) {
	tag, err := s.pool.Exec(context.Background(),
		`delete from records where collection = $1 and id = $2`, collection, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Query is a full scan plus an in-process filter. The structured engine could
// push some predicates into SQL, but the contract only promises filter
// correctness, so both engines share the scan semantics.
func (s *PostgresStore) Query(collection string, match func(domain.Record) bool) []domain.Record {
	var out []domain.Record
	for _, rec := range s.FindAll(collection) {
		if match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *PostgresStore) ClearCollection(collection string) error {
	_, err := s.pool.Exec(context.Background(),
		`delete from records where collection = $1`, collection)
	return err
}

func (s *PostgresStore) Engine() string { return "postgres" }

// marshalPayload strips the id before encoding; it is stored in its own column.
func marshalPayload(rec domain.Record) ([]byte, error) {
	payload := rec.Clone()
	delete(payload, "id")
	return json.Marshal(payload)
}

func unmarshalPayload(id string, data []byte) domain.Record {
	rec := domain.Record{}
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Printf("store: corrupt record %s: %v", id, err)
		return nil
	}
	rec["id"] = id
	return rec
}

// compile-time check
var _ domain.RecordStore = (*PostgresStore)(nil)
