// Package postgres implements the entity store contract on PostgreSQL. Each
// logical table maps to one relation holding JSON documents keyed by
// (partition_key, sort_key). Conditional writes lock the target row, evaluate
// the condition and apply the mutation inside one short SQL transaction;
// multi-record transactions lock all participant rows in deterministic key
// order before evaluating any condition.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/auctionhouse/marketplace/internal/storage"
)

// relations maps logical table names to SQL relations. Lookup doubles as an
// allowlist so table names never reach SQL text unchecked.
var relations = map[string]string{
	"items":     "kv_items",
	"bids":      "kv_bids",
	"buyers":    "kv_buyers",
	"sellers":   "kv_sellers",
	"purchases": "kv_purchases",
}

// Store is a PostgreSQL-backed entity store.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return New(db), nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func relation(table string) (string, error) {
	rel, ok := relations[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	return rel, nil
}

func (s *Store) Get(ctx context.Context, table string, key storage.Key, out interface{}) error {
	rel, err := relation(table)
	if err != nil {
		return err
	}

	var raw []byte
	err = s.db.QueryRowxContext(ctx,
		`SELECT data FROM `+rel+` WHERE partition_key = $1 AND sort_key = $2`,
		key.Partition, key.Sort,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", storage.ErrNotFound, table, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	var rec storage.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("corrupt record %s %s: %w", table, key, err)
	}
	return storage.Decode(rec, out)
}

func (s *Store) Put(ctx context.Context, table string, key storage.Key, value interface{}, cond *storage.Condition) error {
	rec, err := storage.Encode(value)
	if err != nil {
		return err
	}
	op := storage.Op{Kind: storage.OpPut, Table: table, Key: key, Value: rec, Cond: cond}
	return s.Transact(ctx, op)
}

func (s *Store) Update(ctx context.Context, table string, key storage.Key, cond *storage.Condition, changes ...storage.Change) error {
	return s.Transact(ctx, storage.NewUpdate(table, key, cond, changes...))
}

func (s *Store) Delete(ctx context.Context, table string, key storage.Key, cond *storage.Condition) error {
	return s.Transact(ctx, storage.NewDelete(table, key, cond))
}

func (s *Store) Query(ctx context.Context, table string, partition string, filter *storage.Condition, out interface{}) error {
	rel, err := relation(table)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryxContext(ctx,
		`SELECT data FROM `+rel+` WHERE partition_key = $1 ORDER BY sort_key`,
		partition,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	return collectRows(rows, filter, out)
}

func (s *Store) Scan(ctx context.Context, table string, filter *storage.Condition, out interface{}) error {
	rel, err := relation(table)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryxContext(ctx,
		`SELECT data FROM ` + rel + ` ORDER BY partition_key, sort_key`,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	return collectRows(rows, filter, out)
}

func collectRows(rows *sqlx.Rows, filter *storage.Condition, out interface{}) error {
	var recs []storage.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		var rec storage.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("corrupt record: %w", err)
		}
		if filter.Eval(rec) {
			recs = append(recs, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return storage.DecodeAll(recs, out)
}

// Transact applies all ops in one SQL transaction. Participant rows are
// locked in deterministic (table, key) order so two concurrent transactions
// over the same records cannot deadlock; conditions are then evaluated
// against the locked snapshot and the effects applied, or everything rolls
// back.
func (s *Store) Transact(ctx context.Context, ops ...storage.Op) error {
	if len(ops) == 0 {
		return nil
	}

	order := make([]int, len(ops))
	for i := range ops {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		oa, ob := ops[order[a]], ops[order[b]]
		if oa.Table != ob.Table {
			return oa.Table < ob.Table
		}
		return oa.Key.String() < ob.Key.String()
	})

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	current := make([]storage.Record, len(ops))
	for _, i := range order {
		rec, err := lockRow(ctx, tx, ops[i].Table, ops[i].Key)
		if err != nil {
			return err
		}
		current[i] = rec
	}

	for i, op := range ops {
		if !op.Cond.Eval(current[i]) {
			return fmt.Errorf("%w: op %d (%s %s)", storage.ErrConditionFailed, i, op.Table, op.Key)
		}
	}

	for i, op := range ops {
		rel, err := relation(op.Table)
		if err != nil {
			return err
		}
		switch op.Kind {
		case storage.OpPut:
			// An absent row was never locked, so a concurrent insert may have
			// committed since the snapshot. A guarded put must not overwrite
			// it; insertRow fails the op instead.
			if current[i] == nil && op.Cond != nil {
				if err := insertRow(ctx, tx, rel, op.Key, op.Value); err != nil {
					return fmt.Errorf("op %d (%s %s): %w", i, op.Table, op.Key, err)
				}
				continue
			}
			if err := upsertRow(ctx, tx, rel, op.Key, op.Value); err != nil {
				return err
			}
		case storage.OpUpdate:
			if current[i] == nil {
				return fmt.Errorf("%w: op %d (%s %s)", storage.ErrNotFound, i, op.Table, op.Key)
			}
			updated, err := storage.ApplyChanges(current[i], op.Changes)
			if err != nil {
				return fmt.Errorf("%w: op %d (%s %s): %v", storage.ErrConditionFailed, i, op.Table, op.Key, err)
			}
			if err := upsertRow(ctx, tx, rel, op.Key, updated); err != nil {
				return err
			}
		case storage.OpDelete:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+rel+` WHERE partition_key = $1 AND sort_key = $2`,
				op.Key.Partition, op.Key.Sort,
			); err != nil {
				return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
			}
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

func lockRow(ctx context.Context, tx *sqlx.Tx, table string, key storage.Key) (storage.Record, error) {
	rel, err := relation(table)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = tx.QueryRowxContext(ctx,
		`SELECT data FROM `+rel+` WHERE partition_key = $1 AND sort_key = $2 FOR UPDATE`,
		key.Partition, key.Sort,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	var rec storage.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("corrupt record %s %s: %w", table, key, err)
	}
	return rec, nil
}

// insertRow writes a row the locked read found absent. DO NOTHING plus the
// affected-row check turns a racing insert into ErrConditionFailed rather
// than clobbering the committed winner.
func insertRow(ctx context.Context, tx *sqlx.Tx, rel string, key storage.Key, rec storage.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+rel+` (partition_key, sort_key, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (partition_key, sort_key) DO NOTHING`,
		key.Partition, key.Sort, raw,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: row inserted concurrently", storage.ErrConditionFailed)
	}
	return nil
}

func upsertRow(ctx context.Context, tx *sqlx.Tx, rel string, key storage.Key, rec storage.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+rel+` (partition_key, sort_key, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (partition_key, sort_key)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key.Partition, key.Sort, raw,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}
