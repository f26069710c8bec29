// Package memory provides an in-memory entity store implementing the storage
// contract. It is intended for tests and prototyping and keeps the
// implementation deliberately simple: one mutex guards all tables, which
// makes every transaction's snapshot trivially consistent.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/auctionhouse/marketplace/internal/storage"
)

// Store is a thread-safe in-memory entity store.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]storage.Record // table -> partition -> sort -> record
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[string]map[string]map[string]storage.Record)}
}

func (s *Store) lookup(table string, key storage.Key) storage.Record {
	partitions, ok := s.tables[table]
	if !ok {
		return nil
	}
	sorts, ok := partitions[key.Partition]
	if !ok {
		return nil
	}
	return sorts[key.Sort]
}

func (s *Store) write(table string, key storage.Key, rec storage.Record) {
	partitions, ok := s.tables[table]
	if !ok {
		partitions = make(map[string]map[string]storage.Record)
		s.tables[table] = partitions
	}
	sorts, ok := partitions[key.Partition]
	if !ok {
		sorts = make(map[string]storage.Record)
		partitions[key.Partition] = sorts
	}
	sorts[key.Sort] = rec
}

func (s *Store) remove(table string, key storage.Key) {
	if partitions, ok := s.tables[table]; ok {
		if sorts, ok := partitions[key.Partition]; ok {
			delete(sorts, key.Sort)
		}
	}
}

func (s *Store) Get(_ context.Context, table string, key storage.Key, out interface{}) error {
	s.mu.RLock()
	rec := s.lookup(table, key)
	s.mu.RUnlock()

	if rec == nil {
		return fmt.Errorf("%w: %s %s", storage.ErrNotFound, table, key)
	}
	return storage.Decode(rec, out)
}

func (s *Store) Put(_ context.Context, table string, key storage.Key, value interface{}, cond *storage.Condition) error {
	rec, err := storage.Encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cond.Eval(s.lookup(table, key)) {
		return fmt.Errorf("%w: put %s %s", storage.ErrConditionFailed, table, key)
	}
	s.write(table, key, rec.Clone())
	return nil
}

func (s *Store) Update(_ context.Context, table string, key storage.Key, cond *storage.Condition, changes ...storage.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.lookup(table, key)
	if current == nil {
		return fmt.Errorf("%w: %s %s", storage.ErrNotFound, table, key)
	}
	if !cond.Eval(current) {
		return fmt.Errorf("%w: update %s %s", storage.ErrConditionFailed, table, key)
	}
	updated, err := storage.ApplyChanges(current, changes)
	if err != nil {
		return fmt.Errorf("%w: update %s %s: %v", storage.ErrConditionFailed, table, key, err)
	}
	s.write(table, key, updated)
	return nil
}

func (s *Store) Delete(_ context.Context, table string, key storage.Key, cond *storage.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.lookup(table, key)
	if current == nil && cond == nil {
		return nil
	}
	if !cond.Eval(current) {
		return fmt.Errorf("%w: delete %s %s", storage.ErrConditionFailed, table, key)
	}
	s.remove(table, key)
	return nil
}

func (s *Store) Query(_ context.Context, table string, partition string, filter *storage.Condition, out interface{}) error {
	s.mu.RLock()
	var recs []storage.Record
	if partitions, ok := s.tables[table]; ok {
		if sorts, ok := partitions[partition]; ok {
			keys := make([]string, 0, len(sorts))
			for k := range sorts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if filter.Eval(sorts[k]) {
					recs = append(recs, sorts[k].Clone())
				}
			}
		}
	}
	s.mu.RUnlock()

	return storage.DecodeAll(recs, out)
}

func (s *Store) Scan(_ context.Context, table string, filter *storage.Condition, out interface{}) error {
	s.mu.RLock()
	var recs []storage.Record
	if partitions, ok := s.tables[table]; ok {
		parts := make([]string, 0, len(partitions))
		for p := range partitions {
			parts = append(parts, p)
		}
		sort.Strings(parts)
		for _, p := range parts {
			sorts := partitions[p]
			keys := make([]string, 0, len(sorts))
			for k := range sorts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if filter.Eval(sorts[k]) {
					recs = append(recs, sorts[k].Clone())
				}
			}
		}
	}
	s.mu.RUnlock()

	return storage.DecodeAll(recs, out)
}

// Transact evaluates every op's condition against the current state under one
// lock, then applies every effect. A single failed condition rejects the
// whole batch.
func (s *Store) Transact(_ context.Context, ops ...storage.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(ops))
	staged := make([]storage.Record, len(ops))
	for i, op := range ops {
		ref := op.Table + "/" + op.Key.String()
		if seen[ref] {
			return fmt.Errorf("transaction touches %s twice", ref)
		}
		seen[ref] = true

		current := s.lookup(op.Table, op.Key)
		if !op.Cond.Eval(current) {
			return fmt.Errorf("%w: op %d (%s %s)", storage.ErrConditionFailed, i, op.Table, op.Key)
		}
		switch op.Kind {
		case storage.OpPut:
			staged[i] = op.Value.Clone()
		case storage.OpUpdate:
			if current == nil {
				return fmt.Errorf("%w: op %d (%s %s)", storage.ErrNotFound, i, op.Table, op.Key)
			}
			updated, err := storage.ApplyChanges(current, op.Changes)
			if err != nil {
				return fmt.Errorf("%w: op %d (%s %s): %v", storage.ErrConditionFailed, i, op.Table, op.Key, err)
			}
			staged[i] = updated
		case storage.OpDelete:
			staged[i] = nil
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}

	for i, op := range ops {
		if op.Kind == storage.OpDelete {
			s.remove(op.Table, op.Key)
			continue
		}
		s.write(op.Table, op.Key, staged[i])
	}
	return nil
}
