// Package storage defines the entity store contract the auction engine is
// built on: keyed JSON records, conditional single-record writes and small
// atomic multi-record transactions. Implementations live in the memory and
// postgres subpackages.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Key is the composite key of a record. Single-keyed entities use the same
// value for both parts.
type Key struct {
	Partition string
	Sort      string
}

func (k Key) String() string {
	return k.Partition + "/" + k.Sort
}

// SimpleKey returns a key for entities addressed by a single id.
func SimpleKey(id string) Key {
	return Key{Partition: id, Sort: id}
}

// Record is the stored form of an entity: a JSON document keyed by the
// entity's JSON field names.
type Record map[string]interface{}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Record(t).Clone())
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Encode converts an entity to its record form via its JSON representation.
func Encode(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

// Decode converts a record back into a typed entity.
func Decode(rec Record, out interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// DecodeAll converts a record list into a typed slice; out must be a pointer
// to a slice.
func DecodeAll(recs []Record, out interface{}) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	return nil
}

// Store is the persistence surface consumed by the engine. Every guarded
// mutation either fully applies or fails with ErrConditionFailed; Transact
// extends the same guarantee across records and tables.
type Store interface {
	// Get loads the record at key into out. ErrNotFound when absent.
	Get(ctx context.Context, table string, key Key, out interface{}) error

	// Put writes value at key, optionally guarded by cond evaluated against
	// the current record (nil when absent).
	Put(ctx context.Context, table string, key Key, value interface{}, cond *Condition) error

	// Update applies changes in order to the record at key. ErrNotFound when
	// absent, ErrConditionFailed when cond does not hold.
	Update(ctx context.Context, table string, key Key, cond *Condition, changes ...Change) error

	// Delete removes the record at key. Deleting an absent record without a
	// condition is a no-op.
	Delete(ctx context.Context, table string, key Key, cond *Condition) error

	// Query loads all records in a partition matching filter into out
	// (pointer to slice), ordered by sort key.
	Query(ctx context.Context, table string, partition string, filter *Condition, out interface{}) error

	// Scan loads all records in the table matching filter into out.
	Scan(ctx context.Context, table string, filter *Condition, out interface{}) error

	// Transact applies all ops atomically: every condition is evaluated
	// against one consistent snapshot and either every effect lands or none
	// does.
	Transact(ctx context.Context, ops ...Op) error
}
