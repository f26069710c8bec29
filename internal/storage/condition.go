package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// CompareOp is a predicate operator over a record field.
type CompareOp string

const (
	OpEq        CompareOp = "="
	OpNe        CompareOp = "<>"
	OpGt        CompareOp = ">"
	OpGe        CompareOp = ">="
	OpLt        CompareOp = "<"
	OpLe        CompareOp = "<="
	OpIn        CompareOp = "in"
	OpExists    CompareOp = "exists"
	OpNotExists CompareOp = "not_exists"
	OpEmpty     CompareOp = "empty"
)

// Predicate is one field comparison. Value is ignored for Exists, NotExists
// and Empty.
type Predicate struct {
	Field string
	Op    CompareOp
	Value interface{}
}

// Condition is a conjunction of predicates evaluated server-side against the
// current record. Against an absent record only NotExists and Empty
// predicates hold.
type Condition struct {
	Preds []Predicate
}

// Where starts a condition with one predicate.
func Where(field string, op CompareOp, value interface{}) *Condition {
	return &Condition{Preds: []Predicate{{Field: field, Op: op, Value: value}}}
}

// And appends a predicate and returns the condition for chaining.
func (c *Condition) And(field string, op CompareOp, value interface{}) *Condition {
	c.Preds = append(c.Preds, Predicate{Field: field, Op: op, Value: value})
	return c
}

// Eval reports whether the condition holds for rec; rec is nil when the
// record is absent. A nil condition always holds.
func (c *Condition) Eval(rec Record) bool {
	if c == nil {
		return true
	}
	for _, p := range c.Preds {
		if !evalPredicate(rec, p) {
			return false
		}
	}
	return true
}

func evalPredicate(rec Record, p Predicate) bool {
	var value interface{}
	present := false
	if rec != nil {
		value, present = rec[p.Field]
		if value == nil {
			present = false
		}
	}

	switch p.Op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEmpty:
		if !present {
			return true
		}
		list, ok := value.([]interface{})
		return ok && len(list) == 0
	}

	if !present {
		return false
	}

	switch p.Op {
	case OpEq:
		return valueEqual(value, p.Value)
	case OpNe:
		return !valueEqual(value, p.Value)
	case OpIn:
		members, ok := Normalize(p.Value).([]interface{})
		if !ok {
			return false
		}
		for _, m := range members {
			if valueEqual(value, m) {
				return true
			}
		}
		return false
	case OpGt, OpGe, OpLt, OpLe:
		a, okA := toFloat(value)
		b, okB := toFloat(p.Value)
		if !okA || !okB {
			return false
		}
		switch p.Op {
		case OpGt:
			return a > b
		case OpGe:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

func valueEqual(a, b interface{}) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Normalize passes v through its JSON representation so typed values, maps
// and numbers compare consistently with stored records.
func Normalize(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ChangeOp tags a field mutation.
type ChangeOp string

const (
	ChangeSet    ChangeOp = "set"
	ChangeAdd    ChangeOp = "add"
	ChangeAppend ChangeOp = "append"
	ChangeRemove ChangeOp = "remove"
)

// Change is one ordered field mutation inside an update.
type Change struct {
	Field string
	Op    ChangeOp
	Value interface{}
}

// Set replaces a field.
func Set(field string, value interface{}) Change {
	return Change{Field: field, Op: ChangeSet, Value: value}
}

// Add applies a numeric delta (negative deltas decrement). The guard that
// keeps the result non-negative belongs in the caller's condition.
func Add(field string, delta int64) Change {
	return Change{Field: field, Op: ChangeAdd, Value: delta}
}

// Append pushes a value onto a list field, creating it when absent.
func Append(field string, value interface{}) Change {
	return Change{Field: field, Op: ChangeAppend, Value: value}
}

// Remove clears a field.
func Remove(field string) Change {
	return Change{Field: field, Op: ChangeRemove}
}

// ApplyChanges returns a copy of rec with all changes applied in order.
func ApplyChanges(rec Record, changes []Change) (Record, error) {
	out := rec.Clone()
	if out == nil {
		out = Record{}
	}
	for _, ch := range changes {
		switch ch.Op {
		case ChangeSet:
			out[ch.Field] = Normalize(ch.Value)
		case ChangeAdd:
			current := 0.0
			if v, ok := out[ch.Field]; ok && v != nil {
				f, ok := toFloat(v)
				if !ok {
					return nil, fmt.Errorf("field %s is not numeric", ch.Field)
				}
				current = f
			}
			delta, ok := toFloat(ch.Value)
			if !ok {
				return nil, fmt.Errorf("delta for field %s is not numeric", ch.Field)
			}
			result := current + delta
			if result < 0 {
				return nil, fmt.Errorf("field %s would become negative", ch.Field)
			}
			out[ch.Field] = result
		case ChangeAppend:
			var list []interface{}
			if v, ok := out[ch.Field]; ok && v != nil {
				l, ok := v.([]interface{})
				if !ok {
					return nil, fmt.Errorf("field %s is not a list", ch.Field)
				}
				list = l
			}
			out[ch.Field] = append(list, Normalize(ch.Value))
		case ChangeRemove:
			delete(out, ch.Field)
		default:
			return nil, fmt.Errorf("unknown change op %q", ch.Op)
		}
	}
	return out, nil
}
