package storage

// OpKind tags a transaction participant.
type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
	OpDelete
)

// Op is one conditioned write inside a transaction: a tagged Put, Update or
// Delete intent carrying its own precondition.
type Op struct {
	Kind    OpKind
	Table   string
	Key     Key
	Value   Record   // Put only
	Changes []Change // Update only
	Cond    *Condition
}

// NewPut builds a put intent; value is encoded to its record form.
func NewPut(table string, key Key, value interface{}, cond *Condition) (Op, error) {
	rec, err := Encode(value)
	if err != nil {
		return Op{}, err
	}
	return Op{Kind: OpPut, Table: table, Key: key, Value: rec, Cond: cond}, nil
}

// NewUpdate builds an update intent.
func NewUpdate(table string, key Key, cond *Condition, changes ...Change) Op {
	return Op{Kind: OpUpdate, Table: table, Key: key, Changes: changes, Cond: cond}
}

// NewDelete builds a delete intent.
func NewDelete(table string, key Key, cond *Condition) Op {
	return Op{Kind: OpDelete, Table: table, Key: key, Cond: cond}
}
