package store

import (
	"fmt"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/types"
)

type OpKind uint8

const (
	OpSet OpKind = iota + 1
	OpDelete
	OpIncrBy
	OpHIncrBy
	OpGet
	OpHGetAll
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpDelete:
		return "del"
	case OpIncrBy:
		return "incrby"
	case OpHIncrBy:
		return "hincrby"
	case OpGet:
		return "get"
	case OpHGetAll:
		return "hgetall"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Class maps the operation to the command class used by statistics.
func (k OpKind) Class() types.OpClass {
	return types.OpClass(k.String())
}

// Operation is one pipelined command.
type Operation struct {
	Kind  OpKind
	Key   types.Key
	Field string // OpHIncrBy only
	Value string // OpSet only
	Delta int64  // OpIncrBy, OpHIncrBy
}

func Set(key types.Key, value string) Operation {
	return Operation{Kind: OpSet, Key: key, Value: value}
}

func Delete(key types.Key) Operation {
	return Operation{Kind: OpDelete, Key: key}
}

func IncrBy(key types.Key, delta int64) Operation {
	return Operation{Kind: OpIncrBy, Key: key, Delta: delta}
}

func HIncrBy(key types.Key, field string, delta int64) Operation {
	return Operation{Kind: OpHIncrBy, Key: key, Field: field, Delta: delta}
}

func Get(key types.Key) Operation {
	return Operation{Kind: OpGet, Key: key}
}

func HGetAll(key types.Key) Operation {
	return Operation{Kind: OpHGetAll, Key: key}
}

// Validate rejects operations the store could never execute.
func (op Operation) Validate() error {
	if op.Key == "" {
		return fmt.Errorf("%w: %s with empty key", dberrors.ErrInvalidOperation, op.Kind)
	}
	switch op.Kind {
	case OpSet, OpDelete, OpIncrBy, OpGet, OpHGetAll:
		return nil
	case OpHIncrBy:
		if op.Field == "" {
			return fmt.Errorf("%w: hincrby %q without field", dberrors.ErrInvalidOperation, op.Key)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %s", dberrors.ErrInvalidOperation, op.Kind)
	}
}

// Result of one pipelined command. Err is a per-command error such as a
// type mismatch; transport failures are returned by PipelineExecute itself.
type Result struct {
	Int    int64             // del, incrby, hincrby
	Str    string            // get
	Found  bool              // get, hgetall
	Fields map[string]string // hgetall
	Err    error
}
