package batch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

// Result of a bulk write. Returned also on failure, with the progress made
// before it.
type Result struct {
	Applied int
	Flushes int
}

type keyResolver interface {
	ResolveForKey(key types.Key) (types.Partition, error)
}

// Mutator writes operation streams through count-triggered batches.
type Mutator struct {
	pipe store.Pipeliner
}

func NewMutator(pipe store.Pipeliner) *Mutator {
	return &Mutator{pipe: pipe}
}

// Apply sends ops to target in batches of batchSize. The remainder is
// flushed once at the end. A stream of L operations makes ceil(L/batchSize)
// round trips.
//
// On failure Result.Applied (and MutationError.Applied) is the number of
// operations in batches that were flushed successfully; Skip(ops, Applied)
// resumes from the first batch that failed.
func (m *Mutator) Apply(ctx context.Context, target types.Partition, ops iter.Seq[store.Operation], batchSize int) (Result, error) {
	b, err := New(m.pipe, target, batchSize)
	if err != nil {
		return Result{}, err
	}

	for op := range ops {
		if err := b.Add(op); err != nil {
			return resultOf(b), err
		}
		if b.Full() {
			if err := b.Flush(ctx); err != nil {
				return resultOf(b), err
			}
		}
	}

	err = b.Close(ctx)
	return resultOf(b), err
}

// ApplyRouted is Apply for operations spread over partitions: every key is
// routed to its owner and each owner gets its own batch. Per-partition
// batches flush on the same count rule.
//
// On failure Applied counts operations confirmed on all partitions.
func (m *Mutator) ApplyRouted(ctx context.Context, router keyResolver, ops iter.Seq[store.Operation], batchSize int) (Result, error) {
	if batchSize <= 0 {
		return Result{}, fmt.Errorf("%w: batch size %d", dberrors.ErrInvalidArgument, batchSize)
	}

	batches := make(map[string]*Batch)
	total := func() Result {
		var res Result
		for _, b := range batches {
			r := resultOf(b)
			res.Applied += r.Applied
			res.Flushes += r.Flushes
		}
		return res
	}
	fail := func(err error) (Result, error) {
		res := total()
		var me *dberrors.MutationError
		if errors.As(err, &me) {
			me.Applied = res.Applied
		}
		return res, err
	}

	for op := range ops {
		if err := op.Validate(); err != nil {
			return fail(&dberrors.MutationError{Kind: dberrors.ErrInvalidOperation, Err: err})
		}
		target, err := router.ResolveForKey(op.Key)
		if err != nil {
			return fail(err)
		}

		b, ok := batches[target.Addr]
		if !ok {
			b, err = New(m.pipe, target, batchSize)
			if err != nil {
				return fail(err)
			}
			batches[target.Addr] = b
		}
		if err := b.Add(op); err != nil {
			return fail(err)
		}
		if b.Full() {
			if err := b.Flush(ctx); err != nil {
				return fail(err)
			}
		}
	}

	addrs := make([]string, 0, len(batches))
	for addr := range batches {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		if err := batches[addr].Close(ctx); err != nil {
			return fail(err)
		}
	}
	return total(), nil
}

// Skip drops the first n operations of ops.
func Skip(ops iter.Seq[store.Operation], n int) iter.Seq[store.Operation] {
	return func(yield func(store.Operation) bool) {
		i := 0
		for op := range ops {
			if i < n {
				i++
				continue
			}
			if !yield(op) {
				return
			}
		}
	}
}

func resultOf(b *Batch) Result {
	return Result{Applied: b.Applied(), Flushes: b.Flushes()}
}
