package batch

import (
	"context"
	"fmt"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

// State of a Batch.
type State uint8

const (
	Accumulating State = iota
	Flushing
	Done
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Flushing:
		return "flushing"
	default:
		return "done"
	}
}

// Batch groups operations for one partition and sends them as a single
// pipeline round trip.
//
//	Accumulating -> Flushing -> Accumulating   (Flush)
//	Accumulating -> Flushing -> Done           (Close)
type Batch struct {
	pipe   store.Pipeliner
	target types.Partition
	size   int

	state   State
	ops     []store.Operation
	flushes int
	applied int
}

// New returns an empty batch. size is the count at which Full reports true.
func New(pipe store.Pipeliner, target types.Partition, size int) (*Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", dberrors.ErrInvalidArgument, size)
	}
	if !target.IsPrimary() {
		return nil, fmt.Errorf("%w: batch target %s is not a primary", dberrors.ErrInvalidArgument, target)
	}
	return &Batch{
		pipe:   pipe,
		target: target,
		size:   size,
		ops:    make([]store.Operation, 0, size),
	}, nil
}

// Add queues op. Invalid operations are rejected before they are queued.
func (b *Batch) Add(op store.Operation) error {
	if b.state != Accumulating {
		return fmt.Errorf("%w: add to %s batch", dberrors.ErrInvalidArgument, b.state)
	}
	if err := op.Validate(); err != nil {
		return &dberrors.MutationError{
			Kind:       dberrors.ErrInvalidOperation,
			BatchIndex: b.flushes,
			Applied:    b.applied,
			Err:        err,
		}
	}
	b.ops = append(b.ops, op)
	return nil
}

func (b *Batch) Len() int { return len(b.ops) }

func (b *Batch) Full() bool { return len(b.ops) >= b.size }

func (b *Batch) State() State { return b.state }

// Flushes is the number of successful flushes so far.
func (b *Batch) Flushes() int { return b.flushes }

// Applied is the number of operations confirmed by the store.
func (b *Batch) Applied() int { return b.applied }

func (b *Batch) Target() types.Partition { return b.target }

// Flush sends queued operations. An empty batch is not sent. On failure
// the queued operations are dropped and reported through MutationError;
// nothing is retried.
func (b *Batch) Flush(ctx context.Context) error {
	if b.state != Accumulating {
		return fmt.Errorf("%w: flush %s batch", dberrors.ErrInvalidArgument, b.state)
	}
	return b.flush(ctx, Accumulating)
}

// Close flushes the remainder and moves the batch to Done.
func (b *Batch) Close(ctx context.Context) error {
	switch b.state {
	case Done:
		return nil
	case Flushing:
		return fmt.Errorf("%w: close while flushing", dberrors.ErrInvalidArgument)
	}
	return b.flush(ctx, Done)
}

func (b *Batch) flush(ctx context.Context, after State) error {
	if len(b.ops) == 0 {
		b.state = after
		return nil
	}

	b.state = Flushing
	ops := b.ops
	b.ops = make([]store.Operation, 0, b.size)

	results, err := b.pipe.PipelineExecute(ctx, b.target, ops)
	if err == nil {
		if i, cmdErr := store.FirstError(results); cmdErr != nil {
			err = fmt.Errorf("op %d (%s %q): %w", i, ops[i].Kind, ops[i].Key, cmdErr)
		}
	}
	b.state = after
	if err != nil {
		return &dberrors.MutationError{
			Kind:       dberrors.ErrFlushFailed,
			BatchIndex: b.flushes,
			Applied:    b.applied,
			Err:        err,
		}
	}

	b.flushes++
	b.applied += len(ops)
	return nil
}
