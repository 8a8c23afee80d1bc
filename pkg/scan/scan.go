package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

// DefaultHint is the per-step work hint used when the caller passes none.
// Same as the server-side default for SCAN COUNT.
const DefaultHint = 10

// Enumerator walks partitions step by step. Each step holds its partition
// for a bounded amount of work, so other clients get served between steps.
type Enumerator struct {
	store store.Scanner
}

func New(s store.Scanner) *Enumerator {
	return &Enumerator{store: s}
}

// Enumerate returns a lazy sequence of keys matching pattern on targets, one
// target after another. Nothing is sent to the store until the sequence is
// ranged over. A failed step yields a single error and ends the sequence.
// Breaking out of the loop abandons the walk.
//
// Keys present during the whole walk are yielded at least once. Keys
// written or deleted meanwhile may be yielded any number of times.
func (e *Enumerator) Enumerate(ctx context.Context, pattern string, targets []types.Partition, hint int) iter.Seq2[types.Key, error] {
	return func(yield func(types.Key, error) bool) {
		if err := checkTargets(targets); err != nil {
			yield("", err)
			return
		}
		hint = normalizeHint(hint)

		for _, target := range targets {
			err := e.walk(ctx, target, pattern, hint, func(keys []types.Key) bool {
				for _, k := range keys {
					if !yield(k, nil) {
						return false
					}
				}
				return true
			})
			if err != nil {
				if err != errStopped {
					yield("", err)
				}
				return
			}
		}
	}
}

var errStopped = errors.New("scan: consumer stopped")

// walk runs steps on one target until the cursor comes back to 0. emit gets
// every non-empty page; returning false stops the walk with errStopped.
func (e *Enumerator) walk(ctx context.Context, target types.Partition, pattern string, hint int, emit func([]types.Key) bool) error {
	var cursor types.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, keys, err := e.store.ScanStep(ctx, target, cursor, pattern, hint)
		if err != nil {
			return stepError(target, cursor, err)
		}
		if len(keys) > 0 && !emit(keys) {
			return errStopped
		}
		if next == types.CursorExhausted {
			return nil
		}
		cursor = next
	}
}

type item struct {
	key types.Key
	err error
}

// EnumerateConcurrent is Enumerate with one walker goroutine per target.
// Steps on a target stay sequential; keys from different targets come in no
// particular order. All walkers stop when the consumer stops or one of them
// fails.
func (e *Enumerator) EnumerateConcurrent(ctx context.Context, pattern string, targets []types.Partition, hint int) iter.Seq2[types.Key, error] {
	return func(yield func(types.Key, error) bool) {
		if err := checkTargets(targets); err != nil {
			yield("", err)
			return
		}
		hint = normalizeHint(hint)

		wctx, cancel := context.WithCancel(ctx)
		out := make(chan item)

		var wg sync.WaitGroup
		for _, target := range targets {
			wg.Add(1)
			go func(target types.Partition) {
				defer wg.Done()
				err := e.walk(wctx, target, pattern, hint, func(keys []types.Key) bool {
					for _, k := range keys {
						select {
						case out <- item{key: k}:
						case <-wctx.Done():
							return false
						}
					}
					return true
				})
				if err != nil && err != errStopped && wctx.Err() == nil {
					select {
					case out <- item{err: err}:
					case <-wctx.Done():
					}
				}
			}(target)
		}

		go func() {
			wg.Wait()
			close(out)
		}()

		// на выходе гасим воркеров и дожидаемся их, чтобы не оставлять горутин
		defer func() {
			cancel()
			for range out {
			}
		}()

		for it := range out {
			if it.err != nil {
				yield("", it.err)
				return
			}
			if !yield(it.key, nil) {
				return
			}
		}
		// воркеры молчат после отмены, ошибку вызывающего отдаём здесь
		if err := ctx.Err(); err != nil {
			yield("", err)
		}
	}
}

// Count drains seq, either Enumerate or EnumerateConcurrent. Keys yielded
// more than once are counted more than once.
func Count(seq iter.Seq2[types.Key, error]) (int, error) {
	var n int
	for _, err := range seq {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Full is the blocking baseline: a single KEYS per target. Each target
// serves nothing else until its call returns, and the call cannot be
// interrupted once the store started it.
func (e *Enumerator) Full(ctx context.Context, pattern string, targets []types.Partition) ([]types.Key, error) {
	if err := checkTargets(targets); err != nil {
		return nil, err
	}

	keys := make([]types.Key, 0)
	for _, target := range targets {
		part, err := e.store.FullEnumerate(ctx, target, pattern)
		if err != nil {
			return keys, stepError(target, 0, err)
		}
		keys = append(keys, part...)
	}
	return keys, nil
}

func normalizeHint(hint int) int {
	if hint <= 0 {
		return DefaultHint
	}
	return hint
}

// checkTargets rejects replicas: scans go to primaries only.
func checkTargets(targets []types.Partition) error {
	for _, t := range targets {
		if !t.IsPrimary() {
			return fmt.Errorf("%w: scan target %s is not a primary", dberrors.ErrInvalidArgument, t)
		}
	}
	return nil
}

// stepError classifies a failed step. Caller cancellation and input errors
// pass through as they are.
func stepError(target types.Partition, cursor types.Cursor, err error) error {
	if errors.Is(err, dberrors.ErrInvalidArgument) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := dberrors.ErrTransient
	if errors.Is(err, dberrors.ErrInvalidCursor) {
		kind = dberrors.ErrInvalidCursor
	}
	return &dberrors.EnumerationError{
		Kind:      kind,
		Partition: target.Addr,
		Cursor:    uint64(cursor),
		Err:       err,
	}
}
