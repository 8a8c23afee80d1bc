package scan

import (
	"context"
	"iter"

	"keyscan/pkg/iterator"
	"keyscan/pkg/types"
)

// Iterator is the pull form of Enumerate.
type Iterator struct {
	next func() (types.Key, error, bool)
	stop func()

	key  types.Key
	err  error
	done bool
}

var _ iterator.KeyIterator = (*Iterator)(nil)

// Iterator returns a pull iterator over Enumerate. Close must be called if
// the iterator is abandoned before Next returns false.
func (e *Enumerator) Iterator(ctx context.Context, pattern string, targets []types.Partition, hint int) *Iterator {
	next, stop := iter.Pull2(e.Enumerate(ctx, pattern, targets, hint))
	return &Iterator{next: next, stop: stop}
}

func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	key, err, ok := it.next()
	if !ok || err != nil {
		it.err = err
		it.key = ""
		it.done = true
		it.stop()
		return false
	}
	it.key = key
	return true
}

func (it *Iterator) Key() types.Key {
	return it.key
}

func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) Close() error {
	it.done = true
	it.stop()
	return nil
}
