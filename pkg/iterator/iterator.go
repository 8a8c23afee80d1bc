package iterator

import "keyscan/pkg/types"

// KeyIterator walks a finite sequence of keys, pull style.
//
//	for it.Next() {
//		use(it.Key())
//	}
//	if err := it.Err(); err != nil { ... }
type KeyIterator interface {
	// Next advances to the next key. It returns false when the sequence is
	// exhausted, failed or was closed.
	Next() bool
	// Key returns the current key. Valid only after Next returned true.
	Key() types.Key
	// Err returns the error that ended the sequence, if any.
	Err() error
	// Close abandons the sequence. Safe to call more than once.
	Close() error
}

// Collect drains it and closes it.
func Collect(it KeyIterator) ([]types.Key, error) {
	defer it.Close()

	var keys []types.Key
	for it.Next() {
		keys = append(keys, it.Key())
	}
	return keys, it.Err()
}
