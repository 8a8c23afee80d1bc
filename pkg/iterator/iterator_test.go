package iterator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyscan/pkg/types"
)

// listIterator отдаёт ключи по порядку, потом err
type listIterator struct {
	keys   []types.Key
	err    error
	pos    int
	closed int
}

func (l *listIterator) Next() bool {
	if l.closed > 0 || l.pos >= len(l.keys) {
		return false
	}
	l.pos++
	return true
}

func (l *listIterator) Key() types.Key { return l.keys[l.pos-1] }
func (l *listIterator) Err() error     { return l.err }

func (l *listIterator) Close() error {
	l.closed++
	return nil
}

func TestCollect(t *testing.T) {
	it := &listIterator{keys: []types.Key{"x", "y", "z"}}
	keys, err := Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []types.Key{"x", "y", "z"}, keys)
	assert.Equal(t, 1, it.closed)

	keys, err = Collect(&listIterator{})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCollect_Error(t *testing.T) {
	boom := errors.New("boom")
	it := &listIterator{keys: []types.Key{"a"}, err: boom}

	keys, err := Collect(it)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []types.Key{"a"}, keys)
	assert.Equal(t, 1, it.closed)
}
