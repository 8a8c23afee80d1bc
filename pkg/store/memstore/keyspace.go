package memstore

import (
	"maps"
	"regexp"
	"strconv"

	"github.com/google/btree"

	"keyscan/pkg/clock"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

type valueKind uint8

const (
	kindString valueKind = iota
	kindHash
)

type record struct {
	seq  uint64
	kind valueKind
	str  string
	hash map[string]string
}

type entry struct {
	seq uint64
	key string
}

// keyspace is touched only from the node's command loop.
//
// Keys are ordered by insertion sequence, and a scan cursor is the sequence
// of the next entry to visit. A key keeps its sequence for as long as it
// exists, so a key present during the whole walk is visited exactly once.
// A deleted and re-added key gets a fresh sequence and may be seen again.
type keyspace struct {
	order *btree.BTreeG[entry]
	data  map[string]*record
	seq   *clock.Sequence
}

func newKeyspace() *keyspace {
	return &keyspace{
		order: btree.NewG(32, func(a, b entry) bool { return a.seq < b.seq }),
		data:  make(map[string]*record),
		seq:   clock.NewSequence(0),
	}
}

func (ks *keyspace) insert(key string, rec *record) {
	rec.seq = ks.seq.Next()
	ks.data[key] = rec
	ks.order.ReplaceOrInsert(entry{seq: rec.seq, key: key})
}

func (ks *keyspace) set(key, value string) {
	if rec, ok := ks.data[key]; ok {
		rec.kind, rec.str, rec.hash = kindString, value, nil
		return
	}
	ks.insert(key, &record{kind: kindString, str: value})
}

func (ks *keyspace) del(key string) int64 {
	rec, ok := ks.data[key]
	if !ok {
		return 0
	}
	delete(ks.data, key)
	ks.order.Delete(entry{seq: rec.seq})
	return 1
}

func (ks *keyspace) incrBy(key string, delta int64) (int64, error) {
	rec, ok := ks.data[key]
	if !ok {
		ks.insert(key, &record{kind: kindString, str: strconv.FormatInt(delta, 10)})
		return delta, nil
	}
	if rec.kind != kindString {
		return 0, store.ErrWrongType
	}
	cur, err := strconv.ParseInt(rec.str, 10, 64)
	if err != nil {
		return 0, store.ErrNotInteger
	}
	cur += delta
	rec.str = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (ks *keyspace) hincrBy(key, field string, delta int64) (int64, error) {
	rec, ok := ks.data[key]
	if !ok {
		rec = &record{kind: kindHash, hash: make(map[string]string)}
		ks.insert(key, rec)
	}
	if rec.kind != kindHash {
		return 0, store.ErrWrongType
	}
	var cur int64
	if v, ok := rec.hash[field]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, store.ErrNotInteger
		}
		cur = n
	}
	cur += delta
	rec.hash[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (ks *keyspace) get(key string) (string, bool, error) {
	rec, ok := ks.data[key]
	if !ok {
		return "", false, nil
	}
	if rec.kind != kindString {
		return "", false, store.ErrWrongType
	}
	return rec.str, true, nil
}

func (ks *keyspace) hgetAll(key string) (map[string]string, bool, error) {
	rec, ok := ks.data[key]
	if !ok {
		return map[string]string{}, false, nil
	}
	if rec.kind != kindHash {
		return nil, false, store.ErrWrongType
	}
	return maps.Clone(rec.hash), true, nil
}

// scan visits at most count entries starting at cursor and returns the
// matching keys, the next cursor (0 when the end is reached) and the number
// of visited entries.
func (ks *keyspace) scan(cursor types.Cursor, re *regexp.Regexp, count int) ([]types.Key, types.Cursor, int) {
	var (
		keys    []types.Key
		visited int
		next    types.Cursor
	)
	ks.order.AscendGreaterOrEqual(entry{seq: uint64(cursor)}, func(e entry) bool {
		if visited == count {
			next = types.Cursor(e.seq)
			return false
		}
		visited++
		if re.MatchString(e.key) {
			keys = append(keys, e.key)
		}
		return true
	})
	return keys, next, visited
}

// validCursor reports whether the cursor could have been issued by this
// keyspace. Cursors only ever point at sequences already handed out.
func (ks *keyspace) validCursor(cursor types.Cursor) bool {
	return cursor == types.CursorExhausted || ks.seq.Issued(uint64(cursor))
}

// keys walks the whole keyspace in one go.
func (ks *keyspace) keys(re *regexp.Regexp) ([]types.Key, int) {
	keys := make([]types.Key, 0)
	ks.order.Ascend(func(e entry) bool {
		if re.MatchString(e.key) {
			keys = append(keys, e.key)
		}
		return true
	})
	return keys, ks.order.Len()
}
