package sharding

import (
	"strings"

	"keyscan/pkg/types"
)

// KeyHasher deterministically maps keys to hash slots.
type KeyHasher interface {
	SlotForKey(key types.Key) types.Slot
}

// CRC16Hasher is the Redis Cluster placement function.
type CRC16Hasher struct{}

func (CRC16Hasher) SlotForKey(key types.Key) types.Slot {
	return Slot(key)
}

// HashTag returns the substring between the first '{' and the first '}'
// after it. Only a non-empty tag counts.
func HashTag(key types.Key) (string, bool) {
	open := strings.IndexByte(key, '{')
	if open < 0 {
		return "", false
	}
	closing := strings.IndexByte(key[open+1:], '}')
	if closing <= 0 {
		return "", false
	}
	return key[open+1 : open+1+closing], true
}

// Slot hashes the key's tag if present, else the whole key.
func Slot(key types.Key) types.Slot {
	in := key
	if tag, ok := HashTag(key); ok {
		in = tag
	}
	return types.Slot(crc16([]byte(in)) % types.SlotCount)
}

// TagKey builds the representative key for a hash tag: any key carrying the
// same tag hashes to the same slot.
func TagKey(tag string) types.Key {
	return "{" + tag + "}"
}

// LiteralPrefix returns the part of a glob pattern before the first
// metacharacter. Escapes end the prefix too.
func LiteralPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, `*?[\`); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// PatternHashTag derives a hash tag that every key matching the pattern must
// carry. It exists only when the complete tag sits inside the literal prefix:
// then every match starts with that prefix and so has the same first '{' and
// the same first '}' after it.
func PatternHashTag(pattern string) (string, bool) {
	return HashTag(LiteralPrefix(pattern))
}
