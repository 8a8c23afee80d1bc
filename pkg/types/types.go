package types

import (
	"fmt"
	"time"
)

// Key is an opaque store key. It may embed a hash tag, see sharding.HashTag.
type Key = string

// Cursor is per-partition iteration state returned by one scan step.
// Zero is both the starting value and the exhausted sentinel.
type Cursor uint64

// CursorExhausted marks the end of a partition walk.
const CursorExhausted Cursor = 0

// Slot is a hash slot in [0, SlotCount).
type Slot uint16

// SlotCount is the number of hash slots the keyspace is divided into.
const SlotCount = 16384

// Role of a node inside its replication group.
type Role uint8

const (
	Primary Role = iota
	Replica
)

func (r Role) String() string {
	if r == Replica {
		return "replica"
	}
	return "primary"
}

// Partition is one addressable node holding a shard of the key space.
type Partition struct {
	Addr string
	Role Role
}

func (p Partition) String() string {
	return p.Addr
}

// IsPrimary reports whether the partition accepts writes.
func (p Partition) IsPrimary() bool {
	return p.Role == Primary
}

// PrimaryAt is a shorthand used by topology sources and tests.
func PrimaryAt(addr string) Partition {
	return Partition{Addr: addr, Role: Primary}
}

// OpClass names a command class for statistics, e.g. "scan" or "keys".
type OpClass string

const (
	OpClassScan    OpClass = "scan"
	OpClassKeys    OpClass = "keys"
	OpClassDel     OpClass = "del"
	OpClassSet     OpClass = "set"
	OpClassIncrBy  OpClass = "incrby"
	OpClassHIncrBy OpClass = "hincrby"
	OpClassGet     OpClass = "get"
	OpClassHGetAll OpClass = "hgetall"
	OpClassPing    OpClass = "ping"
)

// Counters are per-partition statistics for one OpClass within one
// measurement window.
type Counters struct {
	Calls     uint64
	TotalTime time.Duration
	AvgTime   time.Duration
}

// NewCounters derives AvgTime from calls and total time.
func NewCounters(calls uint64, total time.Duration) Counters {
	c := Counters{Calls: calls, TotalTime: total}
	if calls > 0 {
		c.AvgTime = total / time.Duration(calls)
	}
	return c
}

func (c Counters) String() string {
	return fmt.Sprintf("calls=%d total=%s avg=%s", c.Calls, c.TotalTime, c.AvgTime)
}
