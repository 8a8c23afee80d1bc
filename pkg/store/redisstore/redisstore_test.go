package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

const sampleInfo = "# Commandstats\r\n" +
	"cmdstat_scan:calls=3,usec=51,usec_per_call=17.00,rejected_calls=0,failed_calls=0\r\n" +
	"cmdstat_keys:calls=1,usec=900,usec_per_call=900.00\r\n" +
	"cmdstat_config|resetstat:calls=2,usec=4,usec_per_call=2.00\r\n" +
	"cmdstat_config|get:calls=1,usec=6,usec_per_call=6.00\r\n" +
	"cmdstat_broken:usec=5\r\n" +
	"garbage line\r\n"

func TestParseCommandStats(t *testing.T) {
	stats := ParseCommandStats(sampleInfo)

	assert.Equal(t, types.NewCounters(3, 51*time.Microsecond), stats[types.OpClassScan])
	assert.Equal(t, uint64(1), stats[types.OpClassKeys].Calls)
	assert.Equal(t, 900*time.Microsecond, stats[types.OpClassKeys].AvgTime)
	assert.Equal(t, types.NewCounters(3, 10*time.Microsecond), stats["config"])
	assert.NotContains(t, stats, types.OpClass("broken"))
	assert.Equal(t, types.Counters{}, stats[types.OpClassDel])
}

func TestParseCommandStats_Empty(t *testing.T) {
	assert.Empty(t, ParseCommandStats("# Commandstats\r\n"))
	assert.Empty(t, ParseCommandStats(""))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		is        error
	}{
		{"timeout", context.DeadlineExceeded, true, dberrors.ErrTransient},
		{"closed", redis.ErrClosed, true, dberrors.ErrTransient},
		{"wrongtype", redisErr("WRONGTYPE Operation against a key holding the wrong kind of value"), false, store.ErrWrongType},
		{"cursor", redisErr("ERR invalid cursor"), false, dberrors.ErrInvalidCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("n1:6379", "scan", tt.err)
			assert.ErrorIs(t, err, tt.is)
			assert.Equal(t, tt.transient, errors.Is(err, dberrors.ErrTransient))
			assert.Contains(t, err.Error(), "n1:6379")
		})
	}
}

func TestResultOf(t *testing.T) {
	res := resultOf(redis.NewIntResult(7, nil))
	assert.Equal(t, int64(7), res.Int)
	assert.NoError(t, res.Err)

	res = resultOf(redis.NewStringResult("", redis.Nil))
	assert.False(t, res.Found)
	assert.NoError(t, res.Err)

	res = resultOf(redis.NewStringResult("v", nil))
	assert.True(t, res.Found)
	assert.Equal(t, "v", res.Str)

	res = resultOf(redis.NewMapStringStringResult(nil, nil))
	assert.False(t, res.Found)
	assert.NotNil(t, res.Fields)

	res = resultOf(redis.NewIntResult(0, redisErr("ERR value is not an integer or out of range")))
	assert.ErrorIs(t, res.Err, store.ErrNotInteger)
}

func TestTopologyFromSlots(t *testing.T) {
	topo, err := topologyFromSlots([]redis.ClusterSlot{
		{Start: 0, End: 8191, Nodes: []redis.ClusterNode{{Addr: "a:6379"}, {Addr: "a2:6379"}}},
		{Start: 8192, End: 16383, Nodes: []redis.ClusterNode{{Addr: "b:6379"}}},
		{Start: 1, End: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []types.Partition{types.PrimaryAt("a:6379"), types.PrimaryAt("b:6379")}, topo.Primaries())
	assert.Equal(t, types.SlotCount, topo.CoveredSlots())

	owner, ok := topo.Owner(100)
	require.True(t, ok)
	assert.Equal(t, "a:6379", owner.Addr)
	assert.Equal(t, types.Replica, topo.Ranges()[0].Replicas[0].Role)
}

func TestClientsAreCached(t *testing.T) {
	s := New(Options{DialTimeout: time.Millisecond})
	t.Cleanup(func() { _ = s.Close() })

	assert.Same(t, s.client("x:1"), s.client("x:1"))
	assert.NotSame(t, s.client("x:1"), s.client("y:1"))
}

func TestUnreachableNodeIsTransient(t *testing.T) {
	s := New(Options{DialTimeout: 50 * time.Millisecond, ReadTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = s.Close() })

	// порт 1 на localhost никто не слушает
	err := s.Ping(context.Background(), types.PrimaryAt("127.0.0.1:1"))
	assert.ErrorIs(t, err, dberrors.ErrTransient)
}

type redisErr string

func (e redisErr) Error() string { return string(e) }
func (e redisErr) RedisError()   {}
