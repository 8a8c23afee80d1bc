package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyscan/pkg/cluster"
	"keyscan/pkg/dberrors"
	"keyscan/pkg/metrics"
	"keyscan/pkg/sharding"
	"keyscan/pkg/stats"
	"keyscan/pkg/store/memstore"
	"keyscan/pkg/types"
)

var threeNodes = []string{"mem-0:7000", "mem-1:7001", "mem-2:7002"}

func newTestService(t *testing.T, keyCost time.Duration, opts Options) (*Service, *memstore.Cluster) {
	t.Helper()

	mem, err := memstore.NewCluster(context.Background(), memstore.Config{Addrs: threeNodes, KeyCost: keyCost})
	require.NoError(t, err)
	t.Cleanup(mem.Close)

	router, err := cluster.Bootstrap(context.Background(), cluster.StaticSource{Addrs: threeNodes})
	require.NoError(t, err)

	if opts.Namespace == "" {
		opts.Namespace = "test"
	}
	return New(NewContext(router, mem, metrics.NewPrometheus()), opts), mem
}

func groupIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids
}

// Тегированная раскладка сканирует одну партицию, иерархическая - все.
func TestScenario_TargetedVsFanout(t *testing.T) {
	svc, _ := newTestService(t, 0, Options{Hint: 10, BatchSize: 100})
	ctx := context.Background()

	for _, layout := range []GroupLayout{Tagged, Hierarchical} {
		res, err := svc.SeedGroups(ctx, layout, groupIDs(20), 50)
		require.NoError(t, err)
		require.Equal(t, 1000, res.Applied)
	}

	owner, err := svc.c.Router.ResolveForKey(sharding.TagKey("7"))
	require.NoError(t, err)

	require.NoError(t, svc.ResetStats(ctx))
	res, err := svc.CountGroup(ctx, Tagged, "7")
	require.NoError(t, err)
	assert.Equal(t, 50, res.Count)
	assert.Equal(t, cluster.ModeSingle, res.Routing)

	snap, err := svc.Stats(ctx, types.OpClassScan)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, []types.Partition{owner}, stats.Touched(snap))

	require.NoError(t, svc.ResetStats(ctx))
	res, err = svc.CountGroup(ctx, Hierarchical, "7")
	require.NoError(t, err)
	assert.Equal(t, 50, res.Count)
	assert.Equal(t, cluster.ModeFanout, res.Routing)

	snap, err = svc.Stats(ctx, types.OpClassScan)
	require.NoError(t, err)
	assert.Len(t, stats.Touched(snap), 3)
	for p, c := range snap {
		assert.Positive(t, c.Calls, "partition %s", p)
	}
}

// PING во время KEYS ждёт весь вызов, во время SCAN - не дольше шага.
func TestScenario_Interleaving(t *testing.T) {
	svc, _ := newTestService(t, 50*time.Microsecond, Options{Hint: 10, BatchSize: 1000})
	ctx := context.Background()

	_, err := svc.SeedGroups(ctx, Tagged, []string{"hot"}, 6000)
	require.NoError(t, err)

	pingDuring := func(mode CountMode) time.Duration {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.CountKeys(ctx, svc.keys.groupPattern(Tagged, "hot"), "", mode)
			assert.NoError(t, err)
			assert.Equal(t, 6000, res.Count)
		}()
		time.Sleep(50 * time.Millisecond)

		start := time.Now()
		_, err := svc.Ping(ctx)
		require.NoError(t, err)
		d := time.Since(start)
		wg.Wait()
		return d
	}

	duringKeys := pingDuring(ModeKeys)
	duringScan := pingDuring(ModeScan)
	t.Logf("ping during KEYS %s, during SCAN %s", duringKeys, duringScan)

	assert.Greater(t, duringKeys, 150*time.Millisecond)
	assert.Less(t, duringScan, 100*time.Millisecond)
}

func TestCountKeys_Modes(t *testing.T) {
	svc, _ := newTestService(t, 0, Options{Hint: 7, Concurrent: true})
	ctx := context.Background()

	_, err := svc.SeedGroups(ctx, Hierarchical, groupIDs(10), 30)
	require.NoError(t, err)

	for _, mode := range []CountMode{ModeScan, ModeKeys} {
		res, err := svc.CountKeys(ctx, "test:user:*", "", mode)
		require.NoError(t, err)
		assert.Equal(t, 300, res.Count, "mode %s", mode)
		assert.Len(t, res.Targets, 3)
	}

	_, err = svc.CountKeys(ctx, "test:user:*", "", "both")
	assert.ErrorIs(t, err, dberrors.ErrInvalidArgument)
	_, err = svc.CountKeys(ctx, "", "", ModeScan)
	assert.ErrorIs(t, err, dberrors.ErrInvalidArgument)
}

func TestCountKeys_ExplicitHashTag(t *testing.T) {
	svc, _ := newTestService(t, 0, Options{})
	ctx := context.Background()

	_, err := svc.SeedGroups(ctx, Tagged, []string{"42"}, 25)
	require.NoError(t, err)

	res, err := svc.CountKeys(ctx, "*", "42", ModeScan)
	require.NoError(t, err)
	assert.Equal(t, cluster.ModeSingle, res.Routing)
	assert.Equal(t, 25, res.Count)
}

func TestCountKeys_HashTagMatchesPattern(t *testing.T) {
	svc, _ := newTestService(t, 0, Options{})
	ctx := context.Background()

	ids := groupIDs(10)
	_, err := svc.SeedGroups(ctx, Tagged, ids, 50)
	require.NoError(t, err)

	for _, id := range ids {
		pattern := svc.keys.groupPattern(Tagged, id)

		res, err := svc.CountKeys(ctx, pattern, id, ModeScan)
		require.NoError(t, err)
		assert.Equal(t, 50, res.Count, "group %s", id)

		_, err = svc.CountKeys(ctx, pattern, "{"+id+"}", ModeScan)
		assert.ErrorIs(t, err, dberrors.ErrInvalidArgument, "group %s", id)

		_, err = svc.DeleteKeys(ctx, pattern, id+"x")
		assert.ErrorIs(t, err, dberrors.ErrInvalidArgument, "group %s", id)
	}
}

func TestDeleteKeys(t *testing.T) {
	svc, _ := newTestService(t, 0, Options{BatchSize: 16})
	ctx := context.Background()

	_, err := svc.SeedGroups(ctx, Hierarchical, groupIDs(5), 40)
	require.NoError(t, err)
	_, err = svc.SeedGroups(ctx, Tagged, []string{"keep"}, 10)
	require.NoError(t, err)

	res, err := svc.DeleteKeys(ctx, "test:user:[0-9]:*", "")
	require.NoError(t, err)
	assert.Equal(t, 200, res.Applied)

	count, err := svc.CountKeys(ctx, "test:user:*", "", ModeKeys)
	require.NoError(t, err)
	assert.Equal(t, 10, count.Count)

	// повторное удаление ничего не находит и не падает
	res, err = svc.DeleteKeys(ctx, "test:user:[0-9]:*", "")
	require.NoError(t, err)
	assert.Zero(t, res.Applied)

	res, err = svc.DeleteKeys(ctx, "test:user:{keep}:*", "")
	require.NoError(t, err)
	assert.Equal(t, 10, res.Applied)
}

func TestRecords_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t, 0, Options{BatchSize: 3})
	ctx := context.Background()

	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts
	}
	records := []Record{
		{Unit: "u1", At: at("2024-03-01T10:15:00Z")},
		{Unit: "u1", At: at("2024-03-01T10:45:00Z")},
		{Unit: "u1", At: at("2024-03-01T11:00:00Z")},
		{Unit: "u1", At: at("2024-03-02T00:00:01Z")},
		{Unit: "u1", At: at("2024-03-02T03:00:00+03:00")},
		{Unit: "u2", At: at("2024-03-01T10:00:00Z")},
	}
	want := DayCounts{
		"20240301": {"10": 2, "11": 1},
		"20240302": {"00": 2},
	}

	for _, layout := range []RecordLayout{Flat, Bucketed} {
		t.Run(string(layout), func(t *testing.T) {
			res, err := svc.WriteRecords(ctx, layout, records)
			require.NoError(t, err)
			assert.Equal(t, len(records), res.Applied)

			got, err := svc.ReadRecords(ctx, layout, "u1")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := svc.WriteRecords(ctx, Flat, nil)
	assert.ErrorIs(t, err, dberrors.ErrInvalidArgument)
	_, err = svc.WriteRecords(ctx, Flat, []Record{{Unit: "u*"}})
	assert.ErrorIs(t, err, dberrors.ErrInvalidArgument)
}

func TestPing_StoppedNode(t *testing.T) {
	svc, mem := newTestService(t, 0, Options{})
	ctx := context.Background()

	rtt, err := svc.Ping(ctx)
	require.NoError(t, err)
	assert.Len(t, rtt, 3)

	n, ok := mem.Node(threeNodes[1])
	require.True(t, ok)
	n.Stop()

	_, err = svc.Ping(ctx)
	assert.ErrorIs(t, err, dberrors.ErrPartitionUnreachable)
	assert.ErrorIs(t, err, dberrors.ErrTransient)

	_, err = svc.Stats(ctx, types.OpClassScan)
	assert.ErrorIs(t, err, dberrors.ErrPartitionUnreachable)
}

func TestParseLayouts(t *testing.T) {
	l, err := ParseGroupLayout("")
	require.NoError(t, err)
	assert.Equal(t, Tagged, l)

	_, err = ParseGroupLayout("flat")
	assert.ErrorIs(t, err, dberrors.ErrInvalidArgument)

	_, err = ParseRecordLayout("tagged")
	assert.ErrorIs(t, err, dberrors.ErrInvalidArgument)

	m, err := ParseCountMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeScan, m)
}

func TestKeyspace(t *testing.T) {
	ks := keyspace{ns: "test"}
	assert.Equal(t, "test:user:{9}:3", ks.groupKey(Tagged, "9", 3))
	assert.Equal(t, "test:user:9:3", ks.groupKey(Hierarchical, "9", 3))

	ts := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	key, field := ks.recordKey(Flat, "u", ts)
	assert.Equal(t, "test:timescale:u:string:2024010215", key)
	assert.Empty(t, field)
	key, field = ks.recordKey(Bucketed, "u", ts)
	assert.Equal(t, "test:timescale:u:hset:20240102", key)
	assert.Equal(t, "15", field)
	assert.Equal(t, "test:timescale:u:hset:*", ks.recordPattern(Bucketed, "u"))
	assert.Equal(t, "20240102", recordSuffix(key))
}
