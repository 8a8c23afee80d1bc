package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

var nodeA = types.PrimaryAt("mem-a:7000")

func newTestCluster(t *testing.T, cfg Config) *Cluster {
	t.Helper()
	if len(cfg.Addrs) == 0 {
		cfg.Addrs = []string{nodeA.Addr}
	}
	c, err := NewCluster(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func seed(t *testing.T, c *Cluster, target types.Partition, keys ...string) {
	t.Helper()
	ops := make([]store.Operation, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, store.Set(k, "0"))
	}
	res, err := c.PipelineExecute(context.Background(), target, ops)
	require.NoError(t, err)
	_, err = store.FirstError(res)
	require.NoError(t, err)
}

func walk(t *testing.T, c *Cluster, target types.Partition, pattern string, hint int) ([]string, int) {
	t.Helper()
	var (
		all    []string
		cursor types.Cursor
		steps  int
	)
	for {
		next, keys, err := c.ScanStep(context.Background(), target, cursor, pattern, hint)
		require.NoError(t, err)
		all = append(all, keys...)
		steps++
		require.Less(t, steps, 1_000_000, "cursor never reached 0")
		if next == types.CursorExhausted {
			return all, steps
		}
		cursor = next
	}
}

func TestScan_TerminatesWithoutDuplicates(t *testing.T) {
	c := newTestCluster(t, Config{})

	var keys []string
	for i := 0; i < 1000; i++ {
		keys = append(keys, fmt.Sprintf("test:%d", i))
	}
	seed(t, c, nodeA, keys...)
	seed(t, c, nodeA, "other:1", "other:2")

	for _, hint := range []int{1, 7, 10, 100, 5000} {
		t.Run(fmt.Sprintf("hint=%d", hint), func(t *testing.T) {
			got, steps := walk(t, c, nodeA, "test:*", hint)
			assert.ElementsMatch(t, keys, got)
			if hint < 1002 {
				assert.GreaterOrEqual(t, steps, 1002/hint)
			}
		})
	}
}

func TestScan_MatchesKeys(t *testing.T) {
	c := newTestCluster(t, Config{})
	for i := 0; i < 300; i++ {
		seed(t, c, nodeA, fmt.Sprintf("test:user:{%d}:x", i%7), fmt.Sprintf("test:user:%d:y", i))
	}

	for _, pattern := range []string{"*", "test:user:{3}:*", "test:user:1?:y", "test:user:[12]*:y", "nothing*"} {
		full, err := c.FullEnumerate(context.Background(), nodeA, pattern)
		require.NoError(t, err)
		scanned, _ := walk(t, c, nodeA, pattern, 13)
		assert.ElementsMatch(t, full, scanned, "pattern %s", pattern)
	}
}

func TestScan_KeysPresentThroughoutAreSeen(t *testing.T) {
	c := newTestCluster(t, Config{})

	var stable []string
	for i := 0; i < 500; i++ {
		stable = append(stable, fmt.Sprintf("stable:%d", i))
	}
	seed(t, c, nodeA, stable...)
	for i := 0; i < 500; i++ {
		seed(t, c, nodeA, fmt.Sprintf("churn:%d", i))
	}

	seen := map[string]int{}
	var cursor types.Cursor
	for step := 0; ; step++ {
		next, keys, err := c.ScanStep(context.Background(), nodeA, cursor, "*", 20)
		require.NoError(t, err)
		for _, k := range keys {
			seen[k]++
		}
		// параллельно удаляем и заново добавляем churn-ключи
		ops := []store.Operation{
			store.Delete(fmt.Sprintf("churn:%d", step)),
			store.Set(fmt.Sprintf("churn:%d", step), "1"),
			store.Set(fmt.Sprintf("new:%d", step), "1"),
		}
		_, err = c.PipelineExecute(context.Background(), nodeA, ops)
		require.NoError(t, err)

		if next == types.CursorExhausted {
			break
		}
		cursor = next
	}

	for _, k := range stable {
		assert.Equal(t, 1, seen[k], "stable key %s", k)
	}
}

func TestScan_InvalidCursor(t *testing.T) {
	c := newTestCluster(t, Config{})
	seed(t, c, nodeA, "a", "b")

	_, _, err := c.ScanStep(context.Background(), nodeA, 1<<40, "*", 10)
	assert.ErrorIs(t, err, dberrors.ErrInvalidCursor)
}

func TestPipeline_IdempotentDelete(t *testing.T) {
	c := newTestCluster(t, Config{})

	for i := 0; i < 2; i++ {
		res, err := c.PipelineExecute(context.Background(), nodeA, []store.Operation{store.Delete("missing")})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.NoError(t, res[0].Err)
		assert.Equal(t, int64(0), res[0].Int)
	}
}

func TestPipeline_Commands(t *testing.T) {
	c := newTestCluster(t, Config{})
	ctx := context.Background()

	res, err := c.PipelineExecute(ctx, nodeA, []store.Operation{
		store.IncrBy("ctr", 2),
		store.IncrBy("ctr", 3),
		store.HIncrBy("h", "05", 1),
		store.HIncrBy("h", "05", 1),
		store.HIncrBy("h", "06", 4),
		store.Get("ctr"),
		store.HGetAll("h"),
		store.HIncrBy("ctr", "x", 1),
		store.Get("h"),
		store.Get("missing"),
		store.Delete("ctr"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), res[1].Int)
	assert.Equal(t, int64(2), res[3].Int)
	assert.Equal(t, "5", res[5].Str)
	assert.True(t, res[5].Found)
	assert.Equal(t, map[string]string{"05": "2", "06": "4"}, res[6].Fields)
	assert.ErrorIs(t, res[7].Err, store.ErrWrongType)
	assert.ErrorIs(t, res[8].Err, store.ErrWrongType)
	assert.False(t, res[9].Found)
	assert.Equal(t, int64(1), res[10].Int)

	res, err = c.PipelineExecute(ctx, nodeA, []store.Operation{{Kind: store.OpHIncrBy, Key: "h"}})
	require.NoError(t, err)
	assert.ErrorIs(t, res[0].Err, dberrors.ErrInvalidOperation)
}

func TestStats_CountAndReset(t *testing.T) {
	c := newTestCluster(t, Config{})
	ctx := context.Background()
	seed(t, c, nodeA, "a", "b", "c")

	walk(t, c, nodeA, "*", 1)

	counters, err := c.QueryStats(ctx, nodeA, types.OpClassScan)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), counters.Calls)

	set, err := c.QueryStats(ctx, nodeA, types.OpClassSet)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), set.Calls)

	require.NoError(t, c.ResetStats(ctx, nodeA))
	counters, err = c.QueryStats(ctx, nodeA, types.OpClassScan)
	require.NoError(t, err)
	assert.Equal(t, types.Counters{}, counters)
}

func TestStoppedNodeIsTransient(t *testing.T) {
	c := newTestCluster(t, Config{})
	n, ok := c.Node(nodeA.Addr)
	require.True(t, ok)
	n.Stop()

	_, _, err := c.ScanStep(context.Background(), nodeA, 0, "*", 10)
	assert.ErrorIs(t, err, dberrors.ErrTransient)
	assert.ErrorIs(t, err, store.ErrNodeStopped)

	_, err = c.QueryStats(context.Background(), nodeA, types.OpClassScan)
	assert.ErrorIs(t, err, dberrors.ErrTransient)

	_, _, err = c.ScanStep(context.Background(), types.PrimaryAt("nowhere:1"), 0, "*", 10)
	assert.ErrorIs(t, err, store.ErrUnknownNode)
}

// KEYS держит ноду всё время выполнения, SCAN только один шаг.
func TestKeysBlocksNodeScanDoesNot(t *testing.T) {
	c := newTestCluster(t, Config{KeyCost: 50 * time.Microsecond})
	ctx := context.Background()

	var keys []string
	for i := 0; i < 10_000; i++ {
		keys = append(keys, fmt.Sprintf("test:%d", i))
	}
	seed(t, c, nodeA, keys...)

	pingDuring := func(run func()) time.Duration {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
		time.Sleep(50 * time.Millisecond)
		start := time.Now()
		require.NoError(t, c.Ping(ctx, nodeA))
		d := time.Since(start)
		wg.Wait()
		return d
	}

	duringKeys := pingDuring(func() {
		_, err := c.FullEnumerate(ctx, nodeA, "test:*")
		assert.NoError(t, err)
	})
	duringScan := pingDuring(func() {
		walk(t, c, nodeA, "test:*", 100)
	})

	assert.Greater(t, duringKeys, 200*time.Millisecond)
	assert.Less(t, duringScan, 100*time.Millisecond)
}

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		match   []string
		noMatch []string
	}{
		{"test:*", []string{"test:", "test:a/b:c"}, []string{"tes", "xtest:1"}},
		{"h?llo", []string{"hello", "hallo"}, []string{"hllo", "heello"}},
		{"h[ae]llo", []string{"hello", "hallo"}, []string{"hillo"}},
		{"h[^e]llo", []string{"hallo"}, []string{"hello"}},
		{"h[a-b]llo", []string{"hallo", "hbllo"}, []string{"hcllo"}},
		{`a\*b`, []string{"a*b"}, []string{"axb"}},
		{"user:{1}:*", []string{"user:{1}:x"}, []string{"user:1:x"}},
		{"[open", []string{"[open"}, []string{"o"}},
		{"a.b", []string{"a.b"}, []string{"axb"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			re, err := compileGlob(tt.pattern)
			require.NoError(t, err)
			for _, s := range tt.match {
				assert.True(t, re.MatchString(s), "%q should match %q", tt.pattern, s)
			}
			for _, s := range tt.noMatch {
				assert.False(t, re.MatchString(s), "%q should not match %q", tt.pattern, s)
			}
		})
	}
}
