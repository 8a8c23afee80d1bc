package memstore

import (
	"context"
	"fmt"
	"time"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/listener"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

const defaultScanCount = 10

type command struct {
	fn   func()
	done chan struct{}
}

// Node is one partition. All commands run on a single goroutine, one at a
// time, like a Redis server: a long command delays every command queued
// behind it.
type Node struct {
	addr     string
	keyCost  time.Duration
	ks       *keyspace
	stats    *commandStats
	matchers *matcherCache

	cmds    chan command
	loop    *listener.Listener[command]
	stopped chan struct{}
}

func newNode(addr string, keyCost time.Duration, queue int, matchers *matcherCache) *Node {
	n := &Node{
		addr:     addr,
		keyCost:  keyCost,
		ks:       newKeyspace(),
		stats:    newCommandStats(),
		matchers: matchers,
		cmds:     make(chan command, queue),
		stopped:  make(chan struct{}),
	}
	n.loop = listener.New(n.cmds, func(c command) {
		c.fn()
		close(c.done)
	}, func() {
		close(n.stopped)
	})
	return n
}

func (n *Node) Addr() string {
	return n.addr
}

func (n *Node) start(ctx context.Context) {
	n.loop.Start(ctx)
}

// Stop makes the node unreachable. Commands still queued fail.
func (n *Node) Stop() {
	n.loop.Stop()
}

// do runs fn on the command loop and waits for it. If ctx ends first the
// command may still run later; the caller just stops waiting.
func (n *Node) do(ctx context.Context, fn func()) error {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case n.cmds <- c:
	case <-n.stopped:
		return n.unreachable()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-c.done:
		return nil
	case <-n.stopped:
		select {
		case <-c.done:
			return nil
		default:
			return n.unreachable()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Node) unreachable() error {
	return &nodeError{addr: n.addr, err: store.ErrNodeStopped}
}

// spend simulates the server-side cost of visiting keys while holding the
// loop.
func (n *Node) spend(visited int) {
	if n.keyCost > 0 && visited > 0 {
		time.Sleep(time.Duration(visited) * n.keyCost)
	}
}

func (n *Node) timed(name types.OpClass, fn func()) {
	start := time.Now()
	fn()
	n.stats.record(name, time.Since(start))
}

func (n *Node) Scan(ctx context.Context, cursor types.Cursor, pattern string, count int) (types.Cursor, []types.Key, error) {
	re, err := n.matchers.get(pattern)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", dberrors.ErrInvalidArgument, err)
	}
	if count <= 0 {
		count = defaultScanCount
	}

	var (
		keys    []types.Key
		next    types.Cursor
		invalid bool
	)
	err = n.do(ctx, func() {
		n.timed(types.OpClassScan, func() {
			if !n.ks.validCursor(cursor) {
				invalid = true
				return
			}
			var visited int
			keys, next, visited = n.ks.scan(cursor, re, count)
			n.spend(visited)
		})
	})
	if err != nil {
		return 0, nil, err
	}
	if invalid {
		return 0, nil, fmt.Errorf("%w: %d on %s", dberrors.ErrInvalidCursor, cursor, n.addr)
	}
	return next, keys, nil
}

func (n *Node) Keys(ctx context.Context, pattern string) ([]types.Key, error) {
	re, err := n.matchers.get(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrInvalidArgument, err)
	}

	var keys []types.Key
	err = n.do(ctx, func() {
		n.timed(types.OpClassKeys, func() {
			var visited int
			keys, visited = n.ks.keys(re)
			n.spend(visited)
		})
	})
	return keys, err
}

// Pipeline runs all ops back to back in one loop turn.
func (n *Node) Pipeline(ctx context.Context, ops []store.Operation) ([]store.Result, error) {
	results := make([]store.Result, len(ops))
	err := n.do(ctx, func() {
		for i, op := range ops {
			n.timed(op.Kind.Class(), func() {
				results[i] = n.exec(op)
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (n *Node) exec(op store.Operation) store.Result {
	if err := op.Validate(); err != nil {
		return store.Result{Err: err}
	}

	var res store.Result
	switch op.Kind {
	case store.OpSet:
		n.ks.set(op.Key, op.Value)
	case store.OpDelete:
		res.Int = n.ks.del(op.Key)
	case store.OpIncrBy:
		res.Int, res.Err = n.ks.incrBy(op.Key, op.Delta)
	case store.OpHIncrBy:
		res.Int, res.Err = n.ks.hincrBy(op.Key, op.Field, op.Delta)
	case store.OpGet:
		res.Str, res.Found, res.Err = n.ks.get(op.Key)
	case store.OpHGetAll:
		res.Fields, res.Found, res.Err = n.ks.hgetAll(op.Key)
	}
	return res
}

func (n *Node) Ping(ctx context.Context) error {
	return n.do(ctx, func() {
		n.timed(types.OpClassPing, func() {})
	})
}

// Stats reads counters without going through the loop.
func (n *Node) Stats(op types.OpClass) types.Counters {
	return n.stats.get(op)
}

func (n *Node) ResetStats() {
	n.stats.reset()
}

func (n *Node) isStopped() bool {
	select {
	case <-n.stopped:
		return true
	default:
		return false
	}
}
