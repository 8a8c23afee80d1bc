package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

// Config for an in-process cluster.
type Config struct {
	Addrs []string
	// KeyCost is slept per visited key inside SCAN and KEYS so that the
	// time a command holds its node is measurable with small key counts.
	KeyCost time.Duration
	// QueueSize bounds commands waiting for a node's loop.
	QueueSize int
}

// Cluster is a set of in-process nodes addressed like real ones. It
// implements store.Store.
type Cluster struct {
	nodes map[string]*Node
	addrs []string
}

var _ store.Store = (*Cluster)(nil)

func NewCluster(ctx context.Context, cfg Config) (*Cluster, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("memstore: no node addresses")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	matchers, err := newMatcherCache(256)
	if err != nil {
		return nil, err
	}

	c := &Cluster{nodes: make(map[string]*Node, len(cfg.Addrs))}
	for _, addr := range cfg.Addrs {
		if _, dup := c.nodes[addr]; dup {
			return nil, fmt.Errorf("memstore: duplicate node %s", addr)
		}
		n := newNode(addr, cfg.KeyCost, cfg.QueueSize, matchers)
		n.start(ctx)
		c.nodes[addr] = n
		c.addrs = append(c.addrs, addr)
	}
	sort.Strings(c.addrs)

	slog.Info("memstore cluster started", "nodes", c.addrs, "key_cost", cfg.KeyCost)
	return c, nil
}

// Addrs returns node addresses, sorted.
func (c *Cluster) Addrs() []string {
	out := make([]string, len(c.addrs))
	copy(out, c.addrs)
	return out
}

func (c *Cluster) Node(addr string) (*Node, bool) {
	n, ok := c.nodes[addr]
	return n, ok
}

func (c *Cluster) Close() {
	for _, n := range c.nodes {
		n.Stop()
	}
}

func (c *Cluster) node(target types.Partition) (*Node, error) {
	n, ok := c.nodes[target.Addr]
	if !ok {
		return nil, &nodeError{addr: target.Addr, err: store.ErrUnknownNode}
	}
	return n, nil
}

func (c *Cluster) ScanStep(ctx context.Context, target types.Partition, cursor types.Cursor, pattern string, hint int) (types.Cursor, []types.Key, error) {
	n, err := c.node(target)
	if err != nil {
		return 0, nil, err
	}
	return n.Scan(ctx, cursor, pattern, hint)
}

func (c *Cluster) FullEnumerate(ctx context.Context, target types.Partition, pattern string) ([]types.Key, error) {
	n, err := c.node(target)
	if err != nil {
		return nil, err
	}
	return n.Keys(ctx, pattern)
}

func (c *Cluster) PipelineExecute(ctx context.Context, target types.Partition, ops []store.Operation) ([]store.Result, error) {
	n, err := c.node(target)
	if err != nil {
		return nil, err
	}
	return n.Pipeline(ctx, ops)
}

func (c *Cluster) QueryStats(_ context.Context, target types.Partition, op types.OpClass) (types.Counters, error) {
	n, err := c.node(target)
	if err != nil {
		return types.Counters{}, err
	}
	if n.isStopped() {
		return types.Counters{}, n.unreachable()
	}
	return n.Stats(op), nil
}

func (c *Cluster) ResetStats(_ context.Context, target types.Partition) error {
	n, err := c.node(target)
	if err != nil {
		return err
	}
	if n.isStopped() {
		return n.unreachable()
	}
	n.ResetStats()
	return nil
}

func (c *Cluster) Ping(ctx context.Context, target types.Partition) error {
	n, err := c.node(target)
	if err != nil {
		return err
	}
	return n.Ping(ctx)
}

// nodeError is what a client sees when a node cannot be reached.
type nodeError struct {
	addr string
	err  error
}

func (e *nodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.addr, e.err)
}

func (e *nodeError) Unwrap() []error {
	return []error{dberrors.ErrTransient, e.err}
}
