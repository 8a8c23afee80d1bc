package stats

import (
	"context"
	"fmt"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

type primaryLister interface {
	Primaries() ([]types.Partition, error)
}

// Collector reads and clears server-side command counters per partition.
type Collector struct {
	src       store.StatsSource
	primaries primaryLister
}

func New(src store.StatsSource, primaries primaryLister) *Collector {
	return &Collector{src: src, primaries: primaries}
}

// Snapshot returns counters of op for every target. Partitions with no
// calls in the current window report zeros. No targets means all primaries.
func (c *Collector) Snapshot(ctx context.Context, op types.OpClass, targets []types.Partition) (map[types.Partition]types.Counters, error) {
	if op == "" {
		return nil, fmt.Errorf("%w: empty op class", dberrors.ErrInvalidArgument)
	}
	targets, err := c.targets(targets)
	if err != nil {
		return nil, err
	}

	out := make(map[types.Partition]types.Counters, len(targets))
	for _, t := range targets {
		counters, err := c.src.QueryStats(ctx, t, op)
		if err != nil {
			return nil, unreachable(t, err)
		}
		out[t] = counters
	}
	return out, nil
}

// Reset starts a new measurement window on every target.
func (c *Collector) Reset(ctx context.Context, targets []types.Partition) error {
	targets, err := c.targets(targets)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := c.src.ResetStats(ctx, t); err != nil {
			return unreachable(t, err)
		}
	}
	return nil
}

// Touched returns the partitions with at least one call.
func Touched(snapshot map[types.Partition]types.Counters) []types.Partition {
	var out []types.Partition
	for p, c := range snapshot {
		if c.Calls > 0 {
			out = append(out, p)
		}
	}
	return out
}

func (c *Collector) targets(targets []types.Partition) ([]types.Partition, error) {
	if len(targets) > 0 {
		return targets, nil
	}
	if c.primaries == nil {
		return nil, &dberrors.RoutingError{Kind: dberrors.ErrEmptyTopology}
	}
	return c.primaries.Primaries()
}

func unreachable(t types.Partition, err error) error {
	return &dberrors.StatsError{
		Kind:      dberrors.ErrPartitionUnreachable,
		Partition: t.Addr,
		Err:       err,
	}
}
