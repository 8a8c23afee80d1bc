package redisstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"keyscan/pkg/cluster"
	"keyscan/pkg/types"
)

// ClusterSlots reads the slot map from the first seed that answers
// CLUSTER SLOTS.
type ClusterSlots struct {
	store *Store
	seeds []string
}

var _ cluster.Source = (*ClusterSlots)(nil)

func NewClusterSlots(s *Store, seeds []string) *ClusterSlots {
	return &ClusterSlots{store: s, seeds: seeds}
}

func (c *ClusterSlots) Topology(ctx context.Context) (*cluster.Topology, error) {
	if len(c.seeds) == 0 {
		return nil, fmt.Errorf("cluster slots: no seed addresses")
	}

	var lastErr error
	for _, seed := range c.seeds {
		slots, err := c.store.client(seed).ClusterSlots(ctx).Result()
		if err != nil {
			slog.Warn("cluster slots failed", "seed", seed, "error", err)
			lastErr = classify(seed, "cluster slots", err)
			continue
		}
		return topologyFromSlots(slots)
	}
	return nil, lastErr
}

func topologyFromSlots(slots []redis.ClusterSlot) (*cluster.Topology, error) {
	ranges := make([]cluster.SlotRange, 0, len(slots))
	for _, s := range slots {
		if len(s.Nodes) == 0 {
			continue
		}
		r := cluster.SlotRange{
			Start:   types.Slot(s.Start),
			End:     types.Slot(s.End),
			Primary: types.PrimaryAt(s.Nodes[0].Addr),
		}
		for _, n := range s.Nodes[1:] {
			r.Replicas = append(r.Replicas, types.Partition{Addr: n.Addr, Role: types.Replica})
		}
		ranges = append(ranges, r)
	}
	return cluster.NewTopology(ranges)
}
