package cluster

import (
	"context"
	"fmt"
)

// Source produces topology snapshots. Refresh happens out of band: callers
// fetch a snapshot and hand it to Router.UpdateTopology.
type Source interface {
	Topology(ctx context.Context) (*Topology, error)
}

// StaticSource spreads the slot space evenly over a fixed node list.
type StaticSource struct {
	Addrs []string
}

func (s StaticSource) Topology(_ context.Context) (*Topology, error) {
	if len(s.Addrs) == 0 {
		return nil, fmt.Errorf("static topology: no addresses")
	}
	return NewTopology(EvenSlots(s.Addrs))
}

// Bootstrap fetches the first snapshot and builds a router on it.
func Bootstrap(ctx context.Context, src Source) (*Router, error) {
	topo, err := src.Topology(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap topology: %w", err)
	}
	r := NewRouter(nil)
	r.UpdateTopology(topo)
	return r, nil
}
