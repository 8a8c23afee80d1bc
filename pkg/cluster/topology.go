package cluster

import (
	"fmt"
	"sort"

	"keyscan/pkg/types"
)

// SlotRange assigns the inclusive slot interval [Start, End] to a primary.
type SlotRange struct {
	Start    types.Slot
	End      types.Slot
	Primary  types.Partition
	Replicas []types.Partition
}

// Topology is an immutable slot -> partition map. It is never modified after
// NewTopology returns, so a snapshot can be shared by concurrent callers.
type Topology struct {
	ranges    []SlotRange
	primaries []types.Partition
}

// NewTopology validates and indexes the slot ranges. Ranges must not overlap;
// gaps are allowed and show up as unroutable slots.
func NewTopology(ranges []SlotRange) (*Topology, error) {
	rs := make([]SlotRange, len(ranges))
	copy(rs, ranges)
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	seen := make(map[string]struct{})
	var primaries []types.Partition
	for i, r := range rs {
		if r.Start > r.End || int(r.End) >= types.SlotCount {
			return nil, fmt.Errorf("invalid slot range %d-%d", r.Start, r.End)
		}
		if i > 0 && r.Start <= rs[i-1].End {
			return nil, fmt.Errorf("slot range %d-%d overlaps %d-%d", r.Start, r.End, rs[i-1].Start, rs[i-1].End)
		}
		if r.Primary.Addr == "" {
			return nil, fmt.Errorf("slot range %d-%d has no primary", r.Start, r.End)
		}
		rs[i].Primary.Role = types.Primary
		if _, ok := seen[r.Primary.Addr]; !ok {
			seen[r.Primary.Addr] = struct{}{}
			primaries = append(primaries, rs[i].Primary)
		}
	}
	sort.Slice(primaries, func(i, j int) bool { return primaries[i].Addr < primaries[j].Addr })

	return &Topology{ranges: rs, primaries: primaries}, nil
}

// Owner returns the primary owning the slot.
func (t *Topology) Owner(slot types.Slot) (types.Partition, bool) {
	if t == nil {
		return types.Partition{}, false
	}
	i := sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].End >= slot })
	if i == len(t.ranges) || t.ranges[i].Start > slot {
		return types.Partition{}, false
	}
	return t.ranges[i].Primary, true
}

// Primaries returns the distinct primaries sorted by address.
func (t *Topology) Primaries() []types.Partition {
	if t == nil {
		return nil
	}
	out := make([]types.Partition, len(t.primaries))
	copy(out, t.primaries)
	return out
}

func (t *Topology) Ranges() []SlotRange {
	if t == nil {
		return nil
	}
	out := make([]SlotRange, len(t.ranges))
	copy(out, t.ranges)
	return out
}

func (t *Topology) Empty() bool {
	return t == nil || len(t.primaries) == 0
}

// CoveredSlots counts slots that have an owner.
func (t *Topology) CoveredSlots() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, r := range t.ranges {
		n += int(r.End) - int(r.Start) + 1
	}
	return n
}
