package cluster

import (
	"sort"

	"keyscan/pkg/types"
)

// EvenSlots splits the slot space into contiguous, nearly equal ranges, one
// per node, the way a freshly created Redis Cluster does.
func EvenSlots(nodes []string) []SlotRange {
	sorted := uniqueSorted(nodes)
	if len(sorted) == 0 {
		return nil
	}

	res := make([]SlotRange, 0, len(sorted))
	per := types.SlotCount / len(sorted)
	extra := types.SlotCount % len(sorted)
	start := 0
	for i, n := range sorted {
		size := per
		if i < extra {
			size++
		}
		res = append(res, SlotRange{
			Start:   types.Slot(start),
			End:     types.Slot(start + size - 1),
			Primary: types.PrimaryAt(n),
		})
		start += size
	}
	return res
}

// RingSlots assigns every slot through the hash ring and merges adjacent
// slots with the same owner into one range.
func RingSlots(ring *HashRing) []SlotRange {
	var res []SlotRange
	for slot := 0; slot < types.SlotCount; slot++ {
		owner, ok := ring.GetNode(slotRingKey(slot))
		if !ok {
			return nil
		}
		if last := len(res) - 1; last >= 0 && res[last].Primary.Addr == owner && int(res[last].End) == slot-1 {
			res[last].End = types.Slot(slot)
			continue
		}
		res = append(res, SlotRange{
			Start:   types.Slot(slot),
			End:     types.Slot(slot),
			Primary: types.PrimaryAt(owner),
		})
	}
	return res
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
