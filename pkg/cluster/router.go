package cluster

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/sharding"
	"keyscan/pkg/types"
)

// Mode tells the enumerator whether a pattern needs one partition or all.
type Mode int

const (
	ModeSingle Mode = iota + 1
	ModeFanout
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeFanout:
		return "fanout"
	default:
		return "unknown"
	}
}

// Resolution is the router's answer for a pattern.
type Resolution struct {
	Mode    Mode
	Targets []types.Partition
	HashTag string // set in ModeSingle
}

// Router resolves keys and patterns to partitions. It only selects targets
// and never talks to the store. The topology snapshot is swapped atomically,
// readers never block.
type Router struct {
	topo   atomic.Pointer[Topology]
	hasher sharding.KeyHasher
}

func NewRouter(topo *Topology) *Router {
	r := &Router{hasher: sharding.CRC16Hasher{}}
	if topo != nil {
		r.topo.Store(topo)
	}
	return r
}

// UpdateTopology replaces the snapshot; in-flight resolutions keep the old one.
func (r *Router) UpdateTopology(topo *Topology) {
	r.topo.Store(topo)
	slog.Info("[router] topology updated",
		"primaries", len(topo.Primaries()),
		"covered_slots", topo.CoveredSlots(),
	)
}

func (r *Router) Topology() *Topology {
	return r.topo.Load()
}

// ResolveForKey returns the primary owning the key's slot. The hash tag, if
// present, is the only part of the key that is hashed.
func (r *Router) ResolveForKey(key types.Key) (types.Partition, error) {
	topo := r.topo.Load()
	if topo.Empty() {
		return types.Partition{}, &dberrors.RoutingError{Kind: dberrors.ErrEmptyTopology, Key: key}
	}

	owner, ok := topo.Owner(r.hasher.SlotForKey(key))
	if !ok {
		return types.Partition{}, &dberrors.RoutingError{Kind: dberrors.ErrUnroutableKey, Key: key}
	}
	return owner, nil
}

// ResolveForPattern picks ModeSingle when a hash tag is given or can be read
// from the pattern's literal prefix, ModeFanout otherwise.
//
// A fan-out walk costs one full scan per partition even though each
// partition only holds its share of the matches.
func (r *Router) ResolveForPattern(pattern, hashTag string) (Resolution, error) {
	if strings.ContainsAny(hashTag, "{}") {
		return Resolution{}, fmt.Errorf("%w: hash tag %q must not contain braces", dberrors.ErrInvalidArgument, hashTag)
	}
	tag := hashTag
	if own, ok := sharding.PatternHashTag(pattern); ok {
		// явный тег не должен спорить с тегом из шаблона
		if tag != "" && tag != own {
			return Resolution{}, fmt.Errorf("%w: hash tag %q conflicts with %q in pattern %q",
				dberrors.ErrInvalidArgument, hashTag, own, pattern)
		}
		tag = own
	}

	if tag != "" {
		owner, err := r.ResolveForKey(sharding.TagKey(tag))
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Mode: ModeSingle, Targets: []types.Partition{owner}, HashTag: tag}, nil
	}

	primaries, err := r.Primaries()
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Mode: ModeFanout, Targets: primaries}, nil
}

// Primaries lists every primary of the current snapshot.
func (r *Router) Primaries() ([]types.Partition, error) {
	topo := r.topo.Load()
	if topo.Empty() {
		return nil, &dberrors.RoutingError{Kind: dberrors.ErrEmptyTopology}
	}
	return topo.Primaries(), nil
}
