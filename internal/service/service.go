package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"keyscan/pkg/batch"
	"keyscan/pkg/cluster"
	"keyscan/pkg/dberrors"
	"keyscan/pkg/iterator"
	"keyscan/pkg/metrics"
	"keyscan/pkg/scan"
	"keyscan/pkg/stats"
	"keyscan/pkg/store"
	"keyscan/pkg/types"
)

// Context holds what every operation needs. Built once at startup and
// passed down explicitly.
type Context struct {
	Router     *cluster.Router
	Store      store.Store
	Enumerator *scan.Enumerator
	Mutator    *batch.Mutator
	Stats      *stats.Collector
	Metrics    metrics.Collector
}

func NewContext(router *cluster.Router, st store.Store, m metrics.Collector) *Context {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Context{
		Router:     router,
		Store:      st,
		Enumerator: scan.New(st),
		Mutator:    batch.NewMutator(st),
		Stats:      stats.New(st, router),
		Metrics:    m,
	}
}

type Options struct {
	Namespace  string
	Hint       int
	Concurrent bool
	BatchSize  int
}

type Service struct {
	c    *Context
	opts Options
	keys keyspace
}

func New(c *Context, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &Service{c: c, opts: opts, keys: keyspace{ns: opts.Namespace}}
}

// CountMode selects how keys are enumerated.
type CountMode string

const (
	// ModeScan walks partitions step by step.
	ModeScan CountMode = "scan"
	// ModeKeys runs one blocking KEYS per partition.
	ModeKeys CountMode = "keys"
)

func ParseCountMode(s string) (CountMode, error) {
	switch m := CountMode(s); m {
	case ModeScan, ModeKeys:
		return m, nil
	case "":
		return ModeScan, nil
	}
	return "", fmt.Errorf("%w: count mode %q", dberrors.ErrInvalidArgument, s)
}

type CountResult struct {
	Pattern string
	Count   int
	Mode    CountMode
	Routing cluster.Mode
	Targets []types.Partition
}

// CountKeys counts keys matching pattern. hashTag, when set, pins the walk
// to the owner of that tag.
func (s *Service) CountKeys(ctx context.Context, pattern, hashTag string, mode CountMode) (CountResult, error) {
	res := CountResult{Pattern: pattern, Mode: mode}
	if pattern == "" {
		return res, fmt.Errorf("%w: empty pattern", dberrors.ErrInvalidArgument)
	}

	resolution, err := s.c.Router.ResolveForPattern(pattern, hashTag)
	if err != nil {
		return res, err
	}
	res.Routing, res.Targets = resolution.Mode, resolution.Targets

	switch mode {
	case ModeKeys:
		keys, err := s.c.Enumerator.Full(ctx, pattern, resolution.Targets)
		if err != nil {
			return res, err
		}
		res.Count = len(keys)
	case ModeScan:
		n, err := scan.Count(s.enumerate(ctx, pattern, resolution.Targets))
		if err != nil {
			return res, err
		}
		res.Count = n
	default:
		return res, fmt.Errorf("%w: count mode %q", dberrors.ErrInvalidArgument, mode)
	}

	s.c.Metrics.IncCounter(metrics.KeysEnumerated, map[string]string{"mode": string(mode)}, float64(res.Count))
	slog.Debug("keys counted",
		"pattern", pattern,
		"mode", mode,
		"routing", res.Routing,
		"targets", len(res.Targets),
		"count", res.Count,
	)
	return res, nil
}

func (s *Service) enumerate(ctx context.Context, pattern string, targets []types.Partition) iter.Seq2[types.Key, error] {
	if s.opts.Concurrent && len(targets) > 1 {
		return s.c.Enumerator.EnumerateConcurrent(ctx, pattern, targets, s.opts.Hint)
	}
	return s.c.Enumerator.Enumerate(ctx, pattern, targets, s.opts.Hint)
}

// DeleteKeys deletes every key matching pattern. Keys are deleted while the
// walk goes on, a batch at a time. On failure the returned result tells how
// many deletes were applied.
func (s *Service) DeleteKeys(ctx context.Context, pattern, hashTag string) (batch.Result, error) {
	if pattern == "" {
		return batch.Result{}, fmt.Errorf("%w: empty pattern", dberrors.ErrInvalidArgument)
	}
	resolution, err := s.c.Router.ResolveForPattern(pattern, hashTag)
	if err != nil {
		return batch.Result{}, err
	}

	var walkErr error
	ops := func(yield func(store.Operation) bool) {
		for key, err := range s.c.Enumerator.Enumerate(ctx, pattern, resolution.Targets, s.opts.Hint) {
			if err != nil {
				walkErr = err
				return
			}
			if !yield(store.Delete(key)) {
				return
			}
		}
	}

	var res batch.Result
	if resolution.Mode == cluster.ModeSingle {
		res, err = s.c.Mutator.Apply(ctx, resolution.Targets[0], ops, s.opts.BatchSize)
	} else {
		res, err = s.c.Mutator.ApplyRouted(ctx, s.c.Router, ops, s.opts.BatchSize)
	}
	if err == nil {
		err = walkErr
	}
	s.observeApplied("del", res)
	if err != nil {
		slog.Warn("delete by pattern failed", "pattern", pattern, "applied", res.Applied, "error", err)
		return res, err
	}
	slog.Info("keys deleted", "pattern", pattern, "routing", resolution.Mode, "deleted", res.Applied)
	return res, nil
}

// SeedGroups writes perGroup counters for each group id.
func (s *Service) SeedGroups(ctx context.Context, layout GroupLayout, ids []string, perGroup int) (batch.Result, error) {
	if len(ids) == 0 || perGroup <= 0 {
		return batch.Result{}, fmt.Errorf("%w: need group ids and a positive per-group count", dberrors.ErrInvalidArgument)
	}
	for _, id := range ids {
		if err := checkName("group id", id); err != nil {
			return batch.Result{}, err
		}
	}

	ops := func(yield func(store.Operation) bool) {
		for _, id := range ids {
			for n := 0; n < perGroup; n++ {
				if !yield(store.IncrBy(s.keys.groupKey(layout, id, n), 1)) {
					return
				}
			}
		}
	}

	res, err := s.c.Mutator.ApplyRouted(ctx, s.c.Router, ops, s.opts.BatchSize)
	s.observeApplied("incrby", res)
	if err != nil {
		return res, err
	}
	slog.Info("groups seeded", "layout", layout, "groups", len(ids), "per_group", perGroup, "flushes", res.Flushes)
	return res, nil
}

// CountGroup counts the keys of one group. The tagged layout walks a single
// partition, the hierarchical one walks all of them.
func (s *Service) CountGroup(ctx context.Context, layout GroupLayout, id string) (CountResult, error) {
	if err := checkName("group id", id); err != nil {
		return CountResult{}, err
	}
	return s.CountKeys(ctx, s.keys.groupPattern(layout, id), "", ModeScan)
}

// Record is one event to be counted in its hour.
type Record struct {
	Unit string
	At   time.Time
}

// WriteRecords increments the hourly counter of every record.
func (s *Service) WriteRecords(ctx context.Context, layout RecordLayout, records []Record) (batch.Result, error) {
	if len(records) == 0 {
		return batch.Result{}, fmt.Errorf("%w: no records", dberrors.ErrInvalidArgument)
	}
	for _, r := range records {
		if err := checkName("unit", r.Unit); err != nil {
			return batch.Result{}, err
		}
	}

	ops := func(yield func(store.Operation) bool) {
		for _, r := range records {
			key, field := s.keys.recordKey(layout, r.Unit, r.At)
			op := store.IncrBy(key, 1)
			if layout == Bucketed {
				op = store.HIncrBy(key, field, 1)
			}
			if !yield(op) {
				return
			}
		}
	}

	res, err := s.c.Mutator.ApplyRouted(ctx, s.c.Router, ops, s.opts.BatchSize)
	s.observeApplied(string(layout), res)
	return res, err
}

// DayCounts maps YYYYMMDD -> HH -> count.
type DayCounts map[string]map[string]int64

// ReadRecords collects the counters of unit written under layout.
func (s *Service) ReadRecords(ctx context.Context, layout RecordLayout, unit string) (DayCounts, error) {
	if err := checkName("unit", unit); err != nil {
		return nil, err
	}
	pattern := s.keys.recordPattern(layout, unit)
	targets, err := s.c.Router.Primaries()
	if err != nil {
		return nil, err
	}

	keys, err := iterator.Collect(s.c.Enumerator.Iterator(ctx, pattern, targets, s.opts.Hint))
	if err != nil {
		return nil, err
	}

	byOwner := make(map[types.Partition][]types.Key)
	for _, key := range keys {
		owner, err := s.c.Router.ResolveForKey(key)
		if err != nil {
			return nil, err
		}
		byOwner[owner] = append(byOwner[owner], key)
	}

	out := make(DayCounts)
	for owner, keys := range byOwner {
		slices.Sort(keys)
		keys = slices.Compact(keys)
		for chunk := range slices.Chunk(keys, s.opts.BatchSize) {
			if err := s.readChunk(ctx, owner, layout, chunk, out); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Service) readChunk(ctx context.Context, owner types.Partition, layout RecordLayout, keys []types.Key, out DayCounts) error {
	ops := make([]store.Operation, len(keys))
	for i, k := range keys {
		if layout == Bucketed {
			ops[i] = store.HGetAll(k)
		} else {
			ops[i] = store.Get(k)
		}
	}

	results, err := s.c.Store.PipelineExecute(ctx, owner, ops)
	if err != nil {
		return fmt.Errorf("read records on %s: %w", owner, err)
	}

	for i, r := range results {
		if r.Err != nil {
			return fmt.Errorf("read %s: %w", keys[i], r.Err)
		}
		if !r.Found {
			continue // удалён между SCAN и GET
		}
		suffix := recordSuffix(keys[i])
		if layout == Bucketed {
			for hour, v := range r.Fields {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return fmt.Errorf("read %s[%s]: %w", keys[i], hour, store.ErrNotInteger)
				}
				addCount(out, suffix, hour, n)
			}
			continue
		}
		if len(suffix) != len(hourLayout) {
			continue
		}
		n, err := strconv.ParseInt(r.Str, 10, 64)
		if err != nil {
			return fmt.Errorf("read %s: %w", keys[i], store.ErrNotInteger)
		}
		addCount(out, suffix[:len(dayLayout)], suffix[len(dayLayout):], n)
	}
	return nil
}

func addCount(out DayCounts, day, hour string, n int64) {
	hours, ok := out[day]
	if !ok {
		hours = make(map[string]int64)
		out[day] = hours
	}
	hours[hour] += n
}

// Ping pings every primary and returns the round trip per partition.
func (s *Service) Ping(ctx context.Context) (map[string]time.Duration, error) {
	primaries, err := s.c.Router.Primaries()
	if err != nil {
		return nil, err
	}
	s.c.Metrics.SetGauge(metrics.TopologyPrimaries, nil, float64(len(primaries)))

	out := make(map[string]time.Duration, len(primaries))
	for _, p := range primaries {
		start := time.Now()
		if err := s.c.Store.Ping(ctx, p); err != nil {
			return out, fmt.Errorf("ping %s: %w: %w", p, dberrors.ErrPartitionUnreachable, err)
		}
		d := time.Since(start)
		out[p.Addr] = d
		s.c.Metrics.ObserveHistogram(metrics.PartitionPingSecond, map[string]string{"partition": p.Addr}, d.Seconds())
	}
	return out, nil
}

// Stats returns per-partition counters of op for all primaries.
func (s *Service) Stats(ctx context.Context, op types.OpClass) (map[types.Partition]types.Counters, error) {
	return s.c.Stats.Snapshot(ctx, op, nil)
}

func (s *Service) ResetStats(ctx context.Context) error {
	if err := s.c.Stats.Reset(ctx, nil); err != nil {
		return err
	}
	slog.Info("partition stats reset")
	return nil
}

func (s *Service) observeApplied(kind string, res batch.Result) {
	if res.Applied > 0 {
		s.c.Metrics.IncCounter(metrics.OpsApplied, map[string]string{"kind": kind}, float64(res.Applied))
	}
}
