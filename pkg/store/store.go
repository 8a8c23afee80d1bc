package store

import (
	"context"

	"keyscan/pkg/types"
)

// Store is the boundary to the partitioned key-value store. Every call
// targets exactly one partition; fan-out is the caller's business.
type Store interface {
	// ScanStep runs one bounded enumeration step. hint is a work hint, the
	// number of returned keys may be smaller or larger.
	ScanStep(ctx context.Context, target types.Partition, cursor types.Cursor, pattern string, hint int) (types.Cursor, []types.Key, error)

	// FullEnumerate returns every matching key in one call. The partition
	// serves nothing else until it returns.
	FullEnumerate(ctx context.Context, target types.Partition, pattern string) ([]types.Key, error)

	// PipelineExecute sends ops as one round trip. Results line up with ops.
	PipelineExecute(ctx context.Context, target types.Partition, ops []Operation) ([]Result, error)

	QueryStats(ctx context.Context, target types.Partition, op types.OpClass) (types.Counters, error)
	ResetStats(ctx context.Context, target types.Partition) error
	Ping(ctx context.Context, target types.Partition) error
}

// Scanner is the part of Store the enumerator needs.
type Scanner interface {
	ScanStep(ctx context.Context, target types.Partition, cursor types.Cursor, pattern string, hint int) (types.Cursor, []types.Key, error)
	FullEnumerate(ctx context.Context, target types.Partition, pattern string) ([]types.Key, error)
}

// Pipeliner is the part of Store the batched mutator needs.
type Pipeliner interface {
	PipelineExecute(ctx context.Context, target types.Partition, ops []Operation) ([]Result, error)
}

// StatsSource is the part of Store the stats collector needs.
type StatsSource interface {
	QueryStats(ctx context.Context, target types.Partition, op types.OpClass) (types.Counters, error)
	ResetStats(ctx context.Context, target types.Partition) error
}
