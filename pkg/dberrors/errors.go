package dberrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("keyscan: invalid argument")

	ErrEmptyTopology = errors.New("keyscan: empty topology")
	ErrUnroutableKey = errors.New("keyscan: unroutable key")

	ErrTransient     = errors.New("keyscan: transient store error")
	ErrInvalidCursor = errors.New("keyscan: invalid cursor")

	ErrFlushFailed      = errors.New("keyscan: batch flush failed")
	ErrInvalidOperation = errors.New("keyscan: invalid operation")

	ErrPartitionUnreachable = errors.New("keyscan: partition unreachable")
)

// RoutingError is returned by the partition router.
type RoutingError struct {
	Kind error // ErrEmptyTopology or ErrUnroutableKey
	Key  string
}

func (e *RoutingError) Error() string {
	if e.Key == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: key=%q", e.Kind, e.Key)
}

func (e *RoutingError) Unwrap() error { return e.Kind }

// EnumerationError aborts a lazy key enumeration. The cursor of the failed
// walk is discarded.
type EnumerationError struct {
	Kind      error // ErrTransient or ErrInvalidCursor
	Partition string
	Cursor    uint64
	Err       error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("%s: partition=%s cursor=%d: %v", e.Kind, e.Partition, e.Cursor, e.Err)
}

func (e *EnumerationError) Unwrap() []error { return causes(e.Kind, e.Err) }

// MutationError reports a failed batch together with the number of
// operations applied before it, so the caller can resume from that offset.
type MutationError struct {
	Kind       error // ErrFlushFailed or ErrInvalidOperation
	BatchIndex int
	Applied    int
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s: batch=%d applied=%d: %v", e.Kind, e.BatchIndex, e.Applied, e.Err)
}

func (e *MutationError) Unwrap() []error { return causes(e.Kind, e.Err) }

// StatsError is returned when counters cannot be read or reset.
type StatsError struct {
	Kind      error // ErrPartitionUnreachable
	Partition string
	Err       error
}

func (e *StatsError) Error() string {
	return fmt.Sprintf("%s: partition=%s: %v", e.Kind, e.Partition, e.Err)
}

func (e *StatsError) Unwrap() []error { return causes(e.Kind, e.Err) }

// IsClientError reports whether err was caused by malformed caller input
// rather than by the store or the topology.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrUnroutableKey)
}

// IsRetryable reports whether err is worth retrying after a pause.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrPartitionUnreachable) ||
		errors.Is(err, ErrFlushFailed) ||
		errors.Is(err, ErrEmptyTopology)
}

// AppliedCount extracts partial progress from a mutation error.
func AppliedCount(err error) (int, bool) {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Applied, true
	}
	return 0, false
}

func causes(kind, err error) []error {
	if err == nil {
		return []error{kind}
	}
	return []error{kind, err}
}
