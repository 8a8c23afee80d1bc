package store

import "errors"

var (
	ErrWrongType   = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	ErrNotInteger  = errors.New("ERR value is not an integer or out of range")
	ErrUnknownNode = errors.New("unknown node")
	ErrNodeStopped = errors.New("node stopped")
)

// FirstError returns the first per-command error of a pipeline result.
func FirstError(results []Result) (int, error) {
	for i, r := range results {
		if r.Err != nil {
			return i, r.Err
		}
	}
	return -1, nil
}
