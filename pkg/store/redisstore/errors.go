package redisstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/store"
)

// isTransport reports whether err came from the connection rather than
// from a command the server rejected.
func isTransport(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	var rerr redis.Error
	return !errors.As(err, &rerr)
}

// classify maps a failed call to the error taxonomy. Server replies keep
// their meaning, everything else is transient.
func classify(addr, call string, err error) error {
	if !isTransport(err) {
		if strings.Contains(err.Error(), "invalid cursor") {
			return fmt.Errorf("%s on %s: %w: %w", call, addr, dberrors.ErrInvalidCursor, err)
		}
		return fmt.Errorf("%s on %s: %w", call, addr, commandError(err))
	}
	return fmt.Errorf("%s on %s: %w: %w", call, addr, dberrors.ErrTransient, err)
}

// commandError maps server replies to store errors.
func commandError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return fmt.Errorf("%w: %w", store.ErrWrongType, err)
	case strings.Contains(msg, "not an integer"):
		return fmt.Errorf("%w: %w", store.ErrNotInteger, err)
	}
	return err
}
