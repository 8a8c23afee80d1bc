package service

import (
	"fmt"
	"strings"
	"time"

	"keyscan/pkg/dberrors"
	"keyscan/pkg/sharding"
)

// GroupLayout decides whether a group's keys share a hash tag.
type GroupLayout string

const (
	// Tagged: ns:user:{id}:n. All keys of a group live in one slot.
	Tagged GroupLayout = "tagged"
	// Hierarchical: ns:user:id:n. Keys of a group spread over all slots.
	Hierarchical GroupLayout = "hierarchical"
)

func ParseGroupLayout(s string) (GroupLayout, error) {
	switch l := GroupLayout(s); l {
	case Tagged, Hierarchical:
		return l, nil
	case "":
		return Tagged, nil
	}
	return "", fmt.Errorf("%w: group layout %q", dberrors.ErrInvalidArgument, s)
}

// RecordLayout decides how timestamped counters are stored.
type RecordLayout string

const (
	// Flat: one string counter per hour.
	Flat RecordLayout = "flat"
	// Bucketed: one hash per day, a field per hour.
	Bucketed RecordLayout = "bucketed"
)

func ParseRecordLayout(s string) (RecordLayout, error) {
	switch l := RecordLayout(s); l {
	case Flat, Bucketed:
		return l, nil
	}
	return "", fmt.Errorf("%w: record layout %q", dberrors.ErrInvalidArgument, s)
}

const (
	dayLayout  = "20060102"
	hourLayout = "2006010215"
)

type keyspace struct {
	ns string
}

func (k keyspace) groupKey(l GroupLayout, id string, n int) string {
	if l == Tagged {
		return fmt.Sprintf("%s:user:%s:%d", k.ns, sharding.TagKey(id), n)
	}
	return fmt.Sprintf("%s:user:%s:%d", k.ns, id, n)
}

func (k keyspace) groupPattern(l GroupLayout, id string) string {
	if l == Tagged {
		return fmt.Sprintf("%s:user:%s:*", k.ns, sharding.TagKey(id))
	}
	return fmt.Sprintf("%s:user:%s:*", k.ns, id)
}

func (k keyspace) recordKind(l RecordLayout) string {
	if l == Bucketed {
		return "hset"
	}
	return "string"
}

// recordKey returns the key and, for Bucketed, the hash field.
func (k keyspace) recordKey(l RecordLayout, unit string, at time.Time) (string, string) {
	at = at.UTC()
	if l == Bucketed {
		return fmt.Sprintf("%s:timescale:%s:hset:%s", k.ns, unit, at.Format(dayLayout)), at.Format("15")
	}
	return fmt.Sprintf("%s:timescale:%s:string:%s", k.ns, unit, at.Format(hourLayout)), ""
}

func (k keyspace) recordPattern(l RecordLayout, unit string) string {
	return fmt.Sprintf("%s:timescale:%s:%s:*", k.ns, unit, k.recordKind(l))
}

// recordSuffix returns the date part of a record key.
func recordSuffix(key string) string {
	return key[strings.LastIndexByte(key, ':')+1:]
}

// checkName rejects identifiers that would turn into glob syntax or break
// the hash tag once placed into a key.
func checkName(what, v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty %s", dberrors.ErrInvalidArgument, what)
	}
	if strings.ContainsAny(v, "*?[]{}\\:") {
		return fmt.Errorf("%w: %s %q contains reserved characters", dberrors.ErrInvalidArgument, what, v)
	}
	return nil
}
