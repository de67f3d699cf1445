// Package eligibility builds the predicates that decide whether a record may
// be selected at a given step of a draw.
package eligibility

import "github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"

// Predicate reports whether a record is eligible.
type Predicate func(r *record.Record) bool

// KeySet is a set of contact keys.
type KeySet map[string]struct{}

// NewKeySet builds a set from keys, ignoring empty strings.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		if k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

// Has reports whether key is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add inserts key.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// NotIn rejects records whose contact key belongs to any of the sets.
func NotIn(sets ...KeySet) Predicate {
	return func(r *record.Record) bool {
		for _, s := range sets {
			if s.Has(r.ContactKey) {
				return false
			}
		}
		return true
	}
}

// Below accepts numeric records whose value is strictly less than v.
func Below(v int64) Predicate {
	return func(r *record.Record) bool {
		rv, ok := r.Value()
		return ok && rv < v
	}
}

// Numeric accepts records that carry a comparable value.
func Numeric() Predicate {
	return func(r *record.Record) bool {
		_, ok := r.Value()
		return ok
	}
}

// All accepts a record only when every predicate does.
func All(preds ...Predicate) Predicate {
	return func(r *record.Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}
