// Package resolver finds the record closest to a target value: the exact
// value if present, else the closest inferior one, else (optionally) the
// global minimum.
package resolver

import (
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/eligibility"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
)

// Policy controls what happens when no eligible value is at or below the
// target.
type Policy int

const (
	// NoWrap reports NotFound. Used by walk steps.
	NoWrap Policy = iota
	// WrapAround falls back to the minimum eligible value. Used by primary
	// resolution.
	WrapAround
)

func (p Policy) String() string {
	if p == WrapAround {
		return "wrap_around"
	}
	return "no_wrap"
}

// Match says how a resolution was satisfied.
type Match int

const (
	NotFound Match = iota
	Exact
	ClosestInferior
	Wrapped
)

func (m Match) String() string {
	switch m {
	case Exact:
		return "exact"
	case ClosestInferior:
		return "closest_inferior"
	case Wrapped:
		return "wrapped"
	default:
		return "not_found"
	}
}

// Resolve scans candidates once in input order. Among equal values the
// earliest candidate wins, which keeps results stable for a given input.
// A nil eligible predicate accepts every numeric candidate.
func Resolve(candidates []record.Record, target int64, eligible eligibility.Predicate, policy Policy) (record.Record, Match) {
	exact, below, lowest := -1, -1, -1
	var belowValue, lowestValue int64

	for i := range candidates {
		c := &candidates[i]
		v, ok := c.Value()
		if !ok {
			continue
		}
		if eligible != nil && !eligible(c) {
			continue
		}
		switch {
		case v == target:
			if exact < 0 {
				exact = i
			}
		case v < target:
			if below < 0 || v > belowValue {
				below, belowValue = i, v
			}
		}
		if lowest < 0 || v < lowestValue {
			lowest, lowestValue = i, v
		}
	}

	switch {
	case exact >= 0:
		return candidates[exact], Exact
	case below >= 0:
		return candidates[below], ClosestInferior
	case policy == WrapAround && lowest >= 0:
		return candidates[lowest], Wrapped
	default:
		return record.Record{}, NotFound
	}
}
