// Package partition indexes the distinct series present in a record store and
// resolves a drawn series to the nearest available one.
package partition

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
)

type entry struct {
	id    string
	value int64
}

// Index is a read-only set of partitions ordered by integer value.
type Index struct {
	ids     map[string]struct{}
	ordered []entry
}

// New derives the partition index from a store.
func New(store *record.Store) *Index {
	ids := store.Partitions()
	idx := &Index{
		ids:     ids,
		ordered: make([]entry, 0, len(ids)),
	}
	for id := range ids {
		v, ok := record.ParseNumber(id)
		if !ok {
			continue
		}
		idx.ordered = append(idx.ordered, entry{id: id, value: v})
	}
	sort.Slice(idx.ordered, func(i, j int) bool {
		if idx.ordered[i].value != idx.ordered[j].value {
			return idx.ordered[i].value < idx.ordered[j].value
		}
		return idx.ordered[i].id < idx.ordered[j].id
	})
	return idx
}

// Len returns the number of distinct partitions.
func (x *Index) Len() int {
	return len(x.ids)
}

// Distinct returns the partition identifiers in ascending integer order.
func (x *Index) Distinct() []string {
	out := make([]string, 0, len(x.ordered))
	for _, e := range x.ordered {
		out = append(out, e.id)
	}
	return out
}

// Contains reports whether p is one of the indexed partitions.
func (x *Index) Contains(p string) bool {
	_, ok := x.ids[p]
	return ok
}

// Resolve maps a requested partition to an available one: the requested
// partition itself if present, else the greatest partition below it, else the
// greatest partition overall. It returns "" only for an empty index.
func (x *Index) Resolve(requested string) string {
	if x.Contains(requested) {
		return requested
	}
	if len(x.ordered) == 0 {
		return ""
	}
	if below, ok := x.Below(requested); ok {
		return below
	}
	return x.ordered[len(x.ordered)-1].id
}

// Below returns the greatest partition whose integer value is strictly less
// than p's.
func (x *Index) Below(p string) (string, bool) {
	target, ok := record.ParseNumber(p)
	if !ok {
		return "", false
	}
	i := sort.Search(len(x.ordered), func(i int) bool {
		return x.ordered[i].value >= target
	})
	if i == 0 {
		return "", false
	}
	return x.ordered[i-1].id, true
}
