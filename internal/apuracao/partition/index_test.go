package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
)

func storeWith(numbers ...string) *record.Store {
	rows := make([]record.Row, 0, len(numbers))
	for i, n := range numbers {
		rows = append(rows, record.Row{
			record.ColumnNumber:     n,
			record.ColumnContactKey: string(rune('A' + i)),
		})
	}
	return record.NewStore(rows, 2)
}

func TestDistinct(t *testing.T) {
	t.Parallel()

	idx := New(storeWith("4700001", "0512345", "4612345", "4799999"))
	require.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"05", "46", "47"}, idx.Distinct())
}

func TestResolve(t *testing.T) {
	t.Parallel()

	idx := New(storeWith("4700001", "4612345", "0512345"))

	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"exact match", "46", "46"},
		{"greatest below", "48", "47"},
		{"between partitions", "30", "05"},
		{"below every partition falls back to maximum", "02", "47"},
		{"unparseable falls back to maximum", "ab", "47"},
		{"zero padded result", "06", "05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.Resolve(tt.requested))
		})
	}
}

func TestResolveEmpty(t *testing.T) {
	t.Parallel()

	idx := New(record.NewStore(nil, 2))
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, "", idx.Resolve("47"))
}

func TestBelow(t *testing.T) {
	t.Parallel()

	idx := New(storeWith("4700001", "4612345", "4412345"))

	p, ok := idx.Below("47")
	require.True(t, ok)
	assert.Equal(t, "46", p)

	p, ok = idx.Below("46")
	require.True(t, ok)
	assert.Equal(t, "44", p)

	_, ok = idx.Below("44")
	assert.False(t, ok)
}
