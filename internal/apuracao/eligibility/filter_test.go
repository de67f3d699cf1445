package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
)

func records() []record.Record {
	return record.NewStore([]record.Row{
		{record.ColumnNumber: "100", record.ColumnContactKey: "A"},
		{record.ColumnNumber: "50", record.ColumnContactKey: "B"},
		{record.ColumnNumber: "x", record.ColumnContactKey: "C"},
	}, 0).Records()
}

func TestNotIn(t *testing.T) {
	t.Parallel()

	recs := records()
	used := NewKeySet("A")
	ignored := NewKeySet("C", "")
	p := NotIn(used, ignored)

	assert.False(t, p(&recs[0]))
	assert.True(t, p(&recs[1]))
	assert.False(t, p(&recs[2]))
	assert.Len(t, ignored, 1, "empty keys are dropped")
}

func TestNumericPredicates(t *testing.T) {
	t.Parallel()

	recs := records()

	assert.True(t, Below(101)(&recs[0]))
	assert.False(t, Below(100)(&recs[0]))
	assert.False(t, Below(1000)(&recs[2]), "non-numeric records never match")
	assert.True(t, Numeric()(&recs[0]))
	assert.False(t, Numeric()(&recs[2]))
}

func TestAll(t *testing.T) {
	t.Parallel()

	recs := records()
	p := All(Below(100), NotIn(NewKeySet("A")))

	assert.False(t, p(&recs[0]))
	assert.True(t, p(&recs[1]))
	assert.True(t, All()(&recs[2]), "an empty conjunction accepts everything")
}
