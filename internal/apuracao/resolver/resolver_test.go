package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/eligibility"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
)

func candidates() []record.Record {
	return record.NewStore([]record.Row{
		{record.ColumnNumber: "45660", record.ColumnContactKey: "B"},
		{record.ColumnNumber: "45668", record.ColumnContactKey: "A"},
		{record.ColumnNumber: "45650", record.ColumnContactKey: "C"},
		{record.ColumnNumber: "45660", record.ColumnContactKey: "D"},
		{record.ColumnNumber: "junk", record.ColumnContactKey: "E"},
		{record.ColumnNumber: "45668", record.ColumnContactKey: "F"},
	}, 0).Records()
}

func TestResolveExact(t *testing.T) {
	t.Parallel()

	got, m := Resolve(candidates(), 45668, nil, NoWrap)
	require.Equal(t, Exact, m)
	assert.Equal(t, "A", got.ContactKey, "first exact match in input order wins")
}

func TestResolveExactSkipsIneligible(t *testing.T) {
	t.Parallel()

	got, m := Resolve(candidates(), 45668, eligibility.NotIn(eligibility.NewKeySet("A")), NoWrap)
	require.Equal(t, Exact, m)
	assert.Equal(t, "F", got.ContactKey)
}

func TestResolveClosestInferior(t *testing.T) {
	t.Parallel()

	got, m := Resolve(candidates(), 45665, nil, NoWrap)
	require.Equal(t, ClosestInferior, m)
	assert.Equal(t, "B", got.ContactKey, "ties between equal values keep input order")
	assert.Equal(t, "45660", got.Number)
}

func TestResolveWrapAround(t *testing.T) {
	t.Parallel()

	got, m := Resolve(candidates(), 100, nil, WrapAround)
	require.Equal(t, Wrapped, m)
	assert.Equal(t, "C", got.ContactKey)

	_, m = Resolve(candidates(), 100, nil, NoWrap)
	assert.Equal(t, NotFound, m)
}

func TestResolveNothingEligible(t *testing.T) {
	t.Parallel()

	none := func(*record.Record) bool { return false }
	_, m := Resolve(candidates(), 45668, none, WrapAround)
	assert.Equal(t, NotFound, m)

	_, m = Resolve(nil, 1, nil, WrapAround)
	assert.Equal(t, NotFound, m)
}

func TestMatchString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "exact", Exact.String())
	assert.Equal(t, "wrapped", Wrapped.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "wrap_around", WrapAround.String())
}
