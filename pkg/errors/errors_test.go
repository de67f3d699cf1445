package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{"empty store", ErrEmptyStore, http.StatusUnprocessableEntity},
		{"no eligible", fmt.Errorf("primary: %w", ErrNoEligibleRecords), http.StatusUnprocessableEntity},
		{"record not found", ErrRecordNotFound, http.StatusInternalServerError},
		{"dataset not found", ErrDatasetNotFound, http.StatusNotFound},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"cancelled", fmt.Errorf("draw: %w", ErrCancelled), StatusClientClosedRequest},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := Invalidf("numero_sorteado %q is not numeric", "12a")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
	require.Contains(t, err.Error(), `"12a"`)
}

func TestKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", Kind(nil))
	assert.Equal(t, "invalid_input", Kind(Invalidf("x")))
	assert.Equal(t, "no_eligible_records", Kind(fmt.Errorf("w: %w", ErrNoEligibleRecords)))
	assert.Equal(t, "record_not_found", Kind(ErrRecordNotFound))
	assert.Equal(t, "cancelled", Kind(ErrCancelled))
	assert.Equal(t, "internal", Kind(fmt.Errorf("boom")))
}
