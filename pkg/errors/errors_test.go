package errors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"parse", Parsef("unexpected %q", ")"), http.StatusBadRequest},
		{"config", Configf("bad field"), http.StatusBadRequest},
		{"wrapped config", fmt.Errorf("opening: %w", Configf("mismatch")), http.StatusBadRequest},
		{"explicit status", Newf(ErrParse, http.StatusUnprocessableEntity, "limit"), http.StatusUnprocessableEntity},
		{"locked", fmt.Errorf("%w: /var/index", ErrLocked), http.StatusConflict},
		{"not found", fmt.Errorf("%w: document 7", ErrNotFound), http.StatusNotFound},
		{"storage", Storage("read segment", io.ErrUnexpectedEOF), http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("%w: %w", ErrTimeout, errors.New("deadline")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestStorageWrapping(t *testing.T) {
	assert.NoError(t, Storage("noop", nil))

	err := Storage("write manifest", io.ErrShortWrite)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Same(t, err, Storage("again", err))
}

func TestAppErrorMessage(t *testing.T) {
	err := Parsef("unbalanced parenthesis at %d", 4)
	assert.Equal(t, "query parse error: unbalanced parenthesis at 4", err.Error())
	assert.ErrorIs(t, err, ErrParse)
}
