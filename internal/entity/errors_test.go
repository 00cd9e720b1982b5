package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"plain", ErrNotFound, KindNotFound},
		{"wrapped", fmt.Errorf("failed to load: %w", ErrEditWindowExpired), KindEditWindowExpired},
		{"sale failed wraps out of stock", fmt.Errorf("%w: %w", ErrSaleFailed, ErrOutOfStock), KindOutOfStock},
		{"sale failed alone", fmt.Errorf("%w: %w", ErrSaleFailed, errors.New("connection reset")), KindSaleFailed},
		{"insufficient wraps negative", fmt.Errorf("%w: %w", ErrInsufficientStock, ErrNegativeStock), KindInsufficientStock},
		{"unknown", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
