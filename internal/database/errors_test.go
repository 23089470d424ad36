package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      ErrorClass
		retryable bool
	}{
		{"nil", nil, ErrorClassPermanent, false},
		{"plain", errors.New("boom"), ErrorClassPermanent, false},
		{"serialization", &pgconn.PgError{Code: "40001"}, ErrorClassSerialization, true},
		{"deadlock wrapped", fmt.Errorf("save request: %w", &pgconn.PgError{Code: "40P01"}), ErrorClassDeadlock, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, ErrorClassTransient, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrorClassPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
