package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"serialization": {err: &pgconn.PgError{Code: "40001"}, want: true},
		"deadlock":      {err: &pgconn.PgError{Code: "40P01"}, want: true},
		"lock timeout":  {err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "55P03"}), want: true},
		"unique":        {err: &pgconn.PgError{Code: "23505"}, want: false},
		"plain":         {err: errors.New("boom"), want: false},
		"nil":           {err: nil, want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestUniqueViolation(t *testing.T) {
	name, ok := UniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "sales_invoice_number_key"}))
	require.True(t, ok)
	require.Equal(t, "sales_invoice_number_key", name)

	_, ok = UniqueViolation(errors.New("other"))
	require.False(t, ok)
}

func TestWithRetryRetriesContention(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetryStopsOnDomainError(t *testing.T) {
	domainErr := errors.New("insufficient stock")
	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond}, func(context.Context) error {
		calls++
		return domainErr
	})
	require.ErrorIs(t, err, domainErr)
	require.Equal(t, 1, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond}, func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.True(t, IsRetryable(err))
	require.Equal(t, 2, calls)
}
