package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRollbackRunsInReverse(t *testing.T) {
	s := New(zaptest.NewLogger(t), "create_subscription")

	var order []string
	record := func(name string) {
		s.Record(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	record("customer")
	record("product")
	s.Record("noop", nil)
	record("price")

	require.NoError(t, s.Rollback(context.Background()))
	assert.Equal(t, []string{"price", "product", "customer"}, order)
	assert.Equal(t, []string{"customer", "product", "noop", "price"}, s.Completed())
}

func TestRollbackContinuesPastFailures(t *testing.T) {
	s := New(zaptest.NewLogger(t), "create_subscription")

	ran := 0
	s.Record("customer", func(ctx context.Context) error {
		ran++
		return nil
	})
	s.Record("product", func(ctx context.Context) error {
		ran++
		return errors.New("archive failed")
	})

	err := s.Rollback(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product: archive failed")
	assert.Equal(t, 2, ran)
}

func TestRollbackOnce(t *testing.T) {
	s := New(nil, "once")
	calls := 0
	s.Record("step", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, s.Rollback(context.Background()))
	require.NoError(t, s.Rollback(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestRollbackIgnoresCanceledContext(t *testing.T) {
	s := New(nil, "canceled")
	var seen error
	s.Record("step", func(ctx context.Context) error {
		seen = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Rollback(ctx))
	assert.NoError(t, seen)
}
