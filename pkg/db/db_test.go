package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/smallbiznis/paycore/internal/config"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{errors.New(`ERROR: duplicate key value violates unique constraint "ux_subscriptions_user_active" (SQLSTATE 23505)`), true},
		{errors.New("constraint failed: UNIQUE constraint failed: index 'ux_subscriptions_user_active' (2067)"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err), fmt.Sprint(tc.err))
	}
}

func TestDialect(t *testing.T) {
	for _, kind := range []string{"postgres", "sqlite"} {
		d, err := Dialect(config.Config{DBType: kind, DBName: "paycore"})
		assert.NoError(t, err, kind)
		assert.Equal(t, kind, d.Name())
	}

	for _, kind := range []string{"mysql", "oracle"} {
		_, err := Dialect(config.Config{DBType: kind})
		assert.Error(t, err, kind)
	}
}
