package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     []PoolOption
		wantMax  int32
		wantName string
	}{
		{name: "defaults", wantMax: defaultMaxConns, wantName: ApplicationName},
		{name: "larger pool", opts: []PoolOption{WithMaxConns(12)}, wantMax: 12, wantName: ApplicationName},
		{name: "lock needs a second connection", opts: []PoolOption{WithMaxConns(1)}, wantMax: 2, wantName: ApplicationName},
		{name: "custom application name", opts: []PoolOption{WithApplicationName("deploy-hook")}, wantMax: defaultMaxConns, wantName: "deploy-hook"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := poolOptions{maxConns: defaultMaxConns, applicationName: ApplicationName}
			for _, opt := range tt.opts {
				opt(&o)
			}

			assert.Equal(t, tt.wantMax, o.maxConns)
			assert.Equal(t, tt.wantName, o.applicationName)
		})
	}
}

func TestNewPool_badURL_returnsInvalidURLError(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"not-a-valid-url",
		"postgres://migrator@db:notaport/library",
	} {
		_, err := NewPool(context.Background(), raw)
		require.ErrorIs(t, err, ErrInvalidDatabaseURL, raw)
	}
}

func TestNewPool_unreachableServer_returnsConnectionFailed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewPool(ctx, "postgres://migrator:pw@127.0.0.1:1/library?connect_timeout=2")

	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrInvalidDatabaseURL)
}
