package redis

import (
	"context"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brokerdesk/internal/platform/config"
)

func TestNewRedisClient_Disabled(t *testing.T) {
	t.Parallel()

	rdb, err := NewRedisClient(context.Background(), config.RedisConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, rdb)
}

func TestNewRedisClient_Success(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(mr.Addr())

	rdb, err := NewRedisClient(context.Background(), config.RedisConfig{Host: host, Port: port}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(mr.Addr())
	mr.Close()

	rdb, err := NewRedisClient(context.Background(), config.RedisConfig{Host: host, Port: port}, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, rdb)
}
