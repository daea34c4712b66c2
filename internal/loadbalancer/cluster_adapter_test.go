package loadbalancer

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestClusterAdapterAcquireAndAtCapacity(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := NewClusterAdapter(NewCluster(rdb, "adapter:", 1), nil)

	require.False(t, a.AtCapacity("a1"))
	release := a.Acquire("a1")
	require.True(t, a.AtCapacity("a1"))
	release()
	require.False(t, a.AtCapacity("a1"))
	require.Equal(t, uint32(1), a.MaxPerAgent())
}

func TestClusterAdapterFailsOpenWhenRedisUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}) // nothing listens here
	defer rdb.Close()

	a := NewClusterAdapter(NewCluster(rdb, "unreachable:", 1), nil)

	require.False(t, a.AtCapacity("a1"), "an unreachable cluster must fail open, not block dispatch")
	release := a.Acquire("a1")
	release() // the failed acquire handed back a no-op release; it must not panic
}
