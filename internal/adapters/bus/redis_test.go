package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNames(t *testing.T) {
	r := NewRedisRelay(nil, "")
	assert.Equal(t, "duet:user:u1", r.channel("u1"))

	uid, ok := r.userOf("duet:user:u1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u1"), uid)

	_, ok = r.userOf("other:u1")
	assert.False(t, ok)
	_, ok = r.userOf("duet:user:undefined")
	assert.False(t, ok)
}

// Runs against a live server only when DUET_TEST_REDIS_ADDR is set.
func TestRelayRoundTrip(t *testing.T) {
	addr := os.Getenv("DUET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DUET_TEST_REDIS_ADDR not set")
	}
	r := NewRedisRelay(redis.NewClient(&redis.Options{Addr: addr}), "duet:test:")
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan core.Frame, 1)
	go func() {
		_ = r.Run(ctx, func(uid domain.UserID, f core.Frame) bool {
			if uid == "u2" {
				got <- f
			}
			return true
		})
	}()

	require.Eventually(t, func() bool {
		_ = r.Publish(ctx, "u2", core.Frame(`{"type":"pong"}`))
		select {
		case f := <-got:
			return string(f) == `{"type":"pong"}`
		default:
			return false
		}
	}, 3*time.Second, 100*time.Millisecond)
}
