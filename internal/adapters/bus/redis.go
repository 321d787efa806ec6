// Package bus relays frames for users connected to another server instance.
package bus

import (
	"context"
	"errors"
	"strings"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DeliverFunc hands a relayed frame to a local connection. It reports whether
// the user was connected here.
type DeliverFunc func(uid domain.UserID, f core.Frame) bool

type RedisRelay struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRelay(rdb *redis.Client, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = "duet:user:"
	}
	return &RedisRelay{rdb: rdb, prefix: prefix}
}

func (r *RedisRelay) channel(uid domain.UserID) string { return r.prefix + string(uid) }

func (r *RedisRelay) userOf(channel string) (domain.UserID, bool) {
	raw, ok := strings.CutPrefix(channel, r.prefix)
	if !ok {
		return "", false
	}
	uid, err := domain.ParseUserID(raw)
	return uid, err == nil
}

func (r *RedisRelay) Publish(ctx context.Context, uid domain.UserID, f core.Frame) error {
	return r.rdb.Publish(ctx, r.channel(uid), []byte(f)).Err()
}

// Run subscribes to every user channel and delivers frames until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, deliver DeliverFunc) error {
	sub := r.rdb.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	log.Info().Str("module", "bus.redis").Str("pattern", r.prefix+"*").Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			uid, ok := r.userOf(msg.Channel)
			if !ok {
				continue
			}
			if deliver(uid, core.Frame(msg.Payload)) {
				log.Debug().Str("module", "bus.redis").Str("uid", string(uid)).Msg("relayed frame delivered")
			}
		}
	}
}

func (r *RedisRelay) Close() error { return r.rdb.Close() }
