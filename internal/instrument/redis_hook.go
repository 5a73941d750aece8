package instrument

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachePayload accompanies cache_read.* and cache_write.* events.
type CachePayload struct {
	Command string
	Key     string
}

// SpanLabel implements Labeler.
func (p CachePayload) SpanLabel() string {
	if p.Key == "" {
		return p.Command
	}
	return p.Command + " " + p.Key
}

var redisReadCommands = map[string]struct{}{
	"get": {}, "mget": {}, "getrange": {}, "strlen": {}, "exists": {}, "ttl": {}, "pttl": {},
	"type": {}, "keys": {}, "scan": {}, "hget": {}, "hmget": {}, "hgetall": {}, "hexists": {},
	"hkeys": {}, "hvals": {}, "hlen": {}, "lrange": {}, "llen": {}, "lindex": {}, "smembers": {},
	"sismember": {}, "scard": {}, "zrange": {}, "zrangebyscore": {}, "zscore": {}, "zcard": {},
}

// redisConnCommands run while go-redis sets up a connection; they are not cache operations.
var redisConnCommands = map[string]struct{}{
	"hello": {}, "auth": {}, "select": {}, "client": {}, "readonly": {},
}

// RedisHook publishes cache_read.redis and cache_write.redis events for go-redis commands.
type RedisHook struct {
	notifier *Notifier
}

var _ redis.Hook = (*RedisHook)(nil)

// NewRedisHook creates a hook publishing to n.
func NewRedisHook(n *Notifier) *RedisHook {
	return &RedisHook{notifier: n}
}

func (h *RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !h.active(ctx) || isRedisConnCommand(cmd) {
			return next(ctx, cmd)
		}
		start := time.Now()
		err := next(ctx, cmd)
		name := strings.ToLower(cmd.Name())
		h.notifier.Publish(ctx, Event{
			Name:    redisEventName(isRedisRead(name)),
			Start:   start,
			End:     time.Now(),
			Payload: CachePayload{Command: strings.ToUpper(name), Key: redisKey(cmd)},
		})
		return err
	}
}

func (h *RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !h.active(ctx) {
			return next(ctx, cmds)
		}
		ops := cacheCommands(cmds)
		if len(ops) == 0 {
			return next(ctx, cmds)
		}
		start := time.Now()
		err := next(ctx, cmds)
		read := true
		for _, cmd := range ops {
			read = read && isRedisRead(strings.ToLower(cmd.Name()))
		}
		h.notifier.Publish(ctx, Event{
			Name:    redisEventName(read),
			Start:   start,
			End:     time.Now(),
			Payload: CachePayload{Command: fmt.Sprintf("PIPELINE (%d commands)", len(ops))},
		})
		return err
	}
}

func (h *RedisHook) active(ctx context.Context) bool {
	return h.notifier != nil && !Suppressed(ctx) && ScopeFrom(ctx) != nil
}

func isRedisConnCommand(cmd redis.Cmder) bool {
	_, ok := redisConnCommands[strings.ToLower(cmd.Name())]
	return ok
}

// cacheCommands drops connection setup commands from a pipeline.
func cacheCommands(cmds []redis.Cmder) []redis.Cmder {
	ops := make([]redis.Cmder, 0, len(cmds))
	for _, cmd := range cmds {
		if !isRedisConnCommand(cmd) {
			ops = append(ops, cmd)
		}
	}
	return ops
}

func isRedisRead(name string) bool {
	_, ok := redisReadCommands[name]
	return ok
}

func redisEventName(read bool) string {
	if read {
		return "cache_read.redis"
	}
	return "cache_write.redis"
}

func redisKey(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	if k, ok := args[1].(string); ok {
		return k
	}
	return ""
}
