package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaAcquireOnce 通过 SETNX 锁保证“同一 key 只放行一次”。
// 事件总线是 at-least-once 投递，补偿类副作用（打款、库存回补）
// 必须在状态边沿判断之外再加一道幂等门闩。
const luaAcquireOnce = `
local lockKey = KEYS[1]
local ttlSec = tonumber(ARGV[1])

if redis.call('SETNX', lockKey, '1') == 1 then
  redis.call('EXPIRE', lockKey, ttlSec)
  return 1
end
return 0
`

// OnceGuard 幂等门闩。Acquire 首次调用返回 true，重复调用返回 false；
// 副作用执行失败时 Release 归还 key，下次投递可以重试。
type OnceGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Guard 是 OnceGuard 的 Redis 实现。
type Guard struct {
	rdb *rd.Client
	ttl time.Duration
}

// NewGuard 创建 Redis 幂等门闩，ttl<=0 时使用 7 天默认值。
func NewGuard(rdb *rd.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Guard{rdb: rdb, ttl: ttl}
}

// Acquire 尝试占有 key：
// - 首次占有返回 true，副作用可以执行
// - 已被占有返回 false（不会重复执行副作用）
func (g *Guard) Acquire(ctx context.Context, key string) (bool, error) {
	ttlSec := int64(g.ttl / time.Second)
	n, err := g.rdb.Eval(ctx, luaAcquireOnce, []string{key}, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release 归还已占有的 key，让失败的副作用保持可重试。
func (g *Guard) Release(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, key).Err()
}
