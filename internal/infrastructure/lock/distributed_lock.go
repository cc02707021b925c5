package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：同一商家的两笔提现同时进入结算（余额 50000，各提 30000）
//
// 如果没有锁，两个结算事务都可能用同一份余额快照通过校验，联合超提。
// 加锁后同一商家的结算串行化，第二笔在事务内重新校验余额时会被拒绝。
//
// 钱包扣减本身还有数据库层的条件更新兜底（balance >= amount），
// 锁的作用是把冲突挡在事务之前，减少无谓的回滚。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	// SET key value NX EX timeout
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 使用 Lua 脚本保证"检查+删除"的原子性：
// 先验证 value 是自己的再删除，避免锁过期后误删后来者的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数
// ============================================================================

// NewPayoutLock 创建提现结算锁（按商家维度）
//
// 同一商家的结算必须串行，不同商家互不影响；
// value 使用 payoutNo，便于追踪是哪笔提现持有锁
func NewPayoutLock(client *redis.Client, storeID int64, payoutNo string) *DistributedLock {
	key := fmt.Sprintf("payout:lock:store:%d", storeID)
	return NewDistributedLock(client, key, payoutNo, 30*time.Second)
}

// NewVoucherLock 创建代金券使用锁（按券码维度）
//
// 同一张券的并发使用只允许一个赢家，数据库条件更新是最终裁决，
// 锁用来避免两个预订事务同时走到那一步
func NewVoucherLock(client *redis.Client, code string, requestID string) *DistributedLock {
	key := fmt.Sprintf("voucher:lock:code:%s", code)
	return NewDistributedLock(client, key, requestID, 30*time.Second)
}
