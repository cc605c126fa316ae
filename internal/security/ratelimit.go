package security

import (
	"math"
	"sync"
	"time"

	"defendend-backend/pkg/logger"
)

// RateLimiter 滑动窗口限流器。每个实例是一个独立的策略桶空间
// （登录、注册、通用 API 各一个），key 是任意身份字符串（IP 或用户ID）。
// 窗口数据只通过本类型的方法修改，外部不得直接触碰
type RateLimiter struct {
	name        string
	maxAttempts int
	window      time.Duration

	mu       sync.Mutex
	attempts map[string][]time.Time

	// 可注入的时钟，测试用
	now func() time.Time
}

func NewRateLimiter(name string, maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		name:        name,
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// purgeLocked 清掉窗口外的时间戳，调用方必须持锁
func (r *RateLimiter) purgeLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	stamps := r.attempts[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 && stamps != nil {
		delete(r.attempts, key)
		return nil
	}
	r.attempts[key] = kept
	return kept
}

// TryAcquire 先清窗口再判断：达到上限时拒绝且不记录本次尝试，
// 否则记录当前时间并放行。返回放行与否和剩余次数
func (r *RateLimiter) TryAcquire(key string) (bool, int) {
	return r.TryAcquireLimit(key, r.maxAttempts)
}

// TryAcquireLimit 与 TryAcquire 相同，但使用调用方提供的上限。
// 用于按用户配置的配额桶
func (r *RateLimiter) TryAcquireLimit(key string, limit int) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stamps := r.purgeLocked(key, now)
	if len(stamps) >= limit {
		return false, 0
	}

	r.attempts[key] = append(stamps, now)
	return true, limit - len(stamps) - 1
}

// GetRemainingAttempts 只读版本：同样先清窗口，但不记录
func (r *RateLimiter) GetRemainingAttempts(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stamps := r.purgeLocked(key, r.now())
	remaining := r.maxAttempts - len(stamps)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset 清空该 key 的全部记录（登录成功后解除惩罚）
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, key)
}

// RetryAfterSeconds 最早一条在窗口内的记录还要多少秒过期，下限为零
func (r *RateLimiter) RetryAfterSeconds(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stamps := r.purgeLocked(key, now)
	if len(stamps) == 0 {
		return 0
	}

	wait := stamps[0].Add(r.window).Sub(now).Seconds()
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait))
}

// StartSweeper 周期性移除窗口已清空的 key，约束内存。
// 返回的函数用于停止后台清理
func (r *RateLimiter) StartSweeper(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}

func (r *RateLimiter) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	before := len(r.attempts)
	for key := range r.attempts {
		r.purgeLocked(key, now)
	}
	if removed := before - len(r.attempts); removed > 0 {
		logger.Debugf("限流器 %s 清理了 %d 个空闲 key", r.name, removed)
	}
}
