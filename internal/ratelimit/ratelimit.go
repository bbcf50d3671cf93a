package ratelimit

import (
	"sync"
	"time"
)

// Result описывает решение лимитера по одному ключу.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter считает запросы по ключу в фиксированном окне. Состояние живет
// только в памяти процесса, поэтому лимит рекомендательный, а не строгий.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]bucket
	now     func() time.Time
}

// NewLimiter создает лимитер с пустым состоянием.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]bucket),
		now:     time.Now,
	}
}

// Check регистрирует обращение по ключу и возвращает решение.
func (l *Limiter) Check(key string, window time.Duration, max int) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	existing, ok := l.buckets[key]
	if !ok || !now.Before(existing.resetAt) {
		entry := bucket{count: 1, resetAt: now.Add(window)}
		l.buckets[key] = entry
		return Result{Allowed: true, Remaining: max - 1, ResetAt: entry.resetAt}
	}

	if existing.count >= max {
		return Result{Allowed: false, Remaining: 0, ResetAt: existing.resetAt}
	}

	existing.count++
	l.buckets[key] = existing

	remaining := max - existing.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: existing.resetAt}
}
