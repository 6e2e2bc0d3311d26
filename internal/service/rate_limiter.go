package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter limita la frecuencia de requests por cliente (la IP).
type RateLimiter interface {
	Allow(clientIP string) bool
}

// unknownClient agrupa los requests sin IP resoluble en un único bucket.
const unknownClient = "unknown"

func clientKey(ip string) string {
	ip = strings.ToLower(strings.TrimSpace(ip))
	if ip == "" {
		return unknownClient
	}
	return ip
}

type memoryRateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryRateLimiter crea un rate limiter de ventana deslizante en memoria.
// Las IPs sin actividad dentro de la ventana se eliminan en barridos periódicos.
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *memoryRateLimiter) Allow(clientIP string) bool {
	key := clientKey(clientIP)

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)

	// Un barrido completo por ventana mantiene el costo amortizado en O(1).
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	kept := pruneHits(l.hits[key], cutoff)
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

func (l *memoryRateLimiter) sweep(cutoff time.Time) {
	for key, entries := range l.hits {
		if len(entries) == 0 || !entries[len(entries)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

func pruneHits(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	return entries[i:]
}

// allowScript es un contador de ventana fija: el primer hit fija el TTL.
var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type redisRateLimiter struct {
	client redis.Scripter
	window time.Duration
	max    int
	prefix string
	logger *zap.Logger
}

// NewRedisRateLimiter comparte el conteo entre réplicas con una ventana fija en Redis.
func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int, logger *zap.Logger) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "bioage:rl:",
		logger: logger,
	}
}

// Allow falla abierto: si Redis no responde el request pasa.
func (l *redisRateLimiter) Allow(clientIP string) bool {
	if l == nil || l.client == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	count, err := allowScript.Run(ctx, l.client, []string{l.prefix + clientKey(clientIP)}, l.window.Milliseconds()).Int64()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return count <= int64(l.max)
}
