package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/powens/tinyretro/internal/config"
)

// rateLimiter allows up to Burst messages per RefillInterval on one
// connection, refilling continuously.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst),
	}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
