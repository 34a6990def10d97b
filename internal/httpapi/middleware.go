package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultRateWindow     = 15 * time.Minute
	defaultRateLimit      = 50
	errorMessageRateLimit = "Too many requests from this IP, please try again later."

	headerRateLimitLimit     = "RateLimit-Limit"
	headerRateLimitRemaining = "RateLimit-Remaining"
	headerRateLimitReset     = "RateLimit-Reset"
)

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateDecision is the outcome of one request against a client's token bucket.
type RateDecision struct {
	Allowed   bool
	Remaining int
	Reset     time.Duration
}

// RateLimiter gives every client IP a token bucket of limit requests that refills over window.
type RateLimiter struct {
	window       time.Duration
	limit        int
	interval     time.Duration
	now          func() time.Time
	visitorMutex sync.Mutex
	visitors     map[string]*visitor
}

func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	if window < time.Second {
		window = defaultRateWindow
	}
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return &RateLimiter{
		window:   window,
		limit:    limit,
		interval: window / time.Duration(limit),
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (limiter *RateLimiter) visitorLimiter(ip string, at time.Time) *rate.Limiter {
	limiter.visitorMutex.Lock()
	defer limiter.visitorMutex.Unlock()

	existing, found := limiter.visitors[ip]
	if !found {
		existing = &visitor{limiter: rate.NewLimiter(rate.Every(limiter.interval), limiter.limit)}
		limiter.visitors[ip] = existing
	}
	existing.lastSeen = at
	return existing.limiter
}

// Allow takes one token from the bucket of ip at the given instant.
// Reset is the time until the bucket is full again.
func (limiter *RateLimiter) Allow(ip string, at time.Time) RateDecision {
	bucket := limiter.visitorLimiter(ip, at)
	allowed := bucket.AllowN(at, 1)

	tokens := bucket.TokensAt(at)
	remaining := max(int(math.Floor(tokens)), 0)
	deficit := float64(limiter.limit) - tokens
	reset := time.Duration(0)
	if deficit > 0 {
		reset = time.Duration(math.Ceil(deficit * float64(limiter.interval)))
	}
	return RateDecision{Allowed: allowed, Remaining: remaining, Reset: reset}
}

// Prune forgets clients idle for a whole window, whose buckets are full again, and returns how many were removed.
func (limiter *RateLimiter) Prune() int {
	cutoff := limiter.now().Add(-limiter.window)

	limiter.visitorMutex.Lock()
	defer limiter.visitorMutex.Unlock()

	removed := 0
	for ip, existing := range limiter.visitors {
		if !existing.lastSeen.After(cutoff) {
			delete(limiter.visitors, ip)
			removed++
		}
	}
	return removed
}

func (limiter *RateLimiter) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		decision := limiter.Allow(context.ClientIP(), limiter.now())
		resetSeconds := int64(math.Ceil(decision.Reset.Seconds()))

		context.Header(headerRateLimitLimit, strconv.Itoa(limiter.limit))
		context.Header(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
		context.Header(headerRateLimitReset, strconv.FormatInt(resetSeconds, 10))
		if !decision.Allowed {
			context.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{jsonKeyError: errorMessageRateLimit})
			return
		}
		context.Next()
	}
}
