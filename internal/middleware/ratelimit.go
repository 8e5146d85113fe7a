package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/logging"
)

// tokenBucket keeps a fractional token count and its timestamp in one hash
// field pair. Tokens accrue continuously at refill/interval per millisecond,
// capped at capacity. Replies {allowed, whole tokens left, wait in ms}.
var tokenBucket = redis.NewScript(`
local cap = tonumber(ARGV[2])
local rate = 0
if tonumber(ARGV[4]) > 0 then
	rate = tonumber(ARGV[3]) / tonumber(ARGV[4])
end
local now = tonumber(ARGV[1])

local have, at = unpack(redis.call('HMGET', KEYS[1], 't', 'at'))
have = tonumber(have) or cap
at = tonumber(at) or now
if now > at then
	have = math.min(cap, have + (now - at) * rate)
end

local ok, wait = 0, 0
if have >= 1 then
	ok = 1
	have = have - 1
elseif rate > 0 then
	wait = math.ceil((1 - have) / rate)
end

redis.call('HSET', KEYS[1], 't', tostring(have), 'at', tostring(math.max(now, at)))
if tonumber(ARGV[5]) > 0 then
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[5]) * 1000)
end
return {ok, math.floor(have), wait}
`)

// NewTokenBucket limits requests per key with a Redis token bucket. Redis
// errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			ctx := c.Request().Context()
			vals, err := tokenBucket.Run(ctx, rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(vals) != 3 {
				logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				return next(c)
			}
			allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !allowed {
				secs := retryAfterSeconds(retryMs)
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"msg": "Too many requests, retry in " + strconv.Itoa(secs) + "s."})
			}
			return next(c)
		}
	}
}

func retryAfterSeconds(ms int64) int {
	secs := int(math.Ceil(float64(ms) / 1000.0))
	if secs < 0 {
		return 0
	}
	return secs
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
