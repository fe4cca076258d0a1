package rate

import "errors"

var (
	// ErrRateLimited is returned when an identifier has exhausted its login budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any failure talking to Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
