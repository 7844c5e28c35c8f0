package transport

import "time"

// rateLimiter allows limit lines per minute-long window. It is owned by a
// single reader goroutine and is not safe for concurrent use.
type rateLimiter struct {
	limit  int
	count  int
	window time.Time
	now    func() time.Time
}

func newRateLimiter(limit int, now func() time.Time) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		limit: limit,
		now:   now,
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	t := r.now()
	if t.Sub(r.window) >= time.Minute {
		r.window = t
		r.count = 0
	}
	r.count++
	return r.count <= r.limit
}
