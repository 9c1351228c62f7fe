package http

import (
	"math"

	"golang.org/x/time/rate"
)

// newRateLimiter allows perSecond inbound frames per channel with a burst of
// one second's worth. Zero or less means unlimited.
func newRateLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(int(math.Ceil(perSecond)), 1)
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
