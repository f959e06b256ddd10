package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// DelayPolicy maps the number of attempts already made to the pause taken
// before the next one. Policies are pure and safe for concurrent use.
type DelayPolicy func(attempt int) time.Duration

// NoDelay never waits between attempts.
func NoDelay(int) time.Duration { return 0 }

// DelayConstant returns d for every attempt.
func DelayConstant(d time.Duration) (DelayPolicy, error) {
	if d < 0 {
		return nil, configErrorf("the delay must be at least 0, got %s", d)
	}
	return func(int) time.Duration {
		return d
	}, nil
}

// DelayRandom picks a delay uniformly from [minDelay, maxDelay] on every call.
func DelayRandom(minDelay, maxDelay time.Duration) (DelayPolicy, error) {
	if minDelay < 0 {
		return nil, configErrorf("the minimum delay must be at least 0, got %s", minDelay)
	}
	if maxDelay <= minDelay {
		return nil, configErrorf("the maximum delay (%s) must be greater than the minimum (%s)", maxDelay, minDelay)
	}
	span := int64(maxDelay - minDelay)
	return func(int) time.Duration {
		if span == math.MaxInt64 {
			// #nosec G404 -- jitter is non-cryptographic timing variance.
			return minDelay + time.Duration(rand.Int64N(span))
		}
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		return minDelay + time.Duration(rand.Int64N(span+1))
	}, nil
}

// DelayExponential implements capped exponential backoff:
//
//	min(cap, mult * base^attempt)
//
// The cap is optional and defaults to the largest representable duration.
func DelayExponential(mult time.Duration, base float64, maxDelay ...time.Duration) (DelayPolicy, error) {
	if mult <= 0 {
		return nil, configErrorf("the delay multiplier must be greater than 0, got %s", mult)
	}
	if base <= 1 || math.IsNaN(base) {
		return nil, configErrorf("the exponential base must be greater than 1, got %v", base)
	}
	limit := time.Duration(math.MaxInt64)
	if len(maxDelay) > 0 {
		limit = maxDelay[0]
		if limit <= 0 {
			return nil, configErrorf("the maximum delay must be greater than 0, got %s", limit)
		}
	}
	return func(attempt int) time.Duration {
		d := float64(mult) * math.Pow(base, float64(attempt))
		if math.IsInf(d, 0) || d >= float64(limit) {
			return limit
		}
		return time.Duration(d)
	}, nil
}

// MustDelay panics if err is non-nil. It is meant for package level
// declarations with constant arguments.
func MustDelay(policy DelayPolicy, err error) DelayPolicy {
	if err != nil {
		panic(err)
	}
	return policy
}
