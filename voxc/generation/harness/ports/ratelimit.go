package harnessports

import "context"

// RateLimiter throttles inbound turns per client key.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
