/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Default rate limit values.
const (
	DefaultMaxCallsPerSecond  = 50
	DefaultMaxConcurrentCalls = 5

	errMsgAcquireRateToken = "acquire rate limit token"
	errMsgAcquireCallSlot  = "acquire call semaphore slot"
)

// RateLimiter controls LLM call throughput using a token bucket for overall
// rate and a semaphore for concurrent upstream calls.
type RateLimiter struct {
	limiter       *rate.Limiter
	callSem       chan struct{}
	maxPerSecond  int32
	maxConcurrent int32
}

// NewRateLimiter creates a RateLimiter, applying defaults for non-positive values.
func NewRateLimiter(maxPerSecond, maxConcurrent int32) *RateLimiter {
	if maxPerSecond <= 0 {
		maxPerSecond = DefaultMaxCallsPerSecond
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCalls
	}

	return &RateLimiter{
		limiter:       rate.NewLimiter(rate.Limit(maxPerSecond), int(maxPerSecond)),
		callSem:       make(chan struct{}, maxConcurrent),
		maxPerSecond:  maxPerSecond,
		maxConcurrent: maxConcurrent,
	}
}

// Acquire acquires both a rate limit token and a call semaphore slot.
// It blocks until both are available or the context is cancelled.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", errMsgAcquireRateToken, err)
	}

	select {
	case r.callSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", errMsgAcquireCallSlot, ctx.Err())
	}
}

// Release releases a call semaphore slot. Must be called after Acquire
// returns successfully, typically via defer.
func (r *RateLimiter) Release() {
	<-r.callSem
}

// MaxCallsPerSecond returns the configured maximum calls per second.
func (r *RateLimiter) MaxCallsPerSecond() int32 {
	return r.maxPerSecond
}

// MaxConcurrentCalls returns the configured maximum concurrent calls.
func (r *RateLimiter) MaxConcurrentCalls() int32 {
	return r.maxConcurrent
}
