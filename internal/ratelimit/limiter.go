// Package ratelimit enforces a minimum delay between requests to the same
// domain.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one size-1 token bucket per domain. Waiters on the same
// domain are served in the order they called WaitForPermit.
type Limiter struct {
	defaultDelay time.Duration

	mu      sync.RWMutex
	domains map[string]*domainState
}

type domainState struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// New creates a limiter that spaces requests to a domain by defaultDelay
// unless SetDelay overrides it. A zero delay means unlimited.
func New(defaultDelay time.Duration) *Limiter {
	if defaultDelay < 0 {
		defaultDelay = 0
	}
	return &Limiter{
		defaultDelay: defaultDelay,
		domains:      make(map[string]*domainState),
	}
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// WaitForPermit blocks until domain is eligible and then consumes its permit.
// If ctx ends first the reservation is released and ctx's error returned.
func (l *Limiter) WaitForPermit(ctx context.Context, domain string) error {
	return l.state(domain).limiter.Wait(ctx)
}

// TryAcquire consumes the permit only if domain is eligible right now.
// On failure nothing changes.
func (l *Limiter) TryAcquire(domain string) bool {
	return l.state(domain).limiter.Allow()
}

// SetDelay overrides the delay for domain. The new delay applies to the
// next permit request.
func (l *Limiter) SetDelay(domain string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	key := strings.ToLower(domain)

	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.domains[key]; ok {
		s.delay = d
		s.limiter.SetLimit(limitFor(d))
		return
	}
	l.domains[key] = &domainState{
		limiter: rate.NewLimiter(limitFor(d), 1),
		delay:   d,
	}
}

// Delay returns the delay currently applied to domain.
func (l *Limiter) Delay(domain string) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.domains[strings.ToLower(domain)]; ok {
		return s.delay
	}
	return l.defaultDelay
}

// DefaultDelay returns the delay used for domains without an override.
func (l *Limiter) DefaultDelay() time.Duration {
	return l.defaultDelay
}

// Len returns the number of domains seen so far.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.domains)
}

func (l *Limiter) state(domain string) *domainState {
	key := strings.ToLower(domain)

	l.mu.RLock()
	s, ok := l.domains[key]
	l.mu.RUnlock()
	if ok {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.domains[key]; ok {
		return s
	}
	s = &domainState{
		limiter: rate.NewLimiter(limitFor(l.defaultDelay), 1),
		delay:   l.defaultDelay,
	}
	l.domains[key] = s
	return s
}
