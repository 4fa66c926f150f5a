package authclient

import (
	"context"
	"sync"
)

// RenewFunc obtains a fresh token.
type RenewFunc func(ctx context.Context) (string, error)

type renewal struct {
	token string
	err   error
}

// Coordinator lets one renewal run at a time. Callers arriving while a
// renewal is in flight wait for its result instead of starting their own.
type Coordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan renewal
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Renew runs fn unless a renewal is already in flight, in which case it waits
// for that one. A waiter whose ctx ends stops waiting; the renewal itself
// keeps running for the others.
func (c *Coordinator) Renew(ctx context.Context, fn RenewFunc) (string, error) {
	c.mu.Lock()
	if c.inFlight {
		ch := make(chan renewal, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.inFlight = true
	c.mu.Unlock()

	token, err := fn(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- renewal{token: token, err: err}
	}
	return token, err
}

// Pending reports how many callers are waiting on the current renewal.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
