// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group runs at most one fn per key at a time; callers arriving while a
// call is in flight wait for its result instead of starting their own.
//
// Cancelling a waiter's ctx releases only that waiter. The leader's fn
// keeps running; thread ctx into fn if the work itself must stop.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed once val/err are final
	val  V
	err  error
	dups int
}

// PanicError is returned to waiters when the leader's fn panicked.
// The leader itself re-panics with the original value.
type PanicError struct{ Value any }

func (p *PanicError) Error() string { return fmt.Sprintf("singleflight: fn panicked: %v", p.Value) }

// Do executes fn for key unless a call is already in flight, in which case
// it waits for that call. shared reports whether the result went to more
// than one caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), true
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)

	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// run executes fn and publishes its result. A panic in fn still releases
// waiters (with a *PanicError) before it propagates to the leader.
func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	normal := false
	defer func() {
		var r any
		if !normal {
			r = recover()
			c.err = &PanicError{Value: r}
		}
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
		if !normal {
			panic(r)
		}
	}()

	c.val, c.err = fn()
	normal = true
}
