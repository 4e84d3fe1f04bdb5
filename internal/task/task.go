// Package task implements the coroutine-equivalent awaitable primitives
// the scheduler uses to suspend a node's execution: sleep, CPU offload,
// CPU offload racing a deadline, and an async operation racing a
// deadline. Go has no stackful coroutines, so a "task" here is a
// buffered result channel; "awaiting" it is a channel receive, and
// "resuming on the loop" is the production of that result being posted
// through an eventloop.Loop.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/eventloop"
	"github.com/smilemakc/dagengine/internal/workerpool"
)

// Result carries the outcome of an awaitable.
type Result[T any] struct {
	Value T
	Err   error
}

// LateCompletions counts worker or async results that arrived after a
// deadline had already won the race — the test hook for the first-wins
// rule's "late result is dropped" behavior.
var LateCompletions atomic.Int64

// Sleep suspends for d, resuming (posting its result) on loop. d<=0
// short-circuits to an already-ready result without arming a timer.
func Sleep(loop *eventloop.Loop, d time.Duration) <-chan Result[struct{}] {
	out := make(chan Result[struct{}], 1)
	if d <= 0 {
		loop.Post(func() { out <- Result[struct{}]{} })
		return out
	}
	time.AfterFunc(d, func() {
		if !loop.Post(func() { out <- Result[struct{}]{} }) {
			out <- Result[struct{}]{Err: apperr.New(apperr.KindShutdown, "loop stopped before sleep completion could be posted")}
		}
	})
	return out
}

// Offload submits fn to pool and resumes (posts the result) on loop
// once the worker finishes. The coroutine "resumes on the loop thread
// holding the computed value" by construction: the send into out only
// happens from inside a posted callback.
func Offload[T any](pool *workerpool.Pool, loop *eventloop.Loop, fn func() (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	pool.Submit(func() {
		v, err := fn()
		if !loop.Post(func() { out <- Result[T]{Value: v, Err: err} }) {
			out <- Result[T]{Err: apperr.New(apperr.KindShutdown, "loop stopped before offload completion could be posted")}
		}
	})
	return out
}

// OffloadTimeout races fn's CPU-offload completion against deadline.
// First-wins is enforced by a sync.Once guarding the single write to
// out: whichever of {worker completion, timer fire} runs first on the
// loop goroutine claims the result; the other's write is silently
// dropped (and LateCompletions is incremented if it was the worker).
func OffloadTimeout[T any](pool *workerpool.Pool, loop *eventloop.Loop, deadline time.Time, fn func() (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)

	remaining := time.Until(deadline)
	if remaining <= 0 {
		loop.Post(func() {
			out <- Result[T]{Err: apperr.New(apperr.KindTimeout, "node deadline already exceeded before offload could start")}
		})
		return out
	}
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}

	var once sync.Once
	claim := func(r Result[T], wasWorker bool) {
		claimed := false
		once.Do(func() { claimed = true })
		if !claimed {
			if wasWorker {
				LateCompletions.Add(1)
			}
			return
		}
		out <- r
	}

	timer := time.AfterFunc(remaining, func() {
		loop.Post(func() {
			claim(Result[T]{Err: apperr.New(apperr.KindTimeout, "node execution exceeded its deadline")}, false)
		})
	})

	pool.Submit(func() {
		v, err := fn()
		loop.Post(func() {
			timer.Stop()
			claim(Result[T]{Value: v, Err: err}, true)
		})
	})

	return out
}

// AsyncTimeout races an already-in-flight async result (inner) against
// deadline, with the same first-wins semantics as OffloadTimeout.
func AsyncTimeout[T any](loop *eventloop.Loop, deadline time.Time, inner <-chan Result[T]) <-chan Result[T] {
	out := make(chan Result[T], 1)

	remaining := time.Until(deadline)
	if remaining <= 0 {
		loop.Post(func() {
			out <- Result[T]{Err: apperr.New(apperr.KindTimeout, "node deadline already exceeded before async operation could start")}
		})
		return out
	}
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}

	var once sync.Once
	claim := func(r Result[T], wasInner bool) {
		claimed := false
		once.Do(func() { claimed = true })
		if !claimed {
			if wasInner {
				LateCompletions.Add(1)
			}
			return
		}
		out <- r
	}

	timer := time.AfterFunc(remaining, func() {
		loop.Post(func() {
			claim(Result[T]{Err: apperr.New(apperr.KindTimeout, "async operation exceeded its deadline")}, false)
		})
	})

	go func() {
		r := <-inner
		loop.Post(func() {
			timer.Stop()
			claim(r, true)
		})
	}()

	return out
}
