package progress

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Dummy continues unconditionally; native code treats a NULL progress
// function the same way.
func Dummy(complete float64, message string, arg interface{}) bool {
	return true
}

// Scaled maps the [0, 1] progress of a sub-operation into [min, max] of the
// enclosing operation before forwarding it to fn.
func Scaled(min, max float64, fn Func) Func {
	if min > max {
		panic(fmt.Sprintf("invalid progress range [%v, %v]", min, max))
	}
	if fn == nil {
		fn = Dummy
	}

	return func(complete float64, message string, arg interface{}) bool {
		return fn(min+complete*(max-min), message, arg)
	}
}

// WithContext cancels once ctx is done, and otherwise defers to fn.
func WithContext(ctx context.Context, fn Func) Func {
	if fn == nil {
		fn = Dummy
	}

	return func(complete float64, message string, arg interface{}) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		return fn(complete, message, arg)
	}
}

// Latch makes cancellation sticky: after fn cancels once, every later call
// cancels without calling fn again.
func Latch(fn Func) Func {
	if fn == nil {
		fn = Dummy
	}
	var stopped atomic.Bool

	return func(complete float64, message string, arg interface{}) bool {
		if stopped.Load() {
			return false
		}
		if !fn(complete, message, arg) {
			stopped.Store(true)
			return false
		}
		return true
	}
}

// Chain calls every fn in order and cancels if any of them cancels.
func Chain(fns ...Func) Func {
	return func(complete float64, message string, arg interface{}) bool {
		ok := true
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if !fn(complete, message, arg) {
				ok = false
			}
		}
		return ok
	}
}
