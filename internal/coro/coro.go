// Package coro implements coroutines on top of goroutines and channels.
//
// The coroutine runs on a goroutine of its own, but only ever one of the
// program and the coroutine executes at a time: control is handed back and
// forth through an unbuffered channel at each yield point.
package coro

import (
	"fmt"
	"runtime"
)

// Coroutine instances expose APIs allowing the program to drive the execution
// of coroutines.
//
// The type parameter R represents the type of values that the program can
// receive from the coroutine (what it yields), and the type parameter S is
// what the program can send back to a coroutine yield point.
type Coroutine[R, S any] struct{ ctx *Context[R, S] }

// Context is the handle a coroutine uses to yield.
type Context[R, S any] struct {
	recv  R
	send  S
	next  chan struct{}
	stop  bool
	done  bool
	panic any
}

// Yield sends v to the program and pauses the execution of the coroutine
// until the Next method is called on the associated Coroutine. It returns
// the value the program sent.
func (c *Context[R, S]) Yield(v R) S {
	if c.stop {
		panic("coro: cannot yield from a coroutine that has been stopped")
	}
	var zero S
	c.send = zero
	c.recv = v
	c.next <- struct{}{}
	<-c.next
	if c.stop {
		runtime.Goexit()
	}
	return c.send
}

// New creates a new coroutine which executes f as entry point. The
// coroutine does not start until Next is called.
func New[R, S any](f func(*Context[R, S])) Coroutine[R, S] {
	c := &Context[R, S]{next: make(chan struct{})}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.panic = r
			}
			c.done = true
			close(c.next)
		}()

		<-c.next

		if !c.stop {
			f(c)
		}
	}()

	return Coroutine[R, S]{ctx: c}
}

// Recv returns the last value that the coroutine has yielded. The method must
// be called only after a call to Next has returned true.
func (c Coroutine[R, S]) Recv() R { return c.ctx.recv }

// Send sets the value that will be seen by the coroutine after it resumes from
// a yield point. Only the last value sent before a call to Next is seen.
func (c Coroutine[R, S]) Send(v S) { c.ctx.send = v }

// Stop interrupts the coroutine. On the next call to Next, the coroutine does
// not return from its yield point; instead, its goroutine exits, running the
// deferred calls of its stack.
//
// Stop is idempotent, calling it multiple times or after completion of the
// coroutine has no effect.
func (c Coroutine[R, S]) Stop() { c.ctx.stop = true }

// Done returns true if the coroutine completed, either because it was stopped
// or because its function returned.
func (c Coroutine[R, S]) Done() bool { return c.ctx.done }

// Next executes the coroutine until its next yield point, or until completion.
// The method returns true if the coroutine entered a yield point, after which
// the program should call Recv to obtain the value that the coroutine yielded,
// and Send to set the value that will be returned from the yield point.
//
// When the coroutine panics, the panic is propagated to the caller of Next.
func (c Coroutine[R, S]) Next() bool {
	if c.ctx.done {
		return false
	}
	c.ctx.next <- struct{}{}
	_, ok := <-c.ctx.next
	if !ok && c.ctx.panic != nil {
		p := c.ctx.panic
		c.ctx.panic = nil
		panic(PanicError{Value: p})
	}
	return ok
}

// PanicError wraps the value a coroutine panicked with when the panic is
// propagated to the program.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string { return fmt.Sprintf("coroutine panic: %v", e.Value) }

// Unwrap returns the panic value when it is an error.
func (e PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Run executes a coroutine to completion, calling f for each value that the
// coroutine yields, and sending back each value that f returns.
func Run[R, S any](c Coroutine[R, S], f func(R) S) {
	// The coroutine is run to completion, but f might panic in which case we
	// don't want to leave it in an uncompleted state and interrupt it instead.
	defer func() {
		if !c.Done() {
			c.Stop()
			c.Next()
		}
	}()

	for c.Next() {
		r := c.Recv()
		s := f(r)
		c.Send(s)
	}
}
