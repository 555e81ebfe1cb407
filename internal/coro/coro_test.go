package coro

import (
	"errors"
	"reflect"
	"testing"
)

func TestCoroutineYield(t *testing.T) {
	tests := []struct {
		name  string
		coro  func(*Context[int, any])
		yield []int
	}{
		{
			name:  "identity",
			coro:  func(c *Context[int, any]) { c.Yield(42) },
			yield: []int{42},
		},
		{
			name: "loop",
			coro: func(c *Context[int, any]) {
				for i := 0; i < 3; i++ {
					c.Yield(i)
				}
			},
			yield: []int{0, 1, 2},
		},
		{
			name:  "none",
			coro:  func(c *Context[int, any]) {},
			yield: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var yield []int
			c := New[int, any](test.coro)
			Run(c, func(v int) any {
				yield = append(yield, v)
				return nil
			})
			if !c.Done() {
				t.Error("coroutine not done")
			}
			if !reflect.DeepEqual(yield, test.yield) {
				t.Errorf("unexpected yield: want %v, got %v", test.yield, yield)
			}
		})
	}
}

func TestCoroutineSend(t *testing.T) {
	var sum int
	c := New[int, int](func(c *Context[int, int]) {
		for i := 1; i <= 3; i++ {
			sum += c.Yield(i)
		}
	})
	Run(c, func(v int) int { return v * 10 })
	if sum != 60 {
		t.Errorf("sum: want 60, got %d", sum)
	}
}

func TestCoroutineStop(t *testing.T) {
	deferred := false
	c := New[int, any](func(c *Context[int, any]) {
		defer func() { deferred = true }()
		for {
			c.Yield(0)
		}
	})
	if !c.Next() {
		t.Fatal("coroutine did not yield")
	}
	c.Stop()
	if c.Next() {
		t.Error("stopped coroutine yielded")
	}
	if !c.Done() || !deferred {
		t.Errorf("coroutine not unwound: done=%v deferred=%v", c.Done(), deferred)
	}
}

func TestCoroutinePanic(t *testing.T) {
	errBoom := errors.New("boom")
	c := New[int, any](func(c *Context[int, any]) {
		c.Yield(1)
		panic(errBoom)
	})
	if !c.Next() {
		t.Fatal("coroutine did not yield")
	}
	defer func() {
		r := recover()
		p, ok := r.(PanicError)
		if !ok {
			t.Fatalf("unexpected panic: %v", r)
		}
		if !errors.Is(p, errBoom) {
			t.Errorf("panic does not wrap the error: %v", p)
		}
	}()
	c.Next()
	t.Error("panic not propagated")
}
