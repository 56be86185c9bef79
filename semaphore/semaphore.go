// Package semaphore implements a small counting semaphore used to bound how
// many parallel-bucket systems the scheduler runs concurrently.
package semaphore

import "fmt"

// Semaphore is a counting semaphore. It must be created with New before use.
type Semaphore struct {
	c      chan struct{}
	closed chan struct{}
}

// New creates a new semaphore that allows up to size concurrent holders. A
// size <= 0 means unbounded (every P succeeds immediately).
func New(size int) *Semaphore {
	obj := &Semaphore{
		closed: make(chan struct{}),
	}
	if size > 0 {
		obj.c = make(chan struct{}, size)
	}
	return obj
}

// Close wakes every caller blocked in P, which then returns an error. It does
// not change V, and a P on an unbounded semaphore still succeeds after Close;
// a P on a bounded one may still take a free slot instead of erroring.
func (obj *Semaphore) Close() {
	close(obj.closed)
}

// P acquires one slot, blocking if the semaphore is full. It returns an error
// if the semaphore was closed while waiting.
func (obj *Semaphore) P() error {
	if obj.c == nil { // unbounded
		return nil
	}
	select {
	case obj.c <- struct{}{}:
		return nil
	case <-obj.closed:
		return fmt.Errorf("semaphore: closed")
	}
}

// V releases one slot. It panics if called more times than P, which would
// indicate a programming error in the caller.
func (obj *Semaphore) V() {
	if obj.c == nil {
		return
	}
	select {
	case <-obj.c:
	default:
		panic("semaphore: V > P")
	}
}
