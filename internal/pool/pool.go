// Package pool bounds the number of goroutines running simulated tests.
package pool

import (
	"errors"
	"sync"
)

var (
	// ErrRejected is returned by Go when every slot is taken.
	ErrRejected = errors.New("pool: no free slot")
	// ErrClosed is returned by Go after Close.
	ErrClosed = errors.New("pool: closed")
)

// Spawner starts background work. Go either starts fn on a new goroutine and
// returns nil, or returns an error and never runs fn.
type Spawner interface {
	Go(fn func()) error
}

// Bounded is a Spawner with a fixed number of slots. A slot is held from the
// moment Go accepts fn until fn returns.
type Bounded struct {
	slots chan struct{} // nil means unbounded

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ Spawner = (*Bounded)(nil)

// NewBounded creates a pool with size slots. size <= 0 means unbounded.
func NewBounded(size int) *Bounded {
	p := &Bounded{}
	if size > 0 {
		p.slots = make(chan struct{}, size)
	}
	return p
}

// Go runs fn on a new goroutine if a slot is free. It never blocks.
func (p *Bounded) Go(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
		default:
			return ErrRejected
		}
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		fn()
	}()
	return nil
}

func (p *Bounded) release() {
	if p.slots != nil {
		<-p.slots
	}
}

// Active returns the number of occupied slots. It is always 0 for an
// unbounded pool.
func (p *Bounded) Active() int {
	return len(p.slots)
}

// Cap returns the slot count, 0 when unbounded.
func (p *Bounded) Cap() int {
	return cap(p.slots)
}

// Close stops accepting work. Running goroutines are not interrupted.
func (p *Bounded) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Wait blocks until every accepted fn has returned.
func (p *Bounded) Wait() {
	p.wg.Wait()
}
