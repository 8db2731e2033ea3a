// Package pool keeps a bounded free list of equally sized byte buffers.
package pool

import "sync"

// Pool recycles up to Max buffers of Size bytes.
type Pool struct {
	free [][]byte
	size int
	max  int
	mu   sync.Mutex
}

// New returns a pool for buffers of size bytes that retains at most max of them.
func New(size, max int) *Pool {
	return &Pool{size: size, max: max, free: make([][]byte, 0, max)}
}

// Get returns a zeroed buffer, reusing a released one when available.
func (p *Pool) Get() []byte {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		clear(buf)
		return buf
	}
	p.mu.Unlock()
	return make([]byte, p.size)
}

// Put returns buf to the pool. Buffers of the wrong size, or beyond the
// retention limit, are dropped.
func (p *Pool) Put(buf []byte) bool {
	if len(buf) != p.size {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.max {
		return false
	}
	p.free = append(p.free, buf)
	return true
}

// Len reports the number of idle buffers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size reports the buffer size served by the pool.
func (p *Pool) Size() int {
	return p.size
}
