// Package recmutex provides a mutex that the owning goroutine may lock again.
package recmutex

import (
	"sync"

	"github.com/petermattis/goid"
)

// Mutex is a recursive mutex. The zero value is unlocked.
type Mutex struct {
	cond  *sync.Cond
	mu    sync.Mutex
	once  sync.Once
	owner int64
	depth int
}

func (m *Mutex) ensure() {
	m.once.Do(func() {
		m.cond = sync.NewCond(&m.mu)
	})
}

// Lock acquires m, blocking while another goroutine owns it.
func (m *Mutex) Lock() {
	m.ensure()
	id := goid.Get()
	m.mu.Lock()
	for m.depth > 0 && m.owner != id {
		m.cond.Wait()
	}
	m.owner = id
	m.depth++
	m.mu.Unlock()
}

// Unlock releases one level of ownership.
func (m *Mutex) Unlock() {
	m.ensure()
	m.mu.Lock()
	if m.depth == 0 || m.owner != goid.Get() {
		m.mu.Unlock()
		panic("recmutex: unlock of mutex not held by this goroutine")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

// Held reports whether the calling goroutine owns m.
func (m *Mutex) Held() bool {
	m.ensure()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth > 0 && m.owner == goid.Get()
}
