// Package quark interns strings as small integer handles.
package quark

import (
	"fmt"
	"sync"

	"fortio.org/safecast"
)

// Quark is a small integer standing in for an interned string.
// The zero Quark names no string.
type Quark uint32

// Table interns strings to quarks. It is safe for concurrent use.
type Table struct {
	index map[string]Quark
	off   []uint32
	size  []uint32
	blob  []byte
	mu    sync.RWMutex
}

// NewTable returns an empty table with id 0 reserved.
func NewTable() *Table {
	return &Table{
		index: make(map[string]Quark),
		off:   make([]uint32, 1),
		size:  make([]uint32, 1),
	}
}

// Intern returns the quark for s, allocating one on first use.
// The empty string maps to the zero Quark.
func (t *Table) Intern(s string) (Quark, error) {
	if s == "" {
		return 0, nil
	}
	t.mu.RLock()
	q, ok := t.index[s]
	t.mu.RUnlock()
	if ok {
		return q, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if q, ok := t.index[s]; ok {
		return q, nil
	}
	id, err := safecast.Conv[uint32](len(t.off))
	if err != nil {
		return 0, fmt.Errorf("quark table overflow: %w", err)
	}
	off, err := safecast.Conv[uint32](len(t.blob))
	if err != nil {
		return 0, fmt.Errorf("quark blob overflow: %w", err)
	}
	n, err := safecast.Conv[uint32](len(s))
	if err != nil {
		return 0, fmt.Errorf("quark %q too long: %w", s, err)
	}
	q = Quark(id)
	t.index[s] = q
	t.off = append(t.off, off)
	t.size = append(t.size, n)
	t.blob = append(t.blob, s...)
	return q, nil
}

// Lookup returns the quark for s without interning it.
func (t *Table) Lookup(s string) (Quark, bool) {
	if s == "" {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.index[s]
	return q, ok
}

// String returns the interned string for q, or "" for unknown quarks.
func (t *Table) String(q Quark) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if q == 0 || int(q) >= len(t.off) {
		return ""
	}
	start := t.off[q]
	return string(t.blob[start : start+t.size[q]])
}

// Len reports the number of interned strings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.off) - 1
}
