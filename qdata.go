package typereg

import (
	"github.com/jacoelho/typereg/errors"
	"github.com/jacoelho/typereg/internal/quark"
	"github.com/jacoelho/typereg/internal/sortedtab"
)

// Quark is an interned string used as a qdata key. The zero Quark stands for
// the empty string.
type Quark = quark.Quark

// SetQData attaches value to t under key. A nil value removes the entry.
func (r *Registry) SetQData(t TypeID, key Quark, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.lookup(t)
	if n == nil {
		return r.reject(errors.ErrInvalidType, "set qdata", "", "invalid type %d", uint64(t))
	}
	if key == 0 {
		return r.reject(errors.ErrInvalidName, "set qdata", n.name, "qdata key must not be empty")
	}
	if value == nil {
		n.qdata, _ = sortedtab.Remove(n.qdata, key, qdataKey)
		return nil
	}
	n.qdata = sortedtab.Upsert(n.qdata, qdataEntry{key: key, value: value}, qdataKey)
	return nil
}

// QData returns the value attached to t under key, or nil.
func (r *Registry) QData(t TypeID, key Quark) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	if n == nil {
		return nil
	}
	if e := sortedtab.Lookup(n.qdata, key, qdataKey); e != nil {
		return e.value
	}
	return nil
}
