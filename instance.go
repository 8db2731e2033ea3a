package typereg

import (
	"github.com/jacoelho/typereg/errors"
	"github.com/jacoelho/typereg/internal/layout"
)

const (
	opAddPrivate     = "add instance private"
	opCreateInstance = "create instance"
	opFreeInstance   = "free instance"
	opInstanceCast   = "instance cast"
)

// scrubByte fills freed instance memory when scrubbing is enabled.
const scrubByte = 0xAA

// AddInstancePrivate reserves size bytes of private data for t in every
// instance of t and its descendants. It must be called once, before the
// class of t or of any descendant declaring private data exists. The
// result is the offset of t's region from the start of the private area.
func (r *Registry) AddInstancePrivate(t TypeID, size int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lookup(t)
	if n == nil {
		return 0, r.reject(errors.ErrInvalidType, opAddPrivate, "", "invalid type %d", uint64(t))
	}
	if !n.instantiatable {
		return 0, r.reject(errors.ErrNotInstantiatable, opAddPrivate, n.name, "cannot add private data to non-instantiatable type")
	}
	if n.privateSize != 0 {
		return 0, r.reject(errors.ErrPrivateData, opAddPrivate, n.name, "private data already added")
	}
	if n.privateSealed {
		return 0, r.reject(errors.ErrPrivateData, opAddPrivate, n.name, "private data must be added before the class is created")
	}
	aligned, err := layout.PrivateSize(size)
	if err != nil {
		return 0, r.reject(errors.ErrPrivateData, opAddPrivate, n.name, "%v", err)
	}
	before, err := r.privateBeforeLocked(n)
	if err != nil {
		return 0, r.reject(errors.ErrCounterOverflow, opAddPrivate, n.name, "%v", err)
	}
	offset, err := layout.Len(before)
	if err != nil {
		return 0, r.reject(errors.ErrCounterOverflow, opAddPrivate, n.name, "%v", err)
	}

	n.privateSize = aligned
	for _, id := range n.supers[1:] {
		r.lookup(id).privateSealed = true
	}
	r.log.Debug("added instance private", "type", n.name, "size", aligned, "offset", offset)
	return offset, nil
}

// privateBeforeLocked sums the private sizes of n's strict ancestors.
func (r *Registry) privateBeforeLocked(n *typeNode) (uint32, error) {
	var sum uint32
	for _, id := range n.supers[1:] {
		var err error
		if sum, err = layout.Add(sum, r.lookup(id).privateSize); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

type instanceInit struct {
	fn    InstanceInitFunc
	class *Class
}

// CreateInstance allocates and initializes an instance of t. Every
// ancestor's instance init runs first, root to leaf, with the instance's
// class temporarily set to that ancestor's class.
func (r *Registry) CreateInstance(t TypeID) (*Instance, error) {
	r.mu.RLock()
	n := r.lookup(t)
	switch {
	case n == nil:
		r.mu.RUnlock()
		return nil, r.reject(errors.ErrInvalidType, opCreateInstance, "", "cannot create instance of invalid type %d", uint64(t))
	case !n.instantiatable:
		r.mu.RUnlock()
		return nil, r.reject(errors.ErrNotInstantiatable, opCreateInstance, n.name, "cannot create instance of non-instantiatable type")
	case n.flags&TypeFlagAbstract != 0:
		r.mu.RUnlock()
		return nil, r.reject(errors.ErrAbstract, opCreateInstance, n.name, "cannot create instance of abstract type")
	}
	r.mu.RUnlock()

	c, err := r.ClassRef(t)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	d := n.data
	size, p := d.allocSize, d.pool
	inits := make([]instanceInit, 0, len(n.supers))
	for i := len(n.supers) - 1; i >= 0; i-- {
		a := r.lookup(n.supers[i])
		if fn := a.data.info.InstanceInit; fn != nil {
			inits = append(inits, instanceInit{fn: fn, class: a.data.class})
		}
	}
	r.mu.RUnlock()

	var buf []byte
	if p != nil {
		buf = p.Get()
	} else {
		buf = make([]byte, size)
	}
	inst := &Instance{Data: buf}
	for _, in := range inits {
		inst.class = in.class
		in.fn(inst, c)
	}
	inst.class = c
	if r.countInstances {
		n.instances.Add(1)
	}
	return inst, nil
}

// FreeInstance releases inst and the class reference it holds.
func (r *Registry) FreeInstance(inst *Instance) error {
	c := inst.Class()
	if c == nil {
		return r.reject(errors.ErrInvalidInstance, opFreeInstance, "", "cannot free instance without class")
	}

	r.mu.RLock()
	n := r.lookup(c.typ)
	if n == nil || n.data == nil || n.data.class != c {
		name := r.nameOf(c.typ)
		r.mu.RUnlock()
		return r.reject(errors.ErrInvalidInstance, opFreeInstance, name, "instance class is not live")
	}
	p := n.data.pool
	r.mu.RUnlock()

	inst.class = nil
	if r.scrub {
		for i := range inst.Data {
			inst.Data[i] = scrubByte
		}
	}
	if p != nil {
		p.Put(inst.Data)
	}
	inst.Data = nil
	if r.countInstances {
		n.instances.Add(-1)
	}
	r.ClassUnref(c)
	return nil
}

// InstancePrivate returns the private region that ancestor type t reserved
// in inst, or nil when t declared none or inst is not a t.
func (r *Registry) InstancePrivate(inst *Instance, t TypeID) []byte {
	c := inst.Class()
	if c == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	leaf, a := r.lookup(c.typ), r.lookup(t)
	if leaf == nil || a == nil || !leaf.descends(a) || a.privateSize == 0 {
		return nil
	}
	before, err := r.privateBeforeLocked(a)
	if err != nil {
		return nil
	}
	off, err := layout.Offset(uint32(leaf.instanceSize), before)
	if err != nil {
		return nil
	}
	end := off + int(a.privateSize)
	if end > len(inst.Data) {
		return nil
	}
	return inst.Data[off:end:end]
}

// InstanceIsA reports whether inst is live and its type IsA t.
func (r *Registry) InstanceIsA(inst *Instance, t TypeID) bool {
	c := inst.Class()
	return c != nil && r.IsA(c.typ, t)
}

// CheckInstanceCast returns inst when it may be used as a t.
func (r *Registry) CheckInstanceCast(inst *Instance, t TypeID) (*Instance, error) {
	c := inst.Class()
	if c == nil {
		return nil, r.reject(errors.ErrInvalidInstance, opInstanceCast, r.Name(t), "invalid unclassed instance")
	}
	if !r.IsA(c.typ, t) {
		return nil, r.reject(errors.ErrInvalidInstance, opInstanceCast, r.Name(c.typ),
			"invalid cast from '%s' to '%s'", r.Name(c.typ), r.Name(t))
	}
	return inst, nil
}
