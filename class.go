package typereg

import (
	"slices"

	"github.com/jacoelho/typereg/errors"
)

const opClassRef = "class ref"

// ClassRef returns the class structure of t, constructing it on first use,
// and adds a reference to it. Parent classes are referenced first.
func (r *Registry) ClassRef(t TypeID) (*Class, error) {
	r.mu.Lock()
	node := r.lookup(t)
	if node == nil {
		r.mu.Unlock()
		return nil, r.reject(errors.ErrInvalidType, opClassRef, "", "cannot retrieve class for invalid type %d", uint64(t))
	}
	if !node.classed {
		r.mu.Unlock()
		return nil, r.reject(errors.ErrNotClassed, opClassRef, node.name, "cannot retrieve class for unclassed type")
	}
	if d := node.data; d != nil && d.refCount > 0 && d.state == Initialized {
		r.refLocked(node)
		c := d.class
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	r.initMu.Lock()
	defer r.initMu.Unlock()
	return r.classRefSlow(node), nil
}

// classRefSlow references node's class, building it when absent. Requires initMu.
func (r *Registry) classRefSlow(node *typeNode) *Class {
	r.mu.Lock()
	r.checkConstructingLocked(node)
	if d := node.data; d != nil {
		r.refLocked(node)
		c := d.class
		r.mu.Unlock()
		return c
	}
	pnode := r.lookup(node.parent())
	r.mu.Unlock()

	var pclass *Class
	if pnode != nil {
		pclass = r.classRefSlow(pnode)
	}

	r.mu.Lock()
	if node.data != nil {
		r.mu.Unlock()
		r.fatal(errors.FatalRecursion, "class of '%s' created while its parent was being referenced", node.name)
	}
	r.makeDataLocked(node)
	node.data.ownsParent = pclass != nil
	r.classInitLocked(node, pclass)
	c := node.data.class
	r.mu.Unlock()
	return c
}

// classInitLocked walks node's class through every construction state.
// Requires initMu and mu held for writing; mu is released around callbacks.
func (r *Registry) classInitLocked(node *typeNode, pclass *Class) {
	d := node.data
	d.state = BaseClassInit
	c := &Class{typ: node.id, Slots: make([]any, d.info.ClassSize)}
	if pclass != nil {
		copy(c.Slots, pclass.Slots)
	}
	d.class = c
	node.privateSealed = true
	if node.instantiatable {
		r.prepareInstancesLocked(node)
	}

	var bases []BaseInitFunc
	for i := len(node.supers) - 1; i >= 0; i-- {
		if n := r.lookup(node.supers[i]); n.data != nil && n.data.info.BaseInit != nil {
			bases = append(bases, n.data.info.BaseInit)
		}
	}
	for _, fn := range bases {
		r.unlockedCall(func() { fn(c) })
	}

	d.state = BaseIfaceInit
	for {
		i := slices.IndexFunc(node.ifaces, func(e ifaceEntry) bool { return e.state == Uninitialized })
		if i < 0 {
			break
		}
		r.ifaceBaseInitLocked(node, node.ifaces[i].iface)
	}

	d.state = ClassInit
	if fn := d.info.ClassInit; fn != nil {
		data := d.info.ClassData
		r.unlockedCall(func() { fn(c, data) })
	}

	d.state = IfaceInit
	for {
		i := slices.IndexFunc(node.ifaces, func(e ifaceEntry) bool { return e.state == IfaceInit })
		if i < 0 {
			break
		}
		r.ifaceInitLocked(node, node.ifaces[i].iface)
	}

	d.state = Initialized
	r.log.Debug("class initialized", "type", node.name)
}

// ClassUnref releases a reference obtained from ClassRef. Releasing the last
// reference consults the class-cache hooks and then tears the class down.
func (r *Registry) ClassUnref(c *Class) {
	r.classUnref(c, true)
}

// ClassUnrefUncached releases a reference without consulting the
// class-cache hooks. Hooks use it to drop a reference they kept.
func (r *Registry) ClassUnrefUncached(c *Class) {
	r.classUnref(c, false)
}

func (r *Registry) classUnref(c *Class, cached bool) {
	r.mu.Lock()
	node := r.classNodeLocked(c)
	if node.data.refCount > 1 {
		node.data.refCount--
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.initMu.Lock()
	defer r.initMu.Unlock()

	if cached {
		r.mu.RLock()
		hooks := slices.Clone(r.classCaches)
		r.mu.RUnlock()
		for _, h := range hooks {
			if h.fn(h.data, c) {
				return
			}
		}
	}

	r.mu.Lock()
	node = r.classNodeLocked(c)
	if node.data.refCount > 1 {
		node.data.refCount--
		r.mu.Unlock()
		return
	}
	r.lastUnrefLocked(node)
	r.mu.Unlock()
}

// classNodeLocked returns the node whose live class is c. Requires mu held
// for writing; fatals with mu released when c holds no reference.
func (r *Registry) classNodeLocked(c *Class) *typeNode {
	if c == nil {
		r.mu.Unlock()
		r.fatal(errors.FatalUnreferenced, "cannot unreference nil class")
	}
	node := r.lookup(c.typ)
	if node == nil || !node.classed || node.data == nil || node.data.class != c || node.data.refCount == 0 {
		name := r.nameOf(c.typ)
		r.mu.Unlock()
		r.fatal(errors.FatalUnreferenced, "cannot unreference class of '%s' without a reference", name)
	}
	return node
}

// ClassPeek returns the class of t if it is referenced, without adding a
// reference. A class under construction is only visible to the goroutine
// building it.
func (r *Registry) ClassPeek(t TypeID) *Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classPeekLocked(r.lookup(t))
}

// ClassPeekStatic is ClassPeek restricted to statically registered types.
func (r *Registry) ClassPeekStatic(t TypeID) *Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.lookup(t)
	if node == nil || node.plugin != nil {
		return nil
	}
	return r.classPeekLocked(node)
}

// ClassPeekParent returns the class of c's parent type. A live class always
// holds a reference on its parent.
func (r *Registry) ClassPeekParent(c *Class) *Class {
	if c == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.lookup(c.typ)
	if node == nil {
		return nil
	}
	return r.classPeekLocked(r.lookup(node.parent()))
}

func (r *Registry) classPeekLocked(node *typeNode) *Class {
	if node == nil || !node.classed || node.data == nil || node.data.refCount == 0 {
		return nil
	}
	if node.data.state != Initialized && !r.initMu.Held() {
		return nil
	}
	return node.data.class
}

// InitState reports the construction state of t's class, or of its default
// vtable when t is an interface.
func (r *Registry) InitState(t TypeID) InitState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.lookup(t)
	if node == nil || node.data == nil {
		return Uninitialized
	}
	if node.iface {
		return node.data.dfltState
	}
	return node.data.state
}
