package typereg

import "slices"

// Name returns the registered name of t, or "" for an invalid type.
func (r *Registry) Name(t TypeID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return n.name
	}
	return ""
}

// FromName returns the type registered under name, or TypeInvalid.
func (r *Registry) FromName(name string) TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Parent returns the parent of t, or TypeInvalid for fundamentals.
func (r *Registry) Parent(t TypeID) TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return n.parent()
	}
	return TypeInvalid
}

// Depth returns the number of ancestors of t. Fundamentals have depth 0.
func (r *Registry) Depth(t TypeID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return n.depth()
	}
	return 0
}

// Fundamental returns the root of t's ancestor chain.
func (r *Registry) Fundamental(t TypeID) TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return n.fundamental()
	}
	return TypeInvalid
}

// Ancestors returns t's ancestor chain, t first and its fundamental last.
func (r *Registry) Ancestors(t TypeID) []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return slices.Clone(n.supers)
	}
	return nil
}

// NextBase returns the child of root on the way down to leaf, or
// TypeInvalid when root is not a strict ancestor of leaf.
func (r *Registry) NextBase(leaf, root TypeID) TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ln, rn := r.lookup(leaf), r.lookup(root)
	if ln == nil || rn == nil || len(ln.supers) <= len(rn.supers) || !ln.descends(rn) {
		return TypeInvalid
	}
	return ln.supers[len(ln.supers)-len(rn.supers)-1]
}

// IsA reports whether t is target, descends from it, conforms to it as an
// interface, or (for interface types) has it as a prerequisite.
func (r *Registry) IsA(t, target TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	if n == nil {
		return false
	}
	if t == target {
		return true
	}
	if ok, hit := r.isa.Get(uint64(t), uint64(target)); hit {
		return ok
	}
	gen := r.isa.Generation()
	ok := r.isALocked(n, target)
	r.isa.Put(gen, uint64(t), uint64(target), ok)
	return ok
}

// isALocked answers IsA without the memo. Requires mu.
func (r *Registry) isALocked(n *typeNode, target TypeID) bool {
	tn := r.lookup(target)
	if tn == nil {
		return false
	}
	if n.descends(tn) {
		return true
	}
	if tn.iface && n.classed && n.ifaceEntry(target) != nil {
		return true
	}
	return n.iface && n.hasPrerequisite(target)
}

// Children returns a copy of t's direct children in registration order.
func (r *Registry) Children(t TypeID) []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return slices.Clone(n.children)
	}
	return nil
}

// Interfaces returns the interfaces t conforms to, sorted by id.
func (r *Registry) Interfaces(t TypeID) []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	if n == nil {
		return nil
	}
	out := make([]TypeID, len(n.ifaces))
	for i, e := range n.ifaces {
		out[i] = e.iface
	}
	return out
}

// InterfacePrerequisites returns the prerequisites of interface t, sorted by id.
func (r *Registry) InterfacePrerequisites(t TypeID) []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil && n.iface {
		return slices.Clone(n.prerequisites)
	}
	return nil
}

// InterfaceInstantiatablePrerequisite returns the most derived instantiatable
// prerequisite of interface t, or TypeInvalid.
func (r *Registry) InterfaceInstantiatablePrerequisite(t TypeID) TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	if n == nil || !n.iface {
		return TypeInvalid
	}
	if p := r.instantiatablePrerequisiteLocked(n); p != nil {
		return p.id
	}
	return TypeInvalid
}

// TestFlags reports whether t carries every flag in flags.
func (r *Registry) TestFlags(t TypeID, flags TypeFlags) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	return n != nil && n.flags&flags == flags
}

// TestFundamentalFlags reports whether t's fundamental carries every flag in flags.
func (r *Registry) TestFundamentalFlags(t TypeID, flags FundamentalFlags) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	if n == nil {
		return false
	}
	return r.lookup(n.fundamental()).fflags&flags == flags
}

// Query reports the name and sizes of a classed type. Sizes of a dynamic type
// are known once its plugin has completed it.
func (r *Registry) Query(t TypeID) (Query, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	if n == nil || !n.classed || !n.sized {
		return Query{}, false
	}
	return Query{Type: n.id, Name: n.name, ClassSize: n.classSize, InstanceSize: n.instanceSize}, true
}

// Types returns every registered type: fundamentals by id, then derived
// types in registration order.
func (r *Registry) Types() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeID, 0, len(r.byName))
	for _, n := range r.fundamentals {
		if n != nil {
			out = append(out, n.id)
		}
	}
	for _, n := range r.derived {
		out = append(out, n.id)
	}
	return out
}

// TypeGetPlugin returns the plugin of a dynamic type, or nil.
func (r *Registry) TypeGetPlugin(t TypeID) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return n.plugin
	}
	return nil
}

// InterfaceGetPlugin returns the plugin supplying iface for instanceType, or nil.
func (r *Registry) InterfaceGetPlugin(instanceType, iface TypeID) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in := r.lookup(iface)
	if in == nil || !in.iface {
		return nil
	}
	if h := in.holderFor(instanceType); h != nil {
		return h.plugin
	}
	return nil
}

// ValueTablePeek returns the value table of t, falling back to the nearest
// ancestor that has one.
func (r *Registry) ValueTablePeek(t TypeID) *ValueTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.lookup(t)
	if n == nil {
		return nil
	}
	for _, id := range n.supers {
		a := r.lookup(id)
		switch {
		case a.data != nil && a.data.info.ValueTable != nil:
			return a.data.info.ValueTable
		case a.info != nil && a.info.ValueTable != nil:
			return a.info.ValueTable
		}
	}
	return nil
}

// InstanceCount returns the number of live instances of t. It is only
// maintained when the registry was built WithInstanceCount.
func (r *Registry) InstanceCount(t TypeID) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := r.lookup(t); n != nil {
		return n.instances.Load()
	}
	return 0
}
