package typereg

import "github.com/jacoelho/typereg/errors"

const opDefaultInterfaceRef = "default interface ref"

// DefaultInterfaceRef returns the default vtable of interface t, building it
// on first use, and adds a reference to the interface payload.
func (r *Registry) DefaultInterfaceRef(t TypeID) (*VTable, error) {
	r.mu.Lock()
	inode := r.lookup(t)
	if inode == nil {
		r.mu.Unlock()
		return nil, r.reject(errors.ErrInvalidType, opDefaultInterfaceRef, "", "invalid type %d", uint64(t))
	}
	if !inode.iface {
		r.mu.Unlock()
		return nil, r.reject(errors.ErrNotInterface, opDefaultInterfaceRef, inode.name, "type is not an interface")
	}
	if d := inode.data; d != nil && d.refCount > 0 && d.dfltState == Initialized {
		r.refLocked(inode)
		vt := d.dflt
		r.mu.Unlock()
		return vt, nil
	}
	r.mu.Unlock()

	r.initMu.Lock()
	defer r.initMu.Unlock()
	r.mu.Lock()
	r.ifaceDataRefLocked(inode)
	vt := inode.data.dflt
	r.mu.Unlock()
	return vt, nil
}

// DefaultInterfaceUnref releases a reference obtained from DefaultInterfaceRef.
func (r *Registry) DefaultInterfaceUnref(vt *VTable) {
	r.mu.Lock()
	inode := r.dfltNodeLocked(vt)
	if inode.data.refCount > 1 {
		inode.data.refCount--
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.initMu.Lock()
	defer r.initMu.Unlock()
	r.mu.Lock()
	inode = r.dfltNodeLocked(vt)
	r.ifaceDataUnrefLocked(inode)
	r.mu.Unlock()
}

func (r *Registry) dfltNodeLocked(vt *VTable) *typeNode {
	if vt == nil {
		r.mu.Unlock()
		r.fatal(errors.FatalUnreferenced, "cannot unreference nil default vtable")
	}
	inode := r.lookup(vt.typ)
	if inode == nil || !inode.iface || inode.data == nil || inode.data.dflt != vt || inode.data.refCount == 0 {
		name := r.nameOf(vt.typ)
		r.mu.Unlock()
		r.fatal(errors.FatalUnreferenced, "cannot unreference default vtable of '%s' without a reference", name)
	}
	return inode
}

// DefaultInterfacePeek returns the default vtable of t if the interface is
// referenced, without adding a reference.
func (r *Registry) DefaultInterfacePeek(t TypeID) *VTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inode := r.lookup(t)
	if inode == nil || !inode.iface || inode.data == nil || inode.data.refCount == 0 {
		return nil
	}
	if inode.data.dfltState != Initialized && !r.initMu.Held() {
		return nil
	}
	return inode.data.dflt
}

// ifaceDataRefLocked references inode's payload, creating it and its
// default vtable when absent. Requires initMu and mu held for writing.
func (r *Registry) ifaceDataRefLocked(inode *typeNode) {
	r.checkConstructingLocked(inode)
	if inode.data != nil {
		r.refLocked(inode)
	} else {
		pnode := r.lookup(inode.parent())
		owns := pnode != nil && pnode.id != TypeInterface
		if owns {
			r.ifaceDataRefLocked(pnode)
		}
		if inode.data != nil {
			r.mu.Unlock()
			r.fatal(errors.FatalRecursion, "payload of '%s' created while its parent was being referenced", inode.name)
		}
		r.makeDataLocked(inode)
		inode.data.ownsParent = owns
	}
	r.ensureDefaultVTableLocked(inode)
}

// ensureDefaultVTableLocked builds the default vtable of a referenced
// interface. Requires initMu and mu held for writing.
func (r *Registry) ensureDefaultVTableLocked(inode *typeNode) {
	d := inode.data
	switch d.dfltState {
	case Initialized:
		return
	case Uninitialized:
	default:
		r.mu.Unlock()
		r.fatal(errors.FatalRecursion, "default vtable of '%s' referenced during its own construction", inode.name)
	}
	d.dfltState = BaseClassInit
	vt := &VTable{typ: inode.id, Slots: make([]any, d.info.ClassSize)}
	d.dflt = vt
	if fn := d.info.BaseInit; fn != nil {
		r.unlockedCall(func() { fn(vt) })
	}
	d.dfltState = ClassInit
	if fn := d.info.ClassInit; fn != nil {
		data := d.info.ClassData
		r.unlockedCall(func() { fn(vt, data) })
	}
	d.dfltState = Initialized
	r.log.Debug("default vtable initialized", "type", inode.name)
}

// ifaceDataUnrefLocked releases a reference on inode's payload and tears it
// down when it was the last. Requires initMu and mu held for writing.
func (r *Registry) ifaceDataUnrefLocked(inode *typeNode) {
	d := inode.data
	if d == nil || d.refCount == 0 {
		r.mu.Unlock()
		r.fatal(errors.FatalUnreferenced, "cannot unreference interface '%s' without a reference", inode.name)
	}
	if d.refCount > 1 {
		d.refCount--
		return
	}
	d.refCount = 0
	if vt := d.dflt; vt != nil && d.dfltState == Initialized {
		fin, base, data := d.info.ClassFinalize, d.info.BaseFinalize, d.info.ClassData
		r.unlockedCall(func() {
			if fin != nil {
				fin(vt, data)
			}
			if base != nil {
				base(vt)
			}
		})
	}
	inode.data = nil
	r.log.Debug("interface finalized", "type", inode.name)
	if plugin := inode.plugin; plugin != nil {
		r.unlockedCall(plugin.Unuse)
	}
	r.releaseParentLocked(inode, d.ownsParent)
}
