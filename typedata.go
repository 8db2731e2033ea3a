package typereg

import (
	"math"
	"slices"

	"github.com/jacoelho/typereg/errors"
	"github.com/jacoelho/typereg/internal/layout"
	"github.com/jacoelho/typereg/internal/pool"
)

// typeData is the lazily built payload of a node. It exists from the first
// reference until the reference count drops back to zero.
//
// For classed types class is set and state tracks construction. For
// interface types dflt is the default vtable and dfltState tracks it.
type typeData struct {
	info      TypeInfo
	class     *Class
	dflt      *VTable
	pool      *pool.Pool
	allocSize int
	refCount  uint32
	state     InitState
	dfltState InitState
	// ownsParent is set when the payload holds a reference on the parent's payload.
	ownsParent bool
}

// refLocked adds a reference to an existing payload. Requires mu held for writing.
func (r *Registry) refLocked(node *typeNode) {
	d := node.data
	if d.refCount == math.MaxUint32 {
		r.mu.Unlock()
		r.fatal(errors.FatalRefOverflow, "reference count of '%s' overflows", node.name)
	}
	d.refCount++
}

// checkConstructingLocked fatals when node has a payload that is still being
// built or torn down by this goroutine. Requires initMu and mu held for writing.
func (r *Registry) checkConstructingLocked(node *typeNode) {
	d := node.data
	if d == nil {
		return
	}
	if d.refCount == 0 {
		r.mu.Unlock()
		r.fatal(errors.FatalRecursion, "payload of '%s' referenced during its own teardown", node.name)
	}
	if node.classed && d.state != Initialized {
		r.mu.Unlock()
		r.fatal(errors.FatalRecursion, "class of '%s' referenced during its own construction (state %s)", node.name, d.state)
	}
}

// makeDataLocked creates node's payload with one reference. Dynamic types
// are completed through their plugin with mu released. Requires initMu and
// mu held for writing, and node.data == nil.
func (r *Registry) makeDataLocked(node *typeNode) {
	var info TypeInfo
	if node.plugin == nil {
		info = *node.info
	} else {
		if node.completing {
			r.mu.Unlock()
			r.fatal(errors.FatalRecursion, "payload of '%s' referenced while its plugin was completing it", node.name)
		}
		node.completing = true
		plugin := node.plugin
		var err error
		r.unlockedCall(plugin.Use)
		r.unlockedCall(func() { info, err = plugin.CompleteTypeInfo(node.id) })
		node.completing = false
		if node.data != nil {
			r.mu.Unlock()
			r.fatal(errors.FatalRecursion, "payload of '%s' created while its plugin was completing it", node.name)
		}
		if err != nil {
			r.mu.Unlock()
			r.fatal(errors.FatalPluginInfo, "plugin failed to complete type info of '%s': %v", node.name, err)
		}
		r.acceptCompletedInfoLocked(node, &info)
	}
	r.checkParentSizesLocked(node, &info)
	if info.ValueTable == nil {
		if pnode := r.lookup(node.parent()); pnode != nil && pnode.data != nil {
			info.ValueTable = pnode.data.info.ValueTable
		}
	}
	node.data = &typeData{info: info, refCount: 1}
}

// acceptCompletedInfoLocked validates info returned by a plugin. Requires mu
// held for writing.
func (r *Registry) acceptCompletedInfoLocked(node *typeNode, info *TypeInfo) {
	root := r.lookup(node.fundamental())
	if err := r.checkTypeInfo(opRegisterDynamic, node.name, nil, node.classed, node.instantiatable, root.iface, info); err != nil {
		r.mu.Unlock()
		r.fatal(errors.FatalPluginInfo, "plugin returned invalid type info: %v", err)
	}
	if node.sized && (node.classSize != info.ClassSize || node.instanceSize != info.InstanceSize) {
		r.mu.Unlock()
		r.fatal(errors.FatalPluginInfo, "plugin changed sizes of '%s' from %d/%d to %d/%d",
			node.name, node.classSize, node.instanceSize, info.ClassSize, info.InstanceSize)
	}
	if info.ValueTable != nil {
		vt := *info.ValueTable
		info.ValueTable = &vt
	}
	node.classSize = info.ClassSize
	node.instanceSize = info.InstanceSize
	node.sized = true
}

// checkParentSizesLocked catches static children registered below a dynamic
// parent whose sizes were unknown at registration time.
func (r *Registry) checkParentSizesLocked(node *typeNode, info *TypeInfo) {
	pnode := r.lookup(node.parent())
	if pnode == nil || !pnode.sized {
		return
	}
	if (node.classed || node.iface) && info.ClassSize < pnode.classSize {
		r.mu.Unlock()
		r.fatal(errors.FatalPluginInfo, "class size %d of '%s' smaller than parent '%s' class size %d",
			info.ClassSize, node.name, pnode.name, pnode.classSize)
	}
	if node.instantiatable && info.InstanceSize < pnode.instanceSize {
		r.mu.Unlock()
		r.fatal(errors.FatalPluginInfo, "instance size %d of '%s' smaller than parent '%s' instance size %d",
			info.InstanceSize, node.name, pnode.name, pnode.instanceSize)
	}
}

// prepareInstancesLocked fixes the allocation size of node's instances and
// sets up its preallocation pool. Requires mu held for writing.
func (r *Registry) prepareInstancesLocked(node *typeNode) {
	var private uint32
	for _, id := range node.supers {
		n := r.lookup(id)
		var err error
		if private, err = layout.Add(private, n.privateSize); err != nil {
			r.mu.Unlock()
			r.fatal(errors.FatalLayout, "private data of '%s' overflows: %v", node.name, err)
		}
	}
	total, err := layout.Total(uint32(node.instanceSize), private)
	if err == nil {
		node.data.allocSize, err = layout.Len(total)
	}
	if err != nil {
		r.mu.Unlock()
		r.fatal(errors.FatalLayout, "instance size of '%s' overflows: %v", node.name, err)
	}
	if n := node.data.info.NPreallocs; n > 0 {
		node.data.pool = pool.New(node.data.allocSize, int(n))
	}
}

// releaseParentLocked drops the reference a torn down payload held on its
// parent. Requires initMu and mu held for writing.
func (r *Registry) releaseParentLocked(node *typeNode, owned bool) {
	if !owned {
		return
	}
	pnode := r.lookup(node.parent())
	if pnode.classed {
		pclass := pnode.data.class
		r.unlockedCall(func() { r.classUnref(pclass, true) })
		return
	}
	r.ifaceDataUnrefLocked(pnode)
}

// lastUnrefLocked tears down a classed payload whose final reference is
// being released. Requires initMu and mu held for writing.
func (r *Registry) lastUnrefLocked(node *typeNode) {
	d := node.data
	d.refCount = 0
	c := d.class

	for {
		i := slices.IndexFunc(node.ifaces, func(e ifaceEntry) bool { return e.vtable != nil })
		if i < 0 {
			break
		}
		e := &node.ifaces[i]
		vt, iface := e.vtable, e.iface
		e.vtable = nil
		e.state = Uninitialized
		if vt.instanceType == node.id {
			r.ifaceFinalizeLocked(node, r.lookup(iface), vt)
		}
	}
	for i := range node.ifaces {
		node.ifaces[i].state = Uninitialized
	}

	var bases []BaseFinalizeFunc
	for _, id := range node.supers {
		if n := r.lookup(id); n.data != nil && n.data.info.BaseFinalize != nil {
			bases = append(bases, n.data.info.BaseFinalize)
		}
	}
	fin, data := d.info.ClassFinalize, d.info.ClassData
	r.unlockedCall(func() {
		if fin != nil {
			fin(c, data)
		}
		for _, fn := range bases {
			fn(c)
		}
	})

	node.data = nil
	r.log.Debug("class finalized", "type", node.name)
	if plugin := node.plugin; plugin != nil {
		r.unlockedCall(plugin.Unuse)
	}
	r.releaseParentLocked(node, d.ownsParent)
}
