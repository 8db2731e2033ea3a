package typereg

import (
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/jacoelho/typereg/errors"
	"github.com/jacoelho/typereg/internal/graphcycle"
	"github.com/jacoelho/typereg/internal/sortedtab"
	"github.com/jacoelho/typereg/internal/state"
)

const (
	opAddInterface    = "add interface"
	opAddPrerequisite = "add prerequisite"
)

// AddInterfaceStatic declares that instanceType implements ifaceType with
// the given info.
func (r *Registry) AddInterfaceStatic(instanceType, ifaceType TypeID, info InterfaceInfo) error {
	return r.addInterface(instanceType, ifaceType, &info, nil)
}

// AddInterfaceDynamic declares that instanceType implements ifaceType with
// info completed by plugin when the vtable is first built.
func (r *Registry) AddInterfaceDynamic(instanceType, ifaceType TypeID, plugin Plugin) error {
	if plugin == nil {
		r.mu.RLock()
		name := r.nameOf(instanceType)
		r.mu.RUnlock()
		return r.reject(errors.ErrInvalidPlugin, opAddInterface, name, "plugin is nil")
	}
	return r.addInterface(instanceType, ifaceType, nil, plugin)
}

func (r *Registry) addInterface(instanceType, ifaceType TypeID, info *InterfaceInfo, plugin Plugin) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	r.mu.Lock()
	node, inode, proceed, err := r.checkAddInterfaceLocked(instanceType, ifaceType, info, plugin)
	if err == nil && proceed {
		r.addInterfaceLocked(node, inode, info, plugin)
	}
	r.mu.Unlock()
	return err
}

// checkAddInterfaceLocked validates an interface declaration. proceed is
// false for a repeated identical declaration. Requires mu held for writing.
func (r *Registry) checkAddInterfaceLocked(instanceType, ifaceType TypeID, info *InterfaceInfo, plugin Plugin) (*typeNode, *typeNode, bool, error) {
	const op = opAddInterface
	node := r.lookup(instanceType)
	inode := r.lookup(ifaceType)
	if node == nil {
		return nil, nil, false, r.reject(errors.ErrInvalidType, op, "", "invalid instance type %d", uint64(instanceType))
	}
	if err := r.checkOpen(op, node.name); err != nil {
		return nil, nil, false, err
	}
	if !node.instantiatable {
		return nil, nil, false, r.reject(errors.ErrNotInstantiatable, op, node.name, "cannot add interfaces to non-instantiatable type")
	}
	if inode == nil || !inode.iface || inode.id == TypeInterface {
		return nil, nil, false, r.reject(errors.ErrNotInterface, op, node.name, "cannot add invalid interface type %s", r.nameOf(ifaceType))
	}
	if p := inode.parent(); p != TypeInterface && node.ifaceEntry(p) == nil {
		return nil, nil, false, r.reject(errors.ErrInterfaceParent, op, node.name,
			"cannot add sub-interface '%s' to type not conforming to interface parent '%s'", inode.name, r.nameOf(p))
	}
	if holder := inode.holderFor(node.id); holder != nil {
		if holder.plugin == plugin {
			return node, inode, false, nil
		}
		return nil, nil, false, r.reject(errors.ErrInterfaceHolder, op, node.name,
			"interface '%s' is already supplied differently for this type", inode.name)
	}
	if info != nil && info.InterfaceInit == nil && (info.InterfaceFinalize != nil || info.InterfaceData != nil) {
		return nil, nil, false, r.reject(errors.ErrInvalidTypeInfo, op, node.name,
			"interface info for '%s' has finalize or data without init", inode.name)
	}

	// A type may take over an interface it inherited while its class is unbuilt.
	if e := node.ifaceEntry(inode.id); e != nil && e.vtable == nil {
		return node, inode, true, nil
	}

	var conflict *typeNode
	full := false
	state.Preorder(node, r.childNodes, func(n *typeNode) bool {
		if n.ifaceEntry(inode.id) != nil {
			conflict = n
			return false
		}
		if len(n.ifaces) >= MaxInterfaces {
			full = true
			conflict = n
			return false
		}
		return true
	})
	if full {
		return nil, nil, false, r.reject(errors.ErrCounterOverflow, op, node.name,
			"type '%s' already conforms to %d interfaces", conflict.name, MaxInterfaces)
	}
	if conflict != nil {
		return nil, nil, false, r.reject(errors.ErrInterfaceConflict, op, node.name,
			"cannot add interface '%s': descendant '%s' already conforms", inode.name, conflict.name)
	}
	for _, p := range inode.prerequisites {
		if !r.isALocked(node, p) {
			return nil, nil, false, r.reject(errors.ErrPrerequisite, op, node.name,
				"cannot add interface '%s': type does not conform to prerequisite '%s'", inode.name, r.nameOf(p))
		}
	}
	return node, inode, true, nil
}

func (r *Registry) childNodes(n *typeNode) []*typeNode {
	out := make([]*typeNode, len(n.children))
	for i, id := range n.children {
		out[i] = r.lookup(id)
	}
	return out
}

// addInterfaceLocked records the holder and entries of a validated
// declaration. Requires initMu and mu held for writing.
func (r *Registry) addInterfaceLocked(node, inode *typeNode, info *InterfaceInfo, plugin Plugin) {
	holder := &ifaceHolder{instanceType: node.id, plugin: plugin}
	if info != nil {
		cp := *info
		holder.info = &cp
	}
	inode.holders = append(inode.holders, holder)
	node.ifaces, _ = sortedtab.Insert(node.ifaces, ifaceEntry{iface: inode.id}, ifaceEntryKey)
	r.graphChanged()
	r.log.Debug("added interface", "type", node.name, "interface", inode.name, "dynamic", plugin != nil)

	// late addition to a class that is already being built or is live
	if d := node.data; d != nil && d.refCount > 0 {
		classState := d.state
		if classState >= BaseIfaceInit {
			r.ifaceBaseInitLocked(node, inode.id)
		}
		if classState >= IfaceInit {
			r.ifaceInitLocked(node, inode.id)
		}
	}

	state.Preorder(node, r.childNodes, func(n *typeNode) bool {
		if n == node {
			return true
		}
		var inserted bool
		n.ifaces, inserted = sortedtab.Insert(n.ifaces, ifaceEntry{iface: inode.id}, ifaceEntryKey)
		if !inserted {
			return true
		}
		if n.data != nil && n.data.state >= BaseIfaceInit {
			pe := r.lookup(n.parent()).ifaceEntry(inode.id)
			e := n.ifaceEntry(inode.id)
			e.vtable = pe.vtable
			e.state = Initialized
		}
		return true
	})
}

// holderInfoLocked returns the InterfaceInfo of holder, completing it
// through the holder's plugin when needed. Requires initMu and mu held for
// writing.
func (r *Registry) holderInfoLocked(inode *typeNode, holder *ifaceHolder) InterfaceInfo {
	if holder.info != nil {
		return *holder.info
	}
	plugin := holder.plugin
	instName := r.nameOf(holder.instanceType)
	if holder.completing {
		r.mu.Unlock()
		r.fatal(errors.FatalRecursion, "interface info of '%s' for '%s' requested while its plugin was completing it",
			inode.name, instName)
	}
	holder.completing = true
	var info InterfaceInfo
	var err error
	r.unlockedCall(plugin.Use)
	r.unlockedCall(func() { info, err = plugin.CompleteInterfaceInfo(holder.instanceType, inode.id) })
	holder.completing = false
	if holder.info != nil {
		r.mu.Unlock()
		r.fatal(errors.FatalRecursion, "interface info of '%s' for '%s' completed while its plugin was completing it",
			inode.name, instName)
	}
	if err != nil {
		r.mu.Unlock()
		r.fatal(errors.FatalPluginInfo, "plugin failed to complete interface '%s' for '%s': %v",
			inode.name, instName, err)
	}
	if info.InterfaceInit == nil && (info.InterfaceFinalize != nil || info.InterfaceData != nil) {
		r.mu.Unlock()
		r.fatal(errors.FatalPluginInfo, "plugin returned interface info for '%s' with finalize or data without init", inode.name)
	}
	holder.info = &info
	return info
}

// ifaceBaseInitLocked gives node's Uninitialized entry for iface a vtable.
// When node holds its own implementation the vtable is a fresh copy of the
// parent's vtable, or of the default vtable if the parent does not conform.
// Otherwise node shares the parent's vtable. Requires initMu and mu held for
// writing.
func (r *Registry) ifaceBaseInitLocked(node *typeNode, iface TypeID) {
	inode := r.lookup(iface)
	holder := inode.holderFor(node.id)
	var inherited *VTable
	if pnode := r.lookup(node.parent()); pnode != nil {
		if pe := pnode.ifaceEntry(iface); pe != nil {
			inherited = pe.vtable
		}
	}
	if holder == nil {
		e := node.ifaceEntry(iface)
		e.vtable = inherited
		e.state = Initialized
		return
	}

	r.holderInfoLocked(inode, holder)
	r.ifaceDataRefLocked(inode)
	e := node.ifaceEntry(iface)
	if e == nil || e.state != Uninitialized {
		r.mu.Unlock()
		r.fatal(errors.FatalRecursion, "vtable of '%s' for '%s' built during its own construction", inode.name, node.name)
	}
	d := inode.data
	src := d.dflt
	if inherited != nil {
		src = inherited
	}
	vt := &VTable{typ: iface, instanceType: node.id, Slots: slices.Clone(src.Slots)}
	e.vtable = vt
	e.state = IfaceInit
	if fn := d.info.BaseInit; fn != nil {
		r.unlockedCall(func() { fn(vt) })
	}
}

// ifaceInitLocked runs the implementation's init and the interface-check
// hooks for node's IfaceInit entry. Requires initMu and mu held for writing.
func (r *Registry) ifaceInitLocked(node *typeNode, iface TypeID) {
	e := node.ifaceEntry(iface)
	if e == nil || e.state != IfaceInit {
		return
	}
	e.state = Initialized
	vt := e.vtable
	var info InterfaceInfo
	if holder := r.lookup(iface).holderFor(node.id); holder != nil && holder.info != nil {
		info = *holder.info
	}
	checks := slices.Clone(r.ifaceChecks)
	r.unlockedCall(func() {
		if info.InterfaceInit != nil {
			info.InterfaceInit(vt, info.InterfaceData)
		}
		for _, h := range checks {
			h.fn(h.data, vt)
		}
	})
}

// ifaceFinalizeLocked tears down a vtable node built for itself. Requires
// initMu and mu held for writing.
func (r *Registry) ifaceFinalizeLocked(node, inode *typeNode, vt *VTable) {
	var info InterfaceInfo
	if holder := inode.holderFor(node.id); holder != nil && holder.info != nil {
		info = *holder.info
	}
	base := inode.data.info.BaseFinalize
	r.unlockedCall(func() {
		if info.InterfaceFinalize != nil {
			info.InterfaceFinalize(vt, info.InterfaceData)
		}
		if base != nil {
			base(vt)
		}
	})
	if holder := inode.holderFor(node.id); holder != nil && holder.plugin != nil && holder.info != nil {
		holder.info = nil
		r.unlockedCall(holder.plugin.Unuse)
	}
	r.ifaceDataUnrefLocked(inode)
}

// AddPrerequisite requires every implementer of ifaceType to conform to
// prereq, an instantiatable type or another interface. The requirement
// propagates to every interface that already lists ifaceType as a
// prerequisite.
func (r *Registry) AddPrerequisite(ifaceType, prereq TypeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	const op = opAddPrerequisite

	inode := r.lookup(ifaceType)
	pnode := r.lookup(prereq)
	if inode == nil || pnode == nil {
		return r.reject(errors.ErrInvalidType, op, r.nameOf(ifaceType), "invalid interface or prerequisite type %d", uint64(prereq))
	}
	if err := r.checkOpen(op, inode.name); err != nil {
		return err
	}
	if !inode.iface || inode.id == TypeInterface {
		return r.reject(errors.ErrNotInterface, op, inode.name, "prerequisites can only be added to interface types")
	}
	if pnode.id == TypeInterface || !pnode.instantiatable && !pnode.iface {
		return r.reject(errors.ErrPrerequisite, op, inode.name,
			"prerequisite '%s' is neither instantiatable nor an interface", pnode.name)
	}

	affected := r.prerequisiteDependantsLocked(inode)
	for _, a := range affected {
		if len(a.holders) > 0 {
			return r.reject(errors.ErrInterfaceInUse, op, inode.name,
				"cannot add prerequisite '%s' after interface '%s' got implementations", pnode.name, a.name)
		}
	}

	var add []TypeID
	if pnode.instantiatable {
		if existing := r.instantiatablePrerequisiteLocked(inode); existing != nil {
			return r.reject(errors.ErrPrerequisite, op, inode.name,
				"adding prerequisite '%s' conflicts with existing prerequisite '%s'", pnode.name, existing.name)
		}
		add = slices.Clone(pnode.supers)
	} else {
		if err := graphcycle.Detect(graphcycle.Config[TypeID]{
			Next:   r.interfacePrerequisitesLocked,
			Extra:  map[TypeID][]TypeID{inode.id: {pnode.id}},
			Starts: []TypeID{inode.id},
		}); err != nil {
			var cycle graphcycle.CycleError[TypeID]
			if stderrors.As(err, &cycle) {
				names := make([]string, len(cycle.Path))
				for i, id := range cycle.Path {
					names[i] = r.nameOf(id)
				}
				return r.reject(errors.ErrPrerequisiteCycle, op, inode.name, "prerequisite '%s' forms a cycle %v", pnode.name, names)
			}
			return r.reject(errors.ErrPrerequisiteCycle, op, inode.name, "%v", err)
		}
		add = append(slices.Clone(pnode.prerequisites), pnode.id)
	}

	for _, a := range affected {
		merged := a.prerequisites.Clone()
		for _, id := range add {
			merged.Add(id)
		}
		if len(merged) > MaxPrerequisites {
			return r.reject(errors.ErrCounterOverflow, op, inode.name,
				"interface '%s' would have more than %d prerequisites", a.name, MaxPrerequisites)
		}
		if err := r.checkInstantiatableChainLocked(merged); err != nil {
			return r.reject(errors.ErrPrerequisite, op, inode.name,
				"prerequisite '%s' gives interface '%s' %v", pnode.name, a.name, err)
		}
	}

	for _, a := range affected {
		for _, id := range add {
			a.prerequisites.Add(id)
		}
	}
	if pnode.iface && !slices.Contains(pnode.dependants, inode.id) {
		pnode.dependants = append(pnode.dependants, inode.id)
	}
	r.graphChanged()
	r.log.Debug("added prerequisite", "interface", inode.name, "prerequisite", pnode.name)
	return nil
}

// prerequisiteDependantsLocked returns inode and every interface that
// depends on it, directly or through other interfaces.
func (r *Registry) prerequisiteDependantsLocked(inode *typeNode) []*typeNode {
	seen := map[TypeID]bool{inode.id: true}
	out := []*typeNode{inode}
	for i := 0; i < len(out); i++ {
		for _, id := range out[i].dependants {
			if !seen[id] {
				seen[id] = true
				out = append(out, r.lookup(id))
			}
		}
	}
	return out
}

func (r *Registry) interfacePrerequisitesLocked(t TypeID) []TypeID {
	n := r.lookup(t)
	if n == nil {
		return nil
	}
	var out []TypeID
	for _, p := range n.prerequisites {
		if pn := r.lookup(p); pn != nil && pn.iface {
			out = append(out, p)
		}
	}
	return out
}

// instantiatablePrerequisiteLocked returns the most derived instantiatable
// prerequisite of inode, or nil.
func (r *Registry) instantiatablePrerequisiteLocked(inode *typeNode) *typeNode {
	var best *typeNode
	for _, p := range inode.prerequisites {
		pn := r.lookup(p)
		if pn.instantiatable && (best == nil || len(pn.supers) > len(best.supers)) {
			best = pn
		}
	}
	return best
}

// checkInstantiatableChainLocked verifies that the instantiatable members of
// prereqs lie on a single ancestor chain.
func (r *Registry) checkInstantiatableChainLocked(prereqs sortedtab.Keys[TypeID]) error {
	var deepest *typeNode
	for _, p := range prereqs {
		if pn := r.lookup(p); pn.instantiatable && (deepest == nil || len(pn.supers) > len(deepest.supers)) {
			deepest = pn
		}
	}
	for _, p := range prereqs {
		if pn := r.lookup(p); pn.instantiatable && !deepest.descends(pn) {
			return fmt.Errorf("unrelated instantiatable prerequisites '%s' and '%s'", pn.name, deepest.name)
		}
	}
	return nil
}

// InterfacePeek returns the vtable of iface in class c, or nil.
func (r *Registry) InterfacePeek(c *Class, iface TypeID) *VTable {
	if c == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.lookup(c.typ)
	if node == nil || !node.classed {
		return nil
	}
	if e := node.ifaceEntry(iface); e != nil {
		return e.vtable
	}
	return nil
}

// InterfacePeekParent returns the vtable of the same interface in the
// parent of vt's implementing type, or nil.
func (r *Registry) InterfacePeekParent(vt *VTable) *VTable {
	if vt == nil || vt.instanceType == TypeInvalid {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.lookup(vt.instanceType)
	if node == nil {
		return nil
	}
	pnode := r.lookup(node.parent())
	if pnode == nil || !pnode.instantiatable {
		return nil
	}
	if e := pnode.ifaceEntry(vt.typ); e != nil {
		return e.vtable
	}
	return nil
}
