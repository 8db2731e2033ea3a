package typereg

import (
	"sync/atomic"

	"github.com/jacoelho/typereg/internal/quark"
	"github.com/jacoelho/typereg/internal/sortedtab"
)

// ifaceEntry records that a classed type conforms to an interface.
// vtable is set iff state is IfaceInit or Initialized.
type ifaceEntry struct {
	vtable *VTable
	iface  TypeID
	state  InitState
}

func ifaceEntryKey(e ifaceEntry) TypeID { return e.iface }

// ifaceHolder records who declared an implementation of an interface and
// how its InterfaceInfo is obtained.
type ifaceHolder struct {
	info         *InterfaceInfo
	plugin       Plugin
	instanceType TypeID
	completing   bool
}

type qdataEntry struct {
	value any
	key   quark.Quark
}

func qdataKey(e qdataEntry) quark.Quark { return e.key }

// typeNode is one registered type. Identity fields (id, name, supers, the
// kind flags, plugin) never change after registration; everything else is
// guarded by Registry.mu.
type typeNode struct {
	plugin   Plugin
	info     *TypeInfo
	data     *typeData
	name     string
	supers   []TypeID
	children []TypeID
	qdata    []qdataEntry

	// classed types
	ifaces []ifaceEntry

	// interface types
	prerequisites sortedtab.Keys[TypeID]
	dependants    []TypeID
	holders       []*ifaceHolder

	instances atomic.Int64

	id             TypeID
	qname          quark.Quark
	flags          TypeFlags
	fflags         FundamentalFlags
	classSize      uint16
	instanceSize   uint16
	privateSize    uint32
	classed        bool
	instantiatable bool
	iface          bool
	sized          bool
	privateSealed  bool
	completing     bool
}

func (n *typeNode) parent() TypeID {
	if len(n.supers) < 2 {
		return TypeInvalid
	}
	return n.supers[1]
}

func (n *typeNode) fundamental() TypeID {
	return n.supers[len(n.supers)-1]
}

func (n *typeNode) depth() int {
	return len(n.supers) - 1
}

// descends reports whether n is other or one of its descendants.
func (n *typeNode) descends(other *typeNode) bool {
	if len(n.supers) < len(other.supers) {
		return false
	}
	return n.supers[len(n.supers)-len(other.supers)] == other.id
}

func (n *typeNode) ifaceEntry(iface TypeID) *ifaceEntry {
	return sortedtab.Lookup(n.ifaces, iface, ifaceEntryKey)
}

func (n *typeNode) holderFor(instanceType TypeID) *ifaceHolder {
	for _, h := range n.holders {
		if h.instanceType == instanceType {
			return h
		}
	}
	return nil
}

func (n *typeNode) hasPrerequisite(t TypeID) bool {
	return n.prerequisites.Has(t)
}
