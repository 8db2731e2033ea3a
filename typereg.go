// Package typereg is a runtime type registry: single-inheritance classed types,
// multiply implementable interface types, lazily constructed class and interface
// payloads, and instances with per-ancestor private data.
//
// A Registry is an explicitly owned value. Types are registered as fundamentals,
// statically (with a TypeInfo supplied up front) or dynamically (through a Plugin
// that completes the TypeInfo on first use). Class structures are built on the
// first ClassRef, walk the state sequence
//
//	Uninitialized → BaseClassInit → BaseIfaceInit → ClassInit → IfaceInit → Initialized
//
// and are torn down when the last reference is released. User callbacks never run
// while the registry lock is held.
package typereg

// TypeID identifies a registered type. The low FundamentalShift bits are
// always zero.
type TypeID uint64

const (
	// FundamentalShift is the number of reserved low bits in a TypeID.
	FundamentalShift = 2
	// FundamentalMax is the largest fundamental TypeID.
	FundamentalMax TypeID = 255 << FundamentalShift
	// ReservedUserFirst is the first fundamental number handed out by NextFundamental.
	ReservedUserFirst = 49

	reservedMask TypeID = 1<<FundamentalShift - 1
)

// MakeFundamental returns the TypeID of fundamental number n.
func MakeFundamental(n uint32) TypeID {
	return TypeID(n) << FundamentalShift
}

// IsFundamental reports whether t is in the fundamental id range.
func (t TypeID) IsFundamental() bool {
	return t != TypeInvalid && t&reservedMask == 0 && t <= FundamentalMax
}

// Predefined fundamental types seeded by every Registry.
const (
	TypeInvalid   TypeID = 0
	TypeNone      TypeID = 1 << FundamentalShift
	TypeInterface TypeID = 2 << FundamentalShift
	TypeObject    TypeID = 20 << FundamentalShift
)

// Fixed-width limits of the type graph.
const (
	MaxDepth         = 255
	MaxInterfaces    = 255
	MaxPrerequisites = 511
	MaxChildren      = 1<<32 - 2
	MaxPreallocs     = 1024
)

// FundamentalFlags describe what a fundamental type and its descendants can do.
type FundamentalFlags uint32

const (
	// FlagClassed marks types that have a class structure.
	FlagClassed FundamentalFlags = 1 << iota
	// FlagInstantiatable marks types that have instances.
	FlagInstantiatable
	// FlagDerivable allows children of the fundamental.
	FlagDerivable
	// FlagDeepDerivable allows grandchildren and below.
	FlagDeepDerivable
)

// TypeFlags describe a single registered type.
type TypeFlags uint32

const (
	// TypeFlagAbstract forbids instances of the type itself.
	TypeFlagAbstract TypeFlags = 1 << iota
	// TypeFlagValueAbstract forbids values of the type itself.
	TypeFlagValueAbstract
	// TypeFlagFinal forbids children.
	TypeFlagFinal
	// TypeFlagDeprecated marks the type as deprecated.
	TypeFlagDeprecated
)

const typeFlagsMask = TypeFlagAbstract | TypeFlagValueAbstract | TypeFlagFinal | TypeFlagDeprecated

// FundamentalInfo configures a fundamental type.
type FundamentalInfo struct {
	Flags FundamentalFlags
}

// Callback signatures. Interface vtables share the Class representation, so
// base init and finalize callbacks serve classes and interfaces alike.
type (
	BaseInitFunc          func(c *Class)
	BaseFinalizeFunc      func(c *Class)
	ClassInitFunc         func(c *Class, data any)
	ClassFinalizeFunc     func(c *Class, data any)
	InstanceInitFunc      func(inst *Instance, c *Class)
	InterfaceInitFunc     func(vtable *VTable, data any)
	InterfaceFinalizeFunc func(vtable *VTable, data any)
	ClassCacheFunc        func(data any, c *Class) bool
	InterfaceCheckFunc    func(data any, vtable *VTable)
)

// TypeInfo describes the payload of a type. For interface types ClassSize is
// the vtable size, ClassInit and ClassFinalize build and tear down the default
// vtable, and BaseInit and BaseFinalize run on every vtable of the interface.
type TypeInfo struct {
	BaseInit      BaseInitFunc
	BaseFinalize  BaseFinalizeFunc
	ClassInit     ClassInitFunc
	ClassFinalize ClassFinalizeFunc
	ClassData     any
	InstanceInit  InstanceInitFunc
	ValueTable    *ValueTable
	ClassSize     uint16
	InstanceSize  uint16
	NPreallocs    uint16
}

// InterfaceInfo describes how one instantiatable type implements an interface.
type InterfaceInfo struct {
	InterfaceInit     InterfaceInitFunc
	InterfaceFinalize InterfaceFinalizeFunc
	InterfaceData     any
}

// ValueTable is the value protocol hook attached to a type. The registry only
// validates its shape; value containers are built elsewhere.
type ValueTable struct {
	Init          func() any
	Copy          func(v any) any
	CollectFormat string
	LCopyFormat   string
}

// MaxCollectFormat bounds value table collect formats.
const MaxCollectFormat = 8

// InitState is the construction state of a class payload or interface vtable.
type InitState uint8

const (
	Uninitialized InitState = iota
	BaseClassInit
	BaseIfaceInit
	ClassInit
	IfaceInit
	Initialized
)

var initStateNames = [...]string{
	Uninitialized: "uninitialized",
	BaseClassInit: "base-class-init",
	BaseIfaceInit: "base-iface-init",
	ClassInit:     "class-init",
	IfaceInit:     "iface-init",
	Initialized:   "initialized",
}

// String returns the state name.
func (s InitState) String() string {
	if int(s) < len(initStateNames) {
		return initStateNames[s]
	}
	return "unknown"
}

// Class is a realized class structure or interface vtable. A child class starts
// as a copy of its parent's slots; class init callbacks override them.
type Class struct {
	Slots        []any
	typ          TypeID
	instanceType TypeID
}

// VTable is an interface vtable.
type VTable = Class

// Type returns the type the structure belongs to.
func (c *Class) Type() TypeID {
	if c == nil {
		return TypeInvalid
	}
	return c.typ
}

// InstanceType returns the implementing type of an interface vtable, or
// TypeInvalid for classes and default vtables.
func (c *Class) InstanceType() TypeID {
	if c == nil {
		return TypeInvalid
	}
	return c.instanceType
}

// Instance is an allocated instance of an instantiatable type.
type Instance struct {
	class *Class
	Data  []byte
}

// Class returns the instance's class, or nil after FreeInstance.
func (i *Instance) Class() *Class {
	if i == nil {
		return nil
	}
	return i.class
}

// Type returns the instance's type.
func (i *Instance) Type() TypeID {
	return i.Class().Type()
}

// Query reports the sizes of a classed type.
type Query struct {
	Type         TypeID
	Name         string
	ClassSize    uint16
	InstanceSize uint16
}

// HookID identifies a registered class-cache or interface-check hook.
type HookID uint64
