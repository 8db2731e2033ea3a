package typereg

import (
	"strings"

	"fortio.org/safecast"

	"github.com/jacoelho/typereg/errors"
)

const (
	opRegisterFundamental = "register fundamental"
	opRegisterStatic      = "register static"
	opRegisterDynamic     = "register dynamic"
)

// NextFundamental returns the next unused user fundamental id, or
// TypeInvalid once the fundamental range is exhausted.
func (r *Registry) NextFundamental() TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := r.nextFundamental; n <= uint32(FundamentalMax>>FundamentalShift); n++ {
		if r.fundamentals[n] == nil {
			return MakeFundamental(n)
		}
	}
	return TypeInvalid
}

// RegisterFundamental registers a root type under a caller-chosen fundamental id.
func (r *Registry) RegisterFundamental(id TypeID, name string, info TypeInfo, finfo FundamentalInfo, flags TypeFlags) (TypeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	const op = opRegisterFundamental

	if err := r.checkOpen(op, name); err != nil {
		return TypeInvalid, err
	}
	if err := r.checkTypeName(op, name); err != nil {
		return TypeInvalid, err
	}
	if !id.IsFundamental() {
		return TypeInvalid, r.reject(errors.ErrInvalidFundamental, op, name, "invalid fundamental id %d", uint64(id))
	}
	if finfo.Flags&FlagInstantiatable != 0 && finfo.Flags&FlagClassed == 0 {
		return TypeInvalid, r.reject(errors.ErrInvalidFundamental, op, name, "instantiatable fundamental must be classed")
	}
	if existing := r.lookup(id); existing != nil {
		return TypeInvalid, r.reject(errors.ErrInvalidFundamental, op, name, "fundamental id already registered as '%s'", existing.name)
	}
	isIface := id == TypeInterface
	if isIface && finfo.Flags&FlagClassed != 0 {
		return TypeInvalid, r.reject(errors.ErrInvalidFundamental, op, name, "interface fundamental cannot be classed")
	}
	classed := finfo.Flags&FlagClassed != 0
	instantiatable := finfo.Flags&FlagInstantiatable != 0
	if err := r.checkTypeInfo(op, name, nil, classed, instantiatable, isIface, &info); err != nil {
		return TypeInvalid, err
	}

	node, err := r.newNode(op, nil, id, name, nil, flags)
	if err != nil {
		return TypeInvalid, err
	}
	node.fflags = finfo.Flags
	node.classed = classed
	node.instantiatable = instantiatable
	node.iface = isIface
	r.setStaticInfo(node, info)
	if n := uint32(id >> FundamentalShift); n == r.nextFundamental {
		r.nextFundamental++
	}
	r.log.Debug("registered fundamental type", "type", name, "id", uint64(id))
	return id, nil
}

// RegisterStatic registers a child of parent whose TypeInfo is known up front.
func (r *Registry) RegisterStatic(parent TypeID, name string, info TypeInfo, flags TypeFlags) (TypeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	const op = opRegisterStatic

	if err := r.checkOpen(op, name); err != nil {
		return TypeInvalid, err
	}
	if err := r.checkTypeName(op, name); err != nil {
		return TypeInvalid, err
	}
	pnode, err := r.checkDerivation(op, parent, name)
	if err != nil {
		return TypeInvalid, err
	}
	root := r.lookup(pnode.fundamental())
	if err := r.checkTypeInfo(op, name, pnode, pnode.classed, pnode.instantiatable, root.iface, &info); err != nil {
		return TypeInvalid, err
	}
	node, err := r.newNode(op, pnode, r.nextDerivedID(), name, nil, flags)
	if err != nil {
		return TypeInvalid, err
	}
	r.setStaticInfo(node, info)
	r.log.Debug("registered static type", "type", name, "parent", pnode.name, "id", uint64(node.id))
	return node.id, nil
}

// RegisterStaticSimple registers a static type from its sizes and init callbacks.
func (r *Registry) RegisterStaticSimple(parent TypeID, name string, classSize uint16, classInit ClassInitFunc, instanceSize uint16, instanceInit InstanceInitFunc, flags TypeFlags) (TypeID, error) {
	return r.RegisterStatic(parent, name, TypeInfo{
		ClassSize:    classSize,
		ClassInit:    classInit,
		InstanceSize: instanceSize,
		InstanceInit: instanceInit,
	}, flags)
}

// RegisterDynamic registers a child of parent whose TypeInfo is supplied by
// plugin the first time the type is referenced.
func (r *Registry) RegisterDynamic(parent TypeID, name string, plugin Plugin, flags TypeFlags) (TypeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	const op = opRegisterDynamic

	if err := r.checkOpen(op, name); err != nil {
		return TypeInvalid, err
	}
	if err := r.checkTypeName(op, name); err != nil {
		return TypeInvalid, err
	}
	if plugin == nil {
		return TypeInvalid, r.reject(errors.ErrInvalidPlugin, op, name, "plugin is nil")
	}
	pnode, err := r.checkDerivation(op, parent, name)
	if err != nil {
		return TypeInvalid, err
	}
	node, err := r.newNode(op, pnode, r.nextDerivedID(), name, plugin, flags)
	if err != nil {
		return TypeInvalid, err
	}
	r.log.Debug("registered dynamic type", "type", name, "parent", pnode.name, "id", uint64(node.id))
	return node.id, nil
}

func (r *Registry) checkOpen(op, name string) error {
	if r.closed {
		return r.reject(errors.ErrRegistryClosed, op, name, "registry is closed")
	}
	return nil
}

func (r *Registry) checkTypeName(op, name string) error {
	if len(name) < 3 {
		return r.reject(errors.ErrInvalidName, op, name, "type name is too short")
	}
	if !validTypeName(name) {
		return r.reject(errors.ErrInvalidName, op, name, "type name contains invalid characters")
	}
	if _, ok := r.byName[name]; ok {
		return r.reject(errors.ErrNameExists, op, name, "cannot register existing type")
	}
	return nil
}

func validTypeName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '_':
		case i > 0 && (c >= '0' && c <= '9' || strings.IndexByte("-+", c) >= 0):
		default:
			return false
		}
	}
	return true
}

func (r *Registry) checkDerivation(op string, parent TypeID, name string) (*typeNode, error) {
	pnode := r.lookup(parent)
	if pnode == nil {
		return nil, r.reject(errors.ErrInvalidType, op, name, "cannot derive from invalid parent type %d", uint64(parent))
	}
	if pnode.flags&TypeFlagFinal != 0 {
		return nil, r.reject(errors.ErrFinalParent, op, name, "cannot derive from final parent type '%s'", pnode.name)
	}
	root := r.lookup(pnode.fundamental())
	if root.fflags&FlagDerivable == 0 {
		return nil, r.reject(errors.ErrNotDerivable, op, name, "cannot derive from non-derivable parent type '%s'", pnode.name)
	}
	if parent != root.id && root.fflags&FlagDeepDerivable == 0 {
		return nil, r.reject(errors.ErrNotDeepDerivable, op, name, "cannot derive from non-fundamental parent type '%s'", pnode.name)
	}
	return pnode, nil
}

// checkTypeInfo validates info against the kind of type being registered
// and, when known, the parent's sizes.
func (r *Registry) checkTypeInfo(op, name string, pnode *typeNode, classed, instantiatable, isIface bool, info *TypeInfo) error {
	if !classed && !isIface && (info.ClassSize != 0 || info.BaseInit != nil || info.BaseFinalize != nil ||
		info.ClassInit != nil || info.ClassFinalize != nil || info.ClassData != nil) {
		return r.reject(errors.ErrInvalidTypeInfo, op, name, "class members specified for non-classed type")
	}
	if !instantiatable && (info.InstanceSize != 0 || info.NPreallocs != 0 || info.InstanceInit != nil) {
		return r.reject(errors.ErrInvalidTypeInfo, op, name, "instance members specified for non-instantiatable type")
	}
	if info.NPreallocs > MaxPreallocs {
		return r.reject(errors.ErrInvalidTypeInfo, op, name, "preallocation count %d exceeds %d", info.NPreallocs, MaxPreallocs)
	}
	if pnode != nil && pnode.sized {
		if (classed || isIface) && info.ClassSize < pnode.classSize {
			return r.reject(errors.ErrInvalidTypeInfo, op, name, "class size %d smaller than parent '%s' class size %d",
				info.ClassSize, pnode.name, pnode.classSize)
		}
		if instantiatable && info.InstanceSize < pnode.instanceSize {
			return r.reject(errors.ErrInvalidTypeInfo, op, name, "instance size %d smaller than parent '%s' instance size %d",
				info.InstanceSize, pnode.name, pnode.instanceSize)
		}
	}
	if info.ValueTable != nil {
		if err := r.checkValueTable(op, name, info.ValueTable); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) checkValueTable(op, name string, vt *ValueTable) error {
	if vt.Init == nil || vt.Copy == nil {
		return r.reject(errors.ErrInvalidValueTable, op, name, "value table lacks init or copy function")
	}
	for _, format := range []string{vt.CollectFormat, vt.LCopyFormat} {
		if len(format) > MaxCollectFormat {
			return r.reject(errors.ErrInvalidValueTable, op, name, "collect format %q longer than %d", format, MaxCollectFormat)
		}
		if strings.Trim(format, "ildp") != "" {
			return r.reject(errors.ErrInvalidValueTable, op, name, "collect format %q contains invalid characters", format)
		}
	}
	return nil
}

// newNode links a node into the graph. Requires mu held for writing.
func (r *Registry) newNode(op string, pnode *typeNode, id TypeID, name string, plugin Plugin, flags TypeFlags) (*typeNode, error) {
	qname, err := r.quarks.Intern(name)
	if err != nil {
		return nil, r.reject(errors.ErrCounterOverflow, op, name, "%v", err)
	}
	node := &typeNode{
		id:     id,
		name:   name,
		qname:  qname,
		plugin: plugin,
		flags:  flags & typeFlagsMask,
	}
	if pnode == nil {
		node.supers = []TypeID{id}
		r.fundamentals[id>>FundamentalShift] = node
		r.byName[name] = id
		r.graphChanged()
		return node, nil
	}

	if _, err := safecast.Conv[uint8](len(pnode.supers)); err != nil {
		return nil, r.reject(errors.ErrCounterOverflow, op, name, "derivation depth exceeds %d", MaxDepth)
	}
	if uint64(len(pnode.children)) >= MaxChildren {
		return nil, r.reject(errors.ErrCounterOverflow, op, name, "parent '%s' has too many children", pnode.name)
	}
	node.supers = make([]TypeID, 0, len(pnode.supers)+1)
	node.supers = append(node.supers, id)
	node.supers = append(node.supers, pnode.supers...)
	node.classed = pnode.classed
	node.instantiatable = pnode.instantiatable
	node.iface = pnode.iface
	if node.classed && len(pnode.ifaces) > 0 {
		node.ifaces = make([]ifaceEntry, len(pnode.ifaces))
		for i, e := range pnode.ifaces {
			node.ifaces[i] = ifaceEntry{iface: e.iface, state: Uninitialized}
		}
	}

	r.derived = append(r.derived, node)
	pnode.children = append(pnode.children, id)
	r.byName[name] = id
	r.graphChanged()
	return node, nil
}

// setStaticInfo stores a registration-time TypeInfo on node.
func (r *Registry) setStaticInfo(node *typeNode, info TypeInfo) {
	if info.ValueTable != nil {
		vt := *info.ValueTable
		info.ValueTable = &vt
	}
	node.info = &info
	node.classSize = info.ClassSize
	node.instanceSize = info.InstanceSize
	node.sized = true
}
