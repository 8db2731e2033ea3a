package manifest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/jacoelho/typereg"
)

// Applied is the outcome of registering a manifest.
type Applied struct {
	Types   map[string]typereg.TypeID
	Offsets map[string]int
	Plugin  *Plugin
}

// Apply registers m in r: fundamentals, interfaces, types, prerequisites and
// implementations, each section in file order. It stops at the first
// rejected registration.
func Apply(r *typereg.Registry, m *Manifest) (*Applied, error) {
	a := &Applied{
		Types:   make(map[string]typereg.TypeID),
		Offsets: make(map[string]int),
		Plugin:  NewPlugin(r),
	}
	for _, f := range m.Fundamentals {
		if err := a.fundamental(r, f); err != nil {
			return nil, err
		}
	}
	for _, it := range m.Interfaces {
		if err := a.iface(r, it); err != nil {
			return nil, err
		}
	}
	for _, t := range m.Types {
		if err := a.typ(r, t); err != nil {
			return nil, err
		}
	}
	for _, it := range m.Interfaces {
		for _, p := range it.Prerequisites {
			pid, err := a.resolve(r, p)
			if err != nil {
				return nil, errors.Wrapf(err, "prerequisite of %s", it.Name)
			}
			if err := r.AddPrerequisite(a.Types[it.Name], pid); err != nil {
				return nil, errors.Wrapf(err, "prerequisite %s of %s", p, it.Name)
			}
		}
	}
	for _, im := range m.Implements {
		if err := a.implements(r, im); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Applied) resolve(r *typereg.Registry, name string) (typereg.TypeID, error) {
	if id, ok := a.Types[name]; ok {
		return id, nil
	}
	if id := r.FromName(name); id != typereg.TypeInvalid {
		return id, nil
	}
	return typereg.TypeInvalid, errors.Errorf("unknown type %q", name)
}

func (a *Applied) fundamental(r *typereg.Registry, f Fundamental) error {
	var flags typereg.FundamentalFlags
	if f.Classed {
		flags |= typereg.FlagClassed
	}
	if f.Instantiatable {
		flags |= typereg.FlagInstantiatable
	}
	if f.Derivable {
		flags |= typereg.FlagDerivable
	}
	if f.DeepDerivable {
		flags |= typereg.FlagDeepDerivable
	}
	info := typereg.TypeInfo{}
	if f.Classed {
		info.ClassSize = f.ClassSize
		info.ClassInit = slotFiller(f.Name)
	}
	if f.Instantiatable {
		info.InstanceSize = f.InstanceSize
	}
	id, err := r.RegisterFundamental(r.NextFundamental(), f.Name, info, typereg.FundamentalInfo{Flags: flags}, 0)
	if err != nil {
		return errors.Wrapf(err, "fundamental %s", f.Name)
	}
	a.Types[f.Name] = id
	return nil
}

func (a *Applied) iface(r *typereg.Registry, it Interface) error {
	parent, err := a.resolve(r, it.Parent)
	if err != nil {
		return errors.Wrapf(err, "interface %s", it.Name)
	}
	info := typereg.TypeInfo{ClassSize: it.VTableSize, ClassInit: slotFiller(it.Name)}
	var id typereg.TypeID
	if it.Dynamic {
		id, err = r.RegisterDynamic(parent, it.Name, a.Plugin, 0)
		if err == nil {
			a.Plugin.setType(id, info)
		}
	} else {
		id, err = r.RegisterStatic(parent, it.Name, info, 0)
	}
	if err != nil {
		return errors.Wrapf(err, "interface %s", it.Name)
	}
	a.Types[it.Name] = id
	return nil
}

func (a *Applied) typ(r *typereg.Registry, t Type) error {
	parent, err := a.resolve(r, t.Parent)
	if err != nil {
		return errors.Wrapf(err, "type %s", t.Name)
	}
	var flags typereg.TypeFlags
	if t.Abstract {
		flags |= typereg.TypeFlagAbstract
	}
	if t.Final {
		flags |= typereg.TypeFlagFinal
	}
	info := typereg.TypeInfo{
		ClassSize:    t.ClassSize,
		ClassInit:    slotFiller(t.Name),
		InstanceSize: t.InstanceSize,
		NPreallocs:   t.Prealloc,
	}
	var id typereg.TypeID
	if t.Dynamic {
		id, err = r.RegisterDynamic(parent, t.Name, a.Plugin, flags)
		if err == nil {
			a.Plugin.setType(id, info)
		}
	} else {
		id, err = r.RegisterStatic(parent, t.Name, info, flags)
	}
	if err != nil {
		return errors.Wrapf(err, "type %s", t.Name)
	}
	a.Types[t.Name] = id
	if t.Private > 0 {
		off, err := r.AddInstancePrivate(id, t.Private)
		if err != nil {
			return errors.Wrapf(err, "private data of %s", t.Name)
		}
		a.Offsets[t.Name] = off
	}
	return nil
}

func (a *Applied) implements(r *typereg.Registry, im Implements) error {
	typ, err := a.resolve(r, im.Type)
	if err != nil {
		return errors.Wrap(err, "implements")
	}
	iface, err := a.resolve(r, im.Interface)
	if err != nil {
		return errors.Wrap(err, "implements")
	}
	info := typereg.InterfaceInfo{InterfaceInit: vtableFiller(im.Type + "." + im.Interface)}
	if im.Dynamic {
		a.Plugin.setInterface(typ, iface, info)
		err = r.AddInterfaceDynamic(typ, iface, a.Plugin)
	} else {
		err = r.AddInterfaceStatic(typ, iface, info)
	}
	return errors.Wrapf(err, "%s implements %s", im.Type, im.Interface)
}

// slotFiller labels the class slots a type adds over its parent.
func slotFiller(name string) typereg.ClassInitFunc {
	return func(c *typereg.Class, _ any) {
		for i := range c.Slots {
			if c.Slots[i] == nil {
				c.Slots[i] = fmt.Sprintf("%s[%d]", name, i)
			}
		}
	}
}

// vtableFiller labels every vtable slot with the implementation.
func vtableFiller(label string) typereg.InterfaceInitFunc {
	return func(vt *typereg.VTable, _ any) {
		for i := range vt.Slots {
			vt.Slots[i] = fmt.Sprintf("%s[%d]", label, i)
		}
	}
}

type ifaceKey struct {
	instanceType typereg.TypeID
	iface        typereg.TypeID
}

// Plugin completes the dynamic entries of a manifest and tracks how many
// payloads currently use it.
type Plugin struct {
	r      *typereg.Registry
	types  map[typereg.TypeID]typereg.TypeInfo
	ifaces map[ifaceKey]typereg.InterfaceInfo
	mu     sync.RWMutex
	uses   atomic.Int64
	total  atomic.Int64
}

// NewPlugin returns an empty plugin for r.
func NewPlugin(r *typereg.Registry) *Plugin {
	return &Plugin{
		r:      r,
		types:  make(map[typereg.TypeID]typereg.TypeInfo),
		ifaces: make(map[ifaceKey]typereg.InterfaceInfo),
	}
}

func (p *Plugin) setType(t typereg.TypeID, info typereg.TypeInfo) {
	p.mu.Lock()
	p.types[t] = info
	p.mu.Unlock()
}

func (p *Plugin) setInterface(instanceType, iface typereg.TypeID, info typereg.InterfaceInfo) {
	p.mu.Lock()
	p.ifaces[ifaceKey{instanceType, iface}] = info
	p.mu.Unlock()
}

// Use implements typereg.Plugin.
func (p *Plugin) Use() {
	p.uses.Add(1)
	p.total.Add(1)
}

// Unuse implements typereg.Plugin.
func (p *Plugin) Unuse() {
	p.uses.Add(-1)
}

// CompleteTypeInfo implements typereg.Plugin.
func (p *Plugin) CompleteTypeInfo(t typereg.TypeID) (typereg.TypeInfo, error) {
	p.mu.RLock()
	info, ok := p.types[t]
	p.mu.RUnlock()
	if !ok {
		return typereg.TypeInfo{}, errors.Errorf("manifest has no dynamic type %q", p.r.Name(t))
	}
	return info, nil
}

// CompleteInterfaceInfo implements typereg.Plugin.
func (p *Plugin) CompleteInterfaceInfo(instanceType, iface typereg.TypeID) (typereg.InterfaceInfo, error) {
	p.mu.RLock()
	info, ok := p.ifaces[ifaceKey{instanceType, iface}]
	p.mu.RUnlock()
	if !ok {
		return typereg.InterfaceInfo{}, errors.Errorf("manifest has no dynamic implementation of %q for %q",
			p.r.Name(iface), p.r.Name(instanceType))
	}
	return info, nil
}

// InUse reports how many payloads currently hold the plugin.
func (p *Plugin) InUse() int64 {
	return p.uses.Load()
}

// Loads reports how many times the plugin was put into use.
func (p *Plugin) Loads() int64 {
	return p.total.Load()
}
