package typereg_test

import (
	"fmt"
	"slices"
	"testing"

	"github.com/jacoelho/typereg"
	"github.com/jacoelho/typereg/errors"
)

func TestClassRefCountBalance(t *testing.T) {
	r := newRegistry(t)
	var rec recorder
	typ := mustStatic(t, r, typereg.TypeObject, "Counter", typereg.TypeInfo{
		ClassSize:     2,
		ClassInit:     func(c *typereg.Class, _ any) { c.Slots[1] = "counter"; rec.add("init") },
		ClassFinalize: func(*typereg.Class, any) { rec.add("finalize") },
	})

	c1 := mustClassRef(t, r, typ)
	c2 := mustClassRef(t, r, typ)
	if c1 != c2 {
		t.Fatalf("ClassRef() returned different classes for live payload")
	}
	if got := r.InitState(typ); got != typereg.Initialized {
		t.Fatalf("InitState() = %s, want initialized", got)
	}

	r.ClassUnref(c1)
	if r.ClassPeek(typ) != c1 {
		t.Fatalf("ClassPeek() after first unref lost the class")
	}
	if r.ClassPeek(typereg.TypeObject) == nil {
		t.Fatalf("parent class released while child is live")
	}

	r.ClassUnref(c2)
	if r.ClassPeek(typ) != nil {
		t.Fatalf("ClassPeek() after last unref = non-nil, want nil")
	}
	if got := r.InitState(typ); got != typereg.Uninitialized {
		t.Fatalf("InitState() after teardown = %s, want uninitialized", got)
	}
	if r.ClassPeek(typereg.TypeObject) != nil {
		t.Fatalf("parent class still live after child teardown")
	}

	c3 := mustClassRef(t, r, typ)
	defer r.ClassUnref(c3)
	if c3 == c1 {
		t.Fatalf("ClassRef() after teardown returned the stale class")
	}
	if c3.Slots[1] != "counter" {
		t.Fatalf("rebuilt class slot = %v, want counter", c3.Slots[1])
	}
	if got := rec.snapshot(); !slices.Equal(got, []string{"init", "finalize", "init"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestClassInheritsParentSlots(t *testing.T) {
	r := newRegistry(t)
	parent := mustStatic(t, r, typereg.TypeObject, "Vehicle", typereg.TypeInfo{
		ClassSize: 2,
		ClassInit: func(c *typereg.Class, _ any) { c.Slots[0] = "wheels" },
	})
	child := mustStatic(t, r, parent, "Bicycle", typereg.TypeInfo{
		ClassSize: 3,
		ClassInit: func(c *typereg.Class, data any) { c.Slots[2] = data },
		ClassData: "pedals",
	})

	c := mustClassRef(t, r, child)
	defer r.ClassUnref(c)

	if len(c.Slots) != 3 || c.Slots[0] != "wheels" || c.Slots[2] != "pedals" {
		t.Fatalf("child slots = %v", c.Slots)
	}
	pc := r.ClassPeekParent(c)
	if pc == nil || pc.Type() != parent {
		t.Fatalf("ClassPeekParent() = %v, want Vehicle class", pc)
	}
	if pc.Slots[0] != "wheels" || len(pc.Slots) != 2 {
		t.Fatalf("parent slots = %v", pc.Slots)
	}
	if r.ClassPeekStatic(child) != c {
		t.Fatalf("ClassPeekStatic() = nil for a static type")
	}
}

func TestClassInitAndFinalizeOrder(t *testing.T) {
	r := newRegistry(t)
	var rec recorder
	info := func(name string) typereg.TypeInfo {
		return typereg.TypeInfo{
			BaseInit:      func(*typereg.Class) { rec.add("base:" + name) },
			BaseFinalize:  func(*typereg.Class) { rec.add("bfin:" + name) },
			ClassInit:     func(*typereg.Class, any) { rec.add("class:" + name) },
			ClassFinalize: func(*typereg.Class, any) { rec.add("cfin:" + name) },
		}
	}
	parent := mustStatic(t, r, typereg.TypeObject, "Parent", info("Parent"))
	child := mustStatic(t, r, parent, "Child", info("Child"))

	c := mustClassRef(t, r, child)
	r.ClassUnref(c)

	want := []string{
		"base:Parent", "class:Parent",
		"base:Parent", "base:Child", "class:Child",
		"cfin:Child", "bfin:Child", "bfin:Parent",
		"cfin:Parent", "bfin:Parent",
	}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestInitStateMonotonic(t *testing.T) {
	r := newRegistry(t)
	var states []typereg.InitState
	var typ typereg.TypeID
	observe := func() { states = append(states, r.InitState(typ)) }

	iface := mustInterface(t, r, "Observed", typereg.TypeInfo{
		ClassSize: 1,
		BaseInit:  func(*typereg.Class) { observe() },
	})
	typ = mustStatic(t, r, typereg.TypeObject, "Watched", typereg.TypeInfo{
		BaseInit:  func(*typereg.Class) { observe() },
		ClassInit: func(*typereg.Class, any) { observe() },
	})
	if err := r.AddInterfaceStatic(typ, iface, typereg.InterfaceInfo{
		InterfaceInit: func(*typereg.VTable, any) { observe() },
	}); err != nil {
		t.Fatalf("AddInterfaceStatic() error = %v", err)
	}

	c := mustClassRef(t, r, typ)
	observe()
	r.ClassUnref(c)

	if len(states) == 0 || states[0] != typereg.BaseClassInit || states[len(states)-1] != typereg.Initialized {
		t.Fatalf("states = %v", states)
	}
	for i := 1; i < len(states); i++ {
		if states[i] < states[i-1] {
			t.Fatalf("states went backwards: %v", states)
		}
	}
	for _, want := range []typereg.InitState{typereg.BaseIfaceInit, typereg.ClassInit, typereg.IfaceInit} {
		if !slices.Contains(states, want) {
			t.Fatalf("states %v never reached %s", states, want)
		}
	}
}

func TestClassRefRejects(t *testing.T) {
	r := newRegistry(t)
	_, err := r.ClassRef(typereg.TypeNone)
	wantCode(t, err, errors.ErrNotClassed)
	_, err = r.ClassRef(typereg.TypeID(1 << 40))
	wantCode(t, err, errors.ErrInvalidType)
}

func TestRecursiveClassRefIsFatal(t *testing.T) {
	r := newRegistry(t)
	var typ typereg.TypeID
	typ = mustStatic(t, r, typereg.TypeObject, "Ouroboros", typereg.TypeInfo{
		ClassInit: func(*typereg.Class, any) {
			if _, err := r.ClassRef(typ); err != nil {
				panic(err)
			}
		},
	})
	wantFatal(t, errors.FatalRecursion, func() { _, _ = r.ClassRef(typ) })
}

func TestDoubleUnrefIsFatal(t *testing.T) {
	r := newRegistry(t)
	typ := mustStatic(t, r, typereg.TypeObject, "Once", typereg.TypeInfo{})
	c := mustClassRef(t, r, typ)
	r.ClassUnref(c)
	wantFatal(t, errors.FatalUnreferenced, func() { r.ClassUnref(c) })
}

func TestClassPeekDuringConstruction(t *testing.T) {
	r := newRegistry(t)
	var typ typereg.TypeID
	var seen *typereg.Class
	typ = mustStatic(t, r, typereg.TypeObject, "Peeker", typereg.TypeInfo{
		ClassInit: func(c *typereg.Class, _ any) { seen = r.ClassPeek(typ) },
	})
	c := mustClassRef(t, r, typ)
	defer r.ClassUnref(c)
	if seen != c {
		t.Fatalf("ClassPeek() inside class init = %v, want the class under construction", seen)
	}
}

func TestClassCacheHookKeepsClass(t *testing.T) {
	r := newRegistry(t)
	typ := mustStatic(t, r, typereg.TypeObject, "Cached", typereg.TypeInfo{})

	var kept []*typereg.Class
	id := r.AddClassCacheFunc("cache", func(data any, c *typereg.Class) bool {
		if data != "cache" {
			t.Errorf("hook data = %v, want cache", data)
		}
		if c.Type() != typ {
			return false
		}
		kept = append(kept, c)
		return true
	})

	c := mustClassRef(t, r, typ)
	r.ClassUnref(c)
	if r.ClassPeek(typ) != c {
		t.Fatalf("class-cache hook did not keep the class alive")
	}
	if len(kept) != 1 || kept[0] != c {
		t.Fatalf("hook kept %v", kept)
	}

	if !r.RemoveClassCacheFunc(id) {
		t.Fatalf("RemoveClassCacheFunc() = false")
	}
	if r.RemoveClassCacheFunc(id) {
		t.Fatalf("RemoveClassCacheFunc() twice = true")
	}
	r.ClassUnrefUncached(kept[0])
	if r.ClassPeek(typ) != nil {
		t.Fatalf("class alive after hook released it")
	}
}

func TestDynamicTypeUsesPlugin(t *testing.T) {
	r := newRegistry(t)
	plugin := &testPlugin{typeInfo: func(int) (typereg.TypeInfo, error) {
		return typereg.TypeInfo{ClassSize: 2, InstanceSize: 8}, nil
	}}
	typ, err := r.RegisterDynamic(typereg.TypeObject, "Loaded", plugin, 0)
	if err != nil {
		t.Fatalf("RegisterDynamic() error = %v", err)
	}
	if r.TypeGetPlugin(typ) != plugin {
		t.Fatalf("TypeGetPlugin() did not return the plugin")
	}
	if _, ok := r.Query(typ); ok {
		t.Fatalf("Query() before completion ok = true")
	}
	if r.ClassPeekStatic(typ) != nil {
		t.Fatalf("ClassPeekStatic() of a dynamic type = non-nil")
	}

	c := mustClassRef(t, r, typ)
	if uses, unuses, completes := plugin.counts(); uses != 1 || unuses != 0 || completes != 1 {
		t.Fatalf("counts after ref = %d/%d/%d, want 1/0/1", uses, unuses, completes)
	}
	q, ok := r.Query(typ)
	if !ok || q.ClassSize != 2 || q.InstanceSize != 8 {
		t.Fatalf("Query() = %+v, %v", q, ok)
	}
	if len(c.Slots) != 2 {
		t.Fatalf("class slots = %d, want 2", len(c.Slots))
	}
	r.ClassUnref(c)
	if uses, unuses, _ := plugin.counts(); uses != 1 || unuses != 1 {
		t.Fatalf("counts after unref = %d/%d, want 1/1", uses, unuses)
	}

	c = mustClassRef(t, r, typ)
	r.ClassUnref(c)
	if uses, unuses, completes := plugin.counts(); uses != 2 || unuses != 2 || completes != 2 {
		t.Fatalf("counts after second cycle = %d/%d/%d, want 2/2/2", uses, unuses, completes)
	}
}

func TestPluginFailures(t *testing.T) {
	tests := []struct {
		name   string
		info   func(n int) (typereg.TypeInfo, error)
		cycles int
	}{
		{
			name:   "error",
			info:   func(int) (typereg.TypeInfo, error) { return typereg.TypeInfo{}, fmt.Errorf("module missing") },
			cycles: 1,
		},
		{
			name: "changed sizes",
			info: func(n int) (typereg.TypeInfo, error) {
				return typereg.TypeInfo{ClassSize: uint16(n)}, nil
			},
			cycles: 2,
		},
		{
			name: "invalid info",
			info: func(int) (typereg.TypeInfo, error) {
				return typereg.TypeInfo{NPreallocs: 5000}, nil
			},
			cycles: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			typ, err := r.RegisterDynamic(typereg.TypeObject, "Flaky", &testPlugin{typeInfo: tt.info}, 0)
			if err != nil {
				t.Fatalf("RegisterDynamic() error = %v", err)
			}
			for i := 1; i < tt.cycles; i++ {
				r.ClassUnref(mustClassRef(t, r, typ))
			}
			wantFatal(t, errors.FatalPluginInfo, func() { _, _ = r.ClassRef(typ) })
		})
	}
}

func TestPluginReentrantCompletionIsFatal(t *testing.T) {
	r := newRegistry(t)
	var typ typereg.TypeID
	plugin := &testPlugin{}
	plugin.typeInfo = func(int) (typereg.TypeInfo, error) {
		_, err := r.ClassRef(typ)
		return typereg.TypeInfo{}, err
	}
	typ, err := r.RegisterDynamic(typereg.TypeObject, "Reentrant", plugin, 0)
	if err != nil {
		t.Fatalf("RegisterDynamic() error = %v", err)
	}
	wantFatal(t, errors.FatalRecursion, func() { _, _ = r.ClassRef(typ) })
}

func TestDefaultInterfaceRef(t *testing.T) {
	r := newRegistry(t)
	var rec recorder
	iface := mustInterface(t, r, "Drawable", typereg.TypeInfo{
		ClassSize:     2,
		ClassInit:     func(vt *typereg.Class, _ any) { vt.Slots[0] = "draw"; rec.add("dflt-init") },
		ClassFinalize: func(*typereg.Class, any) { rec.add("dflt-finalize") },
	})

	vt, err := r.DefaultInterfaceRef(iface)
	if err != nil {
		t.Fatalf("DefaultInterfaceRef() error = %v", err)
	}
	if vt.Type() != iface || vt.InstanceType() != typereg.TypeInvalid || vt.Slots[0] != "draw" {
		t.Fatalf("default vtable = %+v", vt)
	}
	again, err := r.DefaultInterfaceRef(iface)
	if err != nil || again != vt {
		t.Fatalf("second DefaultInterfaceRef() = %v, %v", again, err)
	}
	if r.DefaultInterfacePeek(iface) != vt {
		t.Fatalf("DefaultInterfacePeek() mismatch")
	}
	if got := r.InitState(iface); got != typereg.Initialized {
		t.Fatalf("InitState(interface) = %s, want initialized", got)
	}

	r.DefaultInterfaceUnref(vt)
	if r.DefaultInterfacePeek(iface) != vt {
		t.Fatalf("default vtable released while referenced")
	}
	r.DefaultInterfaceUnref(again)
	if r.DefaultInterfacePeek(iface) != nil {
		t.Fatalf("default vtable alive after last unref")
	}
	if got := rec.snapshot(); !slices.Equal(got, []string{"dflt-init", "dflt-finalize"}) {
		t.Fatalf("events = %v", got)
	}
	wantFatal(t, errors.FatalUnreferenced, func() { r.DefaultInterfaceUnref(vt) })
}

func TestDefaultInterfaceRefRejects(t *testing.T) {
	r := newRegistry(t)
	_, err := r.DefaultInterfaceRef(typereg.TypeObject)
	wantCode(t, err, errors.ErrNotInterface)
	_, err = r.DefaultInterfaceRef(typereg.TypeID(1 << 40))
	wantCode(t, err, errors.ErrInvalidType)
}
