package typereg

import (
	"fmt"
	"testing"

	"github.com/jacoelho/typereg/internal/sortedtab"
)

func TestLookupDerivedIDs(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var ids []TypeID
	for i := 0; i < 10; i++ {
		id, err := r.RegisterStatic(TypeObject, fmt.Sprintf("Derived%d", i), TypeInfo{}, 0)
		if err != nil {
			t.Fatalf("RegisterStatic() error = %v", err)
		}
		if id.IsFundamental() || id&reservedMask != 0 {
			t.Fatalf("derived id %d is malformed", id)
		}
		ids = append(ids, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, id := range ids {
		n := r.lookup(id)
		if n == nil || n.id != id || n.name != fmt.Sprintf("Derived%d", i) {
			t.Fatalf("lookup(%d) = %+v", id, n)
		}
	}
	for _, bad := range []TypeID{TypeInvalid, 1, ids[len(ids)-1] + 1<<FundamentalShift, 3 << FundamentalShift} {
		if n := r.lookup(bad); n != nil {
			t.Fatalf("lookup(%d) = %s, want nil", bad, n.name)
		}
	}
}

func TestTablesStaySorted(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var ifaces []TypeID
	for i := 0; i < 6; i++ {
		id, err := r.RegisterStatic(TypeInterface, fmt.Sprintf("Iface%d", i), TypeInfo{}, 0)
		if err != nil {
			t.Fatalf("RegisterStatic() error = %v", err)
		}
		ifaces = append(ifaces, id)
	}
	obj, err := r.RegisterStatic(TypeObject, "Impl", TypeInfo{}, 0)
	if err != nil {
		t.Fatalf("RegisterStatic() error = %v", err)
	}
	child, err := r.RegisterStatic(obj, "ImplChild", TypeInfo{}, 0)
	if err != nil {
		t.Fatalf("RegisterStatic() error = %v", err)
	}

	for i := len(ifaces) - 1; i > 0; i-- {
		if err := r.AddPrerequisite(ifaces[0], ifaces[i]); err != nil {
			t.Fatalf("AddPrerequisite() error = %v", err)
		}
	}
	// add in reverse so every insertion lands in front
	for i := len(ifaces) - 1; i >= 0; i-- {
		if err := r.AddInterfaceStatic(obj, ifaces[i], InterfaceInfo{}); err != nil {
			t.Fatalf("AddInterfaceStatic() error = %v", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range []*typeNode{r.lookup(obj), r.lookup(child)} {
		if len(n.ifaces) != len(ifaces) {
			t.Fatalf("%s has %d interface entries, want %d", n.name, len(n.ifaces), len(ifaces))
		}
		if !sortedtab.IsSorted(n.ifaces, ifaceEntryKey) {
			t.Fatalf("%s interface entries not sorted", n.name)
		}
		for _, e := range n.ifaces {
			if e.vtable != nil || e.state != Uninitialized {
				t.Fatalf("%s entry %d built before any reference", n.name, e.iface)
			}
		}
	}
	prereqs := r.lookup(ifaces[0]).prerequisites
	if len(prereqs) != len(ifaces)-1 {
		t.Fatalf("prerequisites = %v", prereqs)
	}
	for i := 1; i < len(prereqs); i++ {
		if prereqs[i-1] >= prereqs[i] {
			t.Fatalf("prerequisites not sorted: %v", prereqs)
		}
	}
}
