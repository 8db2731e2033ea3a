package typereg_test

import (
	"sync"
	"testing"

	"github.com/jacoelho/typereg"
	"github.com/jacoelho/typereg/errors"
)

func newRegistry(t *testing.T) *typereg.Registry {
	t.Helper()
	r, err := typereg.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func mustStatic(t *testing.T, r *typereg.Registry, parent typereg.TypeID, name string, info typereg.TypeInfo) typereg.TypeID {
	t.Helper()
	id, err := r.RegisterStatic(parent, name, info, 0)
	if err != nil {
		t.Fatalf("RegisterStatic(%s) error = %v", name, err)
	}
	return id
}

func mustInterface(t *testing.T, r *typereg.Registry, name string, info typereg.TypeInfo) typereg.TypeID {
	t.Helper()
	return mustStatic(t, r, typereg.TypeInterface, name, info)
}

func mustClassRef(t *testing.T, r *typereg.Registry, typ typereg.TypeID) *typereg.Class {
	t.Helper()
	c, err := r.ClassRef(typ)
	if err != nil {
		t.Fatalf("ClassRef(%s) error = %v", r.Name(typ), err)
	}
	return c
}

func wantCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", code)
	}
	if !errors.HasCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

func wantFatal(t *testing.T, code errors.FatalCode, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		f, ok := errors.AsFatal(recover())
		if !ok {
			t.Fatalf("expected fatal %s, got none", code)
		}
		if f.Code != code {
			t.Fatalf("fatal code = %s, want %s (%s)", f.Code, code, f.Message)
		}
	}()
	fn()
}

// recorder collects callback events across goroutines.
type recorder struct {
	events []string
	mu     sync.Mutex
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// testPlugin completes types and interfaces from fixed infos and counts calls.
type testPlugin struct {
	typeInfo  func(n int) (typereg.TypeInfo, error)
	ifaceInfo func(instanceType, ifaceType typereg.TypeID) (typereg.InterfaceInfo, error)
	mu        sync.Mutex
	uses      int
	unuses    int
	completes int
}

func (p *testPlugin) Use() {
	p.mu.Lock()
	p.uses++
	p.mu.Unlock()
}

func (p *testPlugin) Unuse() {
	p.mu.Lock()
	p.unuses++
	p.mu.Unlock()
}

func (p *testPlugin) CompleteTypeInfo(typereg.TypeID) (typereg.TypeInfo, error) {
	p.mu.Lock()
	p.completes++
	n := p.completes
	p.mu.Unlock()
	if p.typeInfo == nil {
		return typereg.TypeInfo{}, nil
	}
	return p.typeInfo(n)
}

func (p *testPlugin) CompleteInterfaceInfo(instanceType, ifaceType typereg.TypeID) (typereg.InterfaceInfo, error) {
	p.mu.Lock()
	p.completes++
	p.mu.Unlock()
	if p.ifaceInfo == nil {
		return typereg.InterfaceInfo{}, nil
	}
	return p.ifaceInfo(instanceType, ifaceType)
}

func (p *testPlugin) counts() (uses, unuses, completes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uses, p.unuses, p.completes
}
