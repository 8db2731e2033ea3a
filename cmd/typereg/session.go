package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jacoelho/typereg"
	"github.com/jacoelho/typereg/internal/manifest"
)

// session is a registry loaded from a manifest together with the classes
// and instances the shell holds on to.
type session struct {
	reg       *typereg.Registry
	applied   *manifest.Applied
	out       io.Writer
	classes   map[typereg.TypeID][]*typereg.Class
	instances map[typereg.TypeID][]*typereg.Instance
}

func newSession(manifestPath string, out io.Writer, logger *slog.Logger) (*session, error) {
	reg, err := typereg.NewWithOptions(typereg.NewOptions().WithLogger(logger).WithInstanceCount(true))
	if err != nil {
		return nil, err
	}
	s := &session{
		reg:       reg,
		out:       out,
		classes:   make(map[typereg.TypeID][]*typereg.Class),
		instances: make(map[typereg.TypeID][]*typereg.Instance),
	}
	if manifestPath == "" {
		return s, nil
	}
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if s.applied, err = manifest.Apply(reg, m); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) resolve(name string) (typereg.TypeID, error) {
	if id := s.reg.FromName(name); id != typereg.TypeInvalid {
		return id, nil
	}
	return typereg.TypeInvalid, fmt.Errorf("unknown type %q", name)
}

func (s *session) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(s.out, format, args...)
	return err
}

func (s *session) tree(root string) error {
	roots := []typereg.TypeID{}
	if root != "" {
		id, err := s.resolve(root)
		if err != nil {
			return err
		}
		roots = append(roots, id)
	} else {
		for _, id := range s.reg.Types() {
			if id.IsFundamental() {
				roots = append(roots, id)
			}
		}
	}
	for _, id := range roots {
		if err := s.printTree(id, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) printTree(id typereg.TypeID, depth int) error {
	line := strings.Repeat("  ", depth) + s.reg.Name(id)
	if s.reg.TestFlags(id, typereg.TypeFlagAbstract) {
		line += " (abstract)"
	}
	if ifaces := s.reg.Interfaces(id); len(ifaces) > 0 {
		line += " : " + s.names(ifaces)
	}
	if err := s.printf("%s\n", line); err != nil {
		return err
	}
	for _, child := range s.reg.Children(id) {
		if err := s.printTree(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) names(ids []typereg.TypeID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = s.reg.Name(id)
	}
	return strings.Join(names, ", ")
}

func (s *session) query(name string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	kind := "static"
	if s.reg.TypeGetPlugin(id) != nil {
		kind = "dynamic"
	}
	if id.IsFundamental() {
		kind = "fundamental"
	}
	if err := s.printf("name: %s\nid: %d\nkind: %s\nparent: %s\ndepth: %d\nfundamental: %s\n",
		s.reg.Name(id), uint64(id), kind, s.reg.Name(s.reg.Parent(id)), s.reg.Depth(id),
		s.reg.Name(s.reg.Fundamental(id))); err != nil {
		return err
	}
	if q, ok := s.reg.Query(id); ok {
		if err := s.printf("class size: %d\ninstance size: %d\n", q.ClassSize, q.InstanceSize); err != nil {
			return err
		}
	}
	if ifaces := s.reg.Interfaces(id); len(ifaces) > 0 {
		if err := s.printf("interfaces: %s\n", s.names(ifaces)); err != nil {
			return err
		}
	}
	if prereqs := s.reg.InterfacePrerequisites(id); len(prereqs) > 0 {
		if err := s.printf("prerequisites: %s\n", s.names(prereqs)); err != nil {
			return err
		}
	}
	return s.printf("state: %s\n", s.reg.InitState(id))
}

func (s *session) isa(name, target string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	tid, err := s.resolve(target)
	if err != nil {
		return err
	}
	return s.printf("%t\n", s.reg.IsA(id, tid))
}

func (s *session) layout(name string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	inst, err := s.reg.CreateInstance(id)
	if err != nil {
		return err
	}
	defer func() { _ = s.reg.FreeInstance(inst) }()

	if err := s.printf("%s: %d bytes\n", name, len(inst.Data)); err != nil {
		return err
	}
	ancestors := s.reg.Ancestors(id)
	for i := len(ancestors) - 1; i >= 0; i-- {
		priv := s.reg.InstancePrivate(inst, ancestors[i])
		if priv == nil {
			continue
		}
		if err := s.printf("  %s private: offset %d, %d bytes\n",
			s.reg.Name(ancestors[i]), offsetOf(inst.Data, priv), len(priv)); err != nil {
			return err
		}
	}
	return nil
}

// offsetOf returns where sub starts inside buf, or -1.
func offsetOf(buf, sub []byte) int {
	if len(sub) == 0 {
		return -1
	}
	for i := range buf {
		if &buf[i] == &sub[0] {
			return i
		}
	}
	return -1
}

func (s *session) ref(name string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	c, err := s.reg.ClassRef(id)
	if err != nil {
		return err
	}
	s.classes[id] = append(s.classes[id], c)
	return s.printf("%s class referenced (%d held)\n", name, len(s.classes[id]))
}

func (s *session) unref(name string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	held := s.classes[id]
	if len(held) == 0 {
		return fmt.Errorf("no class reference held for %s", name)
	}
	s.reg.ClassUnref(held[len(held)-1])
	s.classes[id] = held[:len(held)-1]
	return s.printf("%s class released (%d held)\n", name, len(s.classes[id]))
}

func (s *session) create(name string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	inst, err := s.reg.CreateInstance(id)
	if err != nil {
		return err
	}
	s.instances[id] = append(s.instances[id], inst)
	return s.printf("%s instance created (%d live)\n", name, s.reg.InstanceCount(id))
}

func (s *session) free(name string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	live := s.instances[id]
	if len(live) == 0 {
		return fmt.Errorf("no instance held for %s", name)
	}
	if err := s.reg.FreeInstance(live[len(live)-1]); err != nil {
		return err
	}
	s.instances[id] = live[:len(live)-1]
	return s.printf("%s instance freed (%d live)\n", name, s.reg.InstanceCount(id))
}

func (s *session) state(name string) error {
	id, err := s.resolve(name)
	if err != nil {
		return err
	}
	return s.printf("%s: %s\n", name, s.reg.InitState(id))
}

// close releases everything the session holds.
func (s *session) close() {
	for _, live := range s.instances {
		for _, inst := range live {
			_ = s.reg.FreeInstance(inst)
		}
	}
	for _, held := range s.classes {
		for _, c := range held {
			s.reg.ClassUnref(c)
		}
	}
	s.instances = nil
	s.classes = nil
	s.reg.Close()
}
