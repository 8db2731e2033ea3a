// Package manifest loads TOML type manifests and applies them to a registry.
package manifest

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// Manifest describes a set of types to register.
type Manifest struct {
	Fundamentals []Fundamental `toml:"fundamental"`
	Interfaces   []Interface   `toml:"interface"`
	Types        []Type        `toml:"type"`
	Implements   []Implements  `toml:"implements"`
}

// Fundamental is a user fundamental type.
type Fundamental struct {
	Name           string `toml:"name"`
	Classed        bool   `toml:"classed"`
	Instantiatable bool   `toml:"instantiatable"`
	Derivable      bool   `toml:"derivable"`
	DeepDerivable  bool   `toml:"deep_derivable"`
	ClassSize      uint16 `toml:"class_size"`
	InstanceSize   uint16 `toml:"instance_size"`
}

// Type is a classed type derived from a registered parent.
type Type struct {
	Name         string `toml:"name"`
	Parent       string `toml:"parent"`
	ClassSize    uint16 `toml:"class_size"`
	InstanceSize uint16 `toml:"instance_size"`
	Private      int    `toml:"private"`
	Prealloc     uint16 `toml:"prealloc"`
	Abstract     bool   `toml:"abstract"`
	Final        bool   `toml:"final"`
	Dynamic      bool   `toml:"dynamic"`
}

// Interface is an interface type.
type Interface struct {
	Name          string   `toml:"name"`
	Parent        string   `toml:"parent"`
	Prerequisites []string `toml:"prerequisites"`
	VTableSize    uint16   `toml:"vtable_size"`
	Dynamic       bool     `toml:"dynamic"`
}

// Implements declares that a type implements an interface.
type Implements struct {
	Type      string `toml:"type"`
	Interface string `toml:"interface"`
	Dynamic   bool   `toml:"dynamic"`
}

// Default parents for entries that leave parent empty.
const (
	DefaultTypeParent      = "GObject"
	DefaultInterfaceParent = "GInterface"
)

// Parse decodes a manifest from data.
func Parse(data []byte) (*Manifest, error) {
	return decode(bytes.NewReader(data), "manifest")
}

// Load reads and decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open manifest")
	}
	defer f.Close()
	return decode(bufio.NewReader(f), path)
}

func decode(r io.Reader, name string) (*Manifest, error) {
	m := &Manifest{}
	if err := toml.NewDecoder(r).Decode(m); err != nil {
		if lerr, ok := err.(*toml.LineError); ok {
			return nil, errors.Wrapf(lerr, "%s, line %d", name, lerr.Line)
		}
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	m.setDefaults()
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, name)
	}
	return m, nil
}

func (m *Manifest) setDefaults() {
	for i := range m.Types {
		if m.Types[i].Parent == "" {
			m.Types[i].Parent = DefaultTypeParent
		}
	}
	for i := range m.Interfaces {
		if m.Interfaces[i].Parent == "" {
			m.Interfaces[i].Parent = DefaultInterfaceParent
		}
	}
}

// Validate checks that every entry is named, names are unique, and
// implementations reference declared or predefined names.
func (m *Manifest) Validate() error {
	seen := make(map[string]string)
	declare := func(section, name string) error {
		if name == "" {
			return errors.Errorf("%s entry without name", section)
		}
		if prev, ok := seen[name]; ok {
			return errors.Errorf("%s %q already declared as %s", section, name, prev)
		}
		seen[name] = section
		return nil
	}
	for _, f := range m.Fundamentals {
		if err := declare("fundamental", f.Name); err != nil {
			return err
		}
		if f.Instantiatable && !f.Classed {
			return errors.Errorf("fundamental %q is instantiatable but not classed", f.Name)
		}
	}
	for _, it := range m.Interfaces {
		if err := declare("interface", it.Name); err != nil {
			return err
		}
	}
	for _, t := range m.Types {
		if err := declare("type", t.Name); err != nil {
			return err
		}
		if t.Private < 0 {
			return errors.Errorf("type %q has negative private size %d", t.Name, t.Private)
		}
	}
	for _, im := range m.Implements {
		if im.Type == "" || im.Interface == "" {
			return errors.New("implements entry needs type and interface")
		}
		if seen[im.Interface] == "type" || seen[im.Interface] == "fundamental" {
			return errors.Errorf("implements %q: %q is not an interface", im.Type, im.Interface)
		}
	}
	return nil
}
