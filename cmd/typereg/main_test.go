package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `
[[interface]]
name = "Walker"
vtable_size = 1
prerequisites = ["Animal"]

[[type]]
name = "Animal"
class_size = 1
instance_size = 16
abstract = true
private = 4

[[type]]
name = "Dog"
parent = "Animal"
class_size = 1
instance_size = 20
private = 16

[[implements]]
type = "Dog"
interface = "Walker"
`

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "types.toml")
	if err := os.WriteFile(path, []byte(testManifest), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runWithArgs(append([]string{"typereg"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCommands(t *testing.T) {
	path := writeManifest(t)
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "tree", args: []string{"tree"}, want: []string{"GObject\n", "  Animal (abstract)\n", "    Dog : Walker\n", "GInterface\n", "  Walker\n"}},
		{name: "tree root", args: []string{"tree", "Animal"}, want: []string{"Animal (abstract)\n  Dog : Walker\n"}},
		{name: "query", args: []string{"query", "Dog"}, want: []string{"name: Dog\n", "parent: Animal\n", "depth: 2\n", "class size: 1\n", "instance size: 20\n", "interfaces: Walker\n", "state: uninitialized\n"}},
		{name: "query interface", args: []string{"query", "Walker"}, want: []string{"prerequisites: ", "Animal"}},
		{name: "isa", args: []string{"isa", "Dog", "Walker"}, want: []string{"true\n"}},
		{name: "isa false", args: []string{"isa", "Animal", "Walker"}, want: []string{"false\n"}},
		{name: "layout", args: []string{"layout", "Dog"}, want: []string{"Dog: 48 bytes\n", "  Animal private: offset 24, 8 bytes\n", "  Dog private: offset 32, 16 bytes\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runCLI(t, "", append([]string{"--manifest", path}, tt.args...)...)
			if code != 0 {
				t.Fatalf("exit code = %d, stderr = %s", code, errOut)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Fatalf("output %q does not contain %q", out, want)
				}
			}
		})
	}
}

func TestCommandErrors(t *testing.T) {
	path := writeManifest(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown type", args: []string{"--manifest", path, "query", "Cat"}, want: `unknown type "Cat"`},
		{name: "missing args", args: []string{"--manifest", path, "isa", "Dog"}, want: "isa expects 2 argument(s)"},
		{name: "abstract layout", args: []string{"--manifest", path, "layout", "Animal"}, want: "abstract"},
		{name: "missing manifest", args: []string{"--manifest", filepath.Join(t.TempDir(), "none.toml"), "tree"}, want: "open manifest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, "", tt.args...)
			if code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Fatalf("stderr %q does not contain %q", errOut, tt.want)
			}
		})
	}
}

func TestTreeWithoutManifest(t *testing.T) {
	code, out, errOut := runCLI(t, "", "tree")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if out != "void\nGInterface\nGObject\n" {
		t.Fatalf("tree output = %q", out)
	}
}

func TestShell(t *testing.T) {
	path := writeManifest(t)
	script := strings.Join([]string{
		"state Dog",
		"ref Dog",
		"state Dog",
		"state Animal",
		"new Dog",
		"free Dog",
		"unref Dog",
		"state Dog",
		"unref Dog",
		"bogus",
		"isa Dog",
		"",
		"quit",
		"state Dog",
	}, "\n")
	code, out, errOut := runCLI(t, script, "--manifest", path, "shell")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	want := []string{
		"Dog: uninitialized\n",
		"Dog class referenced (1 held)\n",
		"Dog: initialized\n",
		"Animal: initialized\n",
		"Dog instance created (1 live)\n",
		"Dog instance freed (0 live)\n",
		"Dog class released (0 held)\n",
		"error: no class reference held for Dog\n",
		"unknown command \"bogus\"",
		"usage: isa <type> <target>\n",
	}
	rest := out
	for _, w := range want {
		i := strings.Index(rest, w)
		if i < 0 {
			t.Fatalf("shell output missing %q in order; output:\n%s", w, out)
		}
		rest = rest[i+len(w):]
	}
	if strings.Count(out, "Dog: uninitialized\n") != 2 {
		t.Fatalf("expected Dog to be torn down after unref; output:\n%s", out)
	}
	if strings.Count(out, "Dog: ") != 3 {
		t.Fatalf("commands after quit ran; output:\n%s", out)
	}
}

func TestShellHelp(t *testing.T) {
	code, out, _ := runCLI(t, "help\n", "shell")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for _, cmd := range []string{"tree [root]", "ref <type>", "new <type>", "state <type>", "quit"} {
		if !strings.Contains(out, cmd) {
			t.Fatalf("help output %q missing %q", out, cmd)
		}
	}
}

func TestComplete(t *testing.T) {
	s, err := newSession(writeManifest(t), &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	defer s.close()
	if got := s.complete("st"); len(got) != 1 || got[0] != "state" {
		t.Fatalf("complete(st) = %v", got)
	}
	if got := s.complete("query Do"); len(got) != 1 || got[0] != "query Dog" {
		t.Fatalf("complete(query Do) = %v", got)
	}
}
