package errors

import (
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		want string
		e    Error
	}{
		{
			name: "op only",
			e:    Error{Code: ErrInvalidType, Op: "class ref"},
			want: "[invalid-type] class ref",
		},
		{
			name: "with type",
			e:    Error{Code: ErrNameExists, Op: "register static", Type: "Dog"},
			want: "[name-exists] register static 'Dog'",
		},
		{
			name: "with all",
			e: Error{
				Code:    ErrInterfaceConflict,
				Op:      "add interface",
				Type:    "Animal",
				Message: "descendant 'Dog' already conforms to 'Walker'",
			},
			want: "[interface-conflict] add interface 'Animal': descendant 'Dog' already conforms to 'Walker'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNilErrorFormatting(t *testing.T) {
	var e *Error
	if got := e.Error(); got != "registry error <nil>" {
		t.Fatalf("Error() = %q, want %q", got, "registry error <nil>")
	}
	var f *Fatal
	if got := f.Error(); got != "fatal <nil>" {
		t.Fatalf("Error() = %q, want %q", got, "fatal <nil>")
	}
}

func TestAsErrorWrapped(t *testing.T) {
	base := Newf(ErrPrerequisite, "add interface", "Dog", "'%s' is not a '%s'", "Dog", "Animal")
	wrapped := fmt.Errorf("apply manifest: %w", base)

	got, ok := AsError(wrapped)
	if !ok {
		t.Fatalf("AsError() ok = false, want true")
	}
	if got != base {
		t.Fatalf("AsError() = %v, want %v", got, base)
	}
	if !HasCode(wrapped, ErrPrerequisite) {
		t.Fatalf("HasCode(%v) = false, want true", ErrPrerequisite)
	}
	if HasCode(wrapped, ErrAbstract) {
		t.Fatalf("HasCode(%v) = true, want false", ErrAbstract)
	}
	if _, ok := AsError(nil); ok {
		t.Fatalf("AsError(nil) ok = true, want false")
	}
}

func TestAsFatal(t *testing.T) {
	f := &Fatal{Code: FatalRecursion, Message: "class init of 'Dog'"}
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{name: "direct", v: f, want: true},
		{name: "wrapped", v: fmt.Errorf("boom: %w", f), want: true},
		{name: "string", v: "boom", want: false},
		{name: "typed nil", v: (*Fatal)(nil), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsFatal(tt.v)
			if ok != tt.want {
				t.Fatalf("AsFatal() ok = %v, want %v", ok, tt.want)
			}
			if ok && got != f {
				t.Fatalf("AsFatal() = %v, want %v", got, f)
			}
		})
	}
}
