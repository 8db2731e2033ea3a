package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies why the registry rejected an operation.
type ErrorCode string

const (
	// ErrInvalidType indicates an id that names no registered type.
	ErrInvalidType ErrorCode = "invalid-type"
	// ErrInvalidName indicates a malformed type name.
	ErrInvalidName ErrorCode = "invalid-name"
	// ErrNameExists indicates the type name is already registered.
	ErrNameExists ErrorCode = "name-exists"
	// ErrInvalidFundamental indicates a bad or already used fundamental id.
	ErrInvalidFundamental ErrorCode = "invalid-fundamental"
	// ErrNotDerivable indicates the parent's fundamental forbids derivation.
	ErrNotDerivable ErrorCode = "not-derivable"
	// ErrNotDeepDerivable indicates the parent's fundamental forbids grandchildren.
	ErrNotDeepDerivable ErrorCode = "not-deep-derivable"
	// ErrFinalParent indicates the parent type is final.
	ErrFinalParent ErrorCode = "final-parent"
	// ErrInvalidTypeInfo indicates a TypeInfo that is inconsistent with its parent or flags.
	ErrInvalidTypeInfo ErrorCode = "invalid-type-info"
	// ErrInvalidValueTable indicates a malformed value table.
	ErrInvalidValueTable ErrorCode = "invalid-value-table"
	// ErrInvalidPlugin indicates a missing plugin for a dynamic registration.
	ErrInvalidPlugin ErrorCode = "invalid-plugin"
	// ErrNotClassed indicates a class operation on an unclassed type.
	ErrNotClassed ErrorCode = "not-classed"
	// ErrNotInstantiatable indicates an instance operation on a type without instances.
	ErrNotInstantiatable ErrorCode = "not-instantiatable"
	// ErrAbstract indicates instantiation of an abstract type.
	ErrAbstract ErrorCode = "abstract-type"
	// ErrNotInterface indicates an interface operation on a non-interface type.
	ErrNotInterface ErrorCode = "not-interface"
	// ErrInterfaceParent indicates the type does not conform to the interface's parent interface.
	ErrInterfaceParent ErrorCode = "interface-parent"
	// ErrInterfaceConflict indicates a descendant already claims the interface.
	ErrInterfaceConflict ErrorCode = "interface-conflict"
	// ErrInterfaceHolder indicates the interface is already supplied differently for the type.
	ErrInterfaceHolder ErrorCode = "interface-holder"
	// ErrPrerequisite indicates an implementer fails an interface prerequisite.
	ErrPrerequisite ErrorCode = "prerequisite"
	// ErrInterfaceInUse indicates a prerequisite added after the interface has implementers.
	ErrInterfaceInUse ErrorCode = "interface-in-use"
	// ErrPrerequisiteCycle indicates a prerequisite that would make interfaces depend on themselves.
	ErrPrerequisiteCycle ErrorCode = "prerequisite-cycle"
	// ErrPrivateData indicates an invalid or repeated private data declaration.
	ErrPrivateData ErrorCode = "private-data"
	// ErrCounterOverflow indicates a fixed-width counter would overflow.
	ErrCounterOverflow ErrorCode = "counter-overflow"
	// ErrInvalidInstance indicates a freed instance or an invalid instance cast.
	ErrInvalidInstance ErrorCode = "invalid-instance"
	// ErrRegistryClosed indicates use of a closed registry.
	ErrRegistryClosed ErrorCode = "registry-closed"
)

// Error describes a rejected registry operation.
type Error struct {
	Code    ErrorCode
	Op      string
	Type    string
	Message string
}

// Error formats the rejection as "[code] op type: message".
func (e *Error) Error() string {
	if e == nil {
		return "registry error <nil>"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Op))
	if e.Type != "" {
		b.WriteString(fmt.Sprintf(" '%s'", e.Type))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// New builds an Error.
func New(code ErrorCode, op, typ, msg string) *Error {
	return &Error{Code: code, Op: op, Type: typ, Message: msg}
}

// Newf formats a message and builds an Error.
func Newf(code ErrorCode, op, typ, format string, args ...any) *Error {
	return New(code, op, typ, fmt.Sprintf(format, args...))
}

// AsError extracts a registry Error from err.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err is a registry Error with code.
func HasCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// FatalCode identifies an invariant violation.
type FatalCode string

const (
	// FatalRecursion indicates construction re-entered a type still being built.
	FatalRecursion FatalCode = "recursive-construction"
	// FatalRefOverflow indicates a reference count overflow.
	FatalRefOverflow FatalCode = "ref-overflow"
	// FatalUnreferenced indicates an unref of a payload that holds no reference.
	FatalUnreferenced FatalCode = "unreferenced"
	// FatalPluginInfo indicates a plugin supplied invalid or changed info.
	FatalPluginInfo FatalCode = "plugin-info"
	// FatalLayout indicates an instance layout that does not fit its counters.
	FatalLayout FatalCode = "layout-overflow"
)

// Fatal is the panic value for invariant violations. The registry that raised it
// must be discarded.
type Fatal struct {
	Code    FatalCode
	Message string
}

// Error returns the error string.
func (f *Fatal) Error() string {
	if f == nil {
		return "fatal <nil>"
	}
	return fmt.Sprintf("fatal [%s]: %s", f.Code, f.Message)
}

// AsFatal converts a recovered panic value into a Fatal.
func AsFatal(v any) (*Fatal, bool) {
	switch f := v.(type) {
	case *Fatal:
		return f, f != nil
	case error:
		var target *Fatal
		if errors.As(f, &target) && target != nil {
			return target, true
		}
	}
	return nil, false
}
