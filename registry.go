package typereg

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacoelho/typereg/errors"
	"github.com/jacoelho/typereg/internal/isacache"
	"github.com/jacoelho/typereg/internal/quark"
	"github.com/jacoelho/typereg/internal/recmutex"
)

type classCacheHook struct {
	data any
	fn   ClassCacheFunc
	id   HookID
}

type ifaceCheckHook struct {
	data any
	fn   InterfaceCheckFunc
	id   HookID
}

// Registry owns a type graph. All methods are safe for concurrent use.
//
// Lock order: initMu before mu. initMu serialises payload construction and
// teardown and may be re-entered by the goroutine that holds it; mu guards
// the graph and is released around every user callback.
type Registry struct {
	log          *slog.Logger
	quarks       *quark.Table
	isa          *isacache.Cache
	byName       map[string]TypeID
	fundamentals [int(FundamentalMax>>FundamentalShift) + 1]*typeNode
	derived      []*typeNode
	classCaches  []classCacheHook
	ifaceChecks  []ifaceCheckHook

	initMu recmutex.Mutex
	mu     sync.RWMutex

	nextFundamental uint32
	nextHook        HookID
	scrub           bool
	countInstances  bool
	closed          bool
}

// New returns a registry with default options.
func New() (*Registry, error) {
	return NewWithOptions(NewOptions())
}

// NewWithOptions returns a registry seeded with the predefined fundamentals.
func NewWithOptions(opts Options) (*Registry, error) {
	resolved, err := opts.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("registry options: %w", err)
	}
	cache, err := isacache.New(resolved.isACacheSize)
	if err != nil {
		return nil, fmt.Errorf("isa cache: %w", err)
	}
	r := &Registry{
		log:             resolved.logger,
		quarks:          quark.NewTable(),
		isa:             cache,
		byName:          make(map[string]TypeID),
		nextFundamental: ReservedUserFirst,
		scrub:           resolved.scrubInstances,
		countInstances:  resolved.instanceCount,
	}
	if err := r.seed(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) seed() error {
	seeds := []struct {
		name  string
		id    TypeID
		flags FundamentalFlags
	}{
		{id: TypeNone, name: "void"},
		{id: TypeInterface, name: "GInterface", flags: FlagDerivable | FlagDeepDerivable},
		{id: TypeObject, name: "GObject", flags: FlagClassed | FlagInstantiatable | FlagDerivable | FlagDeepDerivable},
	}
	for _, s := range seeds {
		if _, err := r.RegisterFundamental(s.id, s.name, TypeInfo{}, FundamentalInfo{Flags: s.flags}, 0); err != nil {
			return fmt.Errorf("seed %s: %w", s.name, err)
		}
	}
	return nil
}

// Close ends the registry's lifecycle. Later registrations are rejected;
// queries and payloads already handed out stay usable.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.isa.Purge()
}

// lookup maps an id to its node in O(1). Requires mu.
func (r *Registry) lookup(t TypeID) *typeNode {
	if t == TypeInvalid || t&reservedMask != 0 {
		return nil
	}
	idx := uint64(t >> FundamentalShift)
	if idx < uint64(len(r.fundamentals)) {
		return r.fundamentals[idx]
	}
	idx -= uint64(len(r.fundamentals))
	if idx >= uint64(len(r.derived)) {
		return nil
	}
	return r.derived[idx]
}

func (r *Registry) nextDerivedID() TypeID {
	return TypeID(uint64(len(r.fundamentals))+uint64(len(r.derived))) << FundamentalShift
}

// nameOf returns a printable name for t. Requires mu.
func (r *Registry) nameOf(t TypeID) string {
	if n := r.lookup(t); n != nil {
		return n.name
	}
	return fmt.Sprintf("<invalid %d>", uint64(t))
}

// graphChanged invalidates memoised IsA answers. Requires mu held for writing.
func (r *Registry) graphChanged() {
	r.isa.Invalidate()
}

func (r *Registry) reject(code errors.ErrorCode, op, typ, format string, args ...any) error {
	err := errors.Newf(code, op, typ, format, args...)
	r.log.Warn(err.Message, "op", op, "type", typ, "code", string(code))
	return err
}

// fatal reports an invariant violation. mu must not be held.
func (r *Registry) fatal(code errors.FatalCode, format string, args ...any) {
	f := &errors.Fatal{Code: code, Message: fmt.Sprintf(format, args...)}
	r.log.Error(f.Message, "code", string(code))
	panic(f)
}

// unlockedCall runs fn with mu released. Pointers into node arrays must be
// looked up again afterwards.
func (r *Registry) unlockedCall(fn func()) {
	r.mu.Unlock()
	fn()
	r.mu.Lock()
}

// Quark interns s for use as a qdata key.
func (r *Registry) Quark(s string) (Quark, error) {
	return r.quarks.Intern(s)
}

// TryQuark returns the quark for s if it was interned before.
func (r *Registry) TryQuark(s string) (Quark, bool) {
	return r.quarks.Lookup(s)
}

// QuarkString returns the string behind q.
func (r *Registry) QuarkString(q Quark) string {
	return r.quarks.String(q)
}
