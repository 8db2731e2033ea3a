package typereg

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jacoelho/typereg/internal/isacache"
)

type intOption struct {
	value int
	set   bool
}

func (o intOption) resolved(def int) int {
	if !o.set || o.value == 0 {
		return def
	}
	return o.value
}

// Options configures a Registry.
type Options struct {
	logger         *slog.Logger
	isACacheSize   intOption
	scrubInstances bool
	instanceCount  bool
}

type resolvedOptions struct {
	logger         *slog.Logger
	isACacheSize   int
	scrubInstances bool
	instanceCount  bool
}

// NewOptions returns a default, valid options value.
func NewOptions() Options {
	return Options{}
}

// Validate validates option values.
func (o Options) Validate() error {
	_, err := o.withDefaults()
	return err
}

// WithLogger sets the logger used for rejected operations and lifecycle events.
// A nil logger discards output.
func (o Options) WithLogger(logger *slog.Logger) Options {
	o.logger = logger
	return o
}

// WithIsACacheSize sets how many IsA answers are memoised. Zero keeps the
// default size and -1 disables memoisation.
func (o Options) WithIsACacheSize(value int) Options {
	o.isACacheSize = intOption{value: value, set: true}
	return o
}

// WithScrubInstances fills freed instance memory with a poison pattern.
func (o Options) WithScrubInstances(value bool) Options {
	o.scrubInstances = value
	return o
}

// WithInstanceCount tracks live instance counts per type.
func (o Options) WithInstanceCount(value bool) Options {
	o.instanceCount = value
	return o
}

func (o Options) withDefaults() (resolvedOptions, error) {
	size := o.isACacheSize.resolved(isacache.DefaultSize)
	switch {
	case size == -1:
		size = 0
	case size < 0:
		return resolvedOptions{}, fmt.Errorf("isa cache size %d: must be positive, 0 or -1", size)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return resolvedOptions{
		logger:         logger,
		isACacheSize:   size,
		scrubInstances: o.scrubInstances,
		instanceCount:  o.instanceCount,
	}, nil
}
