// Package graphcycle finds cycles in small directed graphs such as the
// interface prerequisite graph.
package graphcycle

import "fmt"

type visitState uint8

const (
	stateVisiting visitState = iota + 1
	stateDone
)

// CycleError reports a cycle. Path starts and ends with the same key.
type CycleError[K comparable] struct {
	Path []K
}

// Error returns the error string.
func (e CycleError[K]) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Path)
}

// Config configures a traversal.
type Config[K comparable] struct {
	// Next returns the successors of a node.
	Next func(K) []K
	// Extra adds edges that are not yet part of the graph, used to test a
	// candidate edge before committing it.
	Extra  map[K][]K
	Starts []K
}

// Detect walks edges from Starts and returns the first cycle found as a CycleError.
func Detect[K comparable](cfg Config[K]) error {
	if cfg.Next == nil {
		return fmt.Errorf("cycle detect: next function is nil")
	}
	states := make(map[K]visitState, len(cfg.Starts))
	var path []K

	var visit func(key K) error
	visit = func(key K) error {
		switch states[key] {
		case stateVisiting:
			return CycleError[K]{Path: cyclePath(path, key)}
		case stateDone:
			return nil
		}
		states[key] = stateVisiting
		path = append(path, key)
		for _, next := range cfg.Next(key) {
			if err := visit(next); err != nil {
				return err
			}
		}
		for _, next := range cfg.Extra[key] {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		states[key] = stateDone
		return nil
	}

	for _, start := range cfg.Starts {
		if err := visit(start); err != nil {
			return err
		}
	}
	return nil
}

func cyclePath[K comparable](path []K, key K) []K {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == key {
			out := make([]K, 0, len(path)-i+1)
			out = append(out, path[i:]...)
			return append(out, key)
		}
	}
	return []K{key, key}
}
