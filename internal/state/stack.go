package state

// StateStack is a reusable LIFO stack.
type StateStack[T any] struct {
	items []T
}

// NewStateStack creates a stack with an optional capacity hint.
func NewStateStack[T any](capacity int) StateStack[T] {
	if capacity <= 0 {
		return StateStack[T]{}
	}
	return StateStack[T]{items: make([]T, 0, capacity)}
}

// Push adds one value to the stack top.
func (s *StateStack[T]) Push(value T) {
	s.items = append(s.items, value)
}

// PushAll adds values so that the first one is popped first.
func (s *StateStack[T]) PushAll(values []T) {
	for i := len(values) - 1; i >= 0; i-- {
		s.items = append(s.items, values[i])
	}
}

// Pop removes and returns the top value.
func (s *StateStack[T]) Pop() (T, bool) {
	var zero T
	if s == nil || len(s.items) == 0 {
		return zero, false
	}
	last := len(s.items) - 1
	value := s.items[last]
	s.items = s.items[:last]
	return value, true
}

// Len reports the current stack depth.
func (s *StateStack[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Preorder visits root and its descendants depth-first without recursion.
// Visiting stops early and returns false as soon as visit returns false.
func Preorder[T any](root T, children func(T) []T, visit func(T) bool) bool {
	stack := NewStateStack[T](8)
	stack.Push(root)
	for stack.Len() > 0 {
		node, _ := stack.Pop()
		if !visit(node) {
			return false
		}
		stack.PushAll(children(node))
	}
	return true
}
