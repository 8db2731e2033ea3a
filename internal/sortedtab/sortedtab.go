// Package sortedtab keeps small arrays sorted by key for binary-search lookup.
package sortedtab

import (
	"cmp"
	"slices"
)

// Find locates key in s, which must be sorted by keyOf.
func Find[E any, K cmp.Ordered](s []E, key K, keyOf func(E) K) (int, bool) {
	return slices.BinarySearchFunc(s, key, func(e E, k K) int {
		return cmp.Compare(keyOf(e), k)
	})
}

// Lookup returns a pointer to the element with key, or nil.
// The pointer is only valid until s is next mutated.
func Lookup[E any, K cmp.Ordered](s []E, key K, keyOf func(E) K) *E {
	i, ok := Find(s, key, keyOf)
	if !ok {
		return nil
	}
	return &s[i]
}

// Insert adds e at its sorted position. Existing keys are left untouched
// and reported with inserted=false.
func Insert[E any, K cmp.Ordered](s []E, e E, keyOf func(E) K) (out []E, inserted bool) {
	i, ok := Find(s, keyOf(e), keyOf)
	if ok {
		return s, false
	}
	return slices.Insert(s, i, e), true
}

// Upsert inserts e or replaces the element with the same key.
func Upsert[E any, K cmp.Ordered](s []E, e E, keyOf func(E) K) []E {
	i, ok := Find(s, keyOf(e), keyOf)
	if ok {
		s[i] = e
		return s
	}
	return slices.Insert(s, i, e)
}

// Remove deletes the element with key if present.
func Remove[E any, K cmp.Ordered](s []E, key K, keyOf func(E) K) ([]E, bool) {
	i, ok := Find(s, key, keyOf)
	if !ok {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}

// Keys is a sorted set of ordered keys.
type Keys[K cmp.Ordered] []K

// Has reports whether k is in the set.
func (s Keys[K]) Has(k K) bool {
	_, ok := slices.BinarySearch(s, k)
	return ok
}

// Add inserts k and reports whether it was absent.
func (s *Keys[K]) Add(k K) bool {
	i, ok := slices.BinarySearch(*s, k)
	if ok {
		return false
	}
	*s = slices.Insert(*s, i, k)
	return true
}

// Clone returns an independent copy.
func (s Keys[K]) Clone() Keys[K] {
	return slices.Clone(s)
}

// IsSorted reports whether s is strictly increasing by keyOf.
func IsSorted[E any, K cmp.Ordered](s []E, keyOf func(E) K) bool {
	for i := 1; i < len(s); i++ {
		if keyOf(s[i-1]) >= keyOf(s[i]) {
			return false
		}
	}
	return true
}
