package sortedtab

import (
	"slices"
	"testing"
)

type entry struct {
	key uint64
	val string
}

func entryKey(e entry) uint64 { return e.key }

func TestInsertKeepsOrder(t *testing.T) {
	var s []entry
	for _, k := range []uint64{40, 8, 24, 16, 8} {
		var ok bool
		s, ok = Insert(s, entry{key: k}, entryKey)
		if k == 8 && len(s) > 2 && ok {
			t.Fatalf("Insert() duplicate key %d inserted", k)
		}
	}
	got := make([]uint64, 0, len(s))
	for _, e := range s {
		got = append(got, e.key)
	}
	want := []uint64{8, 16, 24, 40}
	if !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if !IsSorted(s, entryKey) {
		t.Fatalf("IsSorted() = false, want true")
	}
}

func TestLookupUpsertRemove(t *testing.T) {
	s := []entry{{key: 4, val: "a"}, {key: 12, val: "b"}}
	if e := Lookup(s, 12, entryKey); e == nil || e.val != "b" {
		t.Fatalf("Lookup(12) = %v, want b", e)
	}
	if e := Lookup(s, 8, entryKey); e != nil {
		t.Fatalf("Lookup(8) = %v, want nil", e)
	}
	s = Upsert(s, entry{key: 12, val: "c"}, entryKey)
	s = Upsert(s, entry{key: 8, val: "d"}, entryKey)
	if len(s) != 3 || s[1].val != "d" || s[2].val != "c" {
		t.Fatalf("Upsert() result = %v", s)
	}
	s, ok := Remove(s, 4, entryKey)
	if !ok || len(s) != 2 || s[0].key != 8 {
		t.Fatalf("Remove(4) = %v, %v", s, ok)
	}
	if _, ok := Remove(s, 4, entryKey); ok {
		t.Fatalf("Remove(4) twice ok = true, want false")
	}
}

func TestKeys(t *testing.T) {
	var k Keys[uint64]
	if !k.Add(16) || !k.Add(4) || k.Add(16) {
		t.Fatalf("Add() results unexpected: %v", k)
	}
	if !k.Has(4) || k.Has(8) {
		t.Fatalf("Has() unexpected on %v", k)
	}
	c := k.Clone()
	c.Add(8)
	if k.Has(8) {
		t.Fatalf("Clone() shares backing storage")
	}
}
