package echoc

import "testing"

func TestDictionarySetGet(t *testing.T) {
	d := NewDictionary()
	d.Set(StringVal("a"), IntVal(1))
	v, ok := d.TryGet(StringVal("a"))
	if !ok || v.I != 1 {
		t.Fatalf("got %+v, %v", v, ok)
	}
}

func TestDictionaryMissingKey(t *testing.T) {
	d := NewDictionary()
	if _, ok := d.TryGet(StringVal("nope")); ok {
		t.Error("expected TryGet to report missing for an absent key")
	}
}

func TestDictionaryOverwrite(t *testing.T) {
	d := NewDictionary()
	d.Set(IntVal(1), StringVal("first"))
	d.Set(IntVal(1), StringVal("second"))
	if d.Len() != 1 {
		t.Fatalf("expected overwrite to keep a single entry, got %d", d.Len())
	}
	v, _ := d.TryGet(IntVal(1))
	if v.S != "second" {
		t.Errorf("got %q, want %q", v.S, "second")
	}
}

func TestDictionaryIntFloatKeyCollide(t *testing.T) {
	d := NewDictionary()
	d.Set(IntVal(3), StringVal("three"))
	v, ok := d.TryGet(FloatVal(3.0))
	if !ok {
		t.Fatal("Int(3) and Float(3.0) should collide as the same key")
	}
	if v.S != "three" {
		t.Errorf("got %q", v.S)
	}
}

func TestDictionaryDelete(t *testing.T) {
	d := NewDictionary()
	d.Set(StringVal("k"), IntVal(1))
	if !d.Delete(StringVal("k")) {
		t.Error("Delete should report true for a present key")
	}
	if _, ok := d.TryGet(StringVal("k")); ok {
		t.Error("key should be gone after Delete")
	}
	if d.Delete(StringVal("k")) {
		t.Error("Delete should report false the second time")
	}
}

func TestDictionaryResizePreservesEntries(t *testing.T) {
	d := NewDictionary()
	const n = 200
	for i := 0; i < n; i++ {
		d.Set(IntVal(int64(i)), IntVal(int64(i*i)))
	}
	if d.Len() != n {
		t.Fatalf("got %d entries, want %d", d.Len(), n)
	}
	for i := 0; i < n; i++ {
		v, ok := d.TryGet(IntVal(int64(i)))
		if !ok || v.I != int64(i*i) {
			t.Fatalf("entry %d: got %+v, %v", i, v, ok)
		}
	}
}

func TestDictionaryDeepEqual(t *testing.T) {
	a := NewDictionary()
	a.Set(StringVal("x"), IntVal(1))
	b := NewDictionary()
	b.Set(StringVal("x"), IntVal(1))
	if !a.DeepEqual(b) {
		t.Error("dictionaries with the same contents should be DeepEqual")
	}
	b.Set(StringVal("y"), IntVal(2))
	if a.DeepEqual(b) {
		t.Error("dictionaries with differing sizes should not be DeepEqual")
	}
}

func TestDictionaryForEachBucketOrder(t *testing.T) {
	d := NewDictionary()
	d.Set(StringVal("a"), IntVal(1))
	d.Set(StringVal("b"), IntVal(2))
	var first []Value
	d.ForEach(func(k, v Value) { first = append(first, k) })
	var second []Value
	d.ForEach(func(k, v Value) { second = append(second, k) })
	if len(first) != len(second) {
		t.Fatalf("iteration length changed between calls")
	}
	for i := range first {
		if !identical(first[i], second[i]) {
			t.Errorf("ForEach order is not stable across calls at index %d", i)
		}
	}
}
