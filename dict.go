package echoc

import "math"

// Dictionary is a hashed key->Value map with separate chaining and
// load-factor-driven resize, matching the "Dictionary" component named in
// spec.md §2/§4 (a from-scratch hash table rather than a wrapped Go map, in
// keeping with the teacher's habit of owning its own storage structures —
// see DESIGN.md). Keys are EchoC Values; only Int/Float/Bool/Null/String
// keys are hashed by content. Keys of any other kind are accepted too: they
// all hash to the same bucket and are told apart by equalValues.
type Dictionary struct {
	buckets []*dictNode
	count   int
}

type dictNode struct {
	key  Value
	val  Value
	next *dictNode
}

const dictInitialBuckets = 8
const dictMaxLoadFactor = 0.75

func NewDictionary() *Dictionary {
	return &Dictionary{buckets: make([]*dictNode, dictInitialBuckets)}
}

func (d *Dictionary) Len() int { return d.count }

func hashValue(v Value) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	mix := func(b byte) {
		h ^= uint64(b)
		h *= prime64
	}
	switch v.Kind {
	case KInt:
		u := uint64(v.I)
		for i := 0; i < 8; i++ {
			mix(byte(u))
			u >>= 8
		}
	case KFloat:
		// Int/Float compare equal (spec.md §4.2 Int<->Float coercion), so
		// an integral float must hash identically to the equivalent Int.
		if v.F == float64(int64(v.F)) {
			return hashValue(IntVal(int64(v.F)))
		}
		bits := math.Float64bits(v.F)
		for i := 0; i < 8; i++ {
			mix(byte(bits))
			bits >>= 8
		}
	case KBool:
		if v.B {
			mix(1)
		} else {
			mix(0)
		}
	case KNull:
		mix(0xFF)
	case KString:
		for i := 0; i < len(v.S); i++ {
			mix(v.S[i])
		}
	}
	return h
}

func (d *Dictionary) resizeIfNeeded() {
	if float64(d.count)/float64(len(d.buckets)) <= dictMaxLoadFactor {
		return
	}
	old := d.buckets
	d.buckets = make([]*dictNode, len(old)*2)
	d.count = 0
	for _, head := range old {
		for n := head; n != nil; n = n.next {
			d.insert(n.key, n.val)
		}
	}
}

func (d *Dictionary) insert(key, val Value) {
	idx := hashValue(key) % uint64(len(d.buckets))
	d.buckets[idx] = &dictNode{key: key, val: val, next: d.buckets[idx]}
	d.count++
}

// Set inserts or updates key->val, matching on equalValues (so Int(1) and
// Float(1.0) collide as the same key, per spec.md's Int/Float coercion).
func (d *Dictionary) Set(key, val Value) {
	idx := hashValue(key) % uint64(len(d.buckets))
	for n := d.buckets[idx]; n != nil; n = n.next {
		if equalValues(n.key, key) {
			n.val = val
			return
		}
	}
	d.insert(key, val)
	d.resizeIfNeeded()
}

// TryGet returns the value for key and whether it was present.
func (d *Dictionary) TryGet(key Value) (Value, bool) {
	if len(d.buckets) == 0 {
		return Value{}, false
	}
	idx := hashValue(key) % uint64(len(d.buckets))
	for n := d.buckets[idx]; n != nil; n = n.next {
		if equalValues(n.key, key) {
			return n.val, true
		}
	}
	return Value{}, false
}

// Delete removes key, returning whether it was present.
func (d *Dictionary) Delete(key Value) bool {
	idx := hashValue(key) % uint64(len(d.buckets))
	var prev *dictNode
	for n := d.buckets[idx]; n != nil; n = n.next {
		if equalValues(n.key, key) {
			if prev == nil {
				d.buckets[idx] = n.next
			} else {
				prev.next = n.next
			}
			d.count--
			return true
		}
		prev = n
	}
	return false
}

// ForEach walks entries in bucket order (spec.md §4.5 "for in" dict
// iteration order is defined as bucket order, so callers that need stable
// iteration rely on this exact traversal).
func (d *Dictionary) ForEach(fn func(key, val Value)) {
	for _, head := range d.buckets {
		for n := head; n != nil; n = n.next {
			fn(n.key, n.val)
		}
	}
}

// Keys returns all keys in bucket order.
func (d *Dictionary) Keys() []Value {
	keys := make([]Value, 0, d.count)
	d.ForEach(func(k, _ Value) { keys = append(keys, k) })
	return keys
}

// DeepEqual implements structural equality between two dictionaries
// (spec.md §4.2 / §8 property 5): same size, and every key in one maps to
// an equal value in the other.
func (d *Dictionary) DeepEqual(o *Dictionary) bool {
	if d.count != o.count {
		return false
	}
	eq := true
	d.ForEach(func(k, v Value) {
		if !eq {
			return
		}
		ov, ok := o.TryGet(k)
		if !ok || !equalValues(v, ov) {
			eq = false
		}
	})
	return eq
}
