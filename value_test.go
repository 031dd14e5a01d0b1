package echoc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"zero int", IntVal(0), false},
		{"nonzero int", IntVal(1), true},
		{"empty string", StringVal(""), false},
		{"nonempty string", StringVal("x"), true},
		{"null", Null, false},
		{"empty array", Value{Kind: KArray, Arr: &ArrayValue{}}, false},
		{"nonempty array", Value{Kind: KArray, Arr: &ArrayValue{Items: []Value{IntVal(1)}}}, true},
	}
	for _, c := range cases {
		if got := truthy(c.v); got != c.want {
			t.Errorf("%s: truthy() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIdenticalPrimitivesByValue(t *testing.T) {
	a := StringVal("hi")
	b := StringVal("hi")
	if !identical(a, b) {
		t.Error("two equal strings should be `is`-identical (value identity)")
	}
	if identical(IntVal(1), FloatVal(1)) {
		t.Error("Int and Float must never be `is`-identical even when numerically equal")
	}
}

func TestIdenticalArraysByReference(t *testing.T) {
	arr := &ArrayValue{Items: []Value{IntVal(1)}}
	a := Value{Kind: KArray, Arr: arr}
	b := Value{Kind: KArray, Arr: arr}
	c := Value{Kind: KArray, Arr: &ArrayValue{Items: []Value{IntVal(1)}}}
	if !identical(a, b) {
		t.Error("two Values sharing the same backing ArrayValue should be identical")
	}
	if identical(a, c) {
		t.Error("two Values with distinct backing ArrayValues should not be identical even with equal contents")
	}
}

func TestDeepCopyArrayIsIndependent(t *testing.T) {
	orig := Value{Kind: KArray, Arr: &ArrayValue{Items: []Value{IntVal(1), IntVal(2)}}}
	cp := deepCopy(orig)
	cp.Arr.Items[0] = IntVal(99)
	if orig.Arr.Items[0].I != 1 {
		t.Error("mutating the deep copy mutated the original's backing store")
	}
}

func TestEqualValuesIntFloatCoercion(t *testing.T) {
	if !equalValues(IntVal(3), FloatVal(3.0)) {
		t.Error("Int(3) and Float(3.0) should be == equal")
	}
	if equalValues(IntVal(3), FloatVal(3.5)) {
		t.Error("Int(3) and Float(3.5) should not be equal")
	}
}

func TestEqualValuesNestedArrays(t *testing.T) {
	a := Value{Kind: KArray, Arr: &ArrayValue{Items: []Value{IntVal(1), StringVal("x")}}}
	b := Value{Kind: KArray, Arr: &ArrayValue{Items: []Value{IntVal(1), StringVal("x")}}}
	if !equalValues(a, b) {
		t.Error("structurally identical arrays should be == equal")
	}
	if diff := cmp.Diff(displayString(a), displayString(b)); diff != "" {
		t.Errorf("display strings diverge (-a +b):\n%s", diff)
	}
}

func TestDisplayStringFloatTrailingZero(t *testing.T) {
	if got := displayString(FloatVal(2.0)); got != "2.0" {
		t.Errorf("got %q, want %q", got, "2.0")
	}
	if got := displayString(FloatVal(2.5)); got != "2.5" {
		t.Errorf("got %q, want %q", got, "2.5")
	}
}

func TestDisplayStringArrayQuotesNestedStrings(t *testing.T) {
	arr := Value{Kind: KArray, Arr: &ArrayValue{Items: []Value{StringVal("a"), IntVal(1)}}}
	got := displayString(arr)
	want := `["a", 1]`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
