package echoc

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Kind tags the variant carried by a Value (spec.md §3).
type Kind int

const (
	KInt Kind = iota
	KFloat
	KBool
	KNull
	KString
	KArray
	KDict
	KTuple
	KFunction
	KBlueprint
	KObject
	KBoundMethod
	KCoroutine
	KGatherTask
	KSuperProxy
)

// Value is EchoC's tagged value union. Primitives are held inline; the
// shared/refcounted variants hold a pointer to their storage. This is the
// "standard shared-ownership abstraction" called for by spec.md §9 in place
// of the teacher's hand-rolled marker-string + object-table scheme
// (grounded on objectref.go's ObjectType/ObjectRef, generalized here into a
// real Go handle instead of a "\x00TYPE:id\x00" string).
type Value struct {
	Kind Kind

	I int64
	F float64
	B bool
	S string

	Arr    *ArrayValue
	Dict   *DictValue
	Tup    *TupleValue
	Fn     *Function
	BP     *Blueprint
	Obj    *Object
	Bound  *BoundMethod
	Coro   *Coroutine
	Gather *Coroutine // GatherTask is a Coroutine with Kind==KGatherTask
}

// Null is the canonical null value.
var Null = Value{Kind: KNull}

func IntVal(i int64) Value     { return Value{Kind: KInt, I: i} }
func FloatVal(f float64) Value { return Value{Kind: KFloat, F: f} }
func BoolVal(b bool) Value     { return Value{Kind: KBool, B: b} }
func StringVal(s string) Value { return Value{Kind: KString, S: s} }

// ArrayValue is the shared backing store for an Array Value (spec.md §3
// invariant ii: shared by reference, aliases observe mutation).
type ArrayValue struct {
	Items []Value
}

// DictValue is the shared backing store for a Dict Value, implemented via
// the hashed Dictionary type (dict.go).
type DictValue struct {
	D *Dictionary
}

// TupleValue is the shared, immutable backing store for a Tuple.
type TupleValue struct {
	Items []Value
}

func newUUID() string { return uuid.NewString() }

// deepCopy implements spec.md §4.2: primitives and strings copy by value,
// containers allocate a new backing store and recursively deep-copy
// elements, Function/Blueprint are returned as a shared reference, and
// Object/BoundMethod/Coroutine/GatherTask bump a refcount and return the
// same handle.
func deepCopy(v Value) Value {
	switch v.Kind {
	case KInt, KFloat, KBool, KNull, KSuperProxy:
		return v
	case KString:
		return Value{Kind: KString, S: strings.Clone(v.S)}
	case KArray:
		items := make([]Value, len(v.Arr.Items))
		for i, it := range v.Arr.Items {
			items[i] = deepCopy(it)
		}
		return Value{Kind: KArray, Arr: &ArrayValue{Items: items}}
	case KDict:
		nd := NewDictionary()
		v.Dict.D.ForEach(func(k Value, val Value) {
			nd.Set(k, deepCopy(val))
		})
		return Value{Kind: KDict, Dict: &DictValue{D: nd}}
	case KTuple:
		items := make([]Value, len(v.Tup.Items))
		for i, it := range v.Tup.Items {
			items[i] = deepCopy(it)
		}
		return Value{Kind: KTuple, Tup: &TupleValue{Items: items}}
	case KFunction:
		return v
	case KBlueprint:
		return v
	case KObject:
		v.Obj.retain()
		return v
	case KBoundMethod:
		v.Bound.retain()
		return v
	case KCoroutine, KGatherTask:
		v.Coro.retain()
		return v
	default:
		return v
	}
}

// release is the inverse of deepCopy for refcounted variants; no-op for
// everything else since Go's GC reclaims Array/Dict/Tuple/Function/
// Blueprint storage once unreferenced.
func release(v Value) {
	switch v.Kind {
	case KObject:
		v.Obj.releaseRef()
	case KBoundMethod:
		v.Bound.releaseRef()
	case KCoroutine, KGatherTask:
		v.Coro.releaseRef()
	}
}

// truthy implements spec.md §4.2 truthiness rules.
func truthy(v Value) bool {
	switch v.Kind {
	case KNull:
		return false
	case KBool:
		return v.B
	case KInt:
		return v.I != 0
	case KFloat:
		return v.F != 0
	case KString:
		return v.S != ""
	case KArray:
		return len(v.Arr.Items) > 0
	case KDict:
		return v.Dict.D.Len() > 0
	case KTuple:
		return len(v.Tup.Items) > 0
	default:
		return true
	}
}

// identical implements the `is` operator: pointer identity for
// reference/refcounted kinds, value identity for primitives.
func identical(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KInt:
		return a.I == b.I
	case KFloat:
		return a.F == b.F
	case KBool:
		return a.B == b.B
	case KNull:
		return true
	case KString:
		return a.S == b.S // primitives: value identity (spec.md §3 invariant i)
	case KArray:
		return a.Arr == b.Arr
	case KDict:
		return a.Dict.D == b.Dict.D
	case KTuple:
		return a.Tup == b.Tup
	case KFunction:
		return a.Fn == b.Fn
	case KBlueprint:
		return a.BP == b.BP
	case KObject:
		return a.Obj == b.Obj
	case KBoundMethod:
		return a.Bound == b.Bound
	case KCoroutine, KGatherTask:
		return a.Coro == b.Coro
	default:
		return false
	}
}

// equalValues implements structural deep equality with Int<->Float
// coercion for primitives/strings/arrays/tuples/dicts, and pointer identity
// for Function/Blueprint/Object/Coroutine (spec.md §4.2).
func equalValues(a, b Value) bool {
	if isNumeric(a) && isNumeric(b) {
		return numAsFloat(a) == numAsFloat(b)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KBool:
		return a.B == b.B
	case KNull:
		return true
	case KString:
		return a.S == b.S
	case KArray:
		if len(a.Arr.Items) != len(b.Arr.Items) {
			return false
		}
		for i := range a.Arr.Items {
			if !equalValues(a.Arr.Items[i], b.Arr.Items[i]) {
				return false
			}
		}
		return true
	case KTuple:
		if len(a.Tup.Items) != len(b.Tup.Items) {
			return false
		}
		for i := range a.Tup.Items {
			if !equalValues(a.Tup.Items[i], b.Tup.Items[i]) {
				return false
			}
		}
		return true
	case KDict:
		return a.Dict.D.DeepEqual(b.Dict.D)
	case KFunction:
		return a.Fn == b.Fn
	case KBlueprint:
		return a.BP == b.BP
	case KObject:
		return a.Obj == b.Obj
	case KBoundMethod:
		return a.Bound == b.Bound
	case KCoroutine, KGatherTask:
		return a.Coro == b.Coro
	default:
		return false
	}
}

func isNumeric(v Value) bool { return v.Kind == KInt || v.Kind == KFloat }

func numAsFloat(v Value) float64 {
	if v.Kind == KInt {
		return float64(v.I)
	}
	return v.F
}

// displayString renders a Value the way show(...) prints it (spec.md §6),
// without delegating to op_str (callers that need op_str dispatch do so
// before falling back to this for primitives/containers).
func displayString(v Value) string {
	switch v.Kind {
	case KInt:
		return fmt.Sprintf("%d", v.I)
	case KFloat:
		if v.F == math.Trunc(v.F) && !math.IsInf(v.F, 0) {
			return fmt.Sprintf("%.1f", v.F)
		}
		return fmt.Sprintf("%g", v.F)
	case KBool:
		if v.B {
			return "true"
		}
		return "false"
	case KNull:
		return "null"
	case KString:
		return v.S
	case KArray:
		parts := make([]string, len(v.Arr.Items))
		for i, it := range v.Arr.Items {
			parts[i] = reprString(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KTuple:
		parts := make([]string, len(v.Tup.Items))
		for i, it := range v.Tup.Items {
			parts[i] = reprString(it)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KDict:
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		v.Dict.D.ForEach(func(k, val Value) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(reprString(k))
			sb.WriteString(": ")
			sb.WriteString(reprString(val))
		})
		sb.WriteByte('}')
		return sb.String()
	case KFunction:
		return fmt.Sprintf("<function %s>", v.Fn.Name)
	case KBlueprint:
		return fmt.Sprintf("<blueprint %s>", v.BP.Name)
	case KObject:
		return fmt.Sprintf("<object %s>", v.Obj.Blueprint.Name)
	case KBoundMethod:
		return fmt.Sprintf("<bound method %s>", v.Bound.Fn.Name)
	case KCoroutine:
		return fmt.Sprintf("<coroutine %s>", v.Coro.Name)
	case KGatherTask:
		return fmt.Sprintf("<gather task %s>", v.Coro.Name)
	default:
		return "<super>"
	}
}

// reprString is like displayString but quotes strings, matching the
// teacher's convention (lib_types.go formatListForDisplay) of quoting
// string elements when nested inside a container's display form.
func reprString(v Value) string {
	if v.Kind == KString {
		return "\"" + v.S + "\""
	}
	return displayString(v)
}
