package echoc

import "sort"

// installDsModule registers the "ds" builtin module: a couple of small
// container helpers (sort, keys) supplementing the core language the way
// EchoC's host environment would realistically ship them, grounded on the
// teacher's own default-ordering sort (lib_sort.go sortItemsDefaultWithExecutor)
// and optional-comparator dispatch (lib_sort.go callComparator), generalized
// from PawScript's macro/command comparator union to a plain EchoC Function
// value.
func (in *Interpreter) installDsModule() {
	d := NewDictionary()
	d.Set(StringVal("sort"), Value{Kind: KFunction, Fn: &Function{Name: "sort", CImpl: dsSort}})
	d.Set(StringVal("keys"), Value{Kind: KFunction, Fn: &Function{Name: "keys", CImpl: dsKeys}})
	in.builtinModules["ds"] = Value{Kind: KDict, Dict: &DictValue{D: d}}
}

// defaultCategory mirrors the teacher's nil<false<true<number<string<other
// total ordering (lib_sort.go), generalized to EchoC's Kind set.
func defaultCategory(v Value) int {
	switch v.Kind {
	case KNull:
		return 0
	case KBool:
		if v.B {
			return 2
		}
		return 1
	case KInt, KFloat:
		return 3
	case KString:
		return 4
	default:
		return 5
	}
}

func defaultLess(a, b Value) bool {
	ca, cb := defaultCategory(a), defaultCategory(b)
	if ca != cb {
		return ca < cb
	}
	switch ca {
	case 3:
		return numAsFloat(a) < numAsFloat(b)
	case 4:
		return a.S < b.S
	default:
		return false
	}
}

// dsSort returns a freshly sorted copy of args[0] (an Array), ascending by
// EchoC's default value ordering unless a comparator Function is passed as
// a second positional argument — called with (a, b) and expected to return
// a truthy value when a should sort before b, exactly the boolean contract
// callComparator extracts from a PawScript comparator's result.
func dsSort(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	if len(args) < 1 || args[0].Kind != KArray {
		return Null, runtimeError(pos, "sort expects an array")
	}
	items := make([]Value, len(args[0].Arr.Items))
	copy(items, args[0].Arr.Items)
	for i := range items {
		items[i] = deepCopy(items[i])
	}

	var cmpErr *EchoError
	var less func(i, j int) bool
	if len(args) >= 2 && args[1].Kind == KFunction {
		cmpFn := args[1].Fn
		ctx := &evalCtx{interp: in, scope: in.rootScope}
		less = func(i, j int) bool {
			if cmpErr != nil {
				return false
			}
			r, err := in.invokeFunction(ctx, cmpFn, nil, []Value{items[i], items[j]}, nil, pos)
			if err != nil {
				cmpErr = err
				return false
			}
			defer releaseIfFresh(r)
			return truthy(r.Value)
		}
	} else {
		less = func(i, j int) bool { return defaultLess(items[i], items[j]) }
	}

	sort.SliceStable(items, less)
	if cmpErr != nil {
		return Null, cmpErr
	}
	return Value{Kind: KArray, Arr: &ArrayValue{Items: items}}, nil
}

// dsKeys returns the keys of a Dict as a fresh Array, in the Dictionary's
// own bucket-chain order (dict.go Keys), since EchoC dicts treat attribute
// syntax as key lookup and offer no other way to enumerate keys.
func dsKeys(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	if len(args) != 1 || args[0].Kind != KDict {
		return Null, runtimeError(pos, "keys expects a dict")
	}
	ks := args[0].Dict.D.Keys()
	items := make([]Value, len(ks))
	for i, k := range ks {
		items[i] = deepCopy(k)
	}
	return Value{Kind: KArray, Arr: &ArrayValue{Items: items}}, nil
}
