package echoc

// installWeaverModule registers the "weaver" builtin module (spec.md §6):
// weave, spawn_task, rest, gather, cancel, yield_now. It is reached only
// via `load "weaver"`, never injected into the global scope directly,
// mirroring the teacher's own lib_*.go module-registration convention.
func (in *Interpreter) installWeaverModule() {
	d := NewDictionary()
	reg := func(name string, impl BuiltinFunc) {
		d.Set(StringVal(name), Value{Kind: KFunction, Fn: &Function{Name: name, CImpl: impl}})
	}

	reg("weave", weaverWeave)
	reg("spawn_task", weaverSpawnTask)
	reg("rest", weaverRest)
	reg("gather", weaverGather)
	reg("cancel", weaverCancel)
	reg("yield_now", weaverYieldNow)

	in.builtinModules["weaver"] = Value{Kind: KDict, Dict: &DictValue{D: d}}
}

func asCoroutine(v Value, pos Position, who string) (*Coroutine, *EchoError) {
	if v.Kind != KCoroutine && v.Kind != KGatherTask {
		return nil, runtimeError(pos, "%s expects a coroutine", who)
	}
	return v.Coro, nil
}

// weaverWeave drives a single coroutine's event loop to completion and
// returns its result (or propagates its failure), spec.md §6 "weave" — the
// one blocking entry point user code has for "run this async function and
// get its answer right now".
func weaverWeave(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	if len(args) != 1 {
		return Null, runtimeError(pos, "weave expects exactly one argument")
	}
	c, err := asCoroutine(args[0], pos, "weave")
	if err != nil {
		return Null, err
	}
	in.loop.Run(c)
	if c.HasException {
		return Null, runtimeError(pos, "%s", c.ExceptionValue.S)
	}
	return deepCopy(c.ResultValue), nil
}

// weaverSpawnTask schedules a coroutine onto the shared event loop without
// blocking the caller (spec.md §6 "spawn_task"): it returns the same
// coroutine value immediately, now in flight.
func weaverSpawnTask(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	if len(args) != 1 {
		return Null, runtimeError(pos, "spawn_task expects exactly one argument")
	}
	c, err := asCoroutine(args[0], pos, "spawn_task")
	if err != nil {
		return Null, err
	}
	in.loop.ensureScheduled(c)
	return deepCopy(args[0]), nil
}

// weaverRest builds a timer coroutine (spec.md §6 "rest" / §4.6 "timer
// coroutines"): a virtual Coroutine with no body, driven purely by the
// event loop's sleep queue.
func weaverRest(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	if len(args) != 1 || !isNumeric(args[0]) {
		return Null, runtimeError(pos, "rest expects a numeric duration in milliseconds")
	}
	ms := numAsFloat(args[0])
	c := &Coroutine{
		Magic:       newUUID(),
		Name:        "rest",
		Kind:        CoroutineTimer,
		State:       CoroNew,
		ResultValue: Null,
		WakeupTimeSec: in.loop.clockSec + ms/1000.0,
		refcount:      1,
	}
	return Value{Kind: KCoroutine, Coro: c}, nil
}

// weaverYieldNow is sugar for `rest(0)`: yield the rest of this tick back
// to the event loop without actually sleeping (spec.md §6 "yield_now").
func weaverYieldNow(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	return weaverRest(in, []Value{IntVal(0)}, named, pos)
}

// weaverGather builds a gather coroutine (spec.md §6 "gather" / §4.6
// "gather tasks"): a virtual parent Coroutine whose completion depends on
// every child finishing, with return_exceptions controlling whether a
// child's failure aborts the whole gather or is captured inline.
func weaverGather(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	if len(args) != 1 || args[0].Kind != KArray {
		return Null, runtimeError(pos, "gather expects an array of coroutines")
	}
	returnExceptions := false
	if v, ok := named["return_exceptions"]; ok {
		returnExceptions = truthy(v)
	}
	tasks := make([]*Coroutine, len(args[0].Arr.Items))
	for i, item := range args[0].Arr.Items {
		t, err := asCoroutine(item, pos, "gather")
		if err != nil {
			return Null, err
		}
		tasks[i] = t
	}
	g := &Coroutine{
		Magic:                   newUUID(),
		Name:                    "gather",
		Kind:                    CoroutineGather,
		State:                   CoroNew,
		ResultValue:             Null,
		GatherTasks:             tasks,
		GatherResults:           make([]Value, len(tasks)),
		GatherPendingCount:      len(tasks),
		GatherFirstExceptionIdx: -1,
		GatherReturnExceptions:  returnExceptions,
		refcount:                1,
	}
	return Value{Kind: KGatherTask, Coro: g}, nil
}

// weaverCancel marks a coroutine (and, transitively, a gather's children)
// cancelled (spec.md §6 "cancel").
func weaverCancel(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
	if len(args) != 1 {
		return Null, runtimeError(pos, "cancel expects exactly one argument")
	}
	c, err := asCoroutine(args[0], pos, "cancel")
	if err != nil {
		return Null, err
	}
	in.loop.Cancel(c)
	return Null, nil
}
