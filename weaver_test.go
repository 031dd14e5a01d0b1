package echoc

import "testing"

func TestWeaverRestBuildsTimerCoroutine(t *testing.T) {
	in := NewInterpreter(nil)
	v, err := weaverRest(in, []Value{IntVal(50)}, nil, Position{})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KCoroutine {
		t.Fatalf("expected a KCoroutine value, got %v", v.Kind)
	}
	if v.Coro.Kind != CoroutineTimer {
		t.Error("rest() should produce a timer-kind coroutine")
	}
	if v.Coro.WakeupTimeSec != 0.05 {
		t.Errorf("got wakeup %v, want 0.05", v.Coro.WakeupTimeSec)
	}
}

func TestWeaverRestRejectsNonNumeric(t *testing.T) {
	in := NewInterpreter(nil)
	if _, err := weaverRest(in, []Value{StringVal("nope")}, nil, Position{}); err == nil {
		t.Error("expected an error for a non-numeric duration")
	}
}

func TestWeaverWeaveRunsTimerToCompletion(t *testing.T) {
	in := NewInterpreter(nil)
	v, err := weaverRest(in, []Value{IntVal(0)}, nil, Position{})
	if err != nil {
		t.Fatal(err)
	}
	result, werr := weaverWeave(in, []Value{v}, nil, Position{})
	if werr != nil {
		t.Fatalf("unexpected error: %v", werr)
	}
	if result.Kind != KNull {
		t.Errorf("expected a timer's result to be null, got %+v", result)
	}
}

func TestWeaverGatherAggregatesTimers(t *testing.T) {
	in := NewInterpreter(nil)
	a, _ := weaverRest(in, []Value{IntVal(0)}, nil, Position{})
	b, _ := weaverRest(in, []Value{IntVal(0)}, nil, Position{})
	gathered, err := weaverGather(in, []Value{arrayOf(a, b)}, nil, Position{})
	if err != nil {
		t.Fatal(err)
	}
	if gathered.Kind != KGatherTask {
		t.Fatalf("expected a KGatherTask value, got %v", gathered.Kind)
	}
	result, werr := weaverWeave(in, []Value{gathered}, nil, Position{})
	if werr != nil {
		t.Fatalf("unexpected error weaving gather: %v", werr)
	}
	if result.Kind != KArray || len(result.Arr.Items) != 2 {
		t.Fatalf("expected a 2-element array result, got %+v", result)
	}
}

func TestWeaverCancelMarksCancelled(t *testing.T) {
	in := NewInterpreter(nil)
	v, err := weaverRest(in, []Value{IntVal(1000)}, nil, Position{})
	if err != nil {
		t.Fatal(err)
	}
	in.loop.ensureScheduled(v.Coro)
	if _, err := weaverCancel(in, []Value{v}, nil, Position{}); err != nil {
		t.Fatal(err)
	}
	if !v.Coro.IsCancelled {
		t.Error("expected the coroutine to be marked cancelled")
	}
	if v.Coro.State != CoroDone {
		t.Errorf("expected cancelling a suspended timer to finalize it, got %v", v.Coro.State)
	}
}

func TestWeaverSpawnTaskReturnsSameCoroutine(t *testing.T) {
	in := NewInterpreter(nil)
	v, err := weaverRest(in, []Value{IntVal(0)}, nil, Position{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := weaverSpawnTask(in, []Value{v}, nil, Position{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Coro.Magic != v.Coro.Magic {
		t.Error("spawn_task should return a handle to the same underlying coroutine")
	}
}

func TestAsCoroutineRejectsNonCoroutine(t *testing.T) {
	if _, err := asCoroutine(IntVal(1), Position{}, "test"); err == nil {
		t.Error("expected an error when passed a non-coroutine value")
	}
}
