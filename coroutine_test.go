package echoc

import "testing"

func TestNewCoroutineStartsInNewState(t *testing.T) {
	interp := NewInterpreter(nil)
	fn := &Function{Name: "f", IsAsync: true}
	scope := NewScope(interp.rootScope)
	c := NewCoroutine(interp, "f", fn, scope)
	if c.State != CoroNew {
		t.Errorf("expected CoroNew, got %v", c.State)
	}
	if c.Magic == "" {
		t.Error("expected a non-empty magic identity")
	}
	if c.refcount != 1 {
		t.Errorf("expected initial refcount 1, got %d", c.refcount)
	}
}

func TestCoroutineCheckCancelledSetsException(t *testing.T) {
	c := &Coroutine{IsCancelled: true}
	if !c.checkCancelled() {
		t.Fatal("expected checkCancelled to report true once IsCancelled")
	}
	if !c.HasException || c.ExceptionValue.S != "CancelledError" {
		t.Errorf("expected a CancelledError exception, got %+v", c.ExceptionValue)
	}
}

func TestCoroutineCheckCancelledNoopWhenNotCancelled(t *testing.T) {
	c := &Coroutine{}
	if c.checkCancelled() {
		t.Fatal("expected checkCancelled to report false for a live coroutine")
	}
	if c.HasException {
		t.Error("an uncancelled coroutine should not have an exception set")
	}
}

func TestCoroutineRetainReleaseExitsScopeAtZero(t *testing.T) {
	scope := NewScope(nil)
	scope.Define("x", IntVal(1))
	c := &Coroutine{refcount: 1, ExecutionScope: scope}
	c.retain()
	if c.refcount != 2 {
		t.Fatalf("expected refcount 2 after retain, got %d", c.refcount)
	}
	c.releaseRef()
	if scope.symbols == nil {
		t.Error("scope should still be alive with refcount 1 remaining")
	}
	c.releaseRef()
	if scope.symbols != nil {
		t.Error("expected ExecutionScope.Exit() once refcount drops to 0")
	}
}
