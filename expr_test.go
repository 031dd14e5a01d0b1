package echoc

import "testing"

func evalExprString(t *testing.T, src string) Value {
	t.Helper()
	in := NewInterpreter(nil)
	lex := NewLexer(src, "test.echo")
	p, err := NewParser(lex)
	if err != nil {
		t.Fatalf("parser setup failed: %v", err)
	}
	ctx := &evalCtx{interp: in, scope: in.rootScope}
	r, eerr := p.parseExpr(ctx)
	if eerr != nil {
		t.Fatalf("unexpected eval error: %v", eerr)
	}
	return r.Value
}

func TestArithmeticPrecedence(t *testing.T) {
	v := evalExprString(t, "1 + 2 * 3")
	if v.Kind != KInt || v.I != 7 {
		t.Errorf("got %+v, want Int 7", v)
	}
}

func TestIntDivisionByZero(t *testing.T) {
	in := NewInterpreter(nil)
	lex := NewLexer("1 / 0", "test.echo")
	p, err := NewParser(lex)
	if err != nil {
		t.Fatal(err)
	}
	ctx := &evalCtx{interp: in, scope: in.rootScope}
	_, eerr := p.parseExpr(ctx)
	if eerr == nil {
		t.Fatal("expected a division-by-zero runtime error")
	}
	if eerr.Kind != KindRuntime {
		t.Errorf("expected KindRuntime, got %v", eerr.Kind)
	}
}

func TestStringConcatenation(t *testing.T) {
	v := evalExprString(t, `"foo" + "bar"`)
	if v.Kind != KString || v.S != "foobar" {
		t.Errorf("got %+v, want String foobar", v)
	}
}

func TestComparisonOperators(t *testing.T) {
	cases := map[string]bool{
		"1 < 2":      true,
		"2 <= 2":     true,
		"3 > 2":      true,
		"2 >= 3":     false,
		`"a" < "b"`:  true,
		"1 == 1.0":   true,
		"1 != 2":     true,
	}
	for src, want := range cases {
		v := evalExprString(t, src)
		if v.Kind != KBool || v.B != want {
			t.Errorf("%q: got %+v, want Bool %v", src, v, want)
		}
	}
}

func TestAndShortCircuitsRHS(t *testing.T) {
	in := NewInterpreter(nil)
	called := false
	in.rootScope.Define("sideEffect", Value{Kind: KFunction, Fn: &Function{
		Name: "sideEffect",
		CImpl: func(interp *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
			called = true
			return BoolVal(true), nil
		},
	}})
	lex := NewLexer("false and sideEffect()", "test.echo")
	p, err := NewParser(lex)
	if err != nil {
		t.Fatal(err)
	}
	ctx := &evalCtx{interp: in, scope: in.rootScope}
	r, eerr := p.parseExpr(ctx)
	if eerr != nil {
		t.Fatal(eerr)
	}
	if truthy(r.Value) {
		t.Error("expected `false and X` to be falsy")
	}
	if called {
		t.Error("the RHS of a short-circuited 'and' must not run its side effect")
	}
}

func TestOrShortCircuitsRHS(t *testing.T) {
	in := NewInterpreter(nil)
	called := false
	in.rootScope.Define("sideEffect", Value{Kind: KFunction, Fn: &Function{
		Name: "sideEffect",
		CImpl: func(interp *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
			called = true
			return BoolVal(false), nil
		},
	}})
	lex := NewLexer("true or sideEffect()", "test.echo")
	p, err := NewParser(lex)
	if err != nil {
		t.Fatal(err)
	}
	ctx := &evalCtx{interp: in, scope: in.rootScope}
	r, eerr := p.parseExpr(ctx)
	if eerr != nil {
		t.Fatal(eerr)
	}
	if !truthy(r.Value) {
		t.Error("expected `true or X` to be truthy")
	}
	if called {
		t.Error("the RHS of a short-circuited 'or' must not run its side effect")
	}
}

func TestEvalCtxSuppressedReturnsSelfIfAlreadySuppressed(t *testing.T) {
	ctx := &evalCtx{suppress: true}
	if ctx.suppressed() != ctx {
		t.Error("suppressed() should return the same pointer once already suppressed")
	}
}

func TestEvalCtxSuppressedCopiesWhenNotYetSuppressed(t *testing.T) {
	ctx := &evalCtx{suppress: false}
	s := ctx.suppressed()
	if s == ctx {
		t.Error("suppressed() should return a distinct copy when not already suppressed")
	}
	if !s.suppress {
		t.Error("the copy should have suppress set")
	}
	if ctx.suppress {
		t.Error("the original context must remain unsuppressed")
	}
}

func TestEvalCtxChildSwitchesScopeOnly(t *testing.T) {
	outer := NewScope(nil)
	ctx := &evalCtx{scope: outer, coro: nil}
	inner := NewScope(outer)
	childCtx := ctx.child(inner)
	if childCtx.scope != inner {
		t.Error("child() should swap in the given scope")
	}
	if childCtx == ctx {
		t.Error("child() should return a distinct evalCtx")
	}
}
