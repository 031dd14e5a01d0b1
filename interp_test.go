package echoc

import (
	"bytes"
	"strings"
	"testing"
)

func runScript(t *testing.T, source string) (string, *EchoError) {
	t.Helper()
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Stdout = &out
	in := NewInterpreter(&cfg)
	err := in.ExecuteSource(source, "test.echo")
	return out.String(), err
}

func TestScenarioArithmeticPrecedence(t *testing.T) {
	out, err := runScript(t, "show(1 + 2 * 3)\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "7" {
		t.Errorf("got %q, want %q", out, "7")
	}
}

func TestScenarioArrayAppendAliasing(t *testing.T) {
	out, err := runScript(t, "let a = []\na.append(1)\na.append(2)\nshow(a)\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "[1, 2]" {
		t.Errorf("got %q, want %q", out, "[1, 2]")
	}
}

func TestScenarioAsyncWeaveRoundTrip(t *testing.T) {
	src := `async funct f():
    return 42

funct main():
    return weaver.weave(f())

load "weaver" as weaver
show(main())
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "42" {
		t.Errorf("got %q, want %q", out, "42")
	}
}

func TestScenarioGatherPreservesOrder(t *testing.T) {
	src := `load "weaver" as weaver

async funct s(n):
    await weaver.rest(n)
    return n

show(weaver.weave(weaver.gather([s(10), s(5), s(7)])))
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "[10, 5, 7]" {
		t.Errorf("got %q, want %q", out, "[10, 5, 7]")
	}
}

func TestScenarioBlueprintOpStr(t *testing.T) {
	src := `blueprint P:
    funct init(x):
        let self.x = x
    funct op_str():
        return "P(%{self.x})"

let p = P(3)
show(p)
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "P(3)" {
		t.Errorf("got %q, want %q", out, "P(3)")
	}
}

func TestScenarioTryCatchFinally(t *testing.T) {
	src := `try:
    raise "boom"
catch as e:
    show(e)
finally:
    show("f")
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "boom" || lines[1] != "f" {
		t.Errorf("got %q, want [boom f]", lines)
	}
}

func TestPropertyContainerAliasing(t *testing.T) {
	src := `let a = [1, 2, 3]
let b = a
let b[0] = 9
show(a[0])
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "9" {
		t.Errorf("alias mutation through b should be visible via a: got %q", out)
	}
}

func TestPropertyTupleImmutability(t *testing.T) {
	src := `funct pair():
    return 1, 2, 3

let t = pair()
let t[0] = 9
`
	_, err := runScript(t, src)
	if err == nil {
		t.Fatal("expected a runtime error writing to a tuple index")
	}
	if err.Kind != KindRuntime {
		t.Errorf("expected KindRuntime, got %v", err.Kind)
	}
}

func TestPropertyStringInterpolation(t *testing.T) {
	out, err := runScript(t, "let x = 2\nshow(\"%{x+1}\")\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "3" {
		t.Errorf("got %q, want %q", out, "3")
	}
}

func TestPropertySelfIdentityInMethod(t *testing.T) {
	src := `blueprint Q:
    funct check():
        return self is self

let q = Q()
show(q.check())
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "true" {
		t.Errorf("got %q, want %q", out, "true")
	}
}

func TestRuntimeErrorIsCatchable(t *testing.T) {
	// An ordinary Runtime error (undefined name) must be catchable.
	src := `try:
    show(undefined_name)
catch as e:
    show("caught")
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("a runtime error should be caught, not propagate as a hard error: %v", err)
	}
	if strings.TrimSpace(out) != "caught" {
		t.Errorf("got %q, want %q", out, "caught")
	}
}

func TestUncaughtExceptionExitsWithRuntimeError(t *testing.T) {
	_, err := runScript(t, "raise \"boom\"\n")
	if err == nil {
		t.Fatal("expected an uncaught raise to surface as a top-level error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected the error message to mention the raised value, got %q", err.Error())
	}
}

func TestIfElifElseDispatch(t *testing.T) {
	src := `funct classify(n):
    if n < 0:
        return "negative"
    elif n == 0:
        return "zero"
    else:
        return "positive"

show(classify(-1))
show(classify(0))
show(classify(5))
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{"negative", "zero", "positive"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("index %d: got %q, want %q", i, got[i], w)
		}
	}
}

func TestConditionalExpressionNoDoubleEvaluation(t *testing.T) {
	src := `funct sideEffect(tag):
    show(tag)
    return tag

let winner = sideEffect("picked") if true else sideEffect("skipped")
show(winner)
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "picked" || lines[1] != "picked" {
		t.Errorf("expected only the taken branch's side effect to fire once, got %v", lines)
	}
}

func TestLoopWhile(t *testing.T) {
	src := `let i = 0
let sum = 0
loop while i < 5:
    let sum = sum + i
    let i = i + 1
show(sum)
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "10" {
		t.Errorf("got %q, want %q", out, "10")
	}
}

func TestLoopForInArray(t *testing.T) {
	src := `let total = 0
loop for x in [1, 2, 3, 4]:
    let total = total + x
show(total)
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "10" {
		t.Errorf("got %q, want %q", out, "10")
	}
}

func TestLeadingColonFormParsesLikeBareForm(t *testing.T) {
	src := "let: x = 1:\nshow(x)\n"
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error accepting the spec's literal leading-colon form: %v", err)
	}
	if strings.TrimSpace(out) != "1" {
		t.Errorf("got %q, want %q", out, "1")
	}
}
