package echoc

import "testing"

func newTestParser(t *testing.T, src string) *Parser {
	t.Helper()
	lex := NewLexer(src, "test.echo")
	p, err := NewParser(lex)
	if err != nil {
		t.Fatalf("parser setup failed: %v", err)
	}
	return p
}

func TestSkipOptionalColonConsumesWhenPresent(t *testing.T) {
	p := newTestParser(t, ": x")
	if p.cur.Type != TokColon {
		t.Fatalf("expected to start on a colon, got %v", p.cur.Type)
	}
	if err := p.skipOptionalColon(); err != nil {
		t.Fatal(err)
	}
	if p.cur.Type != TokIdent || p.cur.Text != "x" {
		t.Errorf("expected to land on identifier x, got %v %q", p.cur.Type, p.cur.Text)
	}
}

func TestSkipOptionalColonNoopWhenAbsent(t *testing.T) {
	p := newTestParser(t, "x")
	if err := p.skipOptionalColon(); err != nil {
		t.Fatal(err)
	}
	if p.cur.Type != TokIdent || p.cur.Text != "x" {
		t.Errorf("expected no-op to leave parser on identifier x, got %v %q", p.cur.Type, p.cur.Text)
	}
}

func TestBlockStateSaveRestoreRewindsParser(t *testing.T) {
	p := newTestParser(t, "a b c")
	saved := p.saveBlockState()
	if err := p.advance(); err != nil {
		t.Fatal(err)
	}
	if err := p.advance(); err != nil {
		t.Fatal(err)
	}
	if p.cur.Text != "c" {
		t.Fatalf("expected to have advanced to c, got %q", p.cur.Text)
	}
	p.restoreBlockState(saved)
	if p.cur.Text != "a" {
		t.Errorf("expected restoreBlockState to rewind to a, got %q", p.cur.Text)
	}
}

func TestSkipToBlockEndStopsAtMatchingDedent(t *testing.T) {
	src := "if true:\n    if false:\n        let x = 1\n    let y = 2\nshow(y)\n"
	p := newTestParser(t, src)
	// Walk to the Indent that opens the outer if's block.
	for p.cur.Type != TokIndent {
		if err := p.advance(); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.advance(); err != nil { // consume the outer Indent
		t.Fatal(err)
	}
	if err := p.skipToBlockEnd(); err != nil {
		t.Fatal(err)
	}
	if p.cur.Type != TokDedent {
		t.Errorf("expected to stop exactly at the closing Dedent, got %v", p.cur.Type)
	}
}

func TestOpenBlockRequiresColonNewlineIndent(t *testing.T) {
	p := newTestParser(t, "x")
	if err := p.openBlock(); err == nil {
		t.Error("expected openBlock to fail without a colon")
	}
}

func TestCatchAsNameBindsException(t *testing.T) {
	out, err := runScript(t, "try:\n    raise \"oops\"\ncatch as err:\n    show(err)\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trimmed := out; trimmed != "oops\n" {
		t.Errorf("got %q, want %q", out, "oops\n")
	}
}

func TestCatchBareNameStillWorks(t *testing.T) {
	out, err := runScript(t, "try:\n    raise \"oops\"\ncatch err:\n    show(err)\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "oops\n" {
		t.Errorf("got %q, want %q", out, "oops\n")
	}
}

func TestCatchWithoutNameStillCatches(t *testing.T) {
	out, err := runScript(t, "try:\n    raise \"oops\"\ncatch:\n    show(\"caught\")\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "caught\n" {
		t.Errorf("got %q, want %q", out, "caught\n")
	}
}

func TestBreakExitsLoopEarly(t *testing.T) {
	src := `let i = 0
loop while true:
    if i == 3:
        break
    let i = i + 1
show(i)
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "3\n" {
		t.Errorf("got %q, want %q", out, "3\n")
	}
}

func TestContinueSkipsRestOfIteration(t *testing.T) {
	src := `let total = 0
loop for x in [1, 2, 3, 4]:
    if x == 2:
        continue
    let total = total + x
show(total)
`
	out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "8\n" {
		t.Errorf("got %q, want %q", out, "8\n")
	}
}
