package echoc

import "strings"

// Outcome classifies how a statement (or a whole block) finished, standing
// in for the explicit control-flow propagation spec.md §4.5 describes:
// break/continue unwind to the nearest loop, return unwinds to the call
// boundary, and exception unwinds to the nearest try/catch frame (or the
// coroutine/script boundary if none catches it).
type Outcome int

const (
	OutOk Outcome = iota
	OutBreak
	OutContinue
	OutReturn
	OutException
)

type execResult struct {
	Outcome     Outcome
	ReturnValue Value
	Exception   Value // only meaningful when Outcome == OutException
}

// blockState is a rewindable bookmark used to re-parse a loop body (or a
// re-checked condition) from scratch on every iteration, since there is no
// persistent AST to simply re-walk (spec.md §9 "keep; idiomatic"). It also
// keeps a copy of the lexer's indent stack, which the body's closing Dedent
// pops before the next iteration rewinds into the body.
type blockState struct {
	lex    LexerState
	tok    Token
	indent []int
}

func (p *Parser) saveBlockState() blockState {
	return blockState{lex: p.lex.SaveState(), tok: p.cur, indent: p.captureIndentStack()}
}

func (p *Parser) restoreBlockState(b blockState) {
	p.lex.RestoreState(b.lex)
	p.lex.indentStack = append([]int(nil), b.indent...)
	p.cur = b.tok
}

// skipToBlockEnd discards tokens, tracking nested Indent/Dedent depth,
// until it reaches (without consuming) the Dedent that closes the block the
// caller is currently positioned inside. Used whenever a block's body is
// parsed but must not execute (an untaken if/elif/else arm, a finished
// loop's last re-check, a lazily-defined function/method body).
func (p *Parser) skipToBlockEnd() *EchoError {
	depth := 0
	for {
		switch p.cur.Type {
		case TokIndent:
			depth++
		case TokDedent:
			if depth == 0 {
				return nil
			}
			depth--
		case TokEOF:
			return nil
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}

func (p *Parser) skipBlockAfterIndent() *EchoError {
	if err := p.skipToBlockEnd(); err != nil {
		return err
	}
	if p.cur.Type == TokDedent {
		return p.advance()
	}
	return nil
}

// skipOptionalColon consumes a single ':' if the parser is sitting on one.
// spec.md §4.5 writes every statement form with a colon immediately after
// its leading keyword (`let: x = expr:`, `if: cond:`, `raise: expr:`) in
// addition to the block-opening/statement-terminating colon; EchoC accepts
// that colon where present but does not require it, so `let x = expr`
// (no leading colon) and `let: x = expr:` both parse to the same statement.
func (p *Parser) skipOptionalColon() *EchoError {
	if p.cur.Type == TokColon {
		return p.advance()
	}
	return nil
}

// openBlock consumes the ':' NEWLINE INDENT that every block-owning
// statement header ends with (spec.md §4.5 "indentation contract").
func (p *Parser) openBlock() *EchoError {
	if err := p.expectColon(); err != nil {
		return err
	}
	if err := p.expect(TokNewline, "newline after ':'"); err != nil {
		return err
	}
	return p.expect(TokIndent, "indented block")
}

// runBlockOnce executes statements from the current position (assumed to be
// right after an Indent) until a Dedent at depth 0 or EOF. It does not
// consume the closing Dedent. On a non-Ok outcome it skips the remainder of
// the block's tokens first, so the lexer always ends up sitting on the
// closing Dedent regardless of how the block exited.
func (p *Parser) runBlockOnce(ctx *evalCtx) (execResult, *EchoError) {
	for p.cur.Type != TokDedent && p.cur.Type != TokEOF {
		r, err := p.execStatement(ctx)
		if err != nil {
			return execResult{}, err
		}
		if r.Outcome != OutOk {
			if err := p.skipToBlockEnd(); err != nil {
				return execResult{}, err
			}
			return r, nil
		}
	}
	return execResult{}, nil
}

// execBlock runs runBlockOnce and also consumes the closing Dedent.
func (p *Parser) execBlock(ctx *evalCtx) (execResult, *EchoError) {
	r, err := p.runBlockOnce(ctx)
	if err != nil {
		return execResult{}, err
	}
	if p.cur.Type == TokDedent {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
	}
	return r, nil
}

// execStatement dispatches on the current token to one statement form. It
// is the combined-parse-and-evaluate entry point: there is no separate
// parse pass that builds a tree for a later interpreter to walk.
func (p *Parser) execStatement(ctx *evalCtx) (execResult, *EchoError) {
	for p.cur.Type == TokNewline {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
	}
	var result execResult
	var err *EchoError
	switch {
	case p.cur.IsKeyword("let"):
		if err = p.advance(); err == nil {
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execLet(ctx)
			}
		}
	case p.cur.IsKeyword("if"):
		if err = p.advance(); err == nil {
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execIf(ctx)
			}
		}
	case p.cur.IsKeyword("loop"):
		result, err = p.execLoop(ctx)
	case p.cur.IsKeyword("try"):
		// "try" has nothing between the keyword and its block-opening
		// colon (no condition, no name) — openBlock consumes that one
		// colon itself, so there is no separate leading colon to skip
		// here the way there is for if/loop/funct/blueprint.
		if err = p.advance(); err == nil {
			result, err = p.execTry(ctx)
		}
	case p.cur.IsKeyword("break"):
		if aerr := p.advance(); aerr != nil {
			return execResult{}, aerr
		}
		if aerr := p.skipOptionalColon(); aerr != nil {
			return execResult{}, aerr
		}
		result = execResult{Outcome: OutBreak}
	case p.cur.IsKeyword("continue"):
		if aerr := p.advance(); aerr != nil {
			return execResult{}, aerr
		}
		if aerr := p.skipOptionalColon(); aerr != nil {
			return execResult{}, aerr
		}
		result = execResult{Outcome: OutContinue}
	case p.cur.IsKeyword("skip"):
		if aerr := p.advance(); aerr != nil {
			return execResult{}, aerr
		}
		if aerr := p.skipOptionalColon(); aerr != nil {
			return execResult{}, aerr
		}
	case p.cur.IsKeyword("return"):
		if err = p.advance(); err == nil {
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execReturn(ctx)
			}
		}
	case p.cur.IsKeyword("raise"):
		if err = p.advance(); err == nil {
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execRaise(ctx)
			}
		}
	case p.cur.IsKeyword("async"):
		if err = p.advance(); err == nil {
			if aerr := p.expectKeyword("funct"); aerr != nil {
				return execResult{}, aerr
			}
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execFunctDef(ctx, true)
			}
		}
	case p.cur.IsKeyword("funct"):
		if err = p.advance(); err == nil {
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execFunctDef(ctx, false)
			}
		}
	case p.cur.IsKeyword("blueprint"):
		if err = p.advance(); err == nil {
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execBlueprintDef(ctx)
			}
		}
	case p.cur.IsKeyword("load"):
		if err = p.advance(); err == nil {
			if err = p.skipOptionalColon(); err == nil {
				result, err = p.execLoad(ctx)
			}
		}
	default:
		var r ExprResult
		r, err = p.parseExpr(ctx)
		releaseIfFresh(r)
	}
	if err == nil {
		if aerr := p.skipOptionalColon(); aerr != nil {
			err = aerr
		}
	}
	// A Runtime or Cancellation error reaching here is catchable (spec.md
	// §7): convert it into an OutException result so execTry can see it,
	// same as an explicit `raise`. Every other Kind (Lexical/Syntax/System/
	// Internal) propagates as a hard Go error all the way to the script or
	// coroutine boundary.
	if err != nil {
		if err.Kind == KindRuntime || err.Kind == KindCancellation {
			return execResult{Outcome: OutException, Exception: StringVal(err.Message)}, nil
		}
		return execResult{}, err
	}
	for p.cur.Type == TokNewline {
		if aerr := p.advance(); aerr != nil {
			return execResult{}, aerr
		}
	}
	return result, nil
}

// --- let / assignment (spec.md §4.5 "let") ---

type lvKind int

const (
	lvSimple lvKind = iota
	lvAttr
	lvIndex
)

type lvalue struct {
	kind      lvKind
	name      string
	container Value
	attrName  string
	index     Value
}

func (p *Parser) parseLValue(ctx *evalCtx) (lvalue, *EchoError) {
	if p.cur.Type != TokIdent && !p.cur.IsKeyword("self") {
		return lvalue{}, syntaxError(p.pos(), "expected assignment target")
	}
	name := p.cur.Text
	pos := p.pos()
	if err := p.advance(); err != nil {
		return lvalue{}, err
	}
	if p.cur.Type != TokDot && p.cur.Type != TokLBracket {
		return lvalue{kind: lvSimple, name: name}, nil
	}
	basePtr := ctx.scope.Get(name)
	if basePtr == nil {
		return lvalue{}, runtimeError(pos, "name '%s' is not defined", name)
	}
	cur := *basePtr
	for {
		switch p.cur.Type {
		case TokDot:
			if err := p.advance(); err != nil {
				return lvalue{}, err
			}
			if p.cur.Type != TokIdent {
				return lvalue{}, syntaxError(p.pos(), "expected attribute name after '.'")
			}
			attrName := p.cur.Text
			attrPos := p.pos()
			if err := p.advance(); err != nil {
				return lvalue{}, err
			}
			if p.cur.Type != TokDot && p.cur.Type != TokLBracket {
				return lvalue{kind: lvAttr, container: cur, attrName: attrName}, nil
			}
			next, gerr := getAttr(ctx, cur, attrName, attrPos)
			if gerr != nil {
				return lvalue{}, gerr
			}
			cur = next.Value
		case TokLBracket:
			if err := p.advance(); err != nil {
				return lvalue{}, err
			}
			idx, err := p.parseExpr(ctx)
			if err != nil {
				return lvalue{}, err
			}
			idxPos := p.pos()
			if err := p.expect(TokRBracket, "']'"); err != nil {
				return lvalue{}, err
			}
			if p.cur.Type != TokDot && p.cur.Type != TokLBracket {
				return lvalue{kind: lvIndex, container: cur, index: idx.Value}, nil
			}
			next, gerr := getIndex(cur, idx.Value, idxPos)
			releaseIfFresh(idx)
			if gerr != nil {
				return lvalue{}, gerr
			}
			cur = next.Value
		default:
			return lvalue{kind: lvSimple, name: name}, nil
		}
	}
}

func (p *Parser) execLet(ctx *evalCtx) (execResult, *EchoError) {
	lv, err := p.parseLValue(ctx)
	if err != nil {
		return execResult{}, err
	}
	if err := p.expect(TokAssign, "'='"); err != nil {
		return execResult{}, err
	}
	pos := p.pos()
	rhs, err := p.parseExpr(ctx)
	if err != nil {
		return execResult{}, err
	}
	defer releaseIfFresh(rhs)
	switch lv.kind {
	case lvSimple:
		ctx.scope.Set(lv.name, rhs.Value)
	case lvAttr:
		if serr := setAttr(lv.container, lv.attrName, rhs.Value, pos); serr != nil {
			return execResult{}, serr
		}
	case lvIndex:
		if serr := setIndex(lv.container, lv.index, rhs.Value, pos); serr != nil {
			return execResult{}, serr
		}
	}
	return execResult{}, nil
}

// --- if / elif / else (spec.md §4.5) ---

func (p *Parser) execIf(ctx *evalCtx) (execResult, *EchoError) {
	resolved, result, err := p.execCondArm(ctx, true)
	if err != nil {
		return execResult{}, err
	}
	for p.cur.IsKeyword("elif") {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if err := p.skipOptionalColon(); err != nil {
			return execResult{}, err
		}
		armResolved, armResult, err := p.execCondArm(ctx, !resolved)
		if err != nil {
			return execResult{}, err
		}
		if !resolved && armResolved {
			result = armResult
		}
		resolved = resolved || armResolved
	}
	if p.cur.IsKeyword("else") {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if err := p.openBlock(); err != nil {
			return execResult{}, err
		}
		if !resolved {
			r, err := p.execBlock(ctx)
			if err != nil {
				return execResult{}, err
			}
			result = r
		} else {
			if err := p.skipBlockAfterIndent(); err != nil {
				return execResult{}, err
			}
		}
	}
	return result, nil
}

// execCondArm parses "<expr> : <block>" (the shared shape of `if` and
// `elif`). considerTaking is false once an earlier arm already matched, in
// which case the condition is parsed in suppressed mode (no side effects —
// matching the short-circuit suppression rule used for and/or, spec.md
// §4.4) and the body is skipped unconditionally.
func (p *Parser) execCondArm(ctx *evalCtx, considerTaking bool) (bool, execResult, *EchoError) {
	condCtx := ctx
	if !considerTaking {
		condCtx = ctx.suppressed()
	}
	cond, err := p.parseExpr(condCtx)
	if err != nil {
		return false, execResult{}, err
	}
	take := considerTaking && truthy(cond.Value)
	releaseIfFresh(cond)
	if err := p.openBlock(); err != nil {
		return false, execResult{}, err
	}
	if take {
		r, err := p.execBlock(ctx)
		if err != nil {
			return false, execResult{}, err
		}
		return true, r, nil
	}
	if err := p.skipBlockAfterIndent(); err != nil {
		return false, execResult{}, err
	}
	return false, execResult{}, nil
}

// --- loop: while / for-from-to-step / for-in (spec.md §4.5) ---

func (p *Parser) execLoop(ctx *evalCtx) (execResult, *EchoError) {
	if err := p.advance(); err != nil { // 'loop'
		return execResult{}, err
	}
	// "loop" is always followed by a while/for clause before its block-open
	// colon, so (unlike try/else) it accepts a leading colon the same way
	// let/if/return do.
	if err := p.skipOptionalColon(); err != nil {
		return execResult{}, err
	}
	switch {
	case p.cur.IsKeyword("while"):
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		return p.execWhile(ctx)
	case p.cur.IsKeyword("for"):
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if p.cur.Type != TokIdent {
			return execResult{}, syntaxError(p.pos(), "expected loop variable name")
		}
		varName := p.cur.Text
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if p.cur.IsKeyword("from") {
			if err := p.advance(); err != nil {
				return execResult{}, err
			}
			return p.execForFromTo(ctx, varName)
		}
		if err := p.expectKeyword("in"); err != nil {
			return execResult{}, err
		}
		return p.execForIn(ctx, varName)
	default:
		return execResult{}, syntaxError(p.pos(), "expected 'while' or 'for' after 'loop'")
	}
}

func (p *Parser) execWhile(ctx *evalCtx) (execResult, *EchoError) {
	checkPoint := p.saveBlockState()
	for {
		p.restoreBlockState(checkPoint)
		cond, err := p.parseExpr(ctx)
		if err != nil {
			return execResult{}, err
		}
		take := truthy(cond.Value)
		releaseIfFresh(cond)
		if err := p.openBlock(); err != nil {
			return execResult{}, err
		}
		if !take {
			if err := p.skipBlockAfterIndent(); err != nil {
				return execResult{}, err
			}
			return execResult{}, nil
		}
		r, err := p.execBlock(ctx)
		if err != nil {
			return execResult{}, err
		}
		switch r.Outcome {
		case OutBreak:
			return execResult{}, nil
		case OutReturn, OutException:
			return r, nil
		}
	}
}

func loopDirectionDone(cur, end, step Value) bool {
	c, e, s := numAsFloat(cur), numAsFloat(end), numAsFloat(step)
	if s >= 0 {
		return c > e
	}
	return c < e
}

func stepValue(cur, step Value) Value {
	if cur.Kind == KInt && step.Kind == KInt {
		return IntVal(cur.I + step.I)
	}
	return FloatVal(numAsFloat(cur) + numAsFloat(step))
}

func (p *Parser) execForFromTo(ctx *evalCtx, varName string) (execResult, *EchoError) {
	fromExpr, err := p.parseExpr(ctx)
	if err != nil {
		return execResult{}, err
	}
	fromVal := fromExpr.Value
	releaseIfFresh(fromExpr)
	if err := p.expectKeyword("to"); err != nil {
		return execResult{}, err
	}
	toExpr, err := p.parseExpr(ctx)
	if err != nil {
		return execResult{}, err
	}
	endVal := toExpr.Value
	releaseIfFresh(toExpr)
	step := IntVal(1)
	if p.cur.IsKeyword("step") {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		stepExpr, err := p.parseExpr(ctx)
		if err != nil {
			return execResult{}, err
		}
		step = stepExpr.Value
		releaseIfFresh(stepExpr)
	}

	loopScope := NewScope(ctx.scope)
	loopScope.Define("__v_end", endVal)
	loopScope.Define("__v_step", step)
	loopScope.Define(varName, fromVal)
	loopCtx := ctx.child(loopScope)

	if err := p.openBlock(); err != nil {
		loopScope.Exit()
		return execResult{}, err
	}
	bodyStart := p.saveBlockState()

	var result execResult
	for {
		curVal := *loopScope.Get(varName)
		endNow := *loopScope.Get("__v_end")
		stepNow := *loopScope.Get("__v_step")
		if loopDirectionDone(curVal, endNow, stepNow) {
			p.restoreBlockState(bodyStart)
			if err := p.skipBlockAfterIndent(); err != nil {
				loopScope.Exit()
				return execResult{}, err
			}
			break
		}
		p.restoreBlockState(bodyStart)
		bodyScope := NewScope(loopScope)
		r, err := p.execBlock(loopCtx.child(bodyScope))
		bodyScope.Exit()
		if err != nil {
			loopScope.Exit()
			return execResult{}, err
		}
		if r.Outcome == OutBreak {
			break
		}
		if r.Outcome == OutReturn || r.Outcome == OutException {
			result = r
			break
		}
		loopScope.Set(varName, stepValue(*loopScope.Get(varName), *loopScope.Get("__v_step")))
	}
	loopScope.Exit()
	return result, nil
}

func (p *Parser) execForIn(ctx *evalCtx, varName string) (execResult, *EchoError) {
	collExpr, err := p.parseExpr(ctx)
	if err != nil {
		return execResult{}, err
	}
	coll := deepCopy(collExpr.Value)
	releaseIfFresh(collExpr)
	pos := p.pos()

	var items []Value
	switch coll.Kind {
	case KArray:
		items = coll.Arr.Items
	case KTuple:
		items = coll.Tup.Items
	case KString:
		for _, r := range coll.S {
			items = append(items, StringVal(string(r)))
		}
	case KDict:
		items = coll.Dict.D.Keys()
	default:
		return execResult{}, runtimeError(pos, "value is not iterable")
	}

	loopScope := NewScope(ctx.scope)
	loopScope.Define("__v_idx", IntVal(0))
	loopScope.Define(varName, Null)
	loopCtx := ctx.child(loopScope)

	if err := p.openBlock(); err != nil {
		loopScope.Exit()
		return execResult{}, err
	}
	bodyStart := p.saveBlockState()

	var result execResult
	for {
		idx := loopScope.Get("__v_idx").I
		if idx >= int64(len(items)) {
			p.restoreBlockState(bodyStart)
			if err := p.skipBlockAfterIndent(); err != nil {
				loopScope.Exit()
				return execResult{}, err
			}
			break
		}
		loopScope.Set(varName, items[idx])
		p.restoreBlockState(bodyStart)
		bodyScope := NewScope(loopScope)
		r, err := p.execBlock(loopCtx.child(bodyScope))
		bodyScope.Exit()
		if err != nil {
			loopScope.Exit()
			return execResult{}, err
		}
		if r.Outcome == OutBreak {
			break
		}
		if r.Outcome == OutReturn || r.Outcome == OutException {
			result = r
			break
		}
		loopScope.Set("__v_idx", IntVal(idx+1))
	}
	loopScope.Exit()
	return result, nil
}

// --- try / catch / finally (spec.md §4.5) ---

func (p *Parser) execTry(ctx *evalCtx) (execResult, *EchoError) {
	if err := p.openBlock(); err != nil {
		return execResult{}, err
	}
	result, err := p.execBlock(ctx)
	if err != nil {
		return execResult{}, err
	}

	handled := false
	for p.cur.IsKeyword("catch") {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if p.cur.IsKeyword("as") {
			if err := p.advance(); err != nil {
				return execResult{}, err
			}
		}
		catchName := ""
		if p.cur.Type == TokIdent {
			catchName = p.cur.Text
			if err := p.advance(); err != nil {
				return execResult{}, err
			}
		}
		if err := p.openBlock(); err != nil {
			return execResult{}, err
		}
		if !handled && result.Outcome == OutException {
			catchScope := NewScope(ctx.scope)
			if catchName != "" {
				catchScope.Define(catchName, result.Exception)
			}
			cr, err := p.execBlock(ctx.child(catchScope))
			catchScope.Exit()
			if err != nil {
				return execResult{}, err
			}
			result = cr
			handled = true
		} else {
			if err := p.skipBlockAfterIndent(); err != nil {
				return execResult{}, err
			}
		}
	}

	if p.cur.IsKeyword("finally") {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if err := p.openBlock(); err != nil {
			return execResult{}, err
		}
		fr, err := p.execBlock(ctx)
		if err != nil {
			return execResult{}, err
		}
		if fr.Outcome != OutOk {
			return fr, nil // finally's own outcome supersedes (spec.md §4.5)
		}
	}

	return result, nil
}

// --- return / raise (spec.md §4.5) ---

func (p *Parser) atStatementEnd() bool {
	return p.cur.Type == TokNewline || p.cur.Type == TokDedent || p.cur.Type == TokEOF
}

func (p *Parser) execReturn(ctx *evalCtx) (execResult, *EchoError) {
	if p.atStatementEnd() {
		return execResult{Outcome: OutReturn, ReturnValue: Null}, nil
	}
	first, err := p.parseExpr(ctx)
	if err != nil {
		return execResult{}, err
	}
	values := []Value{deepCopy(first.Value)}
	releaseIfFresh(first)
	for p.cur.Type == TokComma {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		nxt, err := p.parseExpr(ctx)
		if err != nil {
			return execResult{}, err
		}
		values = append(values, deepCopy(nxt.Value))
		releaseIfFresh(nxt)
	}
	if len(values) == 1 {
		return execResult{Outcome: OutReturn, ReturnValue: values[0]}, nil
	}
	return execResult{Outcome: OutReturn, ReturnValue: Value{Kind: KTuple, Tup: &TupleValue{Items: values}}}, nil
}

func (p *Parser) execRaise(ctx *evalCtx) (execResult, *EchoError) {
	if p.atStatementEnd() {
		return execResult{Outcome: OutException, Exception: StringVal("Error")}, nil
	}
	r, err := p.parseExpr(ctx)
	if err != nil {
		return execResult{}, err
	}
	defer releaseIfFresh(r)
	return execResult{Outcome: OutException, Exception: deepCopy(r.Value)}, nil
}

// --- funct / async funct (spec.md §4.5, lazy body per function.go) ---

func (p *Parser) parseParamList(ctx *evalCtx) ([]Parameter, *EchoError) {
	if err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var params []Parameter
	for p.cur.Type != TokRParen {
		if p.cur.Type != TokIdent {
			return nil, syntaxError(p.pos(), "expected parameter name")
		}
		pname := p.cur.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		var def *Value
		if p.cur.Type == TokAssign {
			if err := p.advance(); err != nil {
				return nil, err
			}
			r, err := p.parseExpr(ctx)
			if err != nil {
				return nil, err
			}
			dv := deepCopy(r.Value)
			releaseIfFresh(r)
			def = &dv
		}
		params = append(params, Parameter{Name: pname, Default: def})
		if p.cur.Type == TokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) captureIndentStack() []int {
	cp := make([]int, len(p.lex.indentStack))
	copy(cp, p.lex.indentStack)
	return cp
}

func (p *Parser) execFunctDef(ctx *evalCtx, isAsync bool) (execResult, *EchoError) {
	if p.cur.Type != TokIdent {
		return execResult{}, syntaxError(p.pos(), "expected function name")
	}
	name := p.cur.Text
	defLine, defCol := p.cur.Line, p.cur.Col
	if err := p.advance(); err != nil {
		return execResult{}, err
	}
	params, err := p.parseParamList(ctx)
	if err != nil {
		return execResult{}, err
	}
	if err := p.openBlock(); err != nil {
		return execResult{}, err
	}
	fn := &Function{
		Name:            name,
		Params:          params,
		BodyState:       p.lex.StateAtPosition(p.cur.Line, p.cur.Col),
		BodyIndentStack: p.captureIndentStack(),
		Source:          string(p.lex.text),
		OwningSource:    true,
		DefScope:        ctx.scope,
		DefLine:         defLine,
		DefCol:          defCol,
		IsAsync:         isAsync,
	}
	ctx.scope.Define(name, Value{Kind: KFunction, Fn: fn})
	if err := p.skipBlockAfterIndent(); err != nil {
		return execResult{}, err
	}
	return execResult{}, nil
}

// --- blueprint (spec.md §4.5: class-scope body runs eagerly, methods lazily) ---

func (p *Parser) execBlueprintDef(ctx *evalCtx) (execResult, *EchoError) {
	if p.cur.Type != TokIdent {
		return execResult{}, syntaxError(p.pos(), "expected blueprint name")
	}
	name := p.cur.Text
	if err := p.advance(); err != nil {
		return execResult{}, err
	}
	var parent *Blueprint
	if p.cur.IsKeyword("inherits") {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if p.cur.Type != TokIdent {
			return execResult{}, syntaxError(p.pos(), "expected parent blueprint name")
		}
		pname := p.cur.Text
		ppos := p.pos()
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		parent = ctx.interp.lookupBlueprint(pname)
		if parent == nil {
			return execResult{}, runtimeError(ppos, "blueprint '%s' is not defined", pname)
		}
	}
	classScope := NewScope(nil)
	bp := &Blueprint{Name: name, ClassScope: classScope, Parent: parent}
	ctx.interp.defineBlueprint(name, bp)
	ctx.scope.Define(name, Value{Kind: KBlueprint, BP: bp})

	if err := p.openBlock(); err != nil {
		return execResult{}, err
	}
	classCtx := ctx.child(classScope)
	classCtx.methodOwner = bp

	for p.cur.Type != TokDedent && p.cur.Type != TokEOF {
		isAsync := p.cur.IsKeyword("async")
		if isAsync {
			if err := p.advance(); err != nil {
				return execResult{}, err
			}
		}
		if isAsync || p.cur.IsKeyword("funct") {
			if err := p.advance(); err != nil { // 'funct'
				return execResult{}, err
			}
			if p.cur.Type != TokIdent {
				return execResult{}, syntaxError(p.pos(), "expected method name")
			}
			mname := p.cur.Text
			defLine, defCol := p.cur.Line, p.cur.Col
			if err := p.advance(); err != nil {
				return execResult{}, err
			}
			params, perr := p.parseParamList(classCtx)
			if perr != nil {
				return execResult{}, perr
			}
			if err := p.openBlock(); err != nil {
				return execResult{}, err
			}
			fn := &Function{
				Name:            mname,
				Params:          params,
				BodyState:       p.lex.StateAtPosition(p.cur.Line, p.cur.Col),
				BodyIndentStack: p.captureIndentStack(),
				Source:          string(p.lex.text),
				OwningSource:    true,
				DefScope:        classScope,
				DefLine:         defLine,
				DefCol:          defCol,
				IsAsync:         isAsync,
				OwnerBlueprint:  bp,
			}
			classScope.Define(mname, Value{Kind: KFunction, Fn: fn})
			if err := p.skipBlockAfterIndent(); err != nil {
				return execResult{}, err
			}
			continue
		}
		r, err := p.execStatement(classCtx)
		if err != nil {
			return execResult{}, err
		}
		if r.Outcome != OutOk {
			return execResult{}, internalError(p.pos(), "break/continue/return/raise is not valid directly in a blueprint body")
		}
	}
	if p.cur.Type == TokDedent {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
	}
	return execResult{}, nil
}

// --- load (spec.md §6 module loader) ---

func (p *Parser) execLoad(ctx *evalCtx) (execResult, *EchoError) {
	if p.cur.Type != TokString {
		return execResult{}, syntaxError(p.pos(), "expected module path string after 'load'")
	}
	modPath := p.cur.Str
	pos := p.pos()
	if err := p.advance(); err != nil {
		return execResult{}, err
	}
	if p.cur.IsKeyword("as") {
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		if p.cur.Type != TokIdent {
			return execResult{}, syntaxError(p.pos(), "expected alias after 'as'")
		}
		alias := p.cur.Text
		if err := p.advance(); err != nil {
			return execResult{}, err
		}
		modVal, merr := ctx.interp.loadModule(modPath, pos)
		if merr != nil {
			return execResult{}, merr
		}
		ctx.scope.Define(alias, modVal)
		return execResult{}, nil
	}
	modVal, merr := ctx.interp.loadModule(modPath, pos)
	if merr != nil {
		return execResult{}, merr
	}
	if modVal.Kind != KDict {
		return execResult{}, internalError(pos, "module '%s' did not produce an export dict", modPath)
	}
	modVal.Dict.D.ForEach(func(k, v Value) {
		if k.Kind == KString && !strings.HasPrefix(k.S, "_") {
			ctx.scope.Define(k.S, v)
		}
	})
	return execResult{}, nil
}
