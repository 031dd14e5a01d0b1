package echoc

import (
	"math"
	"strings"
)

// ExprResult is what every node of the expression grammar returns (spec.md
// §3 invariant v / §4.4): the Value, whether the caller owns a fresh
// allocation/refcount it must release, and whether this result came from a
// bare identifier primary (used by statement-level lvalue handling to tell
// `x` from `f()` when deciding whether a name denotes an assignable slot).
type ExprResult struct {
	Value        Value
	Fresh        bool
	StandaloneID string // identifier name, or "" if not a bare-identifier primary
}

func val(v Value) ExprResult { return ExprResult{Value: v} }
func fresh(v Value) ExprResult { return ExprResult{Value: v, Fresh: true} }

func releaseIfFresh(r ExprResult) {
	if r.Fresh {
		release(r.Value)
	}
}

// evalCtx threads the pieces of ambient state every expression/statement
// needs: which scope to resolve names in, which coroutine (if any) is
// currently executing, whether we're in the side-effect-suppressed branch
// of a short-circuited and/or (spec.md §4.4: "RHS is parsed in a
// side-effect-suppressed mode"), and, inside a method body, who `self` and
// `super` refer to.
type evalCtx struct {
	interp   *Interpreter
	scope    *Scope
	coro     *Coroutine // nil while executing the top-level script
	suppress bool

	selfValue    *Value
	methodOwner  *Blueprint // blueprint that defined the currently executing method, for `super`
}

func (c *evalCtx) child(scope *Scope) *evalCtx {
	n := *c
	n.scope = scope
	return &n
}

func (c *evalCtx) suppressed() *evalCtx {
	if c.suppress {
		return c
	}
	n := *c
	n.suppress = true
	return &n
}

// Parser is a one-token-lookahead recursive-descent parser that evaluates
// as it goes (spec.md §9: "keep; idiomatic and readable" — no persistent
// AST, matching the teacher's own token-substitution evaluator in spirit).
type Parser struct {
	lex *Lexer
	cur Token
}

func NewParser(lex *Lexer) (*Parser, *EchoError) {
	p := &Parser{lex: lex}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() *EchoError {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *Parser) pos() Position { return Position{Line: p.cur.Line, Col: p.cur.Col, Filename: p.lex.filename} }

func (p *Parser) expect(t TokenType, what string) *EchoError {
	if p.cur.Type != t {
		return syntaxError(p.pos(), "expected %s", what)
	}
	return p.advance()
}

func (p *Parser) expectKeyword(kw string) *EchoError {
	if !p.cur.IsKeyword(kw) {
		return syntaxError(p.pos(), "expected '%s'", kw)
	}
	return p.advance()
}

func (p *Parser) expectColon() *EchoError { return p.expect(TokColon, "':'") }

// --- precedence-climbing chain (spec.md §4.4), lowest to highest ---

func (p *Parser) parseExpr(ctx *evalCtx) (ExprResult, *EchoError) { return p.parseConditional(ctx) }

// parseConditional handles the postfix `T if C else F` form. T is written
// before C is even parsed, so avoiding the double-evaluation the suppression
// mechanism exists for (and/or's RHS, untaken if/elif arms — see stmt.go)
// needs a bookmark-and-rewind: T is first consumed under suppression just to
// find where C starts, C is always evaluated for real, and only the branch C
// picks is re-parsed for real; the other is walked again under suppression
// so its tokens are consumed the same way but no side effect fires twice.
func (p *Parser) parseConditional(ctx *evalCtx) (ExprResult, *EchoError) {
	tStart := p.lex.SaveState()
	tStartTok := p.cur

	if _, err := p.parseAwait(ctx.suppressed()); err != nil {
		return ExprResult{}, err
	}
	if !p.cur.IsKeyword("if") {
		// Not actually a conditional expression: rewind and parse T for real.
		p.lex.RestoreState(tStart)
		p.cur = tStartTok
		return p.parseAwait(ctx)
	}
	if err := p.advance(); err != nil {
		return ExprResult{}, err
	}
	c, err := p.parseAwait(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	if err := p.expectKeyword("else"); err != nil {
		return ExprResult{}, err
	}
	fStart := p.lex.SaveState()
	fStartTok := p.cur

	if truthy(c.Value) {
		p.lex.RestoreState(tStart)
		p.cur = tStartTok
		t, err := p.parseAwait(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		// T's real parse lands back on "if" exactly as before; walk past
		// "if C else" again (already bookmarked as fStart) and consume F's
		// tokens under suppression so no side effect in F fires twice.
		p.lex.RestoreState(fStart)
		p.cur = fStartTok
		if _, err := p.parseConditional(ctx.suppressed()); err != nil {
			return ExprResult{}, err
		}
		return t, nil
	}

	f, err := p.parseConditional(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	return f, nil
}

func (p *Parser) parseAwait(ctx *evalCtx) (ExprResult, *EchoError) {
	if !p.cur.IsKeyword("await") {
		return p.parseOr(ctx)
	}
	pos := p.pos()
	if err := p.advance(); err != nil {
		return ExprResult{}, err
	}
	operand, err := p.parseOr(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	if ctx.suppress {
		releaseIfFresh(operand)
		return val(Null), nil
	}
	if ctx.coro == nil {
		return ExprResult{}, runtimeError(pos, "'await' used outside an async function")
	}
	if operand.Value.Kind != KCoroutine && operand.Value.Kind != KGatherTask {
		return ExprResult{}, runtimeError(pos, "await target is not a coroutine")
	}
	target := operand.Value.Coro
	if target == ctx.coro {
		return ExprResult{}, runtimeError(pos, "a coroutine cannot await itself")
	}
	return p.performAwait(ctx, target, pos)
}

// performAwait implements the suspend/resume contract (spec.md §4.6 "Await
// protocol"). Unlike the spec's own design note, there is no lexer-rewind
// replay here: the coroutine's own goroutine stack (coroutine.go) already
// is the continuation, so suspending is just a channel receive and resuming
// picks up at the next Go statement with the awaited value in hand.
func (p *Parser) performAwait(ctx *evalCtx, target *Coroutine, pos Position) (ExprResult, *EchoError) {
	if target.State == CoroDone {
		return p.consumeCompletedTarget(target, pos)
	}
	ctx.interp.loop.ensureScheduled(target)
	if target.State == CoroDone { // timer/gather could finish synchronously once scheduled (e.g. 0ms rest)
		return p.consumeCompletedTarget(target, pos)
	}
	ctx.coro.awaitSuspend(target)
	if ctx.coro.checkCancelled() {
		return ExprResult{}, cancelledError(pos)
	}
	if ctx.coro.ResumedWithException != nil {
		msg := ctx.coro.ResumedWithException.Message
		ctx.coro.ResumedWithException = nil
		return ExprResult{}, runtimeError(pos, "%s", msg)
	}
	v := ctx.coro.ValueFromAwait
	ctx.coro.ValueFromAwait = Null
	return fresh(v), nil
}

// consumeCompletedTarget reads the result of an already-finished await
// target. A propagated failure surfaces here as an ordinary catchable
// runtime error (stmt.go turns any Kind Runtime/Cancellation *EchoError
// into a catchable exception at the nearest try/catch frame, spec.md §7).
func (p *Parser) consumeCompletedTarget(target *Coroutine, pos Position) (ExprResult, *EchoError) {
	if target.HasException {
		return ExprResult{}, runtimeError(pos, "%s", target.ExceptionValue.S)
	}
	return fresh(deepCopy(target.ResultValue)), nil
}

func (p *Parser) parseOr(ctx *evalCtx) (ExprResult, *EchoError) {
	left, lerr := p.parseAnd(ctx)
	if lerr != nil {
		return ExprResult{}, lerr
	}
	for p.cur.IsKeyword("or") {
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		if truthy(left.Value) {
			if _, err := p.parseAnd(ctx.suppressed()); err != nil {
				return ExprResult{}, err
			}
			continue
		}
		releaseIfFresh(left)
		right, err := p.parseAnd(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		left = right
	}
	return left, nil
}

func (p *Parser) parseAnd(ctx *evalCtx) (ExprResult, *EchoError) {
	left, lerr := p.parseEquality(ctx)
	if lerr != nil {
		return ExprResult{}, lerr
	}
	for p.cur.IsKeyword("and") {
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		if !truthy(left.Value) {
			if _, err := p.parseEquality(ctx.suppressed()); err != nil {
				return ExprResult{}, err
			}
			continue
		}
		releaseIfFresh(left)
		right, err := p.parseEquality(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		left = right
	}
	return left, nil
}

func (p *Parser) parseEquality(ctx *evalCtx) (ExprResult, *EchoError) {
	left, err := p.parseIdentity(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	for p.cur.Type == TokEq || p.cur.Type == TokNe {
		op := p.cur.Type
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		right, err := p.parseIdentity(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		eq := equalValues(left.Value, right.Value)
		if op == TokNe {
			eq = !eq
		}
		releaseIfFresh(left)
		releaseIfFresh(right)
		left = val(BoolVal(eq))
	}
	return left, nil
}

func (p *Parser) parseIdentity(ctx *evalCtx) (ExprResult, *EchoError) {
	left, err := p.parseComparison(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	for p.cur.IsKeyword("is") {
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		neg := false
		if p.cur.IsKeyword("not") {
			neg = true
			if err := p.advance(); err != nil {
				return ExprResult{}, err
			}
		}
		right, err := p.parseComparison(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		same := identical(left.Value, right.Value)
		if neg {
			same = !same
		}
		releaseIfFresh(left)
		releaseIfFresh(right)
		left = val(BoolVal(same))
	}
	return left, nil
}

func (p *Parser) parseComparison(ctx *evalCtx) (ExprResult, *EchoError) {
	left, err := p.parseAdditive(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	for p.cur.Type == TokLt || p.cur.Type == TokLe || p.cur.Type == TokGt || p.cur.Type == TokGe {
		op := p.cur.Type
		pos := p.pos()
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		right, err := p.parseAdditive(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		if ctx.suppress {
			releaseIfFresh(left)
			releaseIfFresh(right)
			left = val(Null)
			continue
		}
		b, cmperr := compareValues(left.Value, right.Value, op, pos)
		releaseIfFresh(left)
		releaseIfFresh(right)
		if cmperr != nil {
			return ExprResult{}, cmperr
		}
		left = val(BoolVal(b))
	}
	return left, nil
}

func compareValues(a, b Value, op TokenType, pos Position) (bool, *EchoError) {
	if isNumeric(a) && isNumeric(b) {
		af, bf := numAsFloat(a), numAsFloat(b)
		switch op {
		case TokLt:
			return af < bf, nil
		case TokLe:
			return af <= bf, nil
		case TokGt:
			return af > bf, nil
		default:
			return af >= bf, nil
		}
	}
	if a.Kind == KString && b.Kind == KString {
		switch op {
		case TokLt:
			return a.S < b.S, nil
		case TokLe:
			return a.S <= b.S, nil
		case TokGt:
			return a.S > b.S, nil
		default:
			return a.S >= b.S, nil
		}
	}
	return false, runtimeError(pos, "operands of comparison are not comparable")
}

func (p *Parser) parseAdditive(ctx *evalCtx) (ExprResult, *EchoError) {
	left, err := p.parseMultiplicative(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	for p.cur.Type == TokPlus || p.cur.Type == TokMinus {
		op := p.cur.Type
		pos := p.pos()
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		right, err := p.parseMultiplicative(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		if ctx.suppress {
			releaseIfFresh(left)
			releaseIfFresh(right)
			left = val(Null)
			continue
		}
		var res ExprResult
		var operr *EchoError
		if op == TokPlus {
			res, operr = addValues(ctx, left.Value, right.Value, pos)
		} else {
			res, operr = subValues(left.Value, right.Value, pos)
		}
		releaseIfFresh(left)
		releaseIfFresh(right)
		if operr != nil {
			return ExprResult{}, operr
		}
		left = res
	}
	return left, nil
}

// addValues implements `+` (spec.md §4.4): numeric promotion, string
// concatenation, or an `op_add` dispatch on an Object.
func addValues(ctx *evalCtx, a, b Value, pos Position) (ExprResult, *EchoError) {
	if isNumeric(a) && isNumeric(b) {
		if a.Kind == KInt && b.Kind == KInt {
			return val(IntVal(a.I + b.I)), nil
		}
		return val(FloatVal(numAsFloat(a) + numAsFloat(b))), nil
	}
	if a.Kind == KString || b.Kind == KString {
		return fresh(StringVal(displayString(a) + displayString(b))), nil
	}
	if a.Kind == KObject {
		if m := a.Obj.Blueprint.lookupClassAttr("op_add"); m != nil && m.Kind == KFunction {
			if m.Fn.IsAsync {
				return ExprResult{}, runtimeError(pos, "op_add must not be async")
			}
			return ctx.interp.invokeMethod(ctx, m.Fn, a, []Value{b}, nil, pos)
		}
	}
	return ExprResult{}, runtimeError(pos, "unsupported operand types for '+'")
}

func subValues(a, b Value, pos Position) (ExprResult, *EchoError) {
	if !isNumeric(a) || !isNumeric(b) {
		return ExprResult{}, runtimeError(pos, "unsupported operand types for '-'")
	}
	if a.Kind == KInt && b.Kind == KInt {
		return val(IntVal(a.I - b.I)), nil
	}
	return val(FloatVal(numAsFloat(a) - numAsFloat(b))), nil
}

func (p *Parser) parseMultiplicative(ctx *evalCtx) (ExprResult, *EchoError) {
	left, err := p.parseUnary(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	for p.cur.Type == TokStar || p.cur.Type == TokSlash || p.cur.Type == TokPercent {
		op := p.cur.Type
		pos := p.pos()
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		right, err := p.parseUnary(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		if ctx.suppress {
			releaseIfFresh(left)
			releaseIfFresh(right)
			left = val(Null)
			continue
		}
		res, operr := mulDivMod(left.Value, right.Value, op, pos)
		releaseIfFresh(left)
		releaseIfFresh(right)
		if operr != nil {
			return ExprResult{}, operr
		}
		left = res
	}
	return left, nil
}

func mulDivMod(a, b Value, op TokenType, pos Position) (ExprResult, *EchoError) {
	switch op {
	case TokStar:
		if a.Kind == KString && b.Kind == KInt {
			return fresh(StringVal(repeatString(a.S, b.I))), nil
		}
		if a.Kind == KInt && b.Kind == KString {
			return fresh(StringVal(repeatString(b.S, a.I))), nil
		}
		if isNumeric(a) && isNumeric(b) {
			if a.Kind == KInt && b.Kind == KInt {
				return val(IntVal(a.I * b.I)), nil
			}
			return val(FloatVal(numAsFloat(a) * numAsFloat(b))), nil
		}
		return ExprResult{}, runtimeError(pos, "unsupported operand types for '*'")
	case TokSlash:
		if !isNumeric(a) || !isNumeric(b) {
			return ExprResult{}, runtimeError(pos, "unsupported operand types for '/'")
		}
		if numAsFloat(b) == 0 {
			return ExprResult{}, runtimeError(pos, "division by zero")
		}
		return val(FloatVal(numAsFloat(a) / numAsFloat(b))), nil
	default: // TokPercent
		if a.Kind != KInt || b.Kind != KInt {
			return ExprResult{}, runtimeError(pos, "'%%' requires two integers")
		}
		if b.I == 0 {
			return ExprResult{}, runtimeError(pos, "division by zero")
		}
		return val(IntVal(a.I % b.I)), nil
	}
}

func repeatString(s string, n int64) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(s, int(n))
}

func (p *Parser) parseUnary(ctx *evalCtx) (ExprResult, *EchoError) {
	if p.cur.Type == TokMinus {
		pos := p.pos()
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		operand, err := p.parseUnary(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		if ctx.suppress {
			releaseIfFresh(operand)
			return val(Null), nil
		}
		defer releaseIfFresh(operand)
		switch operand.Value.Kind {
		case KInt:
			return val(IntVal(-operand.Value.I)), nil
		case KFloat:
			return val(FloatVal(-operand.Value.F)), nil
		default:
			return ExprResult{}, runtimeError(pos, "unary '-' requires a number")
		}
	}
	if p.cur.IsKeyword("not") {
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		operand, err := p.parseUnary(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		defer releaseIfFresh(operand)
		if ctx.suppress {
			return val(Null), nil
		}
		return val(BoolVal(!truthy(operand.Value))), nil
	}
	return p.parsePower(ctx)
}

func (p *Parser) parsePower(ctx *evalCtx) (ExprResult, *EchoError) {
	left, err := p.parsePostfix(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	if p.cur.Type != TokCaret {
		return left, nil
	}
	pos := p.pos()
	if err := p.advance(); err != nil {
		return ExprResult{}, err
	}
	right, err := p.parsePower(ctx) // right-associative
	if err != nil {
		return ExprResult{}, err
	}
	defer releaseIfFresh(left)
	defer releaseIfFresh(right)
	if ctx.suppress {
		return val(Null), nil
	}
	if !isNumeric(left.Value) || !isNumeric(right.Value) {
		return ExprResult{}, runtimeError(pos, "'^' requires two numbers")
	}
	return val(FloatVal(math.Pow(numAsFloat(left.Value), numAsFloat(right.Value)))), nil
}

// parsePostfix handles call/index/attribute chains (spec.md §4.4). Only a
// bare identifier primary propagates StandaloneID, and only when nothing
// here consumes a postfix — the moment any `.`/`(`/`[` is seen the result
// is no longer "standalone".
func (p *Parser) parsePostfix(ctx *evalCtx) (ExprResult, *EchoError) {
	base, err := p.parsePrimary(ctx)
	if err != nil {
		return ExprResult{}, err
	}
	for {
		switch p.cur.Type {
		case TokDot:
			if err := p.advance(); err != nil {
				return ExprResult{}, err
			}
			if p.cur.Type != TokIdent && p.cur.Type != TokKeyword {
				return ExprResult{}, syntaxError(p.pos(), "expected attribute name after '.'")
			}
			name := p.cur.Text
			pos := p.pos()
			if err := p.advance(); err != nil {
				return ExprResult{}, err
			}
			if ctx.suppress {
				releaseIfFresh(base)
				base = val(Null)
				break
			}
			next, err := getAttr(ctx, base.Value, name, pos)
			if err != nil {
				return ExprResult{}, err
			}
			releaseIfFresh(base)
			base = next
		case TokLBracket:
			pos := p.pos()
			if err := p.advance(); err != nil {
				return ExprResult{}, err
			}
			idx, err := p.parseExpr(ctx)
			if err != nil {
				return ExprResult{}, err
			}
			if err := p.expect(TokRBracket, "']'"); err != nil {
				return ExprResult{}, err
			}
			if ctx.suppress {
				releaseIfFresh(idx)
				releaseIfFresh(base)
				base = val(Null)
				break
			}
			next, gerr := getIndex(base.Value, idx.Value, pos)
			releaseIfFresh(idx)
			if gerr != nil {
				return ExprResult{}, gerr
			}
			releaseIfFresh(base)
			base = next
		case TokLParen:
			pos := p.pos()
			posArgs, namedArgs, perr := p.parseArgList(ctx)
			if perr != nil {
				return ExprResult{}, perr
			}
			if ctx.suppress {
				base = val(Null)
				continue
			}
			res, cerr := ctx.interp.call(ctx, base.Value, posArgs, namedArgs, pos)
			if cerr != nil {
				return ExprResult{}, cerr
			}
			base = res
		default:
			return base, nil
		}
		base.StandaloneID = ""
	}
}

func (p *Parser) parseArgList(ctx *evalCtx) ([]Value, map[string]Value, *EchoError) {
	if err := p.expect(TokLParen, "'('"); err != nil {
		return nil, nil, err
	}
	var pos []Value
	named := map[string]Value{}
	seenNamed := false
	for p.cur.Type != TokRParen {
		if p.cur.Type == TokIdent && p.peekIsAssignInArg() {
			name := p.cur.Text
			if err := p.advance(); err != nil {
				return nil, nil, err
			}
			if err := p.advance(); err != nil { // '='
				return nil, nil, err
			}
			r, err := p.parseExpr(ctx)
			if err != nil {
				return nil, nil, err
			}
			if _, dup := named[name]; dup {
				return nil, nil, runtimeError(p.pos(), "duplicate named argument '%s'", name)
			}
			named[name] = r.Value
			seenNamed = true
		} else {
			if seenNamed {
				return nil, nil, syntaxError(p.pos(), "positional argument after named argument")
			}
			r, err := p.parseExpr(ctx)
			if err != nil {
				return nil, nil, err
			}
			pos = append(pos, r.Value)
		}
		if p.cur.Type == TokComma {
			if err := p.advance(); err != nil {
				return nil, nil, err
			}
			continue
		}
		break
	}
	if err := p.expect(TokRParen, "')'"); err != nil {
		return nil, nil, err
	}
	return pos, named, nil
}

// peekIsAssignInArg reports whether the current identifier token is
// immediately followed by a bare '=' (not '==') — i.e. `name=expr` call
// syntax rather than a bare expression starting with an identifier. The
// lexer has already produced the current token; to see the next one we
// must save/restore around a single-token peek.
func (p *Parser) peekIsAssignInArg() bool {
	save := p.lex.SaveState()
	savedCur := p.cur
	_ = p.advance()
	isAssign := p.cur.Type == TokAssign
	p.lex.RestoreState(save)
	p.cur = savedCur
	return isAssign
}

func (p *Parser) parsePrimary(ctx *evalCtx) (ExprResult, *EchoError) {
	switch {
	case p.cur.Type == TokInt:
		v := IntVal(p.cur.IntVal)
		return val(v), p.advance()
	case p.cur.Type == TokFloat:
		v := FloatVal(p.cur.FltVal)
		return val(v), p.advance()
	case p.cur.Type == TokString:
		return p.parseStringLiteral(ctx)
	case p.cur.IsKeyword("true"):
		return val(BoolVal(true)), p.advance()
	case p.cur.IsKeyword("false"):
		return val(BoolVal(false)), p.advance()
	case p.cur.IsKeyword("null"):
		return val(Null), p.advance()
	case p.cur.IsKeyword("self"):
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		if ctx.selfValue == nil {
			return ExprResult{}, runtimeError(p.pos(), "'self' used outside a method")
		}
		return val(*ctx.selfValue), nil
	case p.cur.IsKeyword("super"):
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		return val(Value{Kind: KSuperProxy}), nil
	case p.cur.Type == TokIdent:
		name := p.cur.Text
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		if ctx.suppress {
			return ExprResult{Value: Null, StandaloneID: name}, nil
		}
		ptr := ctx.scope.Get(name)
		if ptr == nil {
			if bp := ctx.interp.lookupBlueprint(name); bp != nil {
				return ExprResult{Value: Value{Kind: KBlueprint, BP: bp}, StandaloneID: name}, nil
			}
			return ExprResult{}, runtimeError(p.pos(), "name '%s' is not defined", name)
		}
		return ExprResult{Value: *ptr, StandaloneID: name}, nil
	case p.cur.Type == TokLParen:
		if err := p.advance(); err != nil {
			return ExprResult{}, err
		}
		inner, err := p.parseExpr(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		if err := p.expect(TokRParen, "')'"); err != nil {
			return ExprResult{}, err
		}
		inner.StandaloneID = ""
		return inner, nil
	case p.cur.Type == TokLBracket:
		return p.parseArrayLiteral(ctx)
	case p.cur.Type == TokLBrace:
		return p.parseDictLiteral(ctx)
	default:
		return ExprResult{}, syntaxError(p.pos(), "unexpected token in expression")
	}
}

func (p *Parser) parseStringLiteral(ctx *evalCtx) (ExprResult, *EchoError) {
	tok := p.cur
	if err := p.advance(); err != nil {
		return ExprResult{}, err
	}
	if len(tok.Interp) == 0 {
		return fresh(StringVal(tok.Str)), nil
	}
	var sb strings.Builder
	for _, seg := range tok.Interp {
		sb.WriteString(seg.Literal)
		if seg.Expr == "" {
			continue
		}
		s, err := evalInterpSegment(ctx, seg.Expr, p.lex.filename)
		if err != nil {
			return ExprResult{}, err
		}
		sb.WriteString(s)
	}
	return fresh(StringVal(sb.String())), nil
}

// evalInterpSegment evaluates one %{expr} fragment (spec.md §4.1/§8
// property 11) by lexing and parsing it as a fresh, self-contained
// expression, independent of the outer token stream.
func evalInterpSegment(ctx *evalCtx, src, filename string) (string, *EchoError) {
	lex := NewLexer(src, filename)
	sub, err := NewParser(lex)
	if err != nil {
		return "", err
	}
	r, err := sub.parseExpr(ctx)
	if err != nil {
		return "", err
	}
	defer releaseIfFresh(r)
	return ctx.interp.displayOf(ctx, r.Value)
}

func (p *Parser) parseArrayLiteral(ctx *evalCtx) (ExprResult, *EchoError) {
	if err := p.advance(); err != nil { // '['
		return ExprResult{}, err
	}
	var items []Value
	for p.cur.Type != TokRBracket {
		r, err := p.parseExpr(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		items = append(items, deepCopy(r.Value))
		releaseIfFresh(r)
		if p.cur.Type == TokComma {
			if err := p.advance(); err != nil {
				return ExprResult{}, err
			}
			continue
		}
		break
	}
	if err := p.expect(TokRBracket, "']'"); err != nil {
		return ExprResult{}, err
	}
	return fresh(Value{Kind: KArray, Arr: &ArrayValue{Items: items}}), nil
}

func (p *Parser) parseDictLiteral(ctx *evalCtx) (ExprResult, *EchoError) {
	if err := p.advance(); err != nil { // '{'
		return ExprResult{}, err
	}
	d := NewDictionary()
	for p.cur.Type != TokRBrace {
		k, err := p.parseExpr(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		if err := p.expectColon(); err != nil {
			return ExprResult{}, err
		}
		v, err := p.parseExpr(ctx)
		if err != nil {
			return ExprResult{}, err
		}
		d.Set(deepCopy(k.Value), deepCopy(v.Value))
		releaseIfFresh(k)
		releaseIfFresh(v)
		if p.cur.Type == TokComma {
			if err := p.advance(); err != nil {
				return ExprResult{}, err
			}
			continue
		}
		break
	}
	if err := p.expect(TokRBrace, "'}'"); err != nil {
		return ExprResult{}, err
	}
	return fresh(Value{Kind: KDict, Dict: &DictValue{D: d}}), nil
}

// --- attribute / index access (spec.md §4.4 "Attribute access") ---

func getAttr(ctx *evalCtx, recv Value, name string, pos Position) (ExprResult, *EchoError) {
	switch recv.Kind {
	case KObject:
		if v := recv.Obj.Attrs.GetLocal(name); v != nil {
			return val(*v), nil
		}
		if m := recv.Obj.Blueprint.lookupClassAttr(name); m != nil {
			if m.Kind == KFunction {
				bm := NewBoundMethod(m.Fn, recv, false)
				return fresh(Value{Kind: KBoundMethod, Bound: bm}), nil
			}
			return val(*m), nil
		}
		return ExprResult{}, runtimeError(pos, "object has no attribute '%s'", name)
	case KBlueprint:
		if m := recv.BP.lookupClassAttr(name); m != nil {
			return val(*m), nil
		}
		return ExprResult{}, runtimeError(pos, "blueprint '%s' has no attribute '%s'", recv.BP.Name, name)
	case KArray:
		switch name {
		case "len":
			return val(IntVal(int64(len(recv.Arr.Items)))), nil
		case "append":
			return fresh(arrayAppendMethod(recv)), nil
		}
		return ExprResult{}, runtimeError(pos, "array has no attribute '%s'", name)
	case KDict:
		if v, ok := recv.Dict.D.TryGet(StringVal(name)); ok {
			return val(v), nil
		}
		return ExprResult{}, runtimeError(pos, "dict has no key '%s'", name)
	case KSuperProxy:
		if ctx.methodOwner == nil || ctx.methodOwner.Parent == nil {
			return ExprResult{}, runtimeError(pos, "'super' used without a parent blueprint")
		}
		m := ctx.methodOwner.Parent.lookupClassAttr(name)
		if m == nil || m.Kind != KFunction {
			return ExprResult{}, runtimeError(pos, "parent blueprint has no method '%s'", name)
		}
		self := Null
		if ctx.selfValue != nil {
			self = *ctx.selfValue
		}
		bm := NewBoundMethod(m.Fn, self, false)
		return fresh(Value{Kind: KBoundMethod, Bound: bm}), nil
	default:
		return ExprResult{}, runtimeError(pos, "value has no attribute '%s'", name)
	}
}

// arrayAppendMethod wraps Array.append as a BoundMethod over a synthetic
// native Function, so `a.append(x)` flows through the same call path as
// any other bound method (spec.md §4.4 "Array exposes append").
func arrayAppendMethod(recv Value) Value {
	arr := recv.Arr
	fn := &Function{
		Name: "append",
		CImpl: func(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
			if len(args) != 1 {
				return Null, runtimeError(pos, "append expects exactly one argument")
			}
			arr.Items = append(arr.Items, deepCopy(args[0]))
			return Null, nil
		},
	}
	return Value{Kind: KBoundMethod, Bound: NewBoundMethod(fn, recv, false)}
}

func getIndex(recv, idx Value, pos Position) (ExprResult, *EchoError) {
	switch recv.Kind {
	case KArray:
		if idx.Kind != KInt {
			return ExprResult{}, runtimeError(pos, "array index must be an integer")
		}
		i := idx.I
		if i < 0 {
			i += int64(len(recv.Arr.Items))
		}
		if i < 0 || i >= int64(len(recv.Arr.Items)) {
			return ExprResult{}, runtimeError(pos, "array index out of range")
		}
		return val(recv.Arr.Items[i]), nil
	case KTuple:
		if idx.Kind != KInt {
			return ExprResult{}, runtimeError(pos, "tuple index must be an integer")
		}
		i := idx.I
		if i < 0 {
			i += int64(len(recv.Tup.Items))
		}
		if i < 0 || i >= int64(len(recv.Tup.Items)) {
			return ExprResult{}, runtimeError(pos, "tuple index out of range")
		}
		return val(recv.Tup.Items[i]), nil
	case KDict:
		v, ok := recv.Dict.D.TryGet(idx)
		if !ok {
			return ExprResult{}, runtimeError(pos, "key not found: %s", reprString(idx))
		}
		return val(v), nil
	case KString:
		if idx.Kind != KInt {
			return ExprResult{}, runtimeError(pos, "string index must be an integer")
		}
		r := []rune(recv.S)
		i := idx.I
		if i < 0 {
			i += int64(len(r))
		}
		if i < 0 || i >= int64(len(r)) {
			return ExprResult{}, runtimeError(pos, "string index out of range")
		}
		return fresh(StringVal(string(r[i]))), nil
	default:
		return ExprResult{}, runtimeError(pos, "value is not indexable")
	}
}

func setIndex(recv, idx, v Value, pos Position) *EchoError {
	switch recv.Kind {
	case KArray:
		if idx.Kind != KInt {
			return runtimeError(pos, "array index must be an integer")
		}
		i := idx.I
		if i < 0 {
			i += int64(len(recv.Arr.Items))
		}
		if i < 0 || i >= int64(len(recv.Arr.Items)) {
			return runtimeError(pos, "array index out of range")
		}
		release(recv.Arr.Items[i])
		recv.Arr.Items[i] = deepCopy(v)
		return nil
	case KDict:
		recv.Dict.D.Set(deepCopy(idx), deepCopy(v))
		return nil
	case KTuple:
		return runtimeError(pos, "tuples are immutable")
	default:
		return runtimeError(pos, "value does not support indexed assignment")
	}
}

func setAttr(recv Value, name string, v Value, pos Position) *EchoError {
	if recv.Kind != KObject {
		return runtimeError(pos, "attribute assignment requires an object")
	}
	recv.Obj.Attrs.Set(name, v)
	return nil
}
