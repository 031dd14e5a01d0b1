package echoc

import (
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Interpreter owns every piece of state that outlives a single statement:
// the global scope, the blueprint registry, the module cache, and the one
// EventLoop every coroutine in the program shares for its whole lifetime
// (spec.md §5/§6 — a single script has exactly one weaver runtime).
type Interpreter struct {
	loop       *EventLoop
	rootScope  *Scope
	logger     *Logger
	config     *Config
	blueprints map[string]*Blueprint

	moduleCache    map[string]Value
	moduleLoading  map[string]bool
	builtinModules map[string]Value
	watcher        *fsnotify.Watcher

	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

// NewInterpreter builds an Interpreter ready to execute a script. cfg may be
// nil, in which case DefaultConfig() is used (see config.go).
func NewInterpreter(cfg *Config) *Interpreter {
	if cfg == nil {
		d := DefaultConfig()
		cfg = &d
	}
	in := &Interpreter{
		loop:          NewEventLoop(),
		rootScope:     NewScope(nil),
		config:        cfg,
		blueprints:    make(map[string]*Blueprint),
		moduleCache:    make(map[string]Value),
		moduleLoading:  make(map[string]bool),
		builtinModules: make(map[string]Value),
		stdout:        cfg.Stdout,
		stderr:        cfg.Stderr,
		stdin:         cfg.Stdin,
	}
	if in.stdout == nil {
		in.stdout = os.Stdout
	}
	if in.stderr == nil {
		in.stderr = os.Stderr
	}
	if in.stdin == nil {
		in.stdin = os.Stdin
	}
	in.logger = NewLoggerWithWriters(cfg.Verbose, in.stdout, in.stderr)
	if cfg.StructuredLog != nil {
		in.logger.AttachStructuredSink(cfg.StructuredLog)
	}
	in.installBuiltins()
	in.installWeaverModule()
	in.installDsModule()
	if cfg.Watch {
		if err := in.startWatching(); err != nil {
			in.logger.Warn("module watch disabled: %v", err)
		}
	}
	return in
}

func (in *Interpreter) lookupBlueprint(name string) *Blueprint { return in.blueprints[name] }

func (in *Interpreter) defineBlueprint(name string, bp *Blueprint) { in.blueprints[name] = bp }

// ExecuteSource runs an entire top-level script to completion, driving the
// statement evaluator statement-by-statement at the root scope outside of
// any coroutine (spec.md §6: the script body itself is not a coroutine —
// only weaver.weave'd functions are).
func (in *Interpreter) ExecuteSource(source, filename string) *EchoError {
	lex := NewLexer(source, filename)
	p, err := NewParser(lex)
	if err != nil {
		return err
	}
	ctx := &evalCtx{interp: in, scope: in.rootScope}
	for p.cur.Type != TokEOF {
		r, err := p.execStatement(ctx)
		if err != nil {
			return err
		}
		if r.Outcome == OutException {
			return runtimeError(p.pos(), "uncaught exception: %s", displayString(r.Exception))
		}
		if r.Outcome == OutReturn {
			return nil // a bare top-level `return` simply ends the script
		}
	}
	return nil
}

// runCoroutineBody is the goroutine-side entry point invoked by
// coroutine.go's body(): it parses and executes the function's statements
// starting from its saved BodyState, storing the outcome on c before
// returning. A cancellation observed before the first statement runs
// finalizes the coroutine without ever touching user code.
func (in *Interpreter) runCoroutineBody(c *Coroutine) {
	if c.checkCancelled() {
		return
	}
	fn := c.FunctionDef
	lex := NewLexer(fn.Source, "")
	lex.RestoreState(fn.BodyState)
	lex.indentStack = append([]int(nil), fn.BodyIndentStack...)
	lex.atLineStart = false
	p := &Parser{lex: lex}
	tok, err := lex.Next()
	if err != nil {
		c.HasException = true
		c.ExceptionValue = StringVal(err.Error())
		return
	}
	p.cur = tok

	ctx := &evalCtx{interp: in, scope: c.ExecutionScope, coro: c}
	if sv := c.ExecutionScope.GetLocal("self"); sv != nil {
		ctx.selfValue = sv
	}
	ctx.methodOwner = fn.OwnerBlueprint

	for p.cur.Type != TokDedent && p.cur.Type != TokEOF {
		r, err := p.execStatement(ctx)
		if err != nil {
			c.HasException = true
			c.ExceptionValue = StringVal(err.Error())
			return
		}
		if r.Outcome == OutException {
			c.HasException = true
			c.ExceptionValue = deepCopy(r.Exception)
			return
		}
		if r.Outcome == OutReturn {
			c.ResultValue = deepCopy(r.ReturnValue)
			return
		}
		if c.checkCancelled() {
			return
		}
	}
}

// call dispatches `recv(args...)` for every callable Value kind (spec.md
// §4.4 "Call semantics"): a Function runs synchronously (or, if async,
// produces a fresh Coroutine instead of running anything yet), a
// BoundMethod binds its receiver as self first, a Blueprint constructs an
// Object and runs init, and a builtin Function (CImpl != nil) is just a Go
// call.
func (in *Interpreter) call(ctx *evalCtx, recv Value, posArgs []Value, namedArgs map[string]Value, pos Position) (ExprResult, *EchoError) {
	switch recv.Kind {
	case KFunction:
		return in.invokeFunction(ctx, recv.Fn, nil, posArgs, namedArgs, pos)
	case KBoundMethod:
		self := recv.Bound.Receiver
		return in.invokeFunction(ctx, recv.Bound.Fn, &self, posArgs, namedArgs, pos)
	case KBlueprint:
		obj := NewObject(recv.BP)
		objVal := Value{Kind: KObject, Obj: obj}
		if init := recv.BP.findInit(); init != nil {
			self := objVal
			if _, err := in.invokeFunction(ctx, init, &self, posArgs, namedArgs, pos); err != nil {
				return ExprResult{}, err
			}
		}
		return fresh(objVal), nil
	default:
		return ExprResult{}, runtimeError(pos, "value is not callable")
	}
}

// invokeMethod is the narrower entry point expr.go's addValues uses for
// dunder-style dispatch (op_add etc.), where the receiver is already known
// rather than resolved through attribute lookup.
func (in *Interpreter) invokeMethod(ctx *evalCtx, fn *Function, self Value, args []Value, named map[string]Value, pos Position) (ExprResult, *EchoError) {
	return in.invokeFunction(ctx, fn, &self, args, named, pos)
}

// invokeFunction binds parameters (positional then named, falling back to
// defaults, spec.md §4.4) into a fresh call scope and either runs the body
// synchronously (plain function) or returns a new, not-yet-started
// Coroutine (async function) without running a single statement of it yet
// (spec.md §4.6: "calling an async function immediately returns a
// Coroutine in state New").
func (in *Interpreter) invokeFunction(ctx *evalCtx, fn *Function, self *Value, posArgs []Value, namedArgs map[string]Value, pos Position) (ExprResult, *EchoError) {
	if fn.CImpl != nil {
		v, err := fn.CImpl(in, posArgs, namedArgs, pos)
		if err != nil {
			return ExprResult{}, err
		}
		return fresh(v), nil
	}

	callScope := NewScope(fn.DefScope)
	if self != nil {
		callScope.DefineBorrowed("self", *self)
	}
	if err := bindParams(fn, callScope, posArgs, namedArgs, pos); err != nil {
		return ExprResult{}, err
	}

	if fn.IsAsync {
		name := fn.Name
		c := NewCoroutine(in, name, fn, callScope)
		return fresh(Value{Kind: KCoroutine, Coro: c}), nil
	}

	lex := NewLexer(fn.Source, "")
	lex.RestoreState(fn.BodyState)
	lex.indentStack = append([]int(nil), fn.BodyIndentStack...)
	lex.atLineStart = false
	p := &Parser{lex: lex}
	tok, err := lex.Next()
	if err != nil {
		return ExprResult{}, err
	}
	p.cur = tok

	callCtx := &evalCtx{interp: in, scope: callScope, coro: ctx.coro}
	callCtx.methodOwner = fn.OwnerBlueprint
	if self != nil {
		callCtx.selfValue = self
	}

	for p.cur.Type != TokDedent && p.cur.Type != TokEOF {
		r, serr := p.execStatement(callCtx)
		if serr != nil {
			callScope.Exit()
			return ExprResult{}, serr
		}
		if r.Outcome == OutException {
			callScope.Exit()
			return ExprResult{}, runtimeError(pos, "%s", displayString(r.Exception))
		}
		if r.Outcome == OutReturn {
			rv := r.ReturnValue
			callScope.Exit()
			return fresh(rv), nil
		}
	}
	callScope.Exit()
	return val(Null), nil
}

func bindParams(fn *Function, scope *Scope, posArgs []Value, namedArgs map[string]Value, pos Position) *EchoError {
	if len(posArgs) > len(fn.Params) {
		return runtimeError(pos, "too many positional arguments to '%s'", fn.Name)
	}
	bound := make(map[string]bool, len(fn.Params))
	for i, param := range fn.Params {
		if i < len(posArgs) {
			scope.Define(param.Name, posArgs[i])
			bound[param.Name] = true
		}
	}
	for name, v := range namedArgs {
		found := false
		for _, param := range fn.Params {
			if param.Name == name {
				found = true
				break
			}
		}
		if !found {
			return runtimeError(pos, "'%s' has no parameter named '%s'", fn.Name, name)
		}
		scope.Define(name, v)
		bound[name] = true
	}
	for _, param := range fn.Params {
		if bound[param.Name] {
			continue
		}
		if param.Default != nil {
			scope.Define(param.Name, *param.Default)
			continue
		}
		return runtimeError(pos, "missing required argument '%s' to '%s'", param.Name, fn.Name)
	}
	return nil
}

// displayOf renders v for show()/string interpolation, first giving an
// Object's blueprint chain a chance to supply op_str (spec.md §6 "show").
func (in *Interpreter) displayOf(ctx *evalCtx, v Value) (string, *EchoError) {
	if v.Kind == KObject {
		if m := v.Obj.Blueprint.lookupClassAttr("op_str"); m != nil && m.Kind == KFunction {
			r, err := in.invokeMethod(ctx, m.Fn, v, nil, nil, Position{})
			if err != nil {
				return "", err
			}
			defer releaseIfFresh(r)
			if r.Value.Kind == KString {
				return r.Value.S, nil
			}
			return displayString(r.Value), nil
		}
	}
	return displayString(v), nil
}

// installBuiltins wires the small set of always-available free functions
// (spec.md §6). The weaver/ds module surfaces (weaver.go, ds.go) are
// reached only via `load`, matching the teacher's own lib_*.go module
// registration pattern rather than polluting the global scope.
func (in *Interpreter) installBuiltins() {
	in.rootScope.Define("show", Value{Kind: KFunction, Fn: &Function{
		Name: "show",
		CImpl: func(interp *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError) {
			parts := make([]string, len(args))
			ctx := &evalCtx{interp: interp, scope: interp.rootScope}
			for i, a := range args {
				s, err := interp.displayOf(ctx, a)
				if err != nil {
					return Null, err
				}
				parts[i] = s
			}
			_, _ = fmt.Fprintln(interp.stdout, joinStrings(parts, " "))
			return Null, nil
		},
	}})
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
