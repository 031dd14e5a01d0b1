package echoc

// Parameter is one formal parameter of a Function (spec.md §3).
type Parameter struct {
	Name    string
	Default *Value // nil when the parameter is required
}

// Function is a user-defined (or C-implemented builtin) callable. The lazy
// body representation is grounded directly on the teacher's StoredMacro
// (macro.go): at definition time the statement evaluator skips the body by
// indentation and records only where it starts, re-parsing on each call
// instead of building a persistent AST (spec.md §4.4/§4.5).
type Function struct {
	Name         string
	Params       []Parameter
	BodyState    LexerState // position of the first statement in the body
	// BodyIndentStack is the defining lexer's indentStack at the moment the
	// body started. LexerState omits the indent stack (lexer.go), so
	// re-entering a lazily-parsed body from a fresh restored lexer needs
	// this seeded back in, or the first dedent inside the body
	// would be measured against the wrong baseline.
	BodyIndentStack []int
	Source          string // owning copy of source text once it escapes into a coroutine
	OwningSource    bool   // true once Source is this function's own allocation, not a shared slice
	DefScope        *Scope
	DefLine         int
	DefCol          int
	IsAsync         bool
	OwnerBlueprint  *Blueprint  // the blueprint whose body defined this method, nil for free functions
	CImpl           BuiltinFunc // non-nil for C-implemented (builtin) functions; BodyState/DefScope unused
}

// BuiltinFunc is the signature for a native Go builtin bound as a Function
// (e.g. show, or the weaver/ds module surface). It receives already
// argument-bound values and returns a result or an error.
type BuiltinFunc func(in *Interpreter, args []Value, named map[string]Value, pos Position) (Value, *EchoError)

// Blueprint is EchoC's class construct (spec.md §3/§4.5).
type Blueprint struct {
	Name       string
	ClassScope *Scope // methods + class attributes live here
	Parent     *Blueprint
	initCache  *Function // cached init method, nil if none defined
	initCached bool
}

// lookupClassAttr walks the parent chain for a method or class attribute.
func (bp *Blueprint) lookupClassAttr(name string) *Value {
	for b := bp; b != nil; b = b.Parent {
		if v := b.ClassScope.GetLocal(name); v != nil {
			return v
		}
	}
	return nil
}

func (bp *Blueprint) findInit() *Function {
	if bp.initCached {
		return bp.initCache
	}
	bp.initCached = true
	if v := bp.ClassScope.GetLocal("init"); v != nil && v.Kind == KFunction {
		bp.initCache = v.Fn
	}
	return bp.initCache
}

// Object is an instance of a Blueprint (spec.md §3). Attributes live in
// their own Scope (a single flat scope with no outer) so they can be
// looked up/set with the same Scope.Get/Set machinery used everywhere else.
type Object struct {
	Blueprint *Blueprint
	Attrs     *Scope
	refcount  int
}

func NewObject(bp *Blueprint) *Object {
	return &Object{Blueprint: bp, Attrs: NewScope(nil), refcount: 1}
}

func (o *Object) retain()  { o.refcount++ }
func (o *Object) releaseRef() {
	o.refcount--
	if o.refcount <= 0 {
		o.Attrs.Exit()
	}
}

// BoundMethod pairs a Function with its receiver (spec.md §3/§4.4). Owned
// is true when the receiver is a temporary the BoundMethod must release on
// destruction (e.g. a method resolved off a freshly-constructed value
// rather than an existing variable binding).
type BoundMethod struct {
	Fn       *Function
	Receiver Value
	Owned    bool
	refcount int
}

func NewBoundMethod(fn *Function, receiver Value, owned bool) *BoundMethod {
	return &BoundMethod{Fn: fn, Receiver: receiver, Owned: owned, refcount: 1}
}

func (bm *BoundMethod) retain() { bm.refcount++ }
func (bm *BoundMethod) releaseRef() {
	bm.refcount--
	if bm.refcount <= 0 && bm.Owned {
		release(bm.Receiver)
	}
}
