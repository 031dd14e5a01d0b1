package echoc

// CoroState is the coroutine state machine (spec.md §3/§4.6).
type CoroState int

const (
	CoroNew CoroState = iota
	CoroRunnable
	CoroSuspendedAwait
	CoroSuspendedTimer
	CoroGatherWait
	CoroResuming
	CoroDone
)

func (s CoroState) String() string {
	switch s {
	case CoroNew:
		return "New"
	case CoroRunnable:
		return "Runnable"
	case CoroSuspendedAwait:
		return "SuspendedAwait"
	case CoroSuspendedTimer:
		return "SuspendedTimer"
	case CoroGatherWait:
		return "GatherWait"
	case CoroResuming:
		return "Resuming"
	case CoroDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// TryCatchFrame is the element type of Coroutine.TryCatchStackTop, a
// try/catch frame stack (spec.md §4.5). No code pushes or reads these
// frames: execTry (stmt.go) handles catch/finally through execResult
// propagation instead.
type TryCatchFrame struct {
	CatchName    string // empty if `catch` has no bound name
	CatchScope   *Scope
	FinallyState *LexerState // nil if no finally clause
	Prev         *TryCatchFrame
}

// Coroutine is the central entity of the runtime (spec.md §1/§3): both a
// first-class awaitable value and the unit the event loop schedules.
//
// The suspend/resume mechanism itself is the one place this rewrite departs
// from a literal line-by-line port of the teacher's design. The teacher
// (fiber.go) already solves "one logical thread, many suspended call
// stacks" by giving every fiber its own goroutine and handing control back
// and forth over a pair of channels — the goroutine's own stack becomes the
// continuation, so there is nothing to snapshot or replay by hand. spec.md
// §9 explicitly invites replacing the (fiendishly intricate) lexer-rewind
// fast-forward protocol with "explicit continuation records"; a goroutine's
// stack is the most direct continuation record Go offers, and reusing the
// teacher's own mechanism for it keeps the whole engine grounded in the
// corpus instead of inventing a bytecode VM. At most one of these goroutines
// is ever unblocked at a time — the event loop only ever holds one outstanding
// resume in flight — so the "single-threaded, no locking needed" guarantee
// (spec.md §5) still holds for all EchoC-visible state.
type Coroutine struct {
	Magic          string // UUID, spec.md §3 "magic" identity field
	Name           string
	FunctionDef    *Function
	ExecutionScope *Scope

	State                 CoroState
	ResultValue           Value
	ExceptionValue         Value
	HasException          bool
	AwaitingOn            *Coroutine
	ValueFromAwait        Value
	ResumedWithException  *EchoError

	WakeupTimeSec float64

	GatherTasks             []*Coroutine
	GatherResults           []Value
	GatherPendingCount      int
	GatherFirstExceptionIdx int
	GatherReturnExceptions  bool
	ParentGather            *Coroutine

	IsCancelled    bool
	IsInReadyQueue bool
	Waiters        []*Coroutine

	TryCatchStackTop *TryCatchFrame

	// Kind distinguishes a normal EchoC-function coroutine (runs its body
	// via the goroutine in body()) from the two "virtual" coroutines that
	// have no source body of their own: a weaver.rest() timer and a
	// weaver.gather() task. Both of those are driven entirely by the event
	// loop's bookkeeping (scheduleTimer/handleGatherTaskDone) rather than by
	// ticking a goroutine, so dispatch on Kind before ever calling runTick.
	Kind CoroutineKind

	refcount int

	started    bool
	resumeChan chan struct{}
	tickDone   chan struct{}
	loop       *EventLoop
	interp     *Interpreter
}

// CoroutineKind selects how the event loop drives a Coroutine.
type CoroutineKind int

const (
	CoroutineNormal CoroutineKind = iota
	CoroutineTimer
	CoroutineGather
)

// NewCoroutine allocates a coroutine in state New, holding the scope the
// call created and a resume point at the function body's first statement
// (spec.md §4.4: "a fresh Coroutine in state New is produced, holding the
// new scope, the function, and a lexer resume state at the body start").
func NewCoroutine(interp *Interpreter, name string, fn *Function, scope *Scope) *Coroutine {
	return &Coroutine{
		Magic:          newUUID(),
		Name:           name,
		FunctionDef:    fn,
		ExecutionScope: scope,
		State:          CoroNew,
		ResultValue:    Null,
		refcount:       1,
		resumeChan:     make(chan struct{}, 1),
		tickDone:       make(chan struct{}, 1),
		loop:           interp.loop,
		interp:         interp,
	}
}

func (c *Coroutine) retain() { c.refcount++ }

func (c *Coroutine) releaseRef() {
	c.refcount--
	if c.refcount <= 0 && c.ExecutionScope != nil {
		c.ExecutionScope.Exit()
	}
}

// runTick hands control to the coroutine's goroutine and blocks until it
// either suspends again or finishes — exactly one "tick" per spec.md §4.6's
// event loop pseudocode. On the first tick it starts the goroutine; every
// later tick just unparks it from whichever suspend point it is blocked on.
func (c *Coroutine) runTick() {
	if !c.started {
		c.started = true
		c.State = CoroRunnable
		go c.body()
	} else {
		c.State = CoroRunnable
		c.resumeChan <- struct{}{}
	}
	<-c.tickDone
}

// body is the coroutine's goroutine entry point: it runs the function body
// to completion, blocking on resumeChan at every await/timer/gather
// suspension point and reporting back on tickDone each time it stops.
func (c *Coroutine) body() {
	defer func() {
		if r := recover(); r != nil {
			c.HasException = true
			if ee, ok := r.(*EchoError); ok {
				c.ExceptionValue = StringVal(ee.Error())
			} else {
				c.ExceptionValue = StringVal("internal error during coroutine execution")
			}
			c.State = CoroDone
			c.tickDone <- struct{}{}
		}
	}()
	c.interp.runCoroutineBody(c)
	c.State = CoroDone
	c.tickDone <- struct{}{}
}

// awaitSuspend parks the running coroutine goroutine until the event loop
// resumes it (because the awaited coroutine finished). Called from inside
// the statement/expression evaluator, on the coroutine's own goroutine.
func (c *Coroutine) awaitSuspend(target *Coroutine) {
	c.AwaitingOn = target
	c.State = CoroSuspendedAwait
	target.Waiters = append(target.Waiters, c)
	c.tickDone <- struct{}{}
	<-c.resumeChan
}

// checkCancelled is consulted at the very start of a coroutine's body and
// right after every resume (spec.md §4.6 "Cancellation"): a cancelled
// coroutine never runs another statement, it finalizes as Done with a
// CancelledError exception at the next point the loop would otherwise have
// run it.
func (c *Coroutine) checkCancelled() bool {
	if !c.IsCancelled {
		return false
	}
	c.HasException = true
	c.ExceptionValue = StringVal("CancelledError")
	return true
}
