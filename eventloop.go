package echoc

import (
	"container/heap"
	"time"
)

// EventLoop is the single-threaded scheduler described in spec.md §4.6: a
// FIFO ready queue plus a time-ordered sleep queue, drained until both are
// empty. The timer heap is grounded on the eventloop package's ScheduleTimer
// design in the retrieval pack (joeycumines-go-utilpkg/eventloop), trimmed
// down to container/heap with none of that package's concurrency plumbing —
// EchoC never has more than one goroutine runnable at a time (coroutine.go),
// so the loop itself needs no locks.
type EventLoop struct {
	ready    []*Coroutine
	sleepers sleepHeap
	clockSec float64
}

func NewEventLoop() *EventLoop {
	return &EventLoop{}
}

// Enqueue places a CoroutineNormal coroutine at the back of the ready
// queue, unless it is already queued (spec.md §3 "is_in_ready_queue" guards
// against double-scheduling) or already finished.
func (l *EventLoop) Enqueue(c *Coroutine) {
	if c.IsInReadyQueue || c.State == CoroDone {
		return
	}
	c.State = CoroRunnable
	c.IsInReadyQueue = true
	l.ready = append(l.ready, c)
}

func (l *EventLoop) dequeue() *Coroutine {
	if len(l.ready) == 0 {
		return nil
	}
	c := l.ready[0]
	l.ready = l.ready[1:]
	c.IsInReadyQueue = false
	return c
}

// ensureScheduled performs a target coroutine's New → {Runnable,
// SuspendedTimer, GatherWait} transition the first time anything awaits it
// or spawns it (spec.md §4.6 state machine, "New" row). It is idempotent:
// calling it again on an already-scheduled coroutine does nothing.
func (l *EventLoop) ensureScheduled(c *Coroutine) {
	if c.State != CoroNew {
		return
	}
	switch c.Kind {
	case CoroutineTimer:
		c.State = CoroSuspendedTimer
		heap.Push(&l.sleepers, c)
	case CoroutineGather:
		c.State = CoroGatherWait
		for _, t := range c.GatherTasks {
			t.ParentGather = c
			l.ensureScheduled(t)
		}
	default:
		l.Enqueue(c)
	}
}

// wakeDueTimers moves every sleeper whose wakeup time has passed out of the
// sleep queue, finalizing timer coroutines directly (spec.md §4.6: "no body
// is ever run" for a plain sleeper). When the ready queue would otherwise
// starve, it sleeps until the next pending wakeup and advances the loop's
// logical clock to it.
func (l *EventLoop) wakeDueTimers() {
	for len(l.sleepers) > 0 && l.sleepers[0].WakeupTimeSec <= l.clockSec {
		c := heap.Pop(&l.sleepers).(*Coroutine)
		l.finalizeTimer(c)
	}
	if len(l.ready) == 0 && len(l.sleepers) > 0 {
		if wait := l.sleepers[0].WakeupTimeSec - l.clockSec; wait > 0 {
			time.Sleep(time.Duration(wait * float64(time.Second)))
		}
		l.clockSec = l.sleepers[0].WakeupTimeSec
		c := heap.Pop(&l.sleepers).(*Coroutine)
		l.finalizeTimer(c)
	}
}

func (l *EventLoop) finalizeTimer(c *Coroutine) {
	if c.State == CoroDone {
		return // already finalized early by Cancel
	}
	c.checkCancelled()
	c.State = CoroDone
	l.handleCompletion(c)
}

// Run drains the loop: root is the coroutine handed to weaver.weave.
// Ticking a coroutine may itself enqueue others (weaver.spawn_task, or a
// completion waking waiters), so the loop keeps going until both queues are
// empty (spec.md §4.6 pseudocode).
func (l *EventLoop) Run(root *Coroutine) {
	l.ensureScheduled(root)
	for len(l.ready) > 0 || len(l.sleepers) > 0 {
		l.wakeDueTimers()
		c := l.dequeue()
		if c == nil {
			continue
		}
		if c.checkCancelled() {
			c.State = CoroDone
			l.handleCompletion(c)
			continue
		}
		switch c.State {
		case CoroRunnable, CoroResuming:
			c.runTick()
			if c.State == CoroDone {
				l.handleCompletion(c)
			}
		default:
			// Already resolved (e.g. raced with a direct finalize) by the
			// time its ready-queue slot came up; nothing to do.
		}
	}
}

// handleCompletion propagates a finished coroutine's result to everything
// waiting on it: direct awaiters, and (if it was a gather task) its parent
// gather (spec.md §4.6 / §6).
func (l *EventLoop) handleCompletion(c *Coroutine) {
	waiters := c.Waiters
	c.Waiters = nil
	for _, w := range waiters {
		if w.State != CoroSuspendedAwait || w.AwaitingOn != c {
			continue
		}
		if c.HasException {
			w.ResumedWithException = runtimeError(Position{}, "%s", c.ExceptionValue.S)
		} else {
			w.ValueFromAwait = c.ResultValue
		}
		w.AwaitingOn = nil
		l.Enqueue(w) // CoroSuspendedAwait -> Resuming -> (immediately) Runnable
	}

	if g := c.ParentGather; g != nil {
		c.ParentGather = nil
		l.handleGatherTaskDone(g, c)
	}
}

// handleGatherTaskDone records one gather child's outcome and, once every
// child has reported, finalizes the parent gather task directly (spec.md
// §6): the parent never runs a body of its own, so there is no ready-queue
// round trip — it goes straight from GatherWait to Done.
func (l *EventLoop) handleGatherTaskDone(g *Coroutine, task *Coroutine) {
	idx := -1
	for i, t := range g.GatherTasks {
		if t == task {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	if task.HasException {
		if g.GatherReturnExceptions {
			g.GatherResults[idx] = StringVal(task.ExceptionValue.S)
		} else if g.GatherFirstExceptionIdx == -1 {
			g.GatherFirstExceptionIdx = idx
		}
	} else {
		g.GatherResults[idx] = task.ResultValue
	}
	g.GatherPendingCount--
	if g.GatherPendingCount > 0 {
		return
	}
	switch {
	case g.checkCancelled():
		// A cancelled gather finalizes with CancelledError whatever
		// return_exceptions says; that flag covers child outcomes only.
	case !g.GatherReturnExceptions && g.GatherFirstExceptionIdx != -1:
		failed := g.GatherTasks[g.GatherFirstExceptionIdx]
		g.HasException = true
		g.ExceptionValue = StringVal(failed.ExceptionValue.S)
	default:
		items := make([]Value, len(g.GatherResults))
		copy(items, g.GatherResults)
		g.ResultValue = Value{Kind: KArray, Arr: &ArrayValue{Items: items}}
	}
	g.State = CoroDone
	l.handleCompletion(g)
}

// Cancel marks c (and, transitively, any gather children) cancelled
// (spec.md §6 weaver.cancel). A coroutine with a running body finalizes
// cooperatively the next time the loop would otherwise touch it; a timer or
// a coroutine parked on an await is finalized immediately, since nothing of
// the user's own code is "in flight" for either of those suspend points.
func (l *EventLoop) Cancel(c *Coroutine) {
	if c.State == CoroDone || c.IsCancelled {
		return
	}
	c.IsCancelled = true
	for _, t := range c.GatherTasks {
		l.Cancel(t)
	}
	switch c.Kind {
	case CoroutineTimer:
		if c.State == CoroSuspendedTimer {
			c.checkCancelled()
			c.State = CoroDone
			l.handleCompletion(c)
		}
	case CoroutineGather:
		// Children are cancelled above; the last one to finalize drives
		// handleGatherTaskDone, which finalizes the gather with
		// CancelledError.
	default:
		if c.State == CoroSuspendedAwait {
			c.runTick()
			if c.State == CoroDone {
				l.handleCompletion(c)
			}
		}
		// CoroNew/CoroRunnable: already queued or not yet started; its own
		// first statement check (runCoroutineBody) observes IsCancelled.
	}
}

// sleepHeap is a container/heap min-heap over Coroutine.WakeupTimeSec.
type sleepHeap []*Coroutine

func (h sleepHeap) Len() int            { return len(h) }
func (h sleepHeap) Less(i, j int) bool  { return h[i].WakeupTimeSec < h[j].WakeupTimeSec }
func (h sleepHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *sleepHeap) Push(x interface{}) { *h = append(*h, x.(*Coroutine)) }
func (h *sleepHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
