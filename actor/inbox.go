package actor

import (
	"runtime"
	"sync/atomic"

	"github.com/nurseryrun/nursery/ringbuffer"
)

const (
	defaultThroughput = 300
	messageBatchSize  = 1024 * 4
)

const (
	stopped int32 = iota
	starting
	idle
	running
)

// Scheduler decides when and how an inbox's processing loop runs.
type Scheduler interface {
	Schedule(fn func())
	Throughput() int
}

// goscheduler runs each processing pass on its own goroutine.
type goscheduler int

func (goscheduler) Schedule(fn func()) {
	go fn()
}

func (sched goscheduler) Throughput() int {
	return int(sched)
}

// NewScheduler returns a goroutine-backed Scheduler with the given
// throughput (inbox batches drained before yielding via runtime.Gosched).
func NewScheduler(throughput int) Scheduler {
	return goscheduler(throughput)
}

// Inboxer is the mailbox side of a process: Send enqueues, Start/Stop bind
// and release the draining goroutine.
type Inboxer interface {
	Send(Envelope)
	Start(Processer)
	Stop() error
}

// Inbox is a process's mailbox, backed by a mutex-guarded growable ring
// buffer, so concurrent senders take turns but a send never blocks on a full
// mailbox.
type Inbox struct {
	rb         *ringbuffer.RingBuffer[Envelope]
	proc       Processer
	scheduler  Scheduler
	procStatus int32
}

// NewInbox returns an Inbox with the given capacity.
func NewInbox(size int) *Inbox {
	return &Inbox{
		rb:         ringbuffer.New[Envelope](int64(size)),
		scheduler:  NewScheduler(defaultThroughput),
		procStatus: stopped,
	}
}

// Send enqueues msg and schedules draining if the inbox is idle.
func (in *Inbox) Send(msg Envelope) {
	in.rb.Push(msg)
	in.schedule()
}

func (in *Inbox) schedule() {
	if atomic.CompareAndSwapInt32(&in.procStatus, idle, running) {
		in.scheduler.Schedule(in.process)
	}
}

func (in *Inbox) process() {
	in.run()
	if atomic.CompareAndSwapInt32(&in.procStatus, running, idle) && in.rb.Len() > 0 {
		// A message may have arrived between the last pop and the
		// transition to idle; if so, schedule another pass.
		in.schedule()
	}
}

func (in *Inbox) run() {
	i, t := 0, in.scheduler.Throughput()
	for atomic.LoadInt32(&in.procStatus) != stopped {
		if i > t {
			i = 0
			runtime.Gosched()
		}
		i++

		if msgs, ok := in.rb.PopN(messageBatchSize); ok && len(msgs) > 0 {
			in.proc.Invoke(msgs)
		} else {
			return
		}
	}
}

// Start binds proc to the inbox and begins draining.
func (in *Inbox) Start(proc Processer) {
	// Transition through "starting" then "idle" so proc is never read
	// by the drain loop before it's assigned.
	if atomic.CompareAndSwapInt32(&in.procStatus, stopped, starting) {
		in.proc = proc
		atomic.SwapInt32(&in.procStatus, idle)
		in.schedule()
	}
}

// Stop halts draining.
func (in *Inbox) Stop() error {
	atomic.StoreInt32(&in.procStatus, stopped)
	return nil
}
