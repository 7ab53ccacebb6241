package pubsub

import "sync"

// fifoMutex is a strict first-come-first-served mutex: handoff follows
// arrival order exactly (spec §4.4 step 2, §5 "the pub/sub mutex is strict
// FIFO"). sync.Mutex only offers eventual fairness under contention, which
// doesn't guarantee arrival-order handoff for the producer-slot protocol,
// so this is hand-rolled — no dependency in the example pack offers a
// ticket-ordered lock.
type fifoMutex struct {
	mu     sync.Mutex
	locked bool
	queue  []chan struct{}
}

// Lock blocks until the caller is granted the slot, honoring strict arrival
// order among waiters.
func (f *fifoMutex) Lock() {
	f.mu.Lock()
	if !f.locked {
		f.locked = true
		f.mu.Unlock()
		return
	}
	wait := make(chan struct{})
	f.queue = append(f.queue, wait)
	f.mu.Unlock()
	<-wait
}

// Unlock hands off to the next queued waiter, if any, or marks the slot
// free.
func (f *fifoMutex) Unlock() {
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.locked = false
		f.mu.Unlock()
		return
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	f.mu.Unlock()
	close(next)
}
