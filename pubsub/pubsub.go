// Package pubsub implements the publisher fan-out decorator: a single
// producer generator inside one actor multiplexes topic-filtered values to
// many remote subscribers, with at most one producer task running per
// (actor, slot) at any instant (spec §4.4).
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nurseryrun/nursery/metrics"
	"github.com/nurseryrun/nursery/rpcreg"
)

// Packetizer transforms one produced (topic, value) pair into the payload
// fragment delivered to subscribers of that topic; default is
// {topic: value}.
type Packetizer func(topic string, value any) map[string]any

func defaultPacketizer(topic string, value any) map[string]any {
	return map[string]any{topic: value}
}

// GetTopics returns the current union of subscribed topics for a slot; it
// is dynamic — it reflects joins and leaves with no need to restart the
// generator (spec §4.4 step 3, boundary behavior "dynamic topic set").
type GetTopics func() []string

// Produce is the underlying producer sequence a publisher decorates. It
// must call yield once per produced mapping {topic: value} and should
// consult getTopics to know which topics currently matter. A TransientError
// causes exactly one respawn; any other error propagates to the producer's
// own caller (spec §4.4 step 7).
type Produce func(ctx context.Context, getTopics GetTopics, yield func(map[string]any) error) error

// TransientError marks a producer failure as retryable exactly once.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("pubsub: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

type subscriberCtx struct {
	id   string
	send func(value any) error
}

type slot struct {
	name string
	fifo fifoMutex

	mu          sync.Mutex
	topics      map[string]map[string]*subscriberCtx // topic -> subscriber id -> ctx
	subscribers map[string]*subscriberCtx
}

func newSlot(name string) *slot {
	return &slot{
		name:        name,
		topics:      make(map[string]map[string]*subscriberCtx),
		subscribers: make(map[string]*subscriberCtx),
	}
}

func (s *slot) join(sub *subscriberCtx, topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub.id] = sub
	for _, t := range topics {
		set, ok := s.topics[t]
		if !ok {
			set = make(map[string]*subscriberCtx)
			s.topics[t] = set
		}
		set[sub.id] = sub
	}
	metrics.SetPubsubSubscribers(s.name, len(s.subscribers))
}

func (s *slot) leave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
	for t, set := range s.topics {
		delete(set, id)
		if len(set) == 0 {
			delete(s.topics, t)
		}
	}
	metrics.SetPubsubSubscribers(s.name, len(s.subscribers))
}

func (s *slot) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) == 0
}

func (s *slot) getTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// fanOut delivers one produced mapping to every matching subscriber,
// accumulating per-subscriber payloads across topics present in the same
// mapping before sending (spec §4.4 step 4), and drops any subscriber whose
// send fails (step 5).
func (s *slot) fanOut(produced map[string]any, packetizer Packetizer) {
	s.mu.Lock()
	payloads := make(map[string]map[string]any)
	for topic, value := range produced {
		set, ok := s.topics[topic]
		if !ok {
			continue
		}
		fragment := packetizer(topic, value)
		for id := range set {
			p, ok := payloads[id]
			if !ok {
				p = make(map[string]any)
				payloads[id] = p
			}
			for k, v := range fragment {
				p[k] = v
			}
		}
	}
	subs := make(map[string]*subscriberCtx, len(payloads))
	for id := range payloads {
		if sub, ok := s.subscribers[id]; ok {
			subs[id] = sub
		}
	}
	s.mu.Unlock()

	for id, payload := range payloads {
		sub, ok := subs[id]
		if !ok {
			continue
		}
		if err := sub.send(payload); err != nil {
			s.leave(id)
		}
	}
}

// Publisher is the decorator-style adapter: Handler exposes it as a
// streaming RPC target.
type Publisher struct {
	produce    Produce
	taskNames  map[string]bool
	packetizer Packetizer

	mu    sync.Mutex
	slots map[string]*slot
}

// New wraps produce as a publisher. taskNames declares the producer slots
// this publisher offers; if empty, callers must omit task_name and share
// the single unnamed slot. The packetizer defaults to {topic: value}; use
// WithPacketizer to install one that merges overlapping keys across topics.
func New(produce Produce, taskNames ...string) *Publisher {
	names := make(map[string]bool, len(taskNames))
	for _, n := range taskNames {
		names[n] = true
	}
	return &Publisher{
		produce:    produce,
		taskNames:  names,
		slots:      make(map[string]*slot),
		packetizer: defaultPacketizer,
	}
}

// WithPacketizer installs a custom (topic, value) -> payload transform,
// replacing the default {topic: value} mapping (spec §4.4 call contract).
// fanOut merges the fragments of every topic present in one produced mapping
// into a single per-subscriber payload, so a packetizer that emits
// overlapping keys across topics exercises the merge behavior spec §4.4 step
// 4 requires. Returns p so it can be chained off New.
func (p *Publisher) WithPacketizer(pz Packetizer) *Publisher {
	p.packetizer = pz
	return p
}

func (p *Publisher) slotFor(taskName string) *slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[taskName]
	if !ok {
		s = newSlot(taskName)
		p.slots[taskName] = s
	}
	return s
}

func (p *Publisher) dropSlotIfEmpty(taskName string, s *slot) {
	if !s.empty() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.slots[taskName]; ok && current == s && s.empty() {
		delete(p.slots, taskName)
	}
}

// Handler returns the rpcreg.GenFunc a Host should register under a
// (module, function) pair to expose this publisher. Kwargs expected:
// "topics" ([]string) and "task_name" (string, required iff taskNames is
// non-empty). The packetizer is not a per-call kwarg — the wire protocol
// carries no function values — it is fixed per Publisher via WithPacketizer
// at wiring time.
func (p *Publisher) Handler() rpcreg.GenFunc {
	return func(call *rpcreg.Call, yield rpcreg.Yield) error {
		taskName, _ := call.Kwargs["task_name"].(string)
		if len(p.taskNames) > 0 && !p.taskNames[taskName] {
			return fmt.Errorf("pubsub: task_name %q is not declared", taskName)
		}
		topics := toStringSlice(call.Kwargs["topics"])

		s := p.slotFor(taskName)
		sub := &subscriberCtx{id: uuid.NewString(), send: func(value any) error { return yield(value) }}
		s.join(sub, topics)
		defer func() {
			s.leave(sub.id)
			p.dropSlotIfEmpty(taskName, s)
		}()

		s.fifo.Lock()
		defer s.fifo.Unlock()

		return p.runProducer(call.Ctx, s, p.packetizer)
	}
}

func (p *Publisher) runProducer(ctx context.Context, s *slot, packetizer Packetizer) error {
	retried := false
	for {
		if len(s.getTopics()) == 0 {
			return nil
		}
		err := p.produce(ctx, s.getTopics, func(produced map[string]any) error {
			s.fanOut(produced, packetizer)
			return nil
		})
		if err == nil {
			return nil
		}
		var transient *TransientError
		if !retried {
			if te, ok := err.(*TransientError); ok {
				transient = te
			}
		}
		if transient != nil {
			retried = true
			continue
		}
		return err
	}
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
