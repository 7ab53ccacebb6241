// Package metrics registers the process-wide Prometheus collectors for
// actor lifecycle, nursery teardown, and pub/sub fan-out (SPEC_FULL.md §4.3
// addition). Every gauge here mirrors an in-memory invariant already
// enforced by actor/nursery/pubsub — this package only makes it observable
// from the outside, the same role the teacher's event stream plays for
// actor lifecycle logging.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ChildrenPending is the number of nursery children currently being
	// cancelled (non-zero only during Nursery.Cancel), used to externally
	// observe the invariant "all child process handles report not alive on
	// scope exit" (spec §8.1).
	ChildrenPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nursery",
		Name:      "children_pending",
		Help:      "Number of nursery children currently mid-cancellation.",
	})

	// ChildrenRunning is the number of nursery children with an established
	// portal, currently alive.
	ChildrenRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nursery",
		Name:      "children_running",
		Help:      "Number of nursery children with a connected portal.",
	})

	// PubsubSubscribers tracks live subscriber contexts per (actor, slot),
	// labeled by task name.
	PubsubSubscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nursery",
		Name:      "pubsub_subscribers",
		Help:      "Live pub/sub subscribers per producer slot.",
	}, []string{"task_name"})

	// ActorRestarts counts actor process restarts, mirroring the teacher's
	// ActorRestartedEvent.
	ActorRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nursery",
		Name:      "actor_restarts_total",
		Help:      "Total actor restarts across the local engine.",
	})
)

func init() {
	prometheus.MustRegister(ChildrenPending, ChildrenRunning, PubsubSubscribers, ActorRestarts)
}

// SetChildrenPending reports the current mid-cancellation child count.
func SetChildrenPending(n int) { ChildrenPending.Set(float64(n)) }

// SetChildrenRunning reports the current connected-child count.
func SetChildrenRunning(n int) { ChildrenRunning.Set(float64(n)) }

// IncChildrenRunning bumps the connected-child gauge by one.
func IncChildrenRunning() { ChildrenRunning.Inc() }

// DecChildrenRunning drops the connected-child gauge by one.
func DecChildrenRunning() { ChildrenRunning.Dec() }

// SetPubsubSubscribers reports the live subscriber count for taskName.
func SetPubsubSubscribers(taskName string, n int) {
	PubsubSubscribers.WithLabelValues(taskName).Set(float64(n))
}

// IncActorRestarts records one actor restart.
func IncActorRestarts() { ActorRestarts.Inc() }
