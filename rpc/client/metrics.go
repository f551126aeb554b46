package client

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// reactorMetrics are the counters exported for one reactor
type reactorMetrics struct {
	submitted *metrics.Counter
	events    *metrics.Counter
	responses *metrics.Counter
	msgErrors *metrics.Counter
	reclaimed *metrics.Counter
	rtt       gometrics.Timer
}

func newReactorMetrics(set *metrics.Set, registry gometrics.Registry, r *EventReactor) reactorMetrics {
	name := r.name
	set.GetOrCreateGauge(fmt.Sprintf(`xio_reactor_submission_queue{reactor=%q}`, name), func() float64 {
		return float64(r.submissions.Len())
	})
	set.GetOrCreateGauge(fmt.Sprintf(`xio_reactor_sessions{reactor=%q}`, name), func() float64 {
		return float64(r.activeSessions.Load())
	})
	set.GetOrCreateGauge(fmt.Sprintf(`xio_reactor_inflight{reactor=%q}`, name), func() float64 {
		return float64(r.inflightCount.Load())
	})
	return reactorMetrics{
		submitted: set.GetOrCreateCounter(fmt.Sprintf(`xio_reactor_submitted_total{reactor=%q}`, name)),
		events:    set.GetOrCreateCounter(fmt.Sprintf(`xio_reactor_events_total{reactor=%q}`, name)),
		responses: set.GetOrCreateCounter(fmt.Sprintf(`xio_reactor_responses_total{reactor=%q}`, name)),
		msgErrors: set.GetOrCreateCounter(fmt.Sprintf(`xio_reactor_msg_errors_total{reactor=%q}`, name)),
		reclaimed: set.GetOrCreateCounter(fmt.Sprintf(`xio_reactor_reclaimed_total{reactor=%q}`, name)),
		rtt:       gometrics.GetOrRegisterTimer(fmt.Sprintf("reactor.%s.rtt", name), registry),
	}
}
