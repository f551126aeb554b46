package msgpool

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// poolMetrics are the counters exported for one pool
type poolMetrics struct {
	acquired  *metrics.Counter
	released  *metrics.Counter
	exhausted *metrics.Counter
}

func newPoolMetrics(set *metrics.Set, p *MsgPool) poolMetrics {
	name := p.config.Name
	set.GetOrCreateGauge(fmt.Sprintf(`xio_msgpool_in_use{pool=%q}`, name), func() float64 {
		return float64(p.Outstanding())
	})
	set.GetOrCreateGauge(fmt.Sprintf(`xio_msgpool_capacity{pool=%q}`, name), func() float64 {
		return float64(p.config.Capacity)
	})
	return poolMetrics{
		acquired:  set.GetOrCreateCounter(fmt.Sprintf(`xio_msgpool_acquired_total{pool=%q}`, name)),
		released:  set.GetOrCreateCounter(fmt.Sprintf(`xio_msgpool_released_total{pool=%q}`, name)),
		exhausted: set.GetOrCreateCounter(fmt.Sprintf(`xio_msgpool_exhausted_total{pool=%q}`, name)),
	}
}
