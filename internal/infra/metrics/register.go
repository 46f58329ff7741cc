package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once
	collectors   []prometheus.Collector
)

// register is called from init() in each metrics file to enqueue collectors
// before anything touches the default registry.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers all enqueued collectors exactly once.
func MustRegister() {
	registerOnce.Do(func() {
		if len(collectors) > 0 {
			prometheus.MustRegister(collectors...)
		}
	})
}
