package order

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "order_transitions_total"}, []string{"status"})
	reconciledTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "order_status_reconciled_total"})
)

func init() {
	prometheus.MustRegister(transitionsTotal, reconciledTotal)
}
