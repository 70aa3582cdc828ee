package affiliate

import "github.com/prometheus/client_golang/prometheus"

var (
	commissionCredited = prometheus.NewCounter(prometheus.CounterOpts{Name: "affiliate_commission_credited_total"})
	earningsSettled    = prometheus.NewCounter(prometheus.CounterOpts{Name: "affiliate_earnings_settled_total"})
	withdrawalsDecided = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "affiliate_withdrawals_total"}, []string{"status"})
)

func init() {
	prometheus.MustRegister(commissionCredited, earningsSettled, withdrawalsDecided)
}
