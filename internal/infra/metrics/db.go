package metrics

import (
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolStats) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_stats",
		Help: "Current state of the database connection pool.",
	},
	[]string{"state"}, // total | idle | in_use | max
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

// ObservePool copies a pgxpool snapshot into the gauges.
func ObservePool(st *pgxpool.Stat) {
	if st == nil {
		return
	}
	SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
	dbPoolStats.WithLabelValues("max").Set(float64(st.MaxConns()))
}
