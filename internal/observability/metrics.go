package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"PerpEngine/internal/event"
	"PerpEngine/internal/fpmath"
)

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	PositionsOpened     *prometheus.CounterVec
	PositionsClosed     *prometheus.CounterVec
	PositionsLiquidated *prometheus.CounterVec
	CollateralTopUps    *prometheus.CounterVec

	OrdersPlaced    *prometheus.CounterVec
	OrdersExecuted  *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec

	OpenInterestLong  prometheus.Gauge
	OpenInterestShort prometheus.Gauge
	FundingRate       prometheus.Gauge
	FundingApplied    prometheus.Counter
}

// NewMetrics creates and registers all engine metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		PositionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_positions_opened_total",
			Help: "Positions opened, by asset and direction",
		}, []string{"asset", "direction"}),

		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_positions_closed_total",
			Help: "Positions closed voluntarily or by stop order",
		}, []string{"asset", "direction"}),

		PositionsLiquidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_positions_liquidated_total",
			Help: "Positions force-closed by keepers",
		}, []string{"asset", "direction"}),

		CollateralTopUps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_collateral_topups_total",
			Help: "Collateral additions to open positions",
		}, []string{"asset"}),

		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_orders_placed_total",
			Help: "Conditional orders placed, by kind",
		}, []string{"asset", "kind"}),

		OrdersExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_orders_executed_total",
			Help: "Conditional orders executed, by kind",
		}, []string{"asset", "kind"}),

		OrdersCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_orders_cancelled_total",
			Help: "Conditional orders cancelled, by reason (user/slippage)",
		}, []string{"asset", "reason"}),

		OpenInterestLong: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perp_open_interest_long",
			Help: "Aggregate long position size (fixed-point units)",
		}),

		OpenInterestShort: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perp_open_interest_short",
			Help: "Aggregate short position size (fixed-point units)",
		}),

		FundingRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perp_funding_rate",
			Help: "Current hourly funding rate (1e6 scale)",
		}),

		FundingApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_funding_applied_total",
			Help: "Funding rate recomputations",
		}),

	}
}

// Sink returns an event.Sink that records committed events as metrics.
func (m *Metrics) Sink() event.Sink { return &metricsSink{m: m} }

type metricsSink struct {
	m *Metrics
}

func (s *metricsSink) Emit(e event.Event) {
	switch v := e.(type) {
	case *event.PositionOpened:
		s.m.PositionsOpened.WithLabelValues(v.Market, v.Direction).Inc()
	case *event.PositionClosed:
		s.m.PositionsClosed.WithLabelValues(v.Market, v.Direction).Inc()
	case *event.PositionLiquidated:
		s.m.PositionsLiquidated.WithLabelValues(v.Market, v.Direction).Inc()
	case *event.CollateralAdded:
		s.m.CollateralTopUps.WithLabelValues(v.Market).Inc()
	case *event.OrderPlaced:
		s.m.OrdersPlaced.WithLabelValues(v.Market, v.Kind).Inc()
	case *event.OrderExecuted:
		s.m.OrdersExecuted.WithLabelValues(v.Market, v.Kind).Inc()
	case *event.OrderCancelled:
		s.m.OrdersCancelled.WithLabelValues(v.Market, string(v.Reason)).Inc()
	case *event.FundingRateUpdated:
		s.m.FundingApplied.Inc()
		s.m.FundingRate.Set(float64(v.Rate) / float64(fpmath.FundingPrecision))
		s.m.OpenInterestLong.Set(float64(v.TotalLong))
		s.m.OpenInterestShort.Set(float64(v.TotalShort))
	}
}

var _ event.Sink = (*metricsSink)(nil)
