package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_active_flows",
			Help: "Flows currently monitored by the cellular controller",
		},
	)

	ticksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_ticks_total",
			Help: "Monitor loop iterations",
		},
	)
)
