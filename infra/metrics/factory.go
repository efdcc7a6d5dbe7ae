package metrics

import (
	coremetrics "github.com/restaurant-platform/courierbroker/core/metrics"
)

// NewSinks assembles the configured sinks into a single MetricsSink.
// With nothing enabled a NopSink is returned.
func NewSinks(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	var sinks []coremetrics.MetricsSink
	if cfg.PrometheusEnabled {
		prom, err := NewPromSink(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, prom)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
