package models

import "time"

// MetricSample is one observation stored in the time-series table.
type MetricSample struct {
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MetricValue is a live metric reading checked against its baseline.
type MetricValue struct {
	Name  string
	Value float64
}

// MetricBaseline summarises a metric's behaviour over the trailing window.
type MetricBaseline struct {
	MetricName  string  `json:"metric_name"`
	Mean        float64 `json:"mean"`
	Stddev      float64 `json:"stddev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	P50         float64 `json:"p50"`
	P95         float64 `json:"p95"`
	P99         float64 `json:"p99"`
	SampleCount int     `json:"sample_count"`
}

// Anomaly is a deviation from a baseline found by the detector.
type Anomaly struct {
	MetricName   string   `json:"metric_name"`
	Value        float64  `json:"value"`
	ZScore       float64  `json:"z_score"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	BaselineMean float64  `json:"baseline_mean"`
}
