// Package pipeline wires classification, anomaly detection, sample
// recording and alerting onto the event bus.
package pipeline

import (
	"context"
	"sort"
	"time"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/baseline"
	"fleetwatch/internal/classifier"
	"fleetwatch/internal/events"
	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

// Bus is satisfied by both *events.Bus and *events.DistributedBus.
type Bus interface {
	Publish(ctx context.Context, e models.Event)
	Subscribe(name string, h events.Handler, filter events.Filter)
}

// SampleRecorder stores metric readings for later baseline computation.
type SampleRecorder interface {
	RecordSamples(ctx context.Context, samples []models.MetricSample) error
}

// SamplePruner drops samples that fell out of the baseline window.
type SamplePruner interface {
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
}

// Pipeline is the entry point for raw events.
type Pipeline struct {
	bus        Bus
	classifier *classifier.Classifier
	detector   *baseline.Detector
	engine     *alerting.Engine
	samples    SampleRecorder
	logger     *logging.Logger
}

// New subscribes the detector, the sample recorder and the alert engine to
// bus. samples may be nil. All three only handle events published on this
// instance, so each event is processed once across the cluster.
func New(bus Bus, c *classifier.Classifier, d *baseline.Detector, engine *alerting.Engine, samples SampleRecorder, logger *logging.Logger) *Pipeline {
	p := &Pipeline{
		bus:        bus,
		classifier: c,
		detector:   d,
		engine:     engine,
		samples:    samples,
		logger:     logger,
	}

	metricsOnly := events.Filter{Sources: []models.Source{models.SourceMetrics}, LocalOnly: true}
	if samples != nil {
		bus.Subscribe("sample-recorder", p.recordSamples, metricsOnly)
	}
	bus.Subscribe("anomaly-detector", p.detectAnomalies, metricsOnly)
	bus.Subscribe("alert-engine", engine.HandleEvent, events.Filter{
		Severities: []models.Severity{models.SeverityNotable, models.SeverityUrgent},
		LocalOnly:  true,
	})
	return p
}

// Ingest classifies e and publishes it. The classified event is returned.
func (p *Pipeline) Ingest(ctx context.Context, e models.Event) models.Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Data == nil {
		e.Data = models.EventData{}
	}
	e = p.classifier.Classify(e)
	p.bus.Publish(ctx, e)
	return e
}

// metricValues extracts the numeric readings of a metric event in key order.
func metricValues(e models.Event) []models.MetricValue {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []models.MetricValue
	for _, k := range keys {
		if v, ok := e.Data.Float(k); ok {
			out = append(out, models.MetricValue{Name: k, Value: v})
		}
	}
	return out
}

func (p *Pipeline) detectAnomalies(ctx context.Context, e models.Event) error {
	for _, a := range p.detector.CheckAll(metricValues(e)) {
		ae := models.NewEvent(models.SourceAnomaly, models.EventAnomalyDetected, models.EventData{
			models.DataKeyMetricName:   a.MetricName,
			models.DataKeyValue:        a.Value,
			models.DataKeyZScore:       a.ZScore,
			models.DataKeyBaselineMean: a.BaselineMean,
			models.DataKeyTenantID:     e.TenantID(),
		})
		if host := e.Data.String(models.DataKeyHost); host != "" {
			ae.Data[models.DataKeyHost] = host
		}
		ae.Severity = a.Severity
		ae.Message = a.Message
		p.bus.Publish(ctx, ae)
	}
	return nil
}

func (p *Pipeline) recordSamples(ctx context.Context, e models.Event) error {
	values := metricValues(e)
	if len(values) == 0 {
		return nil
	}
	samples := make([]models.MetricSample, len(values))
	for i, v := range values {
		samples[i] = models.MetricSample{MetricName: v.Name, Value: v.Value, RecordedAt: e.Timestamp}
	}
	return p.samples.RecordSamples(ctx, samples)
}

// RunBaselines recomputes baselines now and then every interval until ctx
// is cancelled. When pruner is non-nil, samples older than the baseline
// window are deleted after each pass.
func RunBaselines(ctx context.Context, tracker *baseline.Tracker, pruner SamplePruner, interval time.Duration, logger *logging.Logger) {
	update := func() {
		if err := tracker.Update(ctx); err != nil {
			logger.Errorf("Failed to update baselines: %v", err)
			return
		}
		if pruner == nil {
			return
		}
		n, err := pruner.PruneSamples(ctx, time.Now().UTC().Add(-baseline.DefaultWindow))
		if err != nil {
			logger.Errorf("Failed to prune samples: %v", err)
			return
		}
		if n > 0 {
			logger.Debugf("Pruned %d metric samples", n)
		}
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Baseline updater stopped")
			return
		case <-ticker.C:
			update()
		}
	}
}
