package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type pipelineMetrics struct {
	frames     metric.Int64Counter
	results    metric.Int64Counter
	endpoints  metric.Int64Counter
	deviceLoss metric.Int64Counter
	latency    metric.Float64Histogram
}

func newPipelineMetrics() (*pipelineMetrics, error) {
	meter := otel.Meter("github.com/dictolabs/dicto-core/pipeline")
	frames, err := meter.Int64Counter("dicto.pipeline.frames", metric.WithDescription("Audio frames consumed"))
	if err != nil {
		return nil, fmt.Errorf("create frames counter: %w", err)
	}
	results, err := meter.Int64Counter("dicto.pipeline.results", metric.WithDescription("Incremental transcription results emitted"))
	if err != nil {
		return nil, fmt.Errorf("create results counter: %w", err)
	}
	endpoints, err := meter.Int64Counter("dicto.pipeline.endpoints", metric.WithDescription("Utterance endpoints detected"))
	if err != nil {
		return nil, fmt.Errorf("create endpoints counter: %w", err)
	}
	deviceLoss, err := meter.Int64Counter("dicto.pipeline.device_loss", metric.WithDescription("Capture device loss occurrences"))
	if err != nil {
		return nil, fmt.Errorf("create device loss counter: %w", err)
	}
	latency, err := meter.Float64Histogram("dicto.pipeline.frame_latency_ms", metric.WithDescription("Per-frame read+decode latency in milliseconds"))
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}
	return &pipelineMetrics{
		frames:     frames,
		results:    results,
		endpoints:  endpoints,
		deviceLoss: deviceLoss,
		latency:    latency,
	}, nil
}

func (m *pipelineMetrics) recordFrame(d time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.frames.Add(ctx, 1)
	m.latency.Record(ctx, float64(d)/float64(time.Millisecond))
}

func (m *pipelineMetrics) recordResult() {
	if m == nil {
		return
	}
	m.results.Add(context.Background(), 1)
}

func (m *pipelineMetrics) recordEndpoint() {
	if m == nil {
		return
	}
	m.endpoints.Add(context.Background(), 1)
}

func (m *pipelineMetrics) recordDeviceLoss() {
	if m == nil {
		return
	}
	m.deviceLoss.Add(context.Background(), 1)
}
