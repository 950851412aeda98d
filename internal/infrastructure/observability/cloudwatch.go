package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// cloudWatchBatchSize keeps each PutMetricData call well under the request
// size limit.
const cloudWatchBatchSize = 20

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchExporter pushes the collector's counters and gauges to
// CloudWatch on an interval. Gauges are sent as their current value and
// counters as the increase since the previous push. Histograms stay on the
// scrape endpoint.
type CloudWatchExporter struct {
	client    CloudWatchAPI
	gatherer  prometheus.Gatherer
	namespace string
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.Mutex
	last map[string]float64

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewCloudWatchExporter creates an exporter for the collector's registry.
func NewCloudWatchExporter(client CloudWatchAPI, collector *Collector, namespace string, interval time.Duration, logger *zap.Logger) *CloudWatchExporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CloudWatchExporter{
		client:    client,
		gatherer:  collector.Registry(),
		namespace: namespace,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		last:      make(map[string]float64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the push loop until Stop.
func (e *CloudWatchExporter) Start() {
	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.push()
			case <-e.stop:
				return
			}
		}
	}()
}

// Stop ends the loop and pushes once more so the last interval is not lost.
func (e *CloudWatchExporter) Stop() {
	e.once.Do(func() {
		close(e.stop)
		<-e.done
		e.push()
	})
}

func (e *CloudWatchExporter) push() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Publish(ctx); err != nil {
		e.logger.Warn("Failed to push metrics to CloudWatch", zap.Error(err))
	}
}

// Publish gathers the registry once and sends the result.
func (e *CloudWatchExporter) Publish(ctx context.Context) error {
	families, err := e.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	data := e.datums(families)

	for i := 0; i < len(data); i += cloudWatchBatchSize {
		end := i + cloudWatchBatchSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(e.namespace),
			MetricData: data[i:end],
		}); err != nil {
			return fmt.Errorf("failed to put metric data: %w", err)
		}
	}
	return nil
}

func (e *CloudWatchExporter) datums(families []*dto.MetricFamily) []types.MetricDatum {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := aws.Time(e.now())
	var out []types.MetricDatum
	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			var value float64
			unit := types.StandardUnitCount
			switch family.GetType() {
			case dto.MetricType_GAUGE:
				value = m.GetGauge().GetValue()
				unit = types.StandardUnitNone
			case dto.MetricType_COUNTER:
				total := m.GetCounter().GetValue()
				key := seriesKey(name, m.GetLabel())
				value = total - e.last[key]
				e.last[key] = total
				if value < 0 {
					value = total
				}
			default:
				continue
			}
			out = append(out, types.MetricDatum{
				MetricName: aws.String(name),
				Dimensions: dimensions(m.GetLabel()),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  ts,
			})
		}
	}
	return out
}

func dimensions(labels []*dto.LabelPair) []types.Dimension {
	out := make([]types.Dimension, 0, len(labels))
	for _, l := range labels {
		out = append(out, types.Dimension{Name: aws.String(l.GetName()), Value: aws.String(l.GetValue())})
	}
	return out
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	parts := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
