package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakeCloudWatch) data() []types.MetricDatum {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.MetricDatum
	for _, in := range f.inputs {
		out = append(out, in.MetricData...)
	}
	return out
}

func (f *fakeCloudWatch) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = nil
}

func find(t *testing.T, data []types.MetricDatum, name string, dims map[string]string) types.MetricDatum {
	t.Helper()
	for _, d := range data {
		if aws.ToString(d.MetricName) != name || len(d.Dimensions) != len(dims) {
			continue
		}
		match := true
		for _, dim := range d.Dimensions {
			if dims[aws.ToString(dim.Name)] != aws.ToString(dim.Value) {
				match = false
			}
		}
		if match {
			return d
		}
	}
	t.Fatalf("no datum %s %v", name, dims)
	return types.MetricDatum{}
}

func TestCloudWatchExporterSendsGaugesAndCounterDeltas(t *testing.T) {
	c := NewCollector("coauthor")
	fake := &fakeCloudWatch{}
	e := NewCloudWatchExporter(fake, c, "Coauthor", time.Minute, zap.NewNop())

	c.Connections.Set(4)
	c.InboundEvents.WithLabelValues("section-change", "ok").Add(3)
	c.ObserveStore("save", "document", time.Now(), nil)

	require.NoError(t, e.Publish(context.Background()))
	require.NotEmpty(t, fake.inputs)
	assert.Equal(t, "Coauthor", aws.ToString(fake.inputs[0].Namespace))

	data := fake.data()
	conns := find(t, data, "coauthor_websocket_connections", nil)
	assert.Equal(t, 4.0, aws.ToFloat64(conns.Value))
	assert.Equal(t, types.StandardUnitNone, conns.Unit)
	inbound := find(t, data, "coauthor_inbound_events_total", map[string]string{"type": "section-change", "outcome": "ok"})
	assert.Equal(t, 3.0, aws.ToFloat64(inbound.Value))
	assert.Equal(t, types.StandardUnitCount, inbound.Unit)
	for _, d := range data {
		assert.NotEqual(t, "coauthor_store_operation_duration_seconds", aws.ToString(d.MetricName), "histograms are not pushed")
	}

	fake.reset()
	c.InboundEvents.WithLabelValues("section-change", "ok").Add(2)
	require.NoError(t, e.Publish(context.Background()))
	inbound = find(t, fake.data(), "coauthor_inbound_events_total", map[string]string{"type": "section-change", "outcome": "ok"})
	assert.Equal(t, 2.0, aws.ToFloat64(inbound.Value), "counters send the increase")
}

func TestCloudWatchExporterBatches(t *testing.T) {
	c := NewCollector("coauthor")
	for i := 0; i < 30; i++ {
		c.StaleDrops.WithLabelValues(string(rune('a' + i))).Inc()
	}
	fake := &fakeCloudWatch{}
	e := NewCloudWatchExporter(fake, c, "Coauthor", time.Minute, zap.NewNop())

	require.NoError(t, e.Publish(context.Background()))
	require.Greater(t, len(fake.inputs), 1)
	for _, in := range fake.inputs {
		assert.LessOrEqual(t, len(in.MetricData), cloudWatchBatchSize)
	}
}

func TestCloudWatchExporterReportsPutErrors(t *testing.T) {
	c := NewCollector("coauthor")
	e := NewCloudWatchExporter(&fakeCloudWatch{err: errors.New("throttled")}, c, "Coauthor", time.Minute, zap.NewNop())

	err := e.Publish(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestCloudWatchExporterFlushesOnStop(t *testing.T) {
	c := NewCollector("coauthor")
	fake := &fakeCloudWatch{}
	e := NewCloudWatchExporter(fake, c, "Coauthor", time.Hour, zap.NewNop())

	e.Start()
	c.SlowClients.Inc()
	e.Stop()
	e.Stop()

	slow := find(t, fake.data(), "coauthor_slow_client_closes_total", nil)
	assert.Equal(t, 1.0, aws.ToFloat64(slow.Value))
}
