package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	inner   recordingSink
}

func (s *blockingSink) Record(ctx context.Context, rec Record) error {
	s.entered <- struct{}{}
	<-s.release
	return s.inner.Record(ctx, rec)
}

func TestTranscriptQueue_DropsWhenFull(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	sink := &blockingSink{entered: make(chan struct{}, 3), release: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.TranscriptQueueSize = 1
	cfg.TranscriptWorkers = 1
	q := newTranscriptQueue(discardLogger(), sink, cfg, metrics)

	q.enqueue(Record{SessionToken: "1"})
	<-sink.entered
	q.enqueue(Record{SessionToken: "2"})
	q.enqueue(Record{SessionToken: "3"})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transcriptRecords.WithLabelValues("dropped")))

	close(sink.release)
	require.NoError(t, q.close(context.Background()))

	records := sink.inner.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].SessionToken)
	assert.Equal(t, "2", records[1].SessionToken)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.transcriptRecords.WithLabelValues("recorded")))
}

func TestTranscriptQueue_EnqueueAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	q := newTranscriptQueue(discardLogger(), sink, DefaultConfig(), nil)
	require.NoError(t, q.close(context.Background()))
	require.NoError(t, q.close(context.Background()))

	q.enqueue(Record{SessionToken: "late"})
	assert.Empty(t, sink.Records())
}

func TestTranscriptQueue_CloseHonoursContext(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	defer close(sink.release)
	q := newTranscriptQueue(discardLogger(), sink, DefaultConfig(), nil)

	q.enqueue(Record{})
	<-sink.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.close(ctx), context.DeadlineExceeded)
}

func TestTranscriptQueue_SinkTimeout(t *testing.T) {
	var deadline time.Time
	sink := sinkFunc(func(ctx context.Context, rec Record) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	cfg := DefaultConfig()
	q := newTranscriptQueue(discardLogger(), sink, cfg, nil)
	q.enqueue(Record{})
	require.NoError(t, q.close(context.Background()))

	assert.WithinDuration(t, time.Now().Add(cfg.TranscriptTimeout), deadline, 5*time.Second)
}

type sinkFunc func(ctx context.Context, rec Record) error

func (f sinkFunc) Record(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b failed")}
	c := &recordingSink{}

	err := MultiSink{a, b, c}.Record(context.Background(), Record{SessionToken: "tok"})
	assert.ErrorContains(t, err, "b failed")
	assert.Len(t, a.Records(), 1)
	assert.Len(t, b.Records(), 1)
	assert.Len(t, c.Records(), 1)

	assert.NoError(t, MultiSink{a}.Record(context.Background(), Record{}))
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, LogSink{L: discardLogger()}.Record(context.Background(), Record{SessionToken: "tok"}))
}

func TestTranscriptQueue_SinkPanicIsCountedAsFailure(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	calls := 0
	sink := sinkFunc(func(ctx context.Context, rec Record) error {
		calls++
		if rec.SessionToken == "bad" {
			var m map[string]int
			m["boom"]++
		}
		return nil
	})
	cfg := DefaultConfig()
	cfg.TranscriptWorkers = 1
	q := newTranscriptQueue(discardLogger(), sink, cfg, metrics)

	q.enqueue(Record{SessionToken: "bad"})
	q.enqueue(Record{SessionToken: "good"})
	require.NoError(t, q.close(context.Background()))

	assert.Equal(t, 2, calls, "the worker keeps running after a panic")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transcriptRecords.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transcriptRecords.WithLabelValues("recorded")))
}
