package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Record is one transcript entry as handed to a TranscriptSink.
type Record struct {
	SessionToken string            `json:"sessionToken"`
	Message      Message           `json:"message"`
	StepKey      string            `json:"stepKey"`
	UserData     map[string]string `json:"userData"`
}

// transcriptQueue forwards records to the sink from a fixed pool of workers.
// Records are dropped when the queue is full or closed, and sink errors are
// logged only; the chat never waits on audit logging.
type transcriptQueue struct {
	l       *slog.Logger
	sink    TranscriptSink
	timeout time.Duration
	metrics *Metrics

	jobs   chan Record
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func newTranscriptQueue(l *slog.Logger, sink TranscriptSink, cfg Config, metrics *Metrics) *transcriptQueue {
	q := &transcriptQueue{
		l:       l,
		sink:    sink,
		timeout: cfg.TranscriptTimeout,
		metrics: metrics,
		jobs:    make(chan Record, cfg.TranscriptQueueSize),
	}
	for i := 0; i < cfg.TranscriptWorkers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *transcriptQueue) work() {
	defer q.wg.Done()
	for rec := range q.jobs {
		q.deliver(rec)
	}
}

func (q *transcriptQueue) deliver(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.record(ctx, rec); err != nil {
		q.metrics.observeTranscript("failed")
		q.l.Warn("Transcript sink failed",
			"session", rec.SessionToken,
			"step", rec.StepKey,
			"message", rec.Message.ID,
			"error", &FlowError{Type: ErrorTypeAudit, Code: ErrorCodeSinkFailed, Message: err.Error(), Step: rec.StepKey, Cause: err})
		return
	}
	q.metrics.observeTranscript("recorded")
}

// record calls the sink, turning a panic into an error so one bad record cannot stop a worker.
func (q *transcriptQueue) record(ctx context.Context, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcript sink panicked: %v", r)
		}
	}()
	return q.sink.Record(ctx, rec)
}

func (q *transcriptQueue) enqueue(rec Record) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.metrics.observeTranscript("dropped")
		return
	}
	select {
	case q.jobs <- rec:
	default:
		q.metrics.observeTranscript("dropped")
		q.l.Warn("Transcript queue full, dropping record",
			"session", rec.SessionToken,
			"message", rec.Message.ID)
	}
}

// close stops accepting records and waits for queued ones until ctx is done.
func (q *transcriptQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiSink records to every sink and joins their errors.
type MultiSink []TranscriptSink

func (m MultiSink) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes transcript records to a logger. Used by previews, which have no backend.
type LogSink struct {
	L *slog.Logger
}

func (s LogSink) Record(ctx context.Context, rec Record) error {
	s.L.InfoContext(ctx, "Transcript",
		"session", rec.SessionToken,
		"step", rec.StepKey,
		"sender", rec.Message.Sender,
		"text", rec.Message.Text)
	return nil
}
