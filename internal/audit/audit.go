// Package audit records changes to items and commitments. Recording is
// best-effort: entries are queued and written by a single background writer,
// and a failure to record is logged and counted but never returned.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/metrics"
	"github.com/erazemk/rezervator/internal/model"
)

// DefaultQueueSize is the number of entries that may wait for the writer.
const DefaultQueueSize = 256

// AnonymousActor is recorded when the caller supplies no actor.
const AnonymousActor = "anonymous"

// writeTimeout bounds a single append to the log.
const writeTimeout = 30 * time.Second

// Log is where entries end up. store.Backend satisfies it.
type Log interface {
	AppendAudit(ctx context.Context, e model.AuditEntry) (int64, error)
	ListAudit(ctx context.Context, table, entityID string) ([]model.AuditEntry, error)
}

// Options configures a Recorder. Zero values get defaults.
type Options struct {
	QueueSize int
	Clock     dates.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Recorder appends audit entries asynchronously.
type Recorder struct {
	log     Log
	clock   dates.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	queue   chan model.AuditEntry
	pending sync.WaitGroup
	done    chan struct{}
}

// New starts a Recorder writing to log. Call Close to stop it.
func New(log Log, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = dates.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := &Recorder{
		log:     log,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		queue:   make(chan model.AuditEntry, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues a change for writing. before and after may be nil, a map or any
// JSON-encodable value; they are flattened into string snapshots. Record never
// blocks: when the queue is full the entry is dropped and counted as a failure.
func (r *Recorder) Record(action model.AuditAction, table, entityID string, before, after any, actor string) {
	if actor == "" {
		actor = AnonymousActor
	}
	e := model.AuditEntry{
		Action:    action,
		Table:     table,
		EntityID:  entityID,
		Actor:     actor,
		Timestamp: r.clock.Now().UTC(),
		Before:    Snapshot(before),
		After:     Snapshot(after),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.fail(e, fmt.Errorf("recorder is closed"))
		return
	}

	r.pending.Add(1)
	select {
	case r.queue <- e:
	default:
		r.pending.Done()
		r.fail(e, fmt.Errorf("queue full (%d entries)", cap(r.queue)))
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.write(e); err != nil {
			r.fail(e, err)
		}
		r.pending.Done()
	}
}

func (r *Recorder) write(e model.AuditEntry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic writing audit entry: %v", p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := r.log.AppendAudit(ctx, e); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func (r *Recorder) fail(e model.AuditEntry, err error) {
	r.metrics.AuditFailure()
	r.logger.Error("audit entry not recorded",
		zap.String("action", string(e.Action)),
		zap.String("table", e.Table),
		zap.String("entity_id", e.EntityID),
		zap.String("actor", e.Actor),
		zap.Error(err),
	)
}

// Flush waits until every entry queued so far has been written or has failed.
func (r *Recorder) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns the recorded changes of one entity, most recent first.
func (r *Recorder) History(ctx context.Context, table, entityID string) ([]model.AuditEntry, error) {
	entries, err := r.log.ListAudit(ctx, table, entityID)
	if err != nil {
		return nil, fmt.Errorf("listing audit history: %w", err)
	}
	return entries, nil
}

// Snapshot flattens v into field name / value pairs. Scalars keep their JSON
// text, nested values are stored as JSON and a value that is not an object
// ends up under the key "value".
func Snapshot(v any) map[string]string {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]string); ok {
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]string{"value": fmt.Sprint(v)}
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]string{"value": scalar(raw)}
	}
	out := make(map[string]string, len(fields))
	for k, val := range fields {
		out[k] = scalar(val)
	}
	return out
}

// scalar unquotes JSON strings and leaves everything else as JSON text.
func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	return string(raw)
}
