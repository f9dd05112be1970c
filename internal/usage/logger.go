// Package usage persists the append-only tool_usage audit trail. Writes are
// fire-and-forget: the request path hands a record to a buffered channel and
// moves on; a single worker goroutine owns the database inserts. An insert
// failure or a full buffer is logged server-side and never surfaces to the
// caller — availability of the tool result wins over auditability.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/store"
)

const (
	defaultBuffer        = 256
	defaultInsertTimeout = 5 * time.Second
)

// Config tunes the logger. The zero value is usable.
type Config struct {
	// Buffer is the channel capacity between request handlers and the
	// insert worker. Records submitted while the buffer is full are dropped.
	Buffer int

	// InsertTimeout bounds each database insert.
	InsertTimeout time.Duration

	// OnDrop is invoked once per dropped record, for metrics. May be nil.
	OnDrop func()
}

// Logger owns the tool_usage insert path.
type Logger struct {
	store   store.Store
	log     *slog.Logger
	records chan *store.UsageRecord
	timeout time.Duration
	onDrop  func()

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a Logger and starts its insert worker. Call [Logger.Close]
// during shutdown to drain buffered records.
func New(s store.Store, log *slog.Logger, cfg Config) *Logger {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = defaultInsertTimeout
	}
	l := &Logger{
		store:   s,
		log:     log,
		records: make(chan *store.UsageRecord, cfg.Buffer),
		timeout: cfg.InsertTimeout,
		onDrop:  cfg.OnDrop,
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Record submits one audit record. It never blocks: when the buffer is full
// the record is dropped with a warning. Calling Record after Close drops the
// record.
func (l *Logger) Record(rec *store.UsageRecord) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.records <- rec:
	default:
		l.log.Warn("usage buffer full, dropping record",
			"tool_id", rec.ToolID, "user_id", rec.UserID, "status", rec.Status)
		if l.onDrop != nil {
			l.onDrop()
		}
	}
}

// Close stops accepting records and waits for the worker to drain the buffer
// or for ctx to expire, whichever comes first.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.records)
	}
	l.mu.Unlock()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for rec := range l.records {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		if err := l.store.InsertUsage(ctx, rec); err != nil {
			// Swallowed: an audit failure must not fail anything else.
			l.log.Error("usage insert failed",
				"tool_id", rec.ToolID, "status", rec.Status, "error", err)
		}
		cancel()
	}
}
