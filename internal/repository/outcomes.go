package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS combat_events (
	id           UUID PRIMARY KEY,
	encounter_id TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	target_id    TEXT NOT NULL DEFAULT '',
	amount       DOUBLE PRECISION NOT NULL DEFAULT 0,
	data         TEXT NOT NULL DEFAULT '',
	metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS combat_events_encounter_idx ON combat_events (encounter_id, occurred_at);
`

const insertEvent = `
INSERT INTO combat_events (id, encounter_id, event_type, source_id, target_id, amount, data, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

// Execer is the subset of the pool the outcome log needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OutcomeLog writes combat events of one encounter to combat_events.
type OutcomeLog struct {
	db          Execer
	encounterID string
}

// NewOutcomeLog creates a log for encounterID.
func NewOutcomeLog(db Execer, encounterID string) *OutcomeLog {
	return &OutcomeLog{db: db, encounterID: encounterID}
}

// EnsureSchema creates the table if it is missing.
func (l *OutcomeLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create combat_events: %w", err)
	}
	return nil
}

// Record inserts the event. Re-recording the same event ID is a no-op.
func (l *OutcomeLog) Record(ctx context.Context, event rules.Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = l.db.Exec(ctx, insertEvent,
		event.ID,
		l.encounterID,
		string(event.Type),
		event.SourceID,
		event.TargetID,
		event.Amount,
		event.Data,
		encoded,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert %s event %s: %w", event.Type, event.ID, err)
	}
	return nil
}

// Recorder is anything that can persist an event.
type Recorder interface {
	Record(ctx context.Context, event rules.Event) error
}

// Sink decouples the engine from storage. Listen never blocks: when the
// buffer is full the event is dropped and counted.
type Sink struct {
	recorder Recorder
	events   chan rules.Event
	logger   *zap.Logger
	dropped  atomic.Int64
	failed   atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewSink creates a sink with the given buffer size.
func NewSink(recorder Recorder, buffer int, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1
	}
	return &Sink{
		recorder: recorder,
		events:   make(chan rules.Event, buffer),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Listen is a rules.Listener. Only outcome and interrupt events are kept.
func (s *Sink) Listen(event rules.Event) {
	if !event.Type.IsOutcome() && event.Type != rules.EventInterrupt {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.Warn("outcome sink full; dropping events", zap.Int64("dropped", n))
		}
	}
}

// Run writes buffered events until Close is called or ctx ends. It drains
// what is already buffered before returning after Close.
func (s *Sink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.events:
			if !ok {
				return
			}
			if err := s.recorder.Record(ctx, event); err != nil {
				s.failed.Add(1)
				s.logger.Error("failed to record combat event",
					zap.String("event_id", event.ID),
					zap.String("event_type", string(event.Type)),
					zap.Error(err),
				)
			}
		}
	}
}

// Close stops accepting events and waits for Run to drain the buffer.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()
	<-s.done
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Failed returns how many events the recorder rejected.
func (s *Sink) Failed() int64 {
	return s.failed.Load()
}
