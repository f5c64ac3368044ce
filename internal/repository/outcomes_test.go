package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap/zaptest"
)

var at = time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	log := NewOutcomeLog(db, "enc-1")

	require.NoError(t, log.EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS combat_events")

	db.err = errors.New("permission denied")
	assert.Error(t, log.EnsureSchema(context.Background()))
}

func TestRecordInsertsEvent(t *testing.T) {
	db := &fakeExecer{}
	log := NewOutcomeLog(db, "enc-1")

	event := rules.NewEventWithAmount(rules.EventAttackLanded, "A", "B", at, 20)
	event.Metadata["amplified"] = "true"
	require.NoError(t, log.Record(context.Background(), event))

	require.Len(t, db.calls, 1)
	call := db.calls[0]
	assert.True(t, strings.HasPrefix(strings.TrimSpace(call.sql), "INSERT INTO combat_events"))
	require.Len(t, call.args, 9)
	assert.Equal(t, event.ID, call.args[0])
	assert.Equal(t, "enc-1", call.args[1])
	assert.Equal(t, "ATTACK_LANDED", call.args[2])
	assert.Equal(t, "A", call.args[3])
	assert.Equal(t, "B", call.args[4])
	assert.Equal(t, 20.0, call.args[5])
	assert.Equal(t, at, call.args[8])

	var metadata map[string]string
	require.NoError(t, json.Unmarshal(call.args[7].([]byte), &metadata))
	assert.Equal(t, "true", metadata["amplified"])
}

func TestRecordWrapsError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	log := NewOutcomeLog(db, "enc-1")

	err := log.Record(context.Background(), rules.Event{Type: rules.EventAttackBlocked, ID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, db.err)
}

func TestSinkWritesOutcomesOnly(t *testing.T) {
	db := &fakeExecer{}
	sink := NewSink(NewOutcomeLog(db, "enc-1"), 16, zaptest.NewLogger(t))
	go sink.Run(context.Background())

	sink.Listen(rules.NewEvent(rules.EventAttackBegun, "A", "B", at))
	sink.Listen(rules.NewEvent(rules.EventGuardLapsed, "B", "", at))
	sink.Listen(rules.NewInterrupt("A", "B", at, rules.InterruptCancel))
	sink.Listen(rules.NewEventWithAmount(rules.EventAttackLanded, "A", "B", at, 10))
	sink.Close()

	assert.Equal(t, 2, db.count())
	assert.Zero(t, sink.Dropped())

	// Events after Close are ignored.
	sink.Listen(rules.NewEvent(rules.EventAttackBlocked, "A", "B", at))
	sink.Close()
	assert.Equal(t, 2, db.count())
}

type blockingRecorder struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (b *blockingRecorder) Record(ctx context.Context, _ rules.Event) error {
	<-b.release
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	return nil
}

func TestSinkDropsWhenFull(t *testing.T) {
	recorder := &blockingRecorder{release: make(chan struct{})}
	sink := NewSink(recorder, 2, zaptest.NewLogger(t))

	// Without Run the buffer holds exactly two events.
	for i := 0; i < 5; i++ {
		sink.Listen(rules.NewEvent(rules.EventAttackBlocked, "A", "B", at))
	}
	assert.Equal(t, int64(3), sink.Dropped())

	close(recorder.release)
	go sink.Run(context.Background())
	sink.Close()
	assert.Equal(t, 2, recorder.n)
}

func TestSinkCountsFailures(t *testing.T) {
	db := &fakeExecer{err: errors.New("down")}
	sink := NewSink(NewOutcomeLog(db, "enc-1"), 4, zaptest.NewLogger(t))
	go sink.Run(context.Background())

	sink.Listen(rules.NewEvent(rules.EventAttackBlocked, "A", "B", at))
	sink.Close()

	assert.Equal(t, int64(1), sink.Failed())
}

func TestSinkStopsOnContextCancel(t *testing.T) {
	sink := NewSink(NewOutcomeLog(&fakeExecer{}, "enc-1"), 4, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
