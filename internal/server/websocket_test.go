package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thraizz/yomi-server-go/internal/config"
	"github.com/thraizz/yomi-server-go/internal/game"
	"github.com/thraizz/yomi-server-go/internal/game/clock"
	"go.uber.org/zap/zaptest"
)

type noProcs struct{}

func (noProcs) Float64() float64 { return 0.999 }
func (noProcs) IntN(int) int     { return 0 }

type wsFixture struct {
	encounter *game.Encounter
	clock     *clock.Manual
	url       string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	clk := clock.NewManual(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	enc, err := game.NewEncounter("ws-test", cfg.Combat, game.EncounterOptions{
		Clock: clk,
		Rand:  noProcs{},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(enc.Close)

	hub := NewHub(enc, cfg.Server.WebSocket, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return &wsFixture{
		encounter: enc,
		clock:     clk,
		url:       "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType, fighterID string, data any) {
	t.Helper()
	msg := WSMessage{Type: msgType, FighterID: fighterID}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		msg.Data = raw
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// await reads frames until one satisfies match.
func await(t *testing.T, conn *websocket.Conn, match func(WSMessage) bool) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func ofType(msgType string) func(WSMessage) bool {
	return func(m WSMessage) bool { return m.Type == msgType }
}

func event(eventType string) func(WSMessage) bool {
	return func(m WSMessage) bool {
		if m.Type != MessageEvent {
			return false
		}
		var payload EventPayload
		return json.Unmarshal(m.Data, &payload) == nil && payload.Type == eventType
	}
}

func join(t *testing.T, conn *websocket.Conn, id string) game.FighterStatus {
	t.Helper()
	send(t, conn, MessageJoin, id, nil)
	msg := await(t, conn, ofType(MessageJoined))
	var status game.FighterStatus
	require.NoError(t, json.Unmarshal(msg.Data, &status))
	return status
}

func TestHubAttackIsBroadcast(t *testing.T) {
	f := newWSFixture(t)
	a := f.dial(t)
	b := f.dial(t)

	status := join(t, a, "A")
	assert.Equal(t, "A", status.ID)
	assert.Equal(t, "HEALTHY", status.Condition)
	join(t, b, "B")

	send(t, a, MessageCommand, "", "attack B")
	await(t, b, event("ATTACK_BEGUN"))

	f.clock.Advance(3 * time.Second)

	msg := await(t, b, event("ATTACK_LANDED"))
	var payload EventPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "A", payload.Source)
	assert.Equal(t, "B", payload.Target)
	assert.InDelta(t, 10, payload.Amount, 1e-9)
	await(t, a, event("ATTACK_LANDED"))

	send(t, b, MessageStatus, "", nil)
	msg = await(t, b, ofType(MessageStatus))
	var bStatus game.FighterStatus
	require.NoError(t, json.Unmarshal(msg.Data, &bStatus))
	assert.InDelta(t, 90, bStatus.Vitals.Cur, 1e-9)
	assert.InDelta(t, 10, bStatus.Tally.DamageTaken, 1e-9)
}

func TestHubStructuredAction(t *testing.T) {
	f := newWSFixture(t)
	a := f.dial(t)
	join(t, a, "A")

	// The fighter is always the connection's, whatever the payload says.
	send(t, a, MessageAction, "", game.Action{FighterID: "B", ActionType: game.ActionBlock})
	msg := await(t, a, event("BLOCK_BEGUN"))

	var payload EventPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "A", payload.Source)
}

func TestHubRejectsCommands(t *testing.T) {
	f := newWSFixture(t)
	a := f.dial(t)

	send(t, a, MessageCommand, "", "block")
	msg := await(t, a, ofType(MessageError))
	assert.Contains(t, string(msg.Data), "has not joined")

	join(t, a, "A")
	send(t, a, MessageJoin, "A2", nil)
	msg = await(t, a, ofType(MessageError))
	assert.Contains(t, string(msg.Data), "already playing")

	send(t, a, MessageCommand, "", "dance")
	msg = await(t, a, ofType(MessageError))
	assert.Contains(t, string(msg.Data), "unknown command")

	send(t, a, MessageCommand, "", "attack nobody")
	await(t, a, ofType(MessageError))

	send(t, a, "shout", "", nil)
	msg = await(t, a, ofType(MessageError))
	assert.Contains(t, string(msg.Data), "unknown message type")

	b := f.dial(t)
	send(t, b, MessageJoin, "A", nil)
	msg = await(t, b, ofType(MessageError))
	assert.Contains(t, string(msg.Data), "already joined")
}

func TestHubDisconnectLeavesEncounter(t *testing.T) {
	f := newWSFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	join(t, a, "A")
	join(t, b, "B")

	send(t, a, MessageCommand, "", "attack B")
	await(t, b, event("ATTACK_BEGUN"))

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return len(f.encounter.Fighters()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"A"}, f.encounter.Fighters())

	// A's swing finds no target and resolves to nothing.
	f.clock.Advance(3 * time.Second)
	assert.Equal(t, 0, f.encounter.Tally("A").Landed)
}
