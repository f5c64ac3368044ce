package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thraizz/yomi-server-go/internal/game/clock"
	"go.uber.org/zap/zaptest"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	cfg := defaultCombat(t)
	opts := EncounterOptions{Clock: clock.NewManual(epoch), Rand: neverProc{}}

	enc, err := m.StartEncounter("arena", cfg, opts)
	require.NoError(t, err)
	_, err = m.StartEncounter("arena", cfg, opts)
	assert.Error(t, err)

	got, ok := m.Get("arena")
	require.True(t, ok)
	assert.Same(t, enc, got)

	require.NoError(t, enc.Join("A", nil))
	require.NoError(t, enc.Join("B", nil))
	require.NoError(t, m.ProcessAction("arena", Action{FighterID: "A", ActionType: ActionBlock}))
	assert.Error(t, m.ProcessAction("missing", Action{FighterID: "A", ActionType: ActionBlock}))

	_, err = m.StartEncounter("pit", cfg, EncounterOptions{Clock: clock.NewManual(epoch)})
	require.NoError(t, err)
	assert.Equal(t, []string{"arena", "pit"}, m.IDs())

	require.NoError(t, m.EndEncounter("arena"))
	assert.Error(t, m.EndEncounter("arena"))
	_, ok = m.Get("arena")
	assert.False(t, ok)

	m.CloseAll()
	assert.Empty(t, m.IDs())
}
