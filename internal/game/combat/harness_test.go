package combat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thraizz/yomi-server-go/internal/game/clock"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// at returns the instant ms milliseconds after epoch.
func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

type vitals struct {
	health     float64
	stress     float64
	aggravated float64
	condition  Condition
}

// fakeHealth is an in-memory Health and Ranks implementation.
type fakeHealth struct {
	mu        sync.Mutex
	fighters  map[string]*vitals
	ranks     map[string]map[Skill]float64
	applyErr  error
	rankErr   error
	applyCall int
}

func newFakeHealth(ids ...string) *fakeHealth {
	h := &fakeHealth{
		fighters: make(map[string]*vitals),
		ranks:    make(map[string]map[Skill]float64),
	}
	for _, id := range ids {
		h.fighters[id] = &vitals{health: 100}
		h.ranks[id] = map[Skill]float64{SkillMartialArts: 5, SkillEvasion: 5}
	}
	return h
}

func (h *fakeHealth) Exists(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.fighters[id]
	return ok
}

func (h *fakeHealth) Condition(id string) Condition {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.fighters[id]; ok {
		return v.condition
	}
	return ConditionDead
}

func (h *fakeHealth) ApplyHealthDelta(id string, health, stress, aggravated float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applyCall++
	if h.applyErr != nil {
		return h.applyErr
	}
	v, ok := h.fighters[id]
	if !ok {
		return errors.New("no such fighter")
	}
	v.health += health
	v.stress += stress
	v.aggravated += aggravated
	return nil
}

func (h *fakeHealth) Rank(id string, skill Skill) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rankErr != nil {
		return 0, h.rankErr
	}
	return h.ranks[id][skill], nil
}

func (h *fakeHealth) vitals(id string) vitals {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.fighters[id]
}

func (h *fakeHealth) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.fighters, id)
}

func (h *fakeHealth) setCondition(id string, c Condition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fighters[id].condition = c
}

// scriptedRand returns queued values, then the defaults. The default float
// never procs at baseline rates and the default int picks the range minimum.
type scriptedRand struct {
	floats       []float64
	ints         []int
	defaultFloat float64
}

func newScriptedRand() *scriptedRand {
	return &scriptedRand{defaultFloat: 0.999}
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return r.defaultFloat
	}
	f := r.floats[0]
	r.floats = r.floats[1:]
	return f
}

func (r *scriptedRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	i := r.ints[0] % n
	r.ints = r.ints[1:]
	return i
}

// recorder captures every published event.
type recorder struct {
	mu     sync.Mutex
	events []rules.Event
}

func (r *recorder) listen(e rules.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []rules.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rules.Event(nil), r.events...)
}

func (r *recorder) ofType(t rules.EventType) []rules.Event {
	var out []rules.Event
	for _, e := range r.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) types() []rules.EventType {
	var out []rules.EventType
	for _, e := range r.all() {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type testEngine struct {
	*Engine
	clock  *clock.Manual
	health *fakeHealth
	rng    *scriptedRand
	events *recorder
}

func newTestEngine(t *testing.T, ids ...string) *testEngine {
	t.Helper()
	return newTestEngineWith(t, DefaultConfig(), func(a, d float64) (float64, error) { return 1.0, nil }, ids...)
}

func newTestEngineWith(t *testing.T, cfg Config, contest ContestFunc, ids ...string) *testEngine {
	t.Helper()
	return newTestEngineWithPain(t, cfg, contest, nil, ids...)
}

// newTestEngineWithPain injects pain; nil keeps the configured constant.
func newTestEngineWithPain(t *testing.T, cfg Config, contest ContestFunc, pain PainFunc, ids ...string) *testEngine {
	t.Helper()
	clk := clock.NewManual(epoch)
	health := newFakeHealth(ids...)
	rng := newScriptedRand()
	events := &recorder{}
	bus := rules.NewEventBus()
	bus.Subscribe(events.listen)

	engine, err := NewEngine(cfg, Dependencies{
		Health:  health,
		Ranks:   health,
		Contest: contest,
		Pain:    pain,
		Clock:   clk,
		Rand:    rng,
		Bus:     bus,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, clock: clk, health: health, rng: rng, events: events}
}

// advanceTo moves the clock to ms after epoch, firing due timers.
func (te *testEngine) advanceTo(ms int) {
	te.clock.AdvanceTo(at(ms))
}

// moveTo moves the clock to ms after epoch but leaves timers due exactly
// then armed, so intents issued next win the tick.
func (te *testEngine) moveTo(ms int) {
	te.clock.MoveTo(at(ms))
}
