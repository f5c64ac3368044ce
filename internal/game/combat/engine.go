// Package combat implements the timing and resolution core of melee combat:
// attack windups, guards, stuns, procs and damage.
//
// An Engine serves one encounter. Intents (BeginAttack, BeginBlock,
// CancelPending) and timer maturations are serialized behind a single lock,
// and every state change is published on the encounter's rules.EventBus in
// the order it happened.
package combat

import (
	"errors"
	"sync"
	"time"

	"github.com/thraizz/yomi-server-go/internal/game/clock"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Dependencies are the collaborators an Engine needs.
type Dependencies struct {
	Health  Health      // required
	Ranks   Ranks       // required
	Contest ContestFunc // required
	Pain    PainFunc    // defaults to ConstantPain(cfg.PainMultiplier)
	Clock   clock.Clock // defaults to clock.System()
	Rand    Rand        // defaults to a PCG source with a crypto seed
	Bus     *rules.EventBus
}

// Engine is the combat engine of one encounter.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	clock     clock.Clock
	store     *Store
	procs     *ProcTracker
	scheduler *Scheduler
	resolver  *Resolver
	bus       *rules.EventBus
	logger    *zap.Logger
	closed    bool

	lastOutcome Outcome
}

// NewEngine validates cfg and deps and builds an engine.
func NewEngine(cfg Config, deps Dependencies, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Health == nil || deps.Ranks == nil || deps.Contest == nil {
		return nil, errors.New("combat engine requires health, ranks and contest collaborators")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Rand == nil {
		seed, err := NewSeed()
		if err != nil {
			return nil, err
		}
		deps.Rand = NewRand(seed)
	}
	if deps.Pain == nil {
		deps.Pain = ConstantPain(cfg.PainMultiplier)
	}
	if deps.Bus == nil {
		deps.Bus = rules.NewEventBus()
	}

	e := &Engine{
		cfg:    cfg,
		clock:  deps.Clock,
		store:  NewStore(),
		procs:  NewProcTracker(cfg.ProcInterval),
		bus:    deps.Bus,
		logger: logger,
	}
	e.scheduler = NewScheduler(cfg, &e.mu, deps.Clock, e.store, e.emit, e.onMatured, logger)
	e.resolver = &Resolver{
		cfg:       cfg,
		store:     e.store,
		scheduler: e.scheduler,
		procs:     e.procs,
		rng:       deps.Rand,
		health:    deps.Health,
		ranks:     deps.Ranks,
		contest:   deps.Contest,
		pain:      deps.Pain,
		emit:      e.emit,
		logger:    logger,
	}
	return e, nil
}

// Bus returns the event bus outcomes are published on.
func (e *Engine) Bus() *rules.EventBus {
	return e.bus
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Now returns the engine's clock reading.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// BeginAttack starts source's swing at target.
func (e *Engine) BeginAttack(source, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.scheduler.BeginAttack(source, target)
}

// BeginBlock raises source's guard.
func (e *Engine) BeginBlock(source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.scheduler.BeginBlock(source)
}

// CancelPending cancels source's swing if one is winding up.
func (e *Engine) CancelPending(source string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	return e.scheduler.CancelPending(source)
}

// Discard removes a fighter that died or disconnected: its swing is
// cancelled, its timers stopped and its records dropped. Swings aimed at it
// abort when they mature.
func (e *Engine) Discard(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.scheduler.CancelPending(id)
	e.scheduler.Forget(id)
	e.store.Discard(id)
	e.procs.Forget(id)
	e.logger.Debug("fighter discarded", zap.String("fighter", id))
}

// View returns a copy of the fighter's records with due transitions applied.
func (e *Engine) View(id string) (FighterView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.store.Get(id)
	if !ok {
		return FighterView{ID: id, Stance: StanceIdle}, false
	}
	e.scheduler.Settle(f, e.clock.Now())
	return f.View(), true
}

// LastOutcome returns the most recent resolution.
func (e *Engine) LastOutcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOutcome
}

// Close stops all timers. Further intents fail with ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.scheduler.Close()
}

// onMatured runs with e.mu held, from the scheduler's timer callback.
func (e *Engine) onMatured(source string, attack PendingAttack) {
	e.lastOutcome = e.resolver.Resolve(source, attack, e.clock.Now())
}

// emit runs with e.mu held. Listeners must not call back into the engine.
func (e *Engine) emit(evt rules.Event) {
	e.bus.Publish(evt)
}
