package game

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thraizz/yomi-server-go/internal/config"
	"github.com/thraizz/yomi-server-go/internal/game/clock"
	"github.com/thraizz/yomi-server-go/internal/game/combat"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"github.com/thraizz/yomi-server-go/internal/game/watchers"
	"github.com/thraizz/yomi-server-go/internal/skills"
	"github.com/thraizz/yomi-server-go/internal/world"
	"go.uber.org/zap"
)

var (
	ErrAlreadyJoined  = errors.New("fighter already joined")
	ErrNotJoined      = errors.New("fighter has not joined")
	ErrIncapacitated  = errors.New("fighter is incapacitated")
	ErrUnknownCommand = errors.New("unknown command")
)

// Action types accepted by ProcessAction.
const (
	ActionAttack = "ATTACK"
	ActionBlock  = "BLOCK"
	ActionCancel = "CANCEL"
)

// Action is a fighter's intent.
type Action struct {
	FighterID  string `json:"fighter_id" yaml:"fighter"`
	ActionType string `json:"action_type" yaml:"action"`
	Target     string `json:"target,omitempty" yaml:"target,omitempty"`
}

// ParseAction reads a text command: "attack <target>", "block" or "cancel".
func ParseAction(fighterID, text string) (Action, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Action{}, fmt.Errorf("empty command: %w", ErrUnknownCommand)
	}
	switch strings.ToLower(fields[0]) {
	case "attack", "hit", "strike":
		if len(fields) != 2 {
			return Action{}, fmt.Errorf("usage: attack <target>")
		}
		return Action{FighterID: fighterID, ActionType: ActionAttack, Target: fields[1]}, nil
	case "block", "guard":
		if len(fields) != 1 {
			return Action{}, fmt.Errorf("usage: block")
		}
		return Action{FighterID: fighterID, ActionType: ActionBlock}, nil
	case "cancel":
		return Action{FighterID: fighterID, ActionType: ActionCancel}, nil
	default:
		return Action{}, fmt.Errorf("%q: %w", fields[0], ErrUnknownCommand)
	}
}

// FighterStatus is what a fighter sees about themselves.
type FighterStatus struct {
	ID           string         `json:"id"`
	Stance       combat.Stance  `json:"stance"`
	Condition    string         `json:"condition"`
	Vitals       world.Vitals   `json:"vitals"`
	Target       string         `json:"target,omitempty"`
	HasAmplifier bool           `json:"has_amplifier"`
	Stuns        int            `json:"stuns"`
	Tally        watchers.Tally `json:"tally"`
}

// Encounter is one fight: a combat engine, the roster it resolves against
// and the watchers following it.
type Encounter struct {
	ID string

	engine    *combat.Engine
	roster    *world.Roster
	registry  *rules.WatcherRegistry
	tally     *watchers.TallyWatcher
	procs     *watchers.ProcsWatcher
	maxHealth float64
	logger    *zap.Logger
}

// EncounterOptions override an encounter's collaborators.
type EncounterOptions struct {
	Clock clock.Clock // defaults to the system clock
	Rand  combat.Rand // defaults to a PCG source seeded from cfg.Seed or crypto/rand
}

// NewEncounter builds an encounter from the combat settings.
func NewEncounter(id string, cfg config.CombatConfig, opts EncounterOptions, logger *zap.Logger) (*Encounter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("encounter_id", id))

	rng := opts.Rand
	if rng == nil && cfg.Seed != 0 {
		rng = combat.NewRand(cfg.Seed)
	}

	roster := world.NewRoster(logger)
	engine, err := combat.NewEngine(cfg.ToEngine(), combat.Dependencies{
		Health:  roster,
		Ranks:   roster,
		Contest: skills.Contest,
		Clock:   opts.Clock,
		Rand:    rng,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("encounter %s: %w", id, err)
	}

	e := &Encounter{
		ID:        id,
		engine:    engine,
		roster:    roster,
		registry:  rules.NewWatcherRegistry(),
		tally:     watchers.NewTallyWatcher(),
		procs:     watchers.NewProcsWatcher(),
		maxHealth: cfg.FighterMaxHealth,
		logger:    logger,
	}
	e.registry.AddWatcher(e.tally)
	e.registry.AddWatcher(e.procs)
	e.registry.Attach(engine.Bus())
	return e, nil
}

// Bus returns the encounter's event bus.
func (e *Encounter) Bus() *rules.EventBus {
	return e.engine.Bus()
}

// Engine returns the combat engine.
func (e *Encounter) Engine() *combat.Engine {
	return e.engine
}

// Roster returns the fighters' health records.
func (e *Encounter) Roster() *world.Roster {
	return e.roster
}

// Watchers returns the watcher registry attached to the bus.
func (e *Encounter) Watchers() *rules.WatcherRegistry {
	return e.registry
}

// Join adds a fighter at full health.
func (e *Encounter) Join(fighterID string, ranks map[combat.Skill]float64) error {
	if e.roster.Exists(fighterID) {
		return fmt.Errorf("join %s: %w", fighterID, ErrAlreadyJoined)
	}
	if err := e.roster.Add(fighterID, e.maxHealth, ranks); err != nil {
		return err
	}
	e.registry.AddWatcher(watchers.NewStunnedWatcher(fighterID))
	e.logger.Info("fighter joined", zap.String("fighter", fighterID))
	return nil
}

// Leave removes a fighter. Their swing is cancelled and swings aimed at them
// abort when they mature.
func (e *Encounter) Leave(fighterID string) {
	// Roster first: a swing maturing before Discard must already see the
	// target gone.
	e.roster.Remove(fighterID)
	e.engine.Discard(fighterID)
	e.registry.RemoveWatcher(watchers.StunnedWatcherKey(fighterID))
	e.logger.Info("fighter left", zap.String("fighter", fighterID))
}

// ProcessAction applies a fighter's intent.
func (e *Encounter) ProcessAction(action Action) error {
	if !e.roster.Exists(action.FighterID) {
		return fmt.Errorf("%s: %w", action.FighterID, ErrNotJoined)
	}
	if e.roster.Condition(action.FighterID).IsTerminal() {
		return fmt.Errorf("%s: %w", action.FighterID, ErrIncapacitated)
	}

	var err error
	switch action.ActionType {
	case ActionAttack:
		if !e.roster.Exists(action.Target) {
			return fmt.Errorf("attack %s: %w", action.Target, combat.ErrUnknownFighter)
		}
		err = e.engine.BeginAttack(action.FighterID, action.Target)
	case ActionBlock:
		err = e.engine.BeginBlock(action.FighterID)
	case ActionCancel:
		e.engine.CancelPending(action.FighterID)
	default:
		return fmt.Errorf("%q: %w", action.ActionType, ErrUnknownCommand)
	}
	if err != nil {
		e.logger.Debug("action rejected",
			zap.String("fighter", action.FighterID),
			zap.String("action_type", action.ActionType),
			zap.Error(err),
		)
	}
	return err
}

// Status reports a fighter's stance, vitals and tally.
func (e *Encounter) Status(fighterID string) (FighterStatus, error) {
	vitals, err := e.roster.Vitals(fighterID)
	if err != nil {
		return FighterStatus{}, err
	}
	view, _ := e.engine.View(fighterID)
	status := FighterStatus{
		ID:           fighterID,
		Stance:       view.Stance,
		Condition:    vitals.Condition().String(),
		Vitals:       vitals,
		HasAmplifier: view.HasAmplifier,
		Stuns:        e.Stuns(fighterID),
		Tally:        e.tally.Tally(fighterID),
	}
	if view.Pending != nil {
		status.Target = view.Pending.Target
	}
	return status, nil
}

// Fighters returns the joined fighters, sorted.
func (e *Encounter) Fighters() []string {
	return e.roster.IDs()
}

// Tally returns a fighter's running record.
func (e *Encounter) Tally(fighterID string) watchers.Tally {
	return e.tally.Tally(fighterID)
}

// Stuns returns how many times a joined fighter has been stunned.
func (e *Encounter) Stuns(fighterID string) int {
	if w, ok := e.registry.GetWatcher(watchers.StunnedWatcherKey(fighterID)).(*watchers.StunnedWatcher); ok {
		return w.GetCount()
	}
	return 0
}

// Procs returns the proc counters.
func (e *Encounter) Procs() *watchers.ProcsWatcher {
	return e.procs
}

// Close stops the engine's timers.
func (e *Encounter) Close() {
	e.engine.Close()
}
