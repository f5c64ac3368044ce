package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/thraizz/yomi-server-go/internal/config"
	"github.com/thraizz/yomi-server-go/internal/game"
	"github.com/thraizz/yomi-server-go/internal/game/clock"
	"github.com/thraizz/yomi-server-go/internal/game/combat"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"github.com/thraizz/yomi-server-go/internal/game/watchers"
	"github.com/thraizz/yomi-server-go/internal/world"
	"go.uber.org/zap"
)

// TypeRejected marks an intent the engine refused.
const TypeRejected = "REJECTED"

// Epoch is the instant every simulated duel starts at.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TraceEvent is one line of a duel's trace.
type TraceEvent struct {
	AtMS     int64             `json:"at_ms"`
	Type     string            `json:"type"`
	Source   string            `json:"source,omitempty"`
	Target   string            `json:"target,omitempty"`
	Amount   float64           `json:"amount,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FighterResult is a fighter's state when the duel stopped.
type FighterResult struct {
	ID        string         `json:"id"`
	Vitals    world.Vitals   `json:"vitals"`
	Condition string         `json:"condition"`
	Tally     watchers.Tally `json:"tally"`
}

// Result is everything a duel produced.
type Result struct {
	Name     string          `json:"name"`
	Trace    []TraceEvent    `json:"trace"`
	Fighters []FighterResult `json:"fighters"`
	Procs    int             `json:"procs"`
}

// Options supply the combat settings and, optionally, a fixed random source.
type Options struct {
	Combat config.CombatConfig
	Rand   combat.Rand // overrides the seeded source
	Logger *zap.Logger
}

// Run plays the script on a manual clock. Before each step the clock moves up
// to, but not through, the step's instant, so an intent issued on the same
// tick as a maturation is applied first.
func Run(script *Script, opts Options) (*Result, error) {
	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("script %s: %w", script.Name, err)
	}

	cfg := opts.Combat
	if script.Seed != 0 {
		cfg.Seed = script.Seed
	}

	clk := clock.NewManual(Epoch)
	enc, err := game.NewEncounter(script.Name, cfg, game.EncounterOptions{
		Clock: clk,
		Rand:  opts.Rand,
	}, opts.Logger)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	result := &Result{Name: script.Name}
	enc.Bus().Subscribe(func(e rules.Event) {
		result.Trace = append(result.Trace, TraceEvent{
			AtMS:     offset(e.Timestamp),
			Type:     string(e.Type),
			Source:   e.SourceID,
			Target:   e.TargetID,
			Amount:   e.Amount,
			Reason:   e.Data,
			Metadata: e.Metadata,
		})
	})

	for _, f := range script.Fighters {
		if err := enc.Join(f.ID, f.Ranks); err != nil {
			return nil, err
		}
	}

	steps := make([]Step, len(script.Steps))
	copy(steps, script.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].AtMS < steps[j].AtMS })

	for _, step := range steps {
		clk.MoveTo(at(step.AtMS))
		if err := enc.ProcessAction(step.Action); err != nil {
			result.Trace = append(result.Trace, TraceEvent{
				AtMS:   step.AtMS,
				Type:   TypeRejected,
				Source: step.FighterID,
				Target: step.Target,
				Reason: err.Error(),
			})
		}
	}
	clk.AdvanceTo(at(script.RunUntilMS))

	for _, id := range enc.Fighters() {
		status, err := enc.Status(id)
		if err != nil {
			return nil, err
		}
		result.Fighters = append(result.Fighters, FighterResult{
			ID:        id,
			Vitals:    status.Vitals,
			Condition: status.Condition,
			Tally:     status.Tally,
		})
	}
	result.Procs = enc.Procs().GetTotal()
	return result, nil
}

func at(ms int64) time.Time {
	return Epoch.Add(time.Duration(ms) * time.Millisecond)
}

func offset(t time.Time) int64 {
	return t.Sub(Epoch).Milliseconds()
}
