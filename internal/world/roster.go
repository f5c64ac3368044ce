// Package world holds the in-memory roster of fighters an encounter runs
// against: their health, stress and skill ranks.
package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/thraizz/yomi-server-go/internal/game/combat"
	"go.uber.org/zap"
)

// ErrNotFound is returned for IDs the roster does not know.
var ErrNotFound = errors.New("fighter not found")

// Vitals is a fighter's health record.
type Vitals struct {
	Cur              float64 `json:"cur" yaml:"cur"`
	Max              float64 `json:"max" yaml:"max"`
	Stress           float64 `json:"stress" yaml:"stress"`
	AggravatedStress float64 `json:"aggravated_stress" yaml:"aggravated_stress"`
}

// Condition derives the survival state. A fighter at or below zero health is
// incapacitated; one driven down to minus its maximum is dead.
func (v Vitals) Condition() combat.Condition {
	switch {
	case v.Cur <= -v.Max:
		return combat.ConditionDead
	case v.Cur <= 0:
		return combat.ConditionIncapacitated
	case v.Cur < v.Max:
		return combat.ConditionWounded
	default:
		return combat.ConditionHealthy
	}
}

type fighter struct {
	vitals Vitals
	ranks  map[combat.Skill]float64
}

// Roster implements combat.Health and combat.Ranks. It is safe for
// concurrent use.
type Roster struct {
	mu       sync.RWMutex
	fighters map[string]*fighter
	logger   *zap.Logger
}

// NewRoster creates an empty roster.
func NewRoster(logger *zap.Logger) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roster{
		fighters: make(map[string]*fighter),
		logger:   logger,
	}
}

// Add registers a fighter at full health. Re-adding an ID resets it.
func (r *Roster) Add(id string, maxHealth float64, ranks map[combat.Skill]float64) error {
	if id == "" {
		return errors.New("fighter id must not be empty")
	}
	if !(maxHealth > 0) {
		return fmt.Errorf("fighter %s: max health must be positive, got %v", id, maxHealth)
	}
	f := &fighter{
		vitals: Vitals{Cur: maxHealth, Max: maxHealth},
		ranks:  make(map[combat.Skill]float64, len(ranks)),
	}
	for skill, rank := range ranks {
		f.ranks[skill] = rank
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fighters[id] = f
	return nil
}

// Remove drops a fighter. Unknown IDs are ignored.
func (r *Roster) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fighters, id)
}

// Vitals returns a copy of the fighter's health record.
func (r *Roster) Vitals(id string) (Vitals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fighters[id]
	if !ok {
		return Vitals{}, fmt.Errorf("vitals for %s: %w", id, ErrNotFound)
	}
	return f.vitals, nil
}

// IDs returns every registered fighter, sorted.
func (r *Roster) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.fighters))
	for id := range r.fighters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Exists implements combat.Health.
func (r *Roster) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fighters[id]
	return ok
}

// Condition implements combat.Health. Unknown fighters read as dead.
func (r *Roster) Condition(id string) combat.Condition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fighters[id]
	if !ok {
		return combat.ConditionDead
	}
	return f.vitals.Condition()
}

// ApplyHealthDelta implements combat.Health.
func (r *Roster) ApplyHealthDelta(id string, health, stress, aggravated float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fighters[id]
	if !ok {
		return fmt.Errorf("apply health delta to %s: %w", id, ErrNotFound)
	}
	before := f.vitals.Condition()
	f.vitals.Cur += health
	if f.vitals.Cur > f.vitals.Max {
		f.vitals.Cur = f.vitals.Max
	}
	f.vitals.Stress += stress
	f.vitals.AggravatedStress += aggravated

	if after := f.vitals.Condition(); after != before {
		r.logger.Info("fighter condition changed",
			zap.String("fighter", id),
			zap.Stringer("from", before),
			zap.Stringer("to", after),
			zap.Float64("health", f.vitals.Cur),
		)
	}
	return nil
}

// Rank implements combat.Ranks. A skill the fighter never trained ranks 0.
func (r *Roster) Rank(id string, skill combat.Skill) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fighters[id]
	if !ok {
		return 0, fmt.Errorf("rank %s for %s: %w", skill, id, ErrNotFound)
	}
	return f.ranks[skill], nil
}
