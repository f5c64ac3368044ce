package combat

// Condition is the survival state of an entity as reported by the health
// subsystem. The engine only reads it to decide whether a target can still be
// hit.
type Condition int

const (
	ConditionHealthy Condition = iota
	ConditionWounded
	ConditionIncapacitated
	ConditionDead
)

// IsTerminal reports whether the entity can no longer take part in combat.
func (c Condition) IsTerminal() bool {
	return c >= ConditionIncapacitated
}

func (c Condition) String() string {
	switch c {
	case ConditionHealthy:
		return "HEALTHY"
	case ConditionWounded:
		return "WOUNDED"
	case ConditionIncapacitated:
		return "INCAPACITATED"
	case ConditionDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Health is the survival subsystem as seen from combat.
type Health interface {
	Exists(id string) bool
	Condition(id string) Condition
	// ApplyHealthDelta adds the deltas to the entity. Damage is a negative
	// health delta; stress deltas are positive.
	ApplyHealthDelta(id string, health, stress, aggravatedStress float64) error
}

// Skill names a rank the contest reads.
type Skill string

const (
	SkillMartialArts Skill = "martial_arts"
	SkillEvasion     Skill = "evasion"
)

// Ranks looks up skill ranks from the experience subsystem.
type Ranks interface {
	Rank(id string, skill Skill) (float64, error)
}

// ContestFunc converts opposing ranks into a damage multiplier. It must be
// increasing in attackerRank and decreasing in defenderRank.
type ContestFunc func(attackerRank, defenderRank float64) (float64, error)

// PainFunc returns the pain multiplier applied to source's hit on target.
type PainFunc func(source, target string) float64

// ConstantPain returns a PainFunc that always yields m.
func ConstantPain(m float64) PainFunc {
	return func(string, string) float64 { return m }
}
