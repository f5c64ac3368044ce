package combat

import (
	"fmt"
	"math"
	"time"

	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// OutcomeKind classifies how a matured swing resolved.
type OutcomeKind int

const (
	OutcomeAborted OutcomeKind = iota // a fighter is gone or terminal; nothing happened
	OutcomeBlocked
	OutcomeLanded
	OutcomeFailed // a collaborator failed; the swing counts as cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAborted:
		return "ABORTED"
	case OutcomeBlocked:
		return "BLOCKED"
	case OutcomeLanded:
		return "LANDED"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Outcome summarises one resolution.
type Outcome struct {
	Kind      OutcomeKind
	Source    string
	Target    string
	Damage    float64
	Stress    float64 // stress applied to the attacker (blocked) or the target (landed)
	Amplified bool
	Proc      bool
	Err       error
}

// Resolver turns matured swings into outcomes.
type Resolver struct {
	cfg       Config
	store     *Store
	scheduler *Scheduler
	procs     *ProcTracker
	rng       Rand
	health    Health
	ranks     Ranks
	contest   ContestFunc
	pain      PainFunc
	emit      func(rules.Event)
	logger    *zap.Logger
}

// Resolve applies the outcome of source's swing. The caller holds the engine
// lock and has already removed the PendingAttack.
func (r *Resolver) Resolve(source string, attack PendingAttack, now time.Time) Outcome {
	target := attack.Target
	out := Outcome{Source: source, Target: target}

	if !r.active(target) || !r.active(source) {
		r.logger.Debug("resolution aborted",
			zap.String("source", source),
			zap.String("target", target),
		)
		out.Kind = OutcomeAborted
		return out
	}

	if tf, ok := r.store.Get(target); ok {
		r.scheduler.Settle(tf, now)
		if tf.Defending != nil && tf.Defending.Phase == PhaseActive {
			return r.blocked(source, tf, now, out)
		}
	}
	return r.landed(source, target, now, out)
}

// active reports whether the fighter still exists and can take part.
func (r *Resolver) active(id string) bool {
	return r.health.Exists(id) && !r.health.Condition(id).IsTerminal()
}

func (r *Resolver) blocked(source string, defender *Fighter, now time.Time, out Outcome) Outcome {
	stress := drawStress(r.rng, r.cfg.BlockedStress)
	if err := r.health.ApplyHealthDelta(source, 0, stress, 0); err != nil {
		return r.fail(out, now, fmt.Errorf("apply blocked stress to %s: %w", source, err))
	}
	r.scheduler.ConsumeGuard(defender)

	out.Kind = OutcomeBlocked
	out.Stress = stress

	elapsed := r.procs.Elapsed(defender.ID, ProcDefensive, now)
	if ShouldProc(r.rng, r.cfg.DefensiveProcPPM, elapsed) {
		out.Proc = true
		r.scheduler.Stun(r.store.Ensure(source), now)
		evt := rules.NewEvent(rules.EventDefensiveProc, source, defender.ID, now)
		evt.Metadata["proc_owner"] = defender.ID
		r.emit(evt)
	}

	r.logger.Debug("attack blocked",
		zap.String("source", source),
		zap.String("target", defender.ID),
		zap.Float64("stress", stress),
		zap.Bool("stunned", out.Proc),
	)
	r.emit(rules.NewEvent(rules.EventAttackBlocked, source, defender.ID, now))
	r.store.Prune(defender.ID)
	return out
}

func (r *Resolver) landed(source, target string, now time.Time, out Outcome) Outcome {
	attackerRank, err := r.ranks.Rank(source, SkillMartialArts)
	if err != nil {
		return r.fail(out, now, fmt.Errorf("rank %s for %s: %w", SkillMartialArts, source, err))
	}
	defenderRank, err := r.ranks.Rank(target, SkillEvasion)
	if err != nil {
		return r.fail(out, now, fmt.Errorf("rank %s for %s: %w", SkillEvasion, target, err))
	}
	skillMult, err := r.contest(attackerRank, defenderRank)
	if err != nil {
		return r.fail(out, now, fmt.Errorf("contest: %w", err))
	}
	if math.IsNaN(skillMult) || math.IsInf(skillMult, 0) || skillMult < 0 {
		return r.fail(out, now, fmt.Errorf("contest returned invalid multiplier %v", skillMult))
	}

	pain := r.pain(source, target)
	if math.IsNaN(pain) || math.IsInf(pain, 0) || pain < 0 {
		return r.fail(out, now, fmt.Errorf("pain returned invalid multiplier %v", pain))
	}

	damage := skillMult * pain * r.cfg.BaseDamage
	// The amplifier is only spent on a hit that deals damage.
	sf, _ := r.store.Get(source)
	amplified := sf != nil && sf.Amplifier != nil && damage > 0
	if amplified {
		damage *= 2
	}
	stress := drawStress(r.rng, r.cfg.LandedStress)

	if err := r.health.ApplyHealthDelta(target, -damage, stress, r.cfg.AggravatedStress); err != nil {
		return r.fail(out, now, fmt.Errorf("apply damage to %s: %w", target, err))
	}
	if amplified {
		sf.Amplifier = nil
	}

	out.Kind = OutcomeLanded
	out.Damage = damage
	out.Stress = stress
	out.Amplified = amplified

	elapsed := r.procs.Elapsed(source, ProcOffensive, now)
	if ShouldProc(r.rng, r.cfg.OffensiveProcPPM, elapsed) {
		out.Proc = true
		r.store.Ensure(source).Amplifier = &DamageAmplifier{GrantedAt: now}
		evt := rules.NewEvent(rules.EventOffensiveProc, source, target, now)
		evt.Metadata["proc_owner"] = source
		r.emit(evt)
	}

	r.logger.Debug("attack landed",
		zap.String("source", source),
		zap.String("target", target),
		zap.Float64("damage", damage),
		zap.Float64("stress", stress),
		zap.Bool("amplified", amplified),
	)
	evt := rules.NewEventWithAmount(rules.EventAttackLanded, source, target, now, damage)
	if amplified {
		evt.Metadata["amplified"] = "true"
	}
	r.emit(evt)
	return out
}

// fail reports the swing as cancelled. Nothing has been mutated yet when it is
// called, so a retry cannot double-apply.
func (r *Resolver) fail(out Outcome, now time.Time, err error) Outcome {
	r.logger.Warn("resolution failed; swing cancelled",
		zap.String("source", out.Source),
		zap.String("target", out.Target),
		zap.Error(err),
	)
	out.Kind = OutcomeFailed
	out.Err = err
	r.emit(rules.NewInterrupt(out.Source, out.Target, now, rules.InterruptFailure))
	return out
}

func drawStress(rng Rand, sr StressRange) float64 {
	if sr.Max <= sr.Min {
		return float64(sr.Min)
	}
	return float64(sr.Min + rng.IntN(sr.Max-sr.Min+1))
}
