package combat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thraizz/yomi-server-go/internal/game/clock"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// fighterTimers are the wake-ups armed for one fighter.
type fighterTimers struct {
	attack clock.Timer
	guard  clock.Timer
	stun   clock.Timer
}

// Scheduler owns the windup, guard and stun timers and the state transitions
// they drive.
//
// Every exported method expects the caller to hold lock. Timer callbacks
// acquire lock themselves, so a callback and an intent for the same fighter
// never interleave. Whichever gets the lock first wins: an intent that
// cancels a swing before its maturation callback runs removes the
// PendingAttack, and the callback then finds a different (or no) record and
// does nothing.
type Scheduler struct {
	cfg       Config
	lock      sync.Locker
	clock     clock.Clock
	store     *Store
	emit      func(rules.Event)
	onMatured func(source string, attack PendingAttack)
	logger    *zap.Logger

	timers map[string]*fighterTimers
	closed bool
}

// NewScheduler creates a scheduler. onMatured is invoked with lock held once
// a swing's windup completes.
func NewScheduler(
	cfg Config,
	lock sync.Locker,
	clk clock.Clock,
	store *Store,
	emit func(rules.Event),
	onMatured func(source string, attack PendingAttack),
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		lock:      lock,
		clock:     clk,
		store:     store,
		emit:      emit,
		onMatured: onMatured,
		logger:    logger,
		timers:    make(map[string]*fighterTimers),
	}
}

// BeginAttack starts a swing from source at target. A swing already in its
// windup is interrupted first; no windup progress carries over.
func (s *Scheduler) BeginAttack(source, target string) error {
	if source == "" || target == "" {
		return ErrUnknownFighter
	}
	if source == target {
		return ErrSelfTarget
	}

	now := s.clock.Now()
	f, exists := s.store.Get(source)
	if exists {
		s.settle(f, now)
		if f.Stunned != nil {
			return fmt.Errorf("attack %s: %w", target, ErrStunned)
		}
		if f.Pending != nil {
			s.cancel(f, rules.InterruptRestart, now)
		}
	} else {
		f = s.store.Ensure(source)
	}

	attack := &PendingAttack{
		ID:         uuid.NewString(),
		Target:     target,
		ArmedAt:    now,
		ResolvesAt: now.Add(s.cfg.AttackWindup),
	}
	f.Pending = attack

	id := attack.ID
	s.timersFor(source).attack = s.clock.AfterFunc(s.cfg.AttackWindup, func() {
		s.matureAttack(source, id)
	})

	s.logger.Debug("attack begun",
		zap.String("source", source),
		zap.String("target", target),
		zap.Time("resolves_at", attack.ResolvesAt),
	)
	s.emit(rules.NewEvent(rules.EventAttackBegun, source, target, now))
	return nil
}

// BeginBlock raises source's guard immediately. It aborts source's own swing.
func (s *Scheduler) BeginBlock(source string) error {
	if source == "" {
		return ErrUnknownFighter
	}

	now := s.clock.Now()
	f, exists := s.store.Get(source)
	if exists {
		s.settle(f, now)
		if f.Stunned != nil {
			return fmt.Errorf("block: %w", ErrStunned)
		}
		if f.Defending != nil {
			return fmt.Errorf("block (%s): %w", f.Defending.Phase, ErrAlreadyDefending)
		}
		if f.Pending != nil {
			s.cancel(f, rules.InterruptBlock, now)
		}
	} else {
		f = s.store.Ensure(source)
	}

	f.Defending = &Defending{
		Phase:     PhaseActive,
		EnteredAt: now,
		ExpiresAt: now.Add(s.cfg.BlockActive),
	}
	s.armGuard(source, f.Defending.ExpiresAt, now)

	s.logger.Debug("block begun",
		zap.String("source", source),
		zap.Time("expires_at", f.Defending.ExpiresAt),
	)
	s.emit(rules.NewEvent(rules.EventBlockBegun, source, "", now))
	return nil
}

// CancelPending removes source's swing, if any. It reports whether a swing
// was cancelled; calling it again is a no-op.
func (s *Scheduler) CancelPending(source string) bool {
	f, ok := s.store.Get(source)
	if !ok || f.Pending == nil {
		return false
	}
	s.cancel(f, rules.InterruptCancel, s.clock.Now())
	s.store.Prune(source)
	return true
}

// ConsumeGuard removes an active guard that just absorbed a swing. A consumed
// guard carries no recovery.
func (s *Scheduler) ConsumeGuard(f *Fighter) {
	f.Defending = nil
	if t := s.timers[f.ID]; t != nil && t.guard != nil {
		t.guard.Stop()
		t.guard = nil
	}
}

// Stun locks source out of intents for the stun duration, starting at now.
func (s *Scheduler) Stun(f *Fighter, now time.Time) {
	f.Stunned = &Stunned{ExpiresAt: now.Add(s.cfg.StunDuration)}
	timers := s.timersFor(f.ID)
	if timers.stun != nil {
		timers.stun.Stop()
	}
	id := f.ID
	timers.stun = s.clock.AfterFunc(f.Stunned.ExpiresAt.Sub(now), func() {
		s.wake(id)
	})
}

// Settle applies every timed transition that is due for the fighter.
func (s *Scheduler) Settle(f *Fighter, now time.Time) {
	s.settle(f, now)
}

// Forget stops the fighter's timers.
func (s *Scheduler) Forget(id string) {
	if t, ok := s.timers[id]; ok {
		stopAll(t)
		delete(s.timers, id)
	}
}

// Close stops every timer. Callbacks already running become no-ops.
func (s *Scheduler) Close() {
	s.closed = true
	for id, t := range s.timers {
		stopAll(t)
		delete(s.timers, id)
	}
}

func stopAll(t *fighterTimers) {
	for _, timer := range []clock.Timer{t.attack, t.guard, t.stun} {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Scheduler) timersFor(id string) *fighterTimers {
	t, ok := s.timers[id]
	if !ok {
		t = &fighterTimers{}
		s.timers[id] = t
	}
	return t
}

func (s *Scheduler) cancel(f *Fighter, reason string, now time.Time) {
	attack := f.Pending
	f.Pending = nil
	if t := s.timers[f.ID]; t != nil && t.attack != nil {
		t.attack.Stop()
		t.attack = nil
	}
	s.logger.Debug("attack interrupted",
		zap.String("source", f.ID),
		zap.String("target", attack.Target),
		zap.String("reason", reason),
	)
	s.emit(rules.NewInterrupt(f.ID, attack.Target, now, reason))
}

// armGuard arms the wake-up for a guard phase ending at expiresAt.
func (s *Scheduler) armGuard(id string, expiresAt, now time.Time) {
	timers := s.timersFor(id)
	if timers.guard != nil {
		timers.guard.Stop()
	}
	timers.guard = s.clock.AfterFunc(expiresAt.Sub(now), func() {
		s.wake(id)
	})
}

func (s *Scheduler) matureAttack(source, id string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	f, ok := s.store.Get(source)
	if !ok || f.Pending == nil || f.Pending.ID != id {
		// Cancelled or replaced before this callback got the lock.
		return
	}
	attack := *f.Pending
	f.Pending = nil
	if t := s.timers[source]; t != nil {
		t.attack = nil
	}

	s.logger.Debug("attack matured",
		zap.String("source", source),
		zap.String("target", attack.Target),
	)
	s.onMatured(source, attack)
	s.store.Prune(source)
}

func (s *Scheduler) wake(id string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	f, ok := s.store.Get(id)
	if !ok {
		return
	}
	s.settle(f, s.clock.Now())
	s.store.Prune(id)
}

// settle applies the guard and stun transitions due at or before now. Windows
// are half-open: a guard expiring at t no longer absorbs a swing maturing at t.
// Transition events carry the instant the window actually ended.
func (s *Scheduler) settle(f *Fighter, now time.Time) {
	if f.Stunned != nil && !now.Before(f.Stunned.ExpiresAt) {
		ended := f.Stunned.ExpiresAt
		f.Stunned = nil
		if t := s.timers[f.ID]; t != nil && t.stun != nil {
			t.stun.Stop()
			t.stun = nil
		}
		s.emit(rules.NewEvent(rules.EventStunEnded, f.ID, "", ended))
	}

	d := f.Defending
	if d == nil {
		return
	}
	lapsed := false
	if d.Phase == PhaseActive && !now.Before(d.ExpiresAt) {
		lapsed = true
		d.Phase = PhaseRecovery
		d.EnteredAt = d.ExpiresAt
		d.ExpiresAt = d.EnteredAt.Add(s.cfg.BlockRecovery)
		s.emit(rules.NewEvent(rules.EventGuardLapsed, f.ID, "", d.EnteredAt))
	}
	if d.Phase == PhaseRecovery && !now.Before(d.ExpiresAt) {
		f.Defending = nil
		if t := s.timers[f.ID]; t != nil && t.guard != nil {
			t.guard.Stop()
			t.guard = nil
		}
		return
	}
	if lapsed {
		s.armGuard(f.ID, d.ExpiresAt, now)
	}
}
