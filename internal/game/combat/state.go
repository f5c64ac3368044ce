package combat

import "time"

// DefendPhase is the phase of a Defending record.
type DefendPhase int

const (
	PhaseActive DefendPhase = iota
	PhaseRecovery
)

func (p DefendPhase) String() string {
	switch p {
	case PhaseActive:
		return "ACTIVE"
	case PhaseRecovery:
		return "RECOVERY"
	default:
		return "UNKNOWN"
	}
}

// PendingAttack is a swing in its windup. Target is a weak reference used
// only to look the defender up at maturation.
type PendingAttack struct {
	ID         string
	Target     string
	ArmedAt    time.Time
	ResolvesAt time.Time
}

// Defending is a raised guard or the recovery after one lapsed.
type Defending struct {
	Phase     DefendPhase
	EnteredAt time.Time
	ExpiresAt time.Time
}

// Stunned locks a fighter out of new intents until ExpiresAt.
type Stunned struct {
	ExpiresAt time.Time
}

// DamageAmplifier doubles the next hit its owner lands. It never expires.
type DamageAmplifier struct {
	GrantedAt time.Time
}

// Fighter holds at most one of each combat record.
type Fighter struct {
	ID        string
	Pending   *PendingAttack
	Defending *Defending
	Stunned   *Stunned
	Amplifier *DamageAmplifier
}

// Idle reports whether the fighter holds no records at all.
func (f *Fighter) Idle() bool {
	return f.Pending == nil && f.Defending == nil && f.Stunned == nil && f.Amplifier == nil
}

// Stance is the narration-facing summary of a fighter's records.
type Stance string

const (
	StanceIdle       Stance = "idle"
	StanceWindingUp  Stance = "winding_up"
	StanceGuarding   Stance = "guarding"
	StanceRecovering Stance = "recovering"
	StanceStunned    Stance = "stunned"
)

// Stance derives the dominant stance. A stun outranks everything, then an
// active guard, then a windup, then guard recovery.
func (f *Fighter) Stance() Stance {
	switch {
	case f.Stunned != nil:
		return StanceStunned
	case f.Defending != nil && f.Defending.Phase == PhaseActive:
		return StanceGuarding
	case f.Pending != nil:
		return StanceWindingUp
	case f.Defending != nil:
		return StanceRecovering
	default:
		return StanceIdle
	}
}

// FighterView is a copy of a fighter's records, safe to hand out.
type FighterView struct {
	ID           string
	Stance       Stance
	Pending      *PendingAttack
	Defending    *Defending
	Stunned      *Stunned
	HasAmplifier bool
}

// View copies the fighter's records.
func (f *Fighter) View() FighterView {
	v := FighterView{
		ID:           f.ID,
		Stance:       f.Stance(),
		HasAmplifier: f.Amplifier != nil,
	}
	if f.Pending != nil {
		p := *f.Pending
		v.Pending = &p
	}
	if f.Defending != nil {
		d := *f.Defending
		v.Defending = &d
	}
	if f.Stunned != nil {
		s := *f.Stunned
		v.Stunned = &s
	}
	return v
}

// Store maps fighter IDs to their records. It is plain data and is not safe
// for concurrent use; the Engine serializes access.
type Store struct {
	fighters map[string]*Fighter
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{fighters: make(map[string]*Fighter)}
}

// Get returns the fighter's records if any exist.
func (s *Store) Get(id string) (*Fighter, bool) {
	f, ok := s.fighters[id]
	return f, ok
}

// Ensure returns the fighter's records, creating an empty entry if needed.
func (s *Store) Ensure(id string) *Fighter {
	f, ok := s.fighters[id]
	if !ok {
		f = &Fighter{ID: id}
		s.fighters[id] = f
	}
	return f
}

// Discard drops every record the fighter holds.
func (s *Store) Discard(id string) {
	delete(s.fighters, id)
}

// Prune drops the fighter's entry if it holds no records.
func (s *Store) Prune(id string) {
	if f, ok := s.fighters[id]; ok && f.Idle() {
		delete(s.fighters, id)
	}
}
