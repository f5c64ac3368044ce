package watchers

import (
	"sort"
	"sync"

	"github.com/thraizz/yomi-server-go/internal/game/rules"
)

// Tally is one fighter's running combat record.
type Tally struct {
	Swings      int     `json:"swings"`
	Landed      int     `json:"landed"`
	Blocked     int     `json:"blocked"`  // own swings that were blocked
	Absorbed    int     `json:"absorbed"` // enemy swings this fighter blocked
	Interrupted int     `json:"interrupted"`
	Procs       int     `json:"procs"`
	DamageDealt float64 `json:"damage_dealt"`
	DamageTaken float64 `json:"damage_taken"`
}

// TallyWatcher keeps a Tally per fighter for the whole encounter. Reads are
// safe while the bus is publishing.
type TallyWatcher struct {
	*rules.BaseWatcher
	mu      sync.RWMutex
	tallies map[string]*Tally // fighterID -> tally
}

// NewTallyWatcher creates a new tally watcher.
func NewTallyWatcher() *TallyWatcher {
	w := &TallyWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeEncounter),
		tallies:     make(map[string]*Tally),
	}
	w.SetKey("TallyWatcher")
	return w
}

// Watch implements the Watcher interface.
func (w *TallyWatcher) Watch(event rules.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch event.Type {
	case rules.EventAttackBegun:
		w.tally(event.SourceID).Swings++
	case rules.EventAttackLanded:
		w.tally(event.SourceID).Landed++
		w.tally(event.SourceID).DamageDealt += event.Amount
		w.tally(event.TargetID).DamageTaken += event.Amount
	case rules.EventAttackBlocked:
		w.tally(event.SourceID).Blocked++
		w.tally(event.TargetID).Absorbed++
	case rules.EventInterrupt:
		w.tally(event.SourceID).Interrupted++
	case rules.EventOffensiveProc, rules.EventDefensiveProc:
		owner := event.Metadata["proc_owner"]
		if owner == "" {
			owner = event.SourceID
		}
		w.tally(owner).Procs++
	default:
		return
	}
	w.SetCondition(true)
}

func (w *TallyWatcher) tally(id string) *Tally {
	t, ok := w.tallies[id]
	if !ok {
		t = &Tally{}
		w.tallies[id] = t
	}
	return t
}

// Reset clears the watcher's state.
func (w *TallyWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.BaseWatcher.Reset()
	w.tallies = make(map[string]*Tally)
}

// Tally returns a copy of the fighter's record.
func (w *TallyWatcher) Tally(fighterID string) Tally {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if t, ok := w.tallies[fighterID]; ok {
		return *t
	}
	return Tally{}
}

// Fighters returns every fighter with a record, sorted.
func (w *TallyWatcher) Fighters() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.tallies))
	for id := range w.tallies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Copy creates a copy of this watcher.
func (w *TallyWatcher) Copy() rules.Watcher {
	w.mu.RLock()
	defer w.mu.RUnlock()
	copy := NewTallyWatcher()
	copy.SetCondition(w.ConditionMet())
	for k, v := range w.tallies {
		t := *v
		copy.tallies[k] = &t
	}
	return copy
}

// ProcsWatcher counts procs by owner and kind.
type ProcsWatcher struct {
	*rules.BaseWatcher
	mu        sync.RWMutex
	offensive map[string]int // ownerID -> count
	defensive map[string]int // ownerID -> count
}

// NewProcsWatcher creates a new procs watcher.
func NewProcsWatcher() *ProcsWatcher {
	w := &ProcsWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeEncounter),
		offensive:   make(map[string]int),
		defensive:   make(map[string]int),
	}
	w.SetKey("ProcsWatcher")
	return w
}

// Watch implements the Watcher interface.
func (w *ProcsWatcher) Watch(event rules.Event) {
	if !event.Type.IsProc() {
		return
	}
	owner := event.Metadata["proc_owner"]
	if owner == "" {
		owner = event.SourceID
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if event.Type == rules.EventOffensiveProc {
		w.offensive[owner]++
	} else {
		w.defensive[owner]++
	}
	w.SetCondition(true)
}

// Reset clears the watcher's state.
func (w *ProcsWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.BaseWatcher.Reset()
	w.offensive = make(map[string]int)
	w.defensive = make(map[string]int)
}

// GetOffensive returns how many damage amplifiers the fighter earned.
func (w *ProcsWatcher) GetOffensive(ownerID string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.offensive[ownerID]
}

// GetDefensive returns how many stuns the fighter's guard inflicted.
func (w *ProcsWatcher) GetDefensive(ownerID string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.defensive[ownerID]
}

// GetTotal returns the number of procs of either kind.
func (w *ProcsWatcher) GetTotal() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	total := 0
	for _, count := range w.offensive {
		total += count
	}
	for _, count := range w.defensive {
		total += count
	}
	return total
}

// Copy creates a copy of this watcher.
func (w *ProcsWatcher) Copy() rules.Watcher {
	w.mu.RLock()
	defer w.mu.RUnlock()
	copy := NewProcsWatcher()
	copy.SetCondition(w.ConditionMet())
	for k, v := range w.offensive {
		copy.offensive[k] = v
	}
	for k, v := range w.defensive {
		copy.defensive[k] = v
	}
	return copy
}

// StunnedWatcher follows one fighter and notes when a blocked swing stunned it.
type StunnedWatcher struct {
	*rules.BaseWatcher
	mu    sync.RWMutex
	stuns int
}

// NewStunnedWatcher creates a watcher following fighterID.
func NewStunnedWatcher(fighterID string) *StunnedWatcher {
	w := &StunnedWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeFighter),
	}
	w.SetFighterID(fighterID)
	w.SetKey(StunnedWatcherKey(fighterID))
	return w
}

// StunnedWatcherKey is the registry key of fighterID's StunnedWatcher.
func StunnedWatcherKey(fighterID string) string {
	return fighterID + "_StunnedWatcher"
}

// Watch implements the Watcher interface.
func (w *StunnedWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventDefensiveProc || event.SourceID != w.GetFighterID() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stuns++
	w.SetCondition(true)
}

// Reset clears the watcher's state.
func (w *StunnedWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.BaseWatcher.Reset()
	w.stuns = 0
}

// GetCount returns how many times the fighter was stunned.
func (w *StunnedWatcher) GetCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stuns
}

// Copy creates a copy of this watcher.
func (w *StunnedWatcher) Copy() rules.Watcher {
	w.mu.RLock()
	defer w.mu.RUnlock()
	copy := NewStunnedWatcher(w.GetFighterID())
	copy.SetCondition(w.ConditionMet())
	copy.stuns = w.stuns
	return copy
}
