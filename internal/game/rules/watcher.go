package rules

import (
	"sync"
)

// WatcherScope defines the scope of a watcher's tracking.
type WatcherScope int

const (
	// WatcherScopeEncounter tracks events for the whole encounter.
	WatcherScopeEncounter WatcherScope = iota
	// WatcherScopeFighter tracks events involving a single fighter.
	WatcherScopeFighter
)

// String returns the string representation of the watcher scope.
func (ws WatcherScope) String() string {
	switch ws {
	case WatcherScopeEncounter:
		return "ENCOUNTER"
	case WatcherScopeFighter:
		return "FIGHTER"
	default:
		return "UNKNOWN"
	}
}

// Watcher is an interface for objects that watch combat events and track conditions.
type Watcher interface {
	// Watch is called for every event published while the watcher is registered.
	Watch(event Event)

	// Reset clears the watcher's condition and state.
	Reset()

	// ConditionMet returns true if the condition this watcher tracks has been met.
	ConditionMet() bool

	// GetScope returns the scope of this watcher.
	GetScope() WatcherScope

	// GetKey returns a unique key for this watcher instance.
	// For ENCOUNTER scope this is the watcher name, for FIGHTER scope the
	// fighter ID joined with the watcher name.
	GetKey() string

	// Copy creates a deep copy of this watcher.
	Copy() Watcher
}

// BaseWatcher provides a base implementation for watchers.
type BaseWatcher struct {
	scope     WatcherScope
	fighterID string
	condition bool
	key       string
}

// NewBaseWatcher creates a new base watcher with the specified scope.
func NewBaseWatcher(scope WatcherScope) *BaseWatcher {
	return &BaseWatcher{
		scope: scope,
	}
}

// GetScope returns the watcher's scope.
func (bw *BaseWatcher) GetScope() WatcherScope {
	return bw.scope
}

// SetFighterID sets the fighter a FIGHTER scope watcher follows.
func (bw *BaseWatcher) SetFighterID(id string) {
	bw.fighterID = id
}

// GetFighterID returns the followed fighter ID.
func (bw *BaseWatcher) GetFighterID() string {
	return bw.fighterID
}

// ConditionMet returns whether the condition has been met.
func (bw *BaseWatcher) ConditionMet() bool {
	return bw.condition
}

// SetCondition sets the condition flag.
func (bw *BaseWatcher) SetCondition(condition bool) {
	bw.condition = condition
}

// Reset clears the condition.
func (bw *BaseWatcher) Reset() {
	bw.condition = false
}

// GetKey returns the unique key for this watcher.
func (bw *BaseWatcher) GetKey() string {
	return bw.key
}

// SetKey sets the unique key for this watcher.
func (bw *BaseWatcher) SetKey(key string) {
	bw.key = key
}

// Involves reports whether the event names fighterID as source or target.
func Involves(event Event, fighterID string) bool {
	return fighterID != "" && (event.SourceID == fighterID || event.TargetID == fighterID)
}

// WatcherRegistry manages the watchers of one encounter.
type WatcherRegistry struct {
	mu       sync.RWMutex
	watchers map[string]Watcher // key -> watcher
	byScope  map[WatcherScope][]Watcher
}

// NewWatcherRegistry creates a new watcher registry.
func NewWatcherRegistry() *WatcherRegistry {
	return &WatcherRegistry{
		watchers: make(map[string]Watcher),
		byScope:  make(map[WatcherScope][]Watcher),
	}
}

// AddWatcher adds a watcher to the registry. A watcher without a key gets one
// derived from its scope. Adding a second watcher under an existing key
// replaces the first.
func (wr *WatcherRegistry) AddWatcher(watcher Watcher) {
	if watcher == nil {
		return
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	key := watcher.GetKey()
	if key == "" {
		key = generateKey(watcher)
		if setter, ok := watcher.(interface{ SetKey(string) }); ok {
			setter.SetKey(key)
		}
	}

	if old, ok := wr.watchers[key]; ok {
		wr.removeFromScope(old.GetScope(), key)
	}
	wr.watchers[key] = watcher
	scope := watcher.GetScope()
	wr.byScope[scope] = append(wr.byScope[scope], watcher)
}

// RemoveWatcher removes a watcher from the registry.
func (wr *WatcherRegistry) RemoveWatcher(key string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	watcher, ok := wr.watchers[key]
	if !ok {
		return
	}
	delete(wr.watchers, key)
	wr.removeFromScope(watcher.GetScope(), key)
}

func (wr *WatcherRegistry) removeFromScope(scope WatcherScope, key string) {
	watchers := wr.byScope[scope]
	for i, w := range watchers {
		if w.GetKey() == key {
			wr.byScope[scope] = append(watchers[:i], watchers[i+1:]...)
			return
		}
	}
}

// GetWatcher retrieves a watcher by key.
func (wr *WatcherRegistry) GetWatcher(key string) Watcher {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.watchers[key]
}

// GetWatchersByScope returns all watchers for a given scope.
func (wr *WatcherRegistry) GetWatchersByScope(scope WatcherScope) []Watcher {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	watchers := wr.byScope[scope]
	result := make([]Watcher, len(watchers))
	copy(result, watchers)
	return result
}

// NotifyWatchers notifies all watchers of an event. FIGHTER scope watchers
// only see events that involve their fighter.
func (wr *WatcherRegistry) NotifyWatchers(event Event) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	for _, watcher := range wr.byScope[WatcherScopeEncounter] {
		watcher.Watch(event)
	}
	for _, watcher := range wr.byScope[WatcherScopeFighter] {
		if getter, ok := watcher.(interface{ GetFighterID() string }); ok {
			if !Involves(event, getter.GetFighterID()) {
				continue
			}
		}
		watcher.Watch(event)
	}
}

// Attach subscribes the registry to bus and returns the subscription handle.
func (wr *WatcherRegistry) Attach(bus *EventBus) int {
	return bus.Subscribe(wr.NotifyWatchers)
}

func generateKey(watcher Watcher) string {
	if watcher.GetScope() == WatcherScopeFighter {
		if getter, ok := watcher.(interface{ GetFighterID() string }); ok {
			if id := getter.GetFighterID(); id != "" {
				return id + "_Watcher"
			}
		}
	}
	return "Watcher"
}
