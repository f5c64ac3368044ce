package rules

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType indicates the category of a combat event.
type EventType string

const (
	// Intent events
	EventAttackBegun EventType = "ATTACK_BEGUN"
	EventBlockBegun  EventType = "BLOCK_BEGUN"
	EventInterrupt   EventType = "INTERRUPT"

	// Timer events
	EventGuardLapsed EventType = "GUARD_LAPSED"
	EventStunEnded   EventType = "STUN_ENDED"

	// Resolution events
	EventAttackBlocked EventType = "ATTACK_BLOCKED"
	EventAttackLanded  EventType = "ATTACK_LANDED"
	EventDefensiveProc EventType = "DEFENSIVE_PROC"
	EventOffensiveProc EventType = "OFFENSIVE_PROC"
)

// Interrupt reasons carried in Event.Data.
const (
	InterruptRestart = "restart" // a new attack replaced the pending one
	InterruptBlock   = "block"   // the attacker raised a guard
	InterruptCancel  = "cancel"  // explicit cancel (death, disconnect, command layer)
	InterruptFailure = "failure" // a collaborator failed during resolution
)

// IsOutcome reports whether the event is a resolution outcome, as opposed to
// an intent or timer bookkeeping event.
func (et EventType) IsOutcome() bool {
	switch et {
	case EventAttackBlocked, EventAttackLanded, EventDefensiveProc, EventOffensiveProc:
		return true
	default:
		return false
	}
}

// IsProc reports whether the event is a proc.
func (et EventType) IsProc() bool {
	return et == EventDefensiveProc || et == EventOffensiveProc
}

// Event represents a combat state change that other subsystems may react to.
// Source is always the attacking (or acting) fighter and Target the fighter
// the action was aimed at, including for defensive procs.
type Event struct {
	Type        EventType
	ID          string            // Unique event ID
	SourceID    string            // Acting fighter
	TargetID    string            // Fighter acted upon (may be empty)
	Amount      float64           // Damage dealt, when relevant
	Data        string            // Additional string data (interrupt reason)
	Timestamp   time.Time         // Engine time the event happened at
	Metadata    map[string]string // Additional metadata
	Description string            // Human-readable description
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener              // All listeners
	order          []int                         // Subscription order of listeners
	typedListeners map[EventType][]TypedListener // Listeners filtered by event type
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	bus.order = append(bus.order, handle)
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	listener := TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	}
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], listener)
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered with Subscribe or SubscribeTyped.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if _, ok := bus.listeners[handle]; ok {
		delete(bus.listeners, handle)
		for i, h := range bus.order {
			if h == handle {
				bus.order = append(bus.order[:i], bus.order[i+1:]...)
				break
			}
		}
		return
	}
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
// Untyped listeners run first, in subscription order, then typed listeners.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, handle := range bus.order {
		bus.listeners[handle](event)
	}

	if typedListeners, ok := bus.typedListeners[event.Type]; ok {
		for _, listener := range typedListeners {
			listener.Callback(event)
		}
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, sourceID, targetID string, at time.Time) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		TargetID:  targetID,
		Timestamp: at,
		Metadata:  make(map[string]string),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, sourceID, targetID string, at time.Time, amount float64) Event {
	evt := NewEvent(eventType, sourceID, targetID, at)
	evt.Amount = amount
	return evt
}

// NewInterrupt creates an interrupt event for source's swing at target.
func NewInterrupt(sourceID, targetID string, at time.Time, reason string) Event {
	evt := NewEvent(EventInterrupt, sourceID, targetID, at)
	evt.Data = reason
	return evt
}
