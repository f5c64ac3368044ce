package game

import (
	"fmt"
	"sort"
	"sync"

	"github.com/thraizz/yomi-server-go/internal/config"
	"go.uber.org/zap"
)

// Manager owns the running encounters.
type Manager struct {
	logger *zap.Logger

	mu         sync.RWMutex
	encounters map[string]*Encounter
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:     logger,
		encounters: make(map[string]*Encounter),
	}
}

// StartEncounter creates and registers an encounter.
func (m *Manager) StartEncounter(id string, cfg config.CombatConfig, opts EncounterOptions) (*Encounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.encounters[id]; exists {
		return nil, fmt.Errorf("encounter %s already running", id)
	}
	enc, err := NewEncounter(id, cfg, opts, m.logger)
	if err != nil {
		return nil, err
	}
	m.encounters[id] = enc

	m.logger.Info("encounter started", zap.String("encounter_id", id))
	return enc, nil
}

// Get returns a running encounter.
func (m *Manager) Get(id string) (*Encounter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	enc, ok := m.encounters[id]
	return enc, ok
}

// ProcessAction routes the action to the encounter.
func (m *Manager) ProcessAction(encounterID string, action Action) error {
	enc, ok := m.Get(encounterID)
	if !ok {
		return fmt.Errorf("encounter %s not found", encounterID)
	}
	return enc.ProcessAction(action)
}

// EndEncounter stops an encounter's timers and forgets it.
func (m *Manager) EndEncounter(id string) error {
	m.mu.Lock()
	enc, ok := m.encounters[id]
	delete(m.encounters, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("encounter %s not found", id)
	}
	enc.Close()

	m.logger.Info("encounter ended", zap.String("encounter_id", id))
	return nil
}

// IDs returns the running encounters, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.encounters))
	for id := range m.encounters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll ends every encounter.
func (m *Manager) CloseAll() {
	for _, id := range m.IDs() {
		_ = m.EndEncounter(id)
	}
}
