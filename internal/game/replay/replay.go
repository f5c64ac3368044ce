// Package replay records the event stream of an encounter so it can be
// stepped through or saved to disk and reloaded later.
package replay

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap"
)

const formatVersion = 1

// Entry is one recorded event.
type Entry struct {
	Seq       int
	Type      rules.EventType
	ID        string
	SourceID  string
	TargetID  string
	Amount    float64
	Data      string
	Timestamp time.Time
	Metadata  map[string]string
}

// EntryFromEvent copies the event into an entry with sequence number seq.
func EntryFromEvent(seq int, event rules.Event) *Entry {
	metadata := make(map[string]string, len(event.Metadata))
	for k, v := range event.Metadata {
		metadata[k] = v
	}
	return &Entry{
		Seq:       seq,
		Type:      event.Type,
		ID:        event.ID,
		SourceID:  event.SourceID,
		TargetID:  event.TargetID,
		Amount:    event.Amount,
		Data:      event.Data,
		Timestamp: event.Timestamp,
		Metadata:  metadata,
	}
}

// Event converts the entry back into a bus event.
func (e *Entry) Event() rules.Event {
	evt := rules.Event{
		Type:      e.Type,
		ID:        e.ID,
		SourceID:  e.SourceID,
		TargetID:  e.TargetID,
		Amount:    e.Amount,
		Data:      e.Data,
		Timestamp: e.Timestamp,
		Metadata:  make(map[string]string, len(e.Metadata)),
	}
	for k, v := range e.Metadata {
		evt.Metadata[k] = v
	}
	return evt
}

// Replay is the recorded event stream of one encounter with a playback cursor.
type Replay struct {
	EncounterID  string
	Entries      []*Entry
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(encounterID string) *Replay {
	return &Replay{
		EncounterID: encounterID,
		Entries:     make([]*Entry, 0),
	}
}

// Record appends the event to the replay.
func (r *Replay) Record(event rules.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Entries = append(r.Entries, EntryFromEvent(len(r.Entries), event))
}

// Start rewinds the cursor.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.CurrentIndex = 0
}

// Next returns the entry under the cursor and advances it.
func (r *Replay) Next() *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex < len(r.Entries) {
		entry := r.Entries[r.CurrentIndex]
		r.CurrentIndex++
		return entry
	}
	return nil
}

// Previous moves the cursor back one entry and returns it.
func (r *Replay) Previous() *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex > 0 {
		r.CurrentIndex--
		return r.Entries[r.CurrentIndex]
	}
	return nil
}

// Skip moves the cursor by count entries, clamped to the recorded range.
func (r *Replay) Skip(count int) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	newIndex := r.CurrentIndex + count
	if newIndex >= len(r.Entries) {
		newIndex = len(r.Entries) - 1
	}
	if newIndex < 0 {
		newIndex = 0
	}

	r.CurrentIndex = newIndex
	if r.CurrentIndex < len(r.Entries) {
		return r.Entries[r.CurrentIndex]
	}
	return nil
}

// Size returns the number of recorded entries.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Entries)
}

// At returns the entry at index.
func (r *Replay) At(index int) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index >= 0 && index < len(r.Entries) {
		return r.Entries[index]
	}
	return nil
}

// Filename returns the file a replay for encounterID is stored in.
func Filename(directory, encounterID string) string {
	return filepath.Join(directory, fmt.Sprintf("%s.replay", encounterID))
}

// SaveToFile writes the replay to a gzipped gob file in directory.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(Filename(directory, r.EncounterID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	encoder := gob.NewEncoder(gzipWriter)

	metadata := replayMetadata{
		EncounterID: r.EncounterID,
		Timestamp:   time.Now(),
		Version:     formatVersion,
		EntryCount:  len(r.Entries),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i, entry := range r.Entries {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry %d: %w", i, err)
		}
	}

	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return file.Close()
}

// LoadFromFile reads the replay for encounterID from directory.
func LoadFromFile(directory, encounterID string) (*Replay, error) {
	file, err := os.Open(Filename(directory, encounterID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != formatVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	replay := NewReplay(metadata.EncounterID)
	for i := 0; i < metadata.EntryCount; i++ {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}
		replay.Entries = append(replay.Entries, &entry)
	}

	return replay, nil
}

type replayMetadata struct {
	EncounterID string
	Timestamp   time.Time
	Version     int
	EntryCount  int
}

// Recorder keeps replays for the encounters it was asked to record.
type Recorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay // encounterID -> Replay
	enabled map[string]bool
	saveDir string
}

// NewRecorder creates a recorder that saves into saveDir.
func NewRecorder(logger *zap.Logger, saveDir string) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		enabled: make(map[string]bool),
		saveDir: saveDir,
	}
}

// StartRecording begins a fresh replay for the encounter.
func (rr *Recorder) StartRecording(encounterID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.replays[encounterID] = NewReplay(encounterID)
	rr.enabled[encounterID] = true

	rr.logger.Info("started replay recording", zap.String("encounter_id", encounterID))
}

// StopRecording pauses recording. The replay stays in memory.
func (rr *Recorder) StopRecording(encounterID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.enabled[encounterID] = false

	rr.logger.Info("stopped replay recording", zap.String("encounter_id", encounterID))
}

// Record appends the event if recording is enabled for the encounter.
func (rr *Recorder) Record(encounterID string, event rules.Event) {
	rr.mu.RLock()
	enabled := rr.enabled[encounterID]
	replay := rr.replays[encounterID]
	rr.mu.RUnlock()

	if !enabled || replay == nil {
		return
	}
	replay.Record(event)
}

// Attach records every event published on bus under encounterID and returns
// the subscription handle.
func (rr *Recorder) Attach(encounterID string, bus *rules.EventBus) int {
	return bus.Subscribe(func(event rules.Event) {
		rr.Record(encounterID, event)
	})
}

// Get returns the in-memory replay for the encounter.
func (rr *Recorder) Get(encounterID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	replay, exists := rr.replays[encounterID]
	return replay, exists
}

// Save writes the replay to disk and drops it from memory.
func (rr *Recorder) Save(encounterID string) error {
	rr.mu.Lock()
	replay, exists := rr.replays[encounterID]
	if !exists {
		rr.mu.Unlock()
		return fmt.Errorf("no replay found for encounter %s", encounterID)
	}
	delete(rr.replays, encounterID)
	delete(rr.enabled, encounterID)
	rr.mu.Unlock()

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}

	rr.logger.Info("saved replay to disk",
		zap.String("encounter_id", encounterID),
		zap.Int("entry_count", replay.Size()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// Load reads a saved replay from disk.
func (rr *Recorder) Load(encounterID string) (*Replay, error) {
	replay, err := LoadFromFile(rr.saveDir, encounterID)
	if err != nil {
		return nil, err
	}

	rr.logger.Info("loaded replay from disk",
		zap.String("encounter_id", encounterID),
		zap.Int("entry_count", replay.Size()),
	)
	return replay, nil
}

// Clear drops a replay without saving it.
func (rr *Recorder) Clear(encounterID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	delete(rr.replays, encounterID)
	delete(rr.enabled, encounterID)

	rr.logger.Debug("cleared replay from memory", zap.String("encounter_id", encounterID))
}

// IsRecording reports whether recording is enabled for the encounter.
func (rr *Recorder) IsRecording(encounterID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return rr.enabled[encounterID]
}
