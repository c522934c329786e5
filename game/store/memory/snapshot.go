package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wricardo/tank-tactics/game/engine"
)

// State is the JSON structure of a snapshot file
type State struct {
	Games     []*engine.Game               `json:"games"`
	Logs      map[string][]engine.LogEntry `json:"logs"`
	NextLogID int64                        `json:"next_log_id"`
}

// Snapshot stores the whole memory store in a single JSON file
type Snapshot struct {
	path string
}

// NewSnapshot creates a snapshot at path, creating its directory
func NewSnapshot(path string) (*Snapshot, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Snapshot{path: path}, nil
}

// Path returns the snapshot file location
func (s *Snapshot) Path() string {
	return s.path
}

// Save writes the state to a temp file and renames it over the snapshot
func (s *Snapshot) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// Load reads the snapshot; a missing file yields a nil state
func (s *Snapshot) Load() (*State, error) {
	jsonData, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var state State
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if state.Logs == nil {
		state.Logs = make(map[string][]engine.LogEntry)
	}
	return &state, nil
}
