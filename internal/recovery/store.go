// Package recovery persists a snapshot of the hand in progress so the
// host can offer "resume game" after a restart without contacting any
// peer.
package recovery

import (
	"encoding/json"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// SeatRecord is one roster seat as persisted with a snapshot, so the
// original players can rejoin a resumed game.
type SeatRecord struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// Snapshot is the on-disk shape: everything needed to reconstruct the
// hand state locally.
type Snapshot struct {
	Round      int          `json:"round"`
	Dealer     int          `json:"dealer"`
	Players    []SeatRecord `json:"players,omitempty"`
	Hands      [][]int      `json:"hands"`
	Trick      int          `json:"trick"`
	TrickCards []int        `json:"trickCards"`
	ToLead     int          `json:"toLead"`
	LastCards  []int        `json:"lastCards,omitempty"`
	LastToLead int          `json:"lastToLead"`
	Made       []int        `json:"made"`
	Twos       []int        `json:"twos"`
}

// Store reads and writes the snapshot file.
type Store struct {
	path string
}

// NewStore creates a store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the snapshot; called after every state-changing event on
// the host. A write failure is logged, never fatal.
func (s *Store) Save(snap *Snapshot) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		klog.Errorf("Recovery snapshot encode failed: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		klog.Errorf("Recovery snapshot dir: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		klog.Errorf("Recovery snapshot write failed: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		klog.Errorf("Recovery snapshot rename failed: %v", err)
	}
}

// Load reads the snapshot once at process start. A missing or corrupt
// file means no resume offer — never an error.
func (s *Store) Load() (*Snapshot, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		klog.Warningf("Recovery snapshot corrupt, ignoring: %v", err)
		return nil, false
	}
	if snap.Round <= 0 || len(snap.Hands) == 0 {
		return nil, false
	}
	return &snap, true
}

// Clear removes the snapshot, ending any resume offer.
func (s *Store) Clear() {
	_ = os.Remove(s.path)
}
