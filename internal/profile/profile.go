// Package profile holds the collaborator boundaries the sync engine
// consumes: the player persistence layer and the UI notification layer.
// The real app supplies its own implementations; the in-memory versions
// here back the demo CLI and the tests.
package profile

import (
	"sync"

	"k8s.io/klog/v2"
)

// Player is a persisted player record.
type Player struct {
	ID            string
	Name          string
	ThumbnailB64  string
	ThumbnailDate string
}

// PlayerStore is the persistence layer the controllers depend on.
type PlayerStore interface {
	FindPlayer(id string) (*Player, bool)
	CreatePlayer(name, id string) *Player
	SetScore(playerID string, score int)
}

// Notifier is the UI-notification layer: dismissible messages and
// screen transitions.
type Notifier interface {
	Alert(message string)
	PresentView(screen string)
}

// MemoryStore is an in-memory PlayerStore.
type MemoryStore struct {
	mu      sync.Mutex
	players map[string]*Player
	scores  map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[string]*Player), scores: make(map[string]int)}
}

func (s *MemoryStore) FindPlayer(id string) (*Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	return p, ok
}

func (s *MemoryStore) CreatePlayer(name, id string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Player{ID: id, Name: name}
	s.players[id] = p
	return p
}

func (s *MemoryStore) SetScore(playerID string, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[playerID] = score
}

// Score returns the recorded score for a player.
func (s *MemoryStore) Score(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[playerID]
}

// LogNotifier writes notifications to the log; used where no UI exists.
type LogNotifier struct{}

func (LogNotifier) Alert(message string)     { klog.Infof("Alert: %s", message) }
func (LogNotifier) PresentView(screen string) { klog.V(1).Infof("Present view: %s", screen) }
