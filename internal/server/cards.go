package server

import (
	"sync"

	"github.com/google/uuid"
)

// Card is a collaborator-owned reward record tied to a trade agreement.
type Card struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Owner       string  `json:"owner"`
	Points      float64 `json:"points"`
	AgreementID string  `json:"-"`
}

// CardRequest carries the ledger change a card collaborator reacts to.
type CardRequest struct {
	RoomName      string
	AgreementID   string
	Type          string
	Product       string
	Country       string
	Value         float64
	OriginCountry string
	OriginPlayer  string
}

// CardService is the optional card-subsystem collaborator. A nil service or
// a failing call never blocks the trade operation itself.
type CardService interface {
	AgreementCreated(req CardRequest) ([]Card, error)
	AgreementCancelled(roomName, agreementID string) ([]Card, error)
}

// cardPointsDivisor scales agreement value into card points.
const cardPointsDivisor = 10

// MemoryCardService is the in-process card deck: one card per side of a
// trade agreement, removed when the agreement is cancelled.
type MemoryCardService struct {
	mu    sync.Mutex
	decks map[string][]Card // room name -> cards
}

func NewMemoryCardService() *MemoryCardService {
	return &MemoryCardService{decks: make(map[string][]Card)}
}

func (s *MemoryCardService) AgreementCreated(req CardRequest) ([]Card, error) {
	points := req.Value / cardPointsDivisor
	created := []Card{
		{ID: uuid.New().String(), Type: req.Product, Owner: req.OriginCountry, Points: points, AgreementID: req.AgreementID},
		{ID: uuid.New().String(), Type: req.Product, Owner: req.Country, Points: points, AgreementID: req.AgreementID},
	}
	s.mu.Lock()
	s.decks[req.RoomName] = append(s.decks[req.RoomName], created...)
	s.mu.Unlock()
	return created, nil
}

func (s *MemoryCardService) AgreementCancelled(roomName, agreementID string) ([]Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deck := s.decks[roomName]
	kept := deck[:0]
	var removed []Card
	for _, card := range deck {
		if card.AgreementID == agreementID {
			removed = append(removed, card)
			continue
		}
		kept = append(kept, card)
	}
	s.decks[roomName] = kept
	return removed, nil
}

// Deck returns a copy of the room's current cards.
func (s *MemoryCardService) Deck(roomName string) []Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Card(nil), s.decks[roomName]...)
}
