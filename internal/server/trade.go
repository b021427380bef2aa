package server

import (
	"log"

	"github.com/google/uuid"
)

// TradeRequest is the inbound shape of a trade-agreement creation.
// OriginCountry initiates the trade; Country is the counterparty.
type TradeRequest struct {
	Type          string  `json:"type"`    // direction from the origin's perspective
	Product       string  `json:"product"` // commodity | manufacture
	Country       string  `json:"country"`
	Value         float64 `json:"value"`
	OriginCountry string  `json:"originCountry"`
	OriginPlayer  string  `json:"originPlayer,omitempty"`
}

func mirrorDirection(direction string) string {
	if direction == TradeImport {
		return TradeExport
	}
	return TradeImport
}

// CreateAgreement inserts a mirrored agreement pair into the room's ledger.
// Re-issuing identical trade terms replaces the existing pair instead of
// duplicating it. Returns nil when the room is absent.
func (e *Engine) CreateAgreement(roomName string, req TradeRequest) *TradeAgreement {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return nil
	}

	now := e.clock.Now()
	origin := &TradeAgreement{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		Type:         req.Type,
		Product:      req.Product,
		Value:        req.Value,
		Country:      req.OriginCountry,
		Counterparty: req.Country,
		OriginPlayer: req.OriginPlayer,
	}
	// Mirrored agreements never carry an originating player; they are the
	// counterpart's automatically-created side.
	mirror := &TradeAgreement{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		Type:         mirrorDirection(req.Type),
		Product:      req.Product,
		Value:        req.Value,
		Country:      req.Country,
		Counterparty: req.OriginCountry,
	}

	room.mu.Lock()
	removeSignatureLocked(room, req.Type, req.Product, req.OriginCountry, req.Country)
	room.TradeAgreements = append(room.TradeAgreements, origin, mirror)
	recalcBalancesLocked(room, req.OriginCountry)
	recalcBalancesLocked(room, req.Country)
	room.mu.Unlock()

	e.persistSnapshot()
	if e.notify != nil {
		e.notify.RoomUpdated(room.View())
	}
	e.notifyCardsCreated(roomName, req, origin.ID)
	return origin
}

// CancelAgreement removes the named agreement and its mirror. A missing
// mirror is tolerated: the one record found is still removed and the call
// succeeds. Returns false when room or agreement is absent.
func (e *Engine) CancelAgreement(roomName, agreementID string) bool {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return false
	}

	room.mu.Lock()
	target := removeAgreementByIDLocked(room, agreementID)
	if target == nil {
		room.mu.Unlock()
		return false
	}
	if !removeMirrorLocked(room, target) {
		log.Printf("trade: agreement %s in room %q had no mirror to cancel", agreementID, roomName)
	}
	recalcBalancesLocked(room, target.Country)
	recalcBalancesLocked(room, target.Counterparty)
	room.mu.Unlock()

	e.persistSnapshot()
	if e.notify != nil {
		e.notify.RoomUpdated(room.View())
	}
	e.notifyCardsCancelled(roomName, agreementID)
	return true
}

// removeSignatureLocked drops any pair matching the (type, product, owner,
// counterparty) signature or its mirror. Callers hold room.mu.
func removeSignatureLocked(room *Room, tradeType, product, owner, counterparty string) {
	mirrored := mirrorDirection(tradeType)
	kept := room.TradeAgreements[:0]
	for _, ta := range room.TradeAgreements {
		direct := ta.Type == tradeType && ta.Country == owner && ta.Counterparty == counterparty
		inverse := ta.Type == mirrored && ta.Country == counterparty && ta.Counterparty == owner
		if ta.Product == product && (direct || inverse) {
			continue
		}
		kept = append(kept, ta)
	}
	room.TradeAgreements = kept
}

func removeAgreementByIDLocked(room *Room, agreementID string) *TradeAgreement {
	for i, ta := range room.TradeAgreements {
		if ta.ID == agreementID {
			room.TradeAgreements = append(room.TradeAgreements[:i], room.TradeAgreements[i+1:]...)
			return ta
		}
	}
	return nil
}

// removeMirrorLocked removes the inverse-direction record with the swapped
// country pair for the same product, reporting whether one was found.
func removeMirrorLocked(room *Room, target *TradeAgreement) bool {
	want := mirrorDirection(target.Type)
	for i, ta := range room.TradeAgreements {
		if ta.Type == want && ta.Product == target.Product &&
			ta.Country == target.Counterparty && ta.Counterparty == target.Country {
			room.TradeAgreements = append(room.TradeAgreements[:i], room.TradeAgreements[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) notifyCardsCreated(roomName string, req TradeRequest, agreementID string) {
	if e.cards == nil {
		return
	}
	cards, err := e.cards.AgreementCreated(CardRequest{
		RoomName:      roomName,
		AgreementID:   agreementID,
		Type:          req.Type,
		Product:       req.Product,
		Country:       req.Country,
		Value:         req.Value,
		OriginCountry: req.OriginCountry,
		OriginPlayer:  req.OriginPlayer,
	})
	if err != nil {
		log.Printf("cards: create for room %q: %v", roomName, err)
		return
	}
	if e.notify != nil && len(cards) > 0 {
		e.notify.CardsUpdated(roomName, "created", cards)
	}
}

func (e *Engine) notifyCardsCancelled(roomName, agreementID string) {
	if e.cards == nil {
		return
	}
	removed, err := e.cards.AgreementCancelled(roomName, agreementID)
	if err != nil {
		log.Printf("cards: cancel for room %q: %v", roomName, err)
		return
	}
	if e.notify != nil && len(removed) > 0 {
		e.notify.CardsUpdated(roomName, "cancelled", removed)
	}
}
