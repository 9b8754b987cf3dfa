package inventory

import (
	"encoding/json"
	"time"
)

// HydratedCard is a ledger row joined with the card it points at, ready for
// display. It is either a HydratedDeckCard (owned copies) or a
// HydratedWishlistCard (copies still wanted), told apart by IsWishlist.
type HydratedCard interface {
	IsWishlist() bool
	Row() Allocation
	CardData() *Card
}

// HydratedDeckCard is a claim on owned copies.
type HydratedDeckCard struct {
	Card          *Card
	Quantity      int
	IsInSideboard bool
	AddedAt       time.Time
}

// HydratedWishlistCard is a claim on a wishlist placeholder.
type HydratedWishlistCard struct {
	Card          *Card
	Quantity      int
	IsInSideboard bool
	AddedAt       time.Time
}

// Hydrate joins one ledger row with its card. It returns nil when the card
// no longer exists.
func Hydrate(row Allocation, cards CardSnapshot) HydratedCard {
	card := cards.CardByID(row.CardID)
	if card == nil {
		return nil
	}
	if card.IsWishlist() {
		return &HydratedWishlistCard{Card: card, Quantity: row.Quantity, IsInSideboard: row.IsInSideboard, AddedAt: row.AddedAt}
	}
	return &HydratedDeckCard{Card: card, Quantity: row.Quantity, IsInSideboard: row.IsInSideboard, AddedAt: row.AddedAt}
}

func (h *HydratedDeckCard) IsWishlist() bool { return false }
func (h *HydratedDeckCard) CardData() *Card  { return h.Card }
func (h *HydratedDeckCard) Row() Allocation {
	return Allocation{CardID: h.Card.ID, Quantity: h.Quantity, IsInSideboard: h.IsInSideboard, AddedAt: h.AddedAt}
}

func (h *HydratedWishlistCard) IsWishlist() bool { return true }
func (h *HydratedWishlistCard) CardData() *Card  { return h.Card }
func (h *HydratedWishlistCard) Row() Allocation {
	return Allocation{CardID: h.Card.ID, Quantity: h.Quantity, IsInSideboard: h.IsInSideboard, AddedAt: h.AddedAt}
}

type hydratedJSON struct {
	IsWishlist    bool      `json:"isWishlist"`
	Card          *Card     `json:"card"`
	Quantity      int       `json:"quantity"`
	IsInSideboard bool      `json:"isInSideboard"`
	AddedAt       time.Time `json:"addedAt"`
}

// MarshalJSON writes the row with its isWishlist discriminant.
func (h *HydratedDeckCard) MarshalJSON() ([]byte, error) {
	return json.Marshal(hydratedJSON{false, h.Card, h.Quantity, h.IsInSideboard, h.AddedAt})
}

// MarshalJSON writes the row with its isWishlist discriminant.
func (h *HydratedWishlistCard) MarshalJSON() ([]byte, error) {
	return json.Marshal(hydratedJSON{true, h.Card, h.Quantity, h.IsInSideboard, h.AddedAt})
}
