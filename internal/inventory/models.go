// Package inventory defines the card collection data model shared by the
// collection store, the allocation engine and the container stores.
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Condition is the physical grade of a card. Grades are ordered from Mint
// (best) down to Poor.
type Condition string

const (
	ConditionMint         Condition = "mint"
	ConditionNearMint     Condition = "near-mint"
	ConditionLightPlay    Condition = "light-play"
	ConditionModeratePlay Condition = "moderate-play"
	ConditionHeavyPlay    Condition = "heavy-play"
	ConditionPoor         Condition = "poor"
)

var conditionRank = map[Condition]int{
	ConditionMint:         0,
	ConditionNearMint:     1,
	ConditionLightPlay:    2,
	ConditionModeratePlay: 3,
	ConditionHeavyPlay:    4,
	ConditionPoor:         5,
}

// Valid reports whether c is one of the known grades.
func (c Condition) Valid() bool {
	_, ok := conditionRank[c]
	return ok
}

// Better reports whether c is a strictly better grade than other.
func (c Condition) Better(other Condition) bool {
	return c.rank() < other.rank()
}

func (c Condition) rank() int {
	if r, ok := conditionRank[c]; ok {
		return r
	}
	return len(conditionRank)
}

// Status describes why a card is in the collection.
type Status string

const (
	StatusCollection Status = "collection"
	StatusSale       Status = "sale"
	StatusTrade      Status = "trade"
	StatusWishlist   Status = "wishlist"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCollection, StatusSale, StatusTrade, StatusWishlist:
		return true
	}
	return false
}

// CardIdentity is the key that makes two cards "the same kind" of card:
// printing, edition, grade and finish.
type CardIdentity struct {
	ScryfallID string    `json:"scryfallId"`
	Edition    string    `json:"edition"`
	Condition  Condition `json:"condition"`
	Foil       bool      `json:"foil"`
}

// Card is one kind of physical or desired card in a user's collection.
type Card struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	ScryfallID string          `json:"scryfallId"`
	Name       string          `json:"name"`
	Edition    string          `json:"edition"`
	Condition  Condition       `json:"condition"`
	Foil       bool            `json:"foil"`
	Quantity   int             `json:"quantity"`
	Status     Status          `json:"status"`
	Price      decimal.Decimal `json:"price"`
	Image      string          `json:"image,omitempty"`

	// Display metadata. Nil means not yet known; it is filled in from the
	// card metadata service when a container is hydrated.
	ManaValue *float64 `json:"manaValue"`
	TypeLine  *string  `json:"typeLine"`
	Colors    []string `json:"colors"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Identity returns the card's identity key.
func (c *Card) Identity() CardIdentity {
	return CardIdentity{
		ScryfallID: c.ScryfallID,
		Edition:    c.Edition,
		Condition:  c.Condition,
		Foil:       c.Foil,
	}
}

// IsWishlist reports whether the card is a wishlist placeholder.
func (c *Card) IsWishlist() bool {
	return c.Status == StatusWishlist
}

// NeedsMetadata reports whether any display metadata is missing.
func (c *Card) NeedsMetadata() bool {
	return c.ScryfallID != "" && (c.ManaValue == nil || c.TypeLine == nil || c.Colors == nil)
}

// ApplyMetadata fills in missing display metadata. Existing values are kept.
func (c *Card) ApplyMetadata(md *CardMetadata) {
	if md == nil {
		return
	}
	if c.TypeLine == nil {
		typeLine := md.TypeLine
		c.TypeLine = &typeLine
	}
	if c.ManaValue == nil {
		manaValue := md.ManaValue
		c.ManaValue = &manaValue
	}
	if c.Colors == nil {
		c.Colors = append([]string{}, md.Colors...)
	}
}

// CardMetadata holds canonical card attributes returned by the card
// metadata service.
type CardMetadata struct {
	TypeLine  string   `json:"typeLine"`
	Colors    []string `json:"colors"`
	ManaValue float64  `json:"manaValue"`
}

// Allocation is one ledger row: a container's claim on copies of a card.
type Allocation struct {
	CardID        string    `json:"cardId"`
	Quantity      int       `json:"quantity"`
	IsInSideboard bool      `json:"isInSideboard"`
	AddedAt       time.Time `json:"addedAt"`
}

// ContainerKind distinguishes decks from binders.
type ContainerKind string

const (
	KindDeck   ContainerKind = "deck"
	KindBinder ContainerKind = "binder"
)

// Valid reports whether k is a known container kind.
func (k ContainerKind) Valid() bool {
	return k == KindDeck || k == KindBinder
}

// WishlistItem is a legacy deck wishlist entry that is not backed by a
// collection card.
type WishlistItem struct {
	ScryfallID string          `json:"scryfallId"`
	Name       string          `json:"name"`
	Edition    string          `json:"edition"`
	Condition  Condition       `json:"condition"`
	Foil       bool            `json:"foil"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Image      string          `json:"image,omitempty"`
}

// Container is a deck or a binder. It claims quantities of cards through
// its allocation ledger without owning them.
type Container struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Kind        ContainerKind `json:"kind"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`

	// Deck only.
	Format    string         `json:"format,omitempty"`
	Commander string         `json:"commander,omitempty"`
	Wishlist  []WishlistItem `json:"wishlist,omitempty"`

	Allocations []Allocation `json:"allocations"`
	Stats       Stats        `json:"stats"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsDeck reports whether the container is a deck.
func (c *Container) IsDeck() bool {
	return c.Kind == KindDeck
}

// FindAllocation returns the index of the ledger row for (cardID, sideboard),
// or -1 if there is none.
func (c *Container) FindAllocation(cardID string, sideboard bool) int {
	for i := range c.Allocations {
		if c.Allocations[i].CardID == cardID && c.Allocations[i].IsInSideboard == sideboard {
			return i
		}
	}
	return -1
}

// Claimed returns the total quantity of cardID this container claims across
// its mainboard and sideboard rows.
func (c *Container) Claimed(cardID string) int {
	total := 0
	for _, a := range c.Allocations {
		if a.CardID == cardID {
			total += a.Quantity
		}
	}
	return total
}

// AddToAllocation increments the (cardID, sideboard) row by qty, appending a
// new row stamped with now if none exists.
func (c *Container) AddToAllocation(cardID string, sideboard bool, qty int, now time.Time) {
	if qty <= 0 {
		return
	}
	if i := c.FindAllocation(cardID, sideboard); i >= 0 {
		c.Allocations[i].Quantity += qty
		return
	}
	c.Allocations = append(c.Allocations, Allocation{
		CardID:        cardID,
		Quantity:      qty,
		IsInSideboard: sideboard,
		AddedAt:       now,
	})
}

// RemoveAllocation deletes the (cardID, sideboard) row and reports whether a
// row was removed.
func (c *Container) RemoveAllocation(cardID string, sideboard bool) bool {
	i := c.FindAllocation(cardID, sideboard)
	if i < 0 {
		return false
	}
	c.Allocations = append(c.Allocations[:i], c.Allocations[i+1:]...)
	return true
}

// Clone returns a deep copy of the container.
func (c *Container) Clone() *Container {
	out := *c
	out.Allocations = append([]Allocation(nil), c.Allocations...)
	out.Wishlist = append([]WishlistItem(nil), c.Wishlist...)
	return &out
}
