// Package collection owns the authoritative list of cards a user holds or
// wants, including the wishlist placeholders the allocation engine creates.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// Options configures the collection store.
type Options struct {
	Logger   *slog.Logger
	Notifier inventory.Notifier

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Store is the collection store.
type Store struct {
	cards    inventory.CardRepository
	logger   *slog.Logger
	notifier inventory.Notifier
	now      func() time.Time
	newID    func() string
}

// NewStore creates a collection store backed by the given repository.
func NewStore(cards inventory.CardRepository, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = inventory.NopNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}

	return &Store{
		cards:    cards,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// Lookup returns the card with the given id from the user's view, or nil.
func (s *Store) Lookup(ic *inventory.InventoryContext, id string) *inventory.Card {
	return ic.CardByID(id)
}

// NewCard describes a card a user adds to their collection.
type NewCard struct {
	ScryfallID string              `json:"scryfallId"`
	Name       string              `json:"name"`
	Edition    string              `json:"edition"`
	Condition  inventory.Condition `json:"condition"`
	Foil       bool                `json:"foil"`
	Quantity   int                 `json:"quantity"`
	Status     inventory.Status    `json:"status"`
	Price      decimal.Decimal     `json:"price"`
	Image      string              `json:"image,omitempty"`
	ManaValue  *float64            `json:"manaValue,omitempty"`
	TypeLine   *string             `json:"typeLine,omitempty"`
	Colors     []string            `json:"colors,omitempty"`
}

// Validate checks the request and fills in defaults.
func (n *NewCard) Validate() error {
	if n.ScryfallID == "" {
		return &inventory.ValidationError{Field: "scryfallId", Message: "is required"}
	}
	if n.Quantity <= 0 {
		return &inventory.ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if n.Condition == "" {
		n.Condition = inventory.ConditionNearMint
	}
	if !n.Condition.Valid() {
		return &inventory.ValidationError{Field: "condition", Message: fmt.Sprintf("unknown condition %q", n.Condition)}
	}
	if n.Status == "" {
		n.Status = inventory.StatusCollection
	}
	if !n.Status.Valid() {
		return &inventory.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", n.Status)}
	}
	return nil
}

// AddCard adds copies to the collection. Copies merge into an existing card
// with the same identity and status; otherwise a new card is created.
func (s *Store) AddCard(ctx context.Context, ic *inventory.InventoryContext, req NewCard) (*inventory.Card, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	identity := inventory.CardIdentity{
		ScryfallID: req.ScryfallID,
		Edition:    req.Edition,
		Condition:  req.Condition,
		Foil:       req.Foil,
	}

	now := s.now()
	var card *inventory.Card
	for _, c := range ic.Cards() {
		if c.Status == req.Status && c.Identity() == identity {
			card = c
			break
		}
	}

	if card != nil {
		card.Quantity += req.Quantity
		card.UpdatedAt = now
	} else {
		card = &inventory.Card{
			ID:         s.newID(),
			UserID:     ic.UserID,
			ScryfallID: req.ScryfallID,
			Name:       req.Name,
			Edition:    req.Edition,
			Condition:  req.Condition,
			Foil:       req.Foil,
			Quantity:   req.Quantity,
			Status:     req.Status,
			Price:      req.Price,
			Image:      req.Image,
			ManaValue:  req.ManaValue,
			TypeLine:   req.TypeLine,
			Colors:     req.Colors,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		ic.AddCard(card)
	}

	if err := s.Save(ctx, card); err != nil {
		return card, err
	}
	return card, nil
}

// EnsureWishlistCard grows the wishlist card matching template's identity by
// qty, creating it if none exists, and returns it. The change is made to the
// in-memory view only; callers persist it.
//
// Matching is by identity alone. When an existing wishlist card is found its
// price and display data are kept.
func (s *Store) EnsureWishlistCard(ctx context.Context, ic *inventory.InventoryContext, template *inventory.Card, qty int) (*inventory.Card, error) {
	card, err := s.FindWishlistCard(ctx, ic, template.Identity())
	if err != nil {
		return nil, err
	}
	return s.GrowWishlistCard(ic, card, template, qty), nil
}

// FindWishlistCard returns the wishlist card with the given identity, or nil
// if there is none. A card found only in durable state is added to the view;
// nothing else changes.
func (s *Store) FindWishlistCard(ctx context.Context, ic *inventory.InventoryContext, identity inventory.CardIdentity) (*inventory.Card, error) {
	if card := ic.FindWishlistCard(identity); card != nil {
		return card, nil
	}

	// The card may have been created by another session since this view
	// was loaded.
	found, err := s.queryWishlistCard(ctx, ic.UserID, identity)
	if err != nil {
		return nil, err
	}
	if found != nil {
		ic.AddCard(found)
	}
	return found, nil
}

// GrowWishlistCard adds qty to card, or to a new wishlist card built from
// template when card is nil and the view holds no match. It cannot fail.
func (s *Store) GrowWishlistCard(ic *inventory.InventoryContext, card, template *inventory.Card, qty int) *inventory.Card {
	now := s.now()
	if card == nil {
		card = ic.FindWishlistCard(template.Identity())
	}
	if card != nil {
		card.Quantity += qty
		card.UpdatedAt = now
		return card
	}

	card = &inventory.Card{
		ID:         s.newID(),
		UserID:     ic.UserID,
		ScryfallID: template.ScryfallID,
		Name:       template.Name,
		Edition:    template.Edition,
		Condition:  template.Condition,
		Foil:       template.Foil,
		Quantity:   qty,
		Status:     inventory.StatusWishlist,
		Price:      template.Price,
		Image:      template.Image,
		ManaValue:  template.ManaValue,
		TypeLine:   template.TypeLine,
		Colors:     slices.Clone(template.Colors),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ic.AddCard(card)

	s.logger.Debug("Created wishlist card",
		"userId", ic.UserID,
		"cardId", card.ID,
		"scryfallId", card.ScryfallID,
		"quantity", qty)

	return card
}

func (s *Store) queryWishlistCard(ctx context.Context, userID string, identity inventory.CardIdentity) (*inventory.Card, error) {
	candidates, err := s.cards.QueryByField(ctx, userID, inventory.FieldScryfallID, identity.ScryfallID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist cards: %w", err)
	}
	for _, c := range candidates {
		if c.IsWishlist() && c.Identity() == identity {
			return c, nil
		}
	}
	return nil, nil
}

// SetQuantity changes a card's quantity in memory.
func (s *Store) SetQuantity(card *inventory.Card, quantity int) error {
	if quantity < 0 {
		return &inventory.ValidationError{Field: "quantity", Message: "cannot be negative"}
	}
	card.Quantity = quantity
	card.UpdatedAt = s.now()
	return nil
}

// Save writes a card durably and announces the change.
func (s *Store) Save(ctx context.Context, card *inventory.Card) error {
	if err := s.cards.Put(ctx, card); err != nil {
		s.logger.Error("Failed to save card", "cardId", card.ID, "error", err)
		return &inventory.PersistenceError{Entity: "card", ID: card.ID, Err: err}
	}
	s.notifier.Notify(inventory.Event{Type: inventory.EventCardUpdated, UserID: card.UserID, ID: card.ID, Data: card})
	return nil
}

// Remove deletes a card from the view and from durable storage. It does not
// touch any ledger; use the allocation engine to delete cards that may be
// claimed.
func (s *Store) Remove(ctx context.Context, ic *inventory.InventoryContext, id string) error {
	ic.RemoveCard(id)
	if err := s.cards.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete card", "cardId", id, "error", err)
		return &inventory.PersistenceError{Entity: "card", ID: id, Err: err}
	}
	s.notifier.Notify(inventory.Event{Type: inventory.EventCardDeleted, UserID: ic.UserID, ID: id})
	return nil
}

// Summary describes a whole collection.
type Summary struct {
	DistinctCards  int             `json:"distinctCards"`
	OwnedCopies    int             `json:"ownedCopies"`
	WishlistCopies int             `json:"wishlistCopies"`
	OwnedValue     decimal.Decimal `json:"ownedValue"`
	WishlistValue  decimal.Decimal `json:"wishlistValue"`
}

// Summarize counts copies and value across the user's collection.
func (s *Store) Summarize(ic *inventory.InventoryContext) Summary {
	summary := Summary{OwnedValue: decimal.Zero, WishlistValue: decimal.Zero}
	for _, c := range ic.Cards() {
		if c.Quantity == 0 {
			continue
		}
		summary.DistinctCards++
		value := c.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
		if c.IsWishlist() {
			summary.WishlistCopies += c.Quantity
			summary.WishlistValue = summary.WishlistValue.Add(value)
		} else {
			summary.OwnedCopies += c.Quantity
			summary.OwnedValue = summary.OwnedValue.Add(value)
		}
	}
	return summary
}
