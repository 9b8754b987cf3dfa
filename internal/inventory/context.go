package inventory

import (
	"context"
	"fmt"
	"sort"
)

// InventoryContext is one user's in-memory view of their collection and
// containers. Every engine call receives it explicitly and mutates it before
// issuing durable writes, so the local view is consistent even while a write
// is pending or after one fails.
//
// An InventoryContext is not safe for concurrent use; see Registry.
type InventoryContext struct {
	UserID string

	cards      []*Card
	cardIndex  map[string]*Card
	containers []*Container
	contIndex  map[string]*Container
}

// NewInventoryContext builds a context from already loaded entities. Slices
// are kept in the given order.
func NewInventoryContext(userID string, cards []*Card, containers []*Container) *InventoryContext {
	ic := &InventoryContext{
		UserID:    userID,
		cardIndex: make(map[string]*Card, len(cards)),
		contIndex: make(map[string]*Container, len(containers)),
	}
	for _, c := range cards {
		ic.AddCard(c)
	}
	for _, c := range containers {
		ic.AddContainer(c)
	}
	return ic
}

// Load reads a user's cards, decks and binders from the repositories.
func Load(ctx context.Context, userID string, cards CardRepository, containers ContainerRepository) (*InventoryContext, error) {
	cardList, err := cards.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}

	decks, err := containers.List(ctx, userID, KindDeck)
	if err != nil {
		return nil, fmt.Errorf("failed to load decks: %w", err)
	}

	binders, err := containers.List(ctx, userID, KindBinder)
	if err != nil {
		return nil, fmt.Errorf("failed to load binders: %w", err)
	}

	return NewInventoryContext(userID, cardList, append(decks, binders...)), nil
}

// CardByID implements CardSnapshot.
func (ic *InventoryContext) CardByID(id string) *Card {
	return ic.cardIndex[id]
}

// Cards returns the collection in listing order.
func (ic *InventoryContext) Cards() []*Card {
	return ic.cards
}

// AddCard adds or replaces a card.
func (ic *InventoryContext) AddCard(card *Card) {
	if _, ok := ic.cardIndex[card.ID]; ok {
		for i, c := range ic.cards {
			if c.ID == card.ID {
				ic.cards[i] = card
				break
			}
		}
	} else {
		ic.cards = append(ic.cards, card)
	}
	ic.cardIndex[card.ID] = card
}

// RemoveCard drops a card from the view.
func (ic *InventoryContext) RemoveCard(id string) {
	if _, ok := ic.cardIndex[id]; !ok {
		return
	}
	delete(ic.cardIndex, id)
	for i, c := range ic.cards {
		if c.ID == id {
			ic.cards = append(ic.cards[:i], ic.cards[i+1:]...)
			return
		}
	}
}

// FindWishlistCard returns the wishlist card with the given identity, if any.
func (ic *InventoryContext) FindWishlistCard(id CardIdentity) *Card {
	for _, c := range ic.cards {
		if c.IsWishlist() && c.Identity() == id {
			return c
		}
	}
	return nil
}

// Container returns the container with the given id or nil.
func (ic *InventoryContext) Container(id string) *Container {
	return ic.contIndex[id]
}

// Containers returns every deck and binder in listing order.
func (ic *InventoryContext) Containers() []*Container {
	return ic.containers
}

// ContainersOfKind returns the containers of one kind in listing order.
func (ic *InventoryContext) ContainersOfKind(kind ContainerKind) []*Container {
	var out []*Container
	for _, c := range ic.containers {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// AddContainer adds or replaces a container.
func (ic *InventoryContext) AddContainer(c *Container) {
	if _, ok := ic.contIndex[c.ID]; ok {
		for i, existing := range ic.containers {
			if existing.ID == c.ID {
				ic.containers[i] = c
				break
			}
		}
	} else {
		ic.containers = append(ic.containers, c)
	}
	ic.contIndex[c.ID] = c
}

// RemoveContainer drops a container and its ledger from the view. Cards are
// left untouched.
func (ic *InventoryContext) RemoveContainer(id string) {
	if _, ok := ic.contIndex[id]; !ok {
		return
	}
	delete(ic.contIndex, id)
	for i, c := range ic.containers {
		if c.ID == id {
			ic.containers = append(ic.containers[:i], ic.containers[i+1:]...)
			return
		}
	}
}

// TotalClaimed sums the claims on cardID across every deck and binder.
func (ic *InventoryContext) TotalClaimed(cardID string) int {
	total := 0
	for _, c := range ic.containers {
		total += c.Claimed(cardID)
	}
	return total
}

// ReconcileOrder returns all containers oldest first, ties broken by id.
// Reconciliation walks containers in this order when it has to split a
// shortfall between them.
func (ic *InventoryContext) ReconcileOrder() []*Container {
	out := append([]*Container(nil), ic.containers...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
