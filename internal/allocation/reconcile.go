package allocation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// ContainerChange records how many claimed copies were moved to the
// wishlist in one container.
type ContainerChange struct {
	ContainerID string `json:"containerId"`
	Converted   int    `json:"converted"`
}

// ReconcileResult describes a reconciliation across containers.
type ReconcileResult struct {
	Converted      int               `json:"converted"`
	WishlistCardID string            `json:"wishlistCardId,omitempty"`
	Containers     []ContainerChange `json:"containers,omitempty"`
	Outcome
}

// ReduceAllocationsForCard brings the claims on a card down to newQty after
// its owned quantity shrank. The shortfall is not dropped: it is moved, row
// by row, onto the card's wishlist twin, keeping each row's sideboard flag
// and timestamp. Containers are visited oldest first.
//
// Wishlist cards are never reduced; their claims are what define them.
func (e *Engine) ReduceAllocationsForCard(ctx context.Context, ic *inventory.InventoryContext, cardID string, newQty int) (ReconcileResult, error) {
	card := e.collection.Lookup(ic, cardID)
	if card == nil || card.IsWishlist() {
		return ReconcileResult{}, nil
	}

	ch := &change{}
	result, err := e.reduce(ctx, ic, card, newQty, ch)
	if err != nil {
		return result, err
	}

	result.Outcome, err = e.commit(ctx, ic, ch)
	return result, err
}

// ConvertAllocationsToWishlist moves every claim on card onto its wishlist
// twin. It is the first half of deleting a card.
func (e *Engine) ConvertAllocationsToWishlist(ctx context.Context, ic *inventory.InventoryContext, card *inventory.Card) (ReconcileResult, error) {
	if card == nil || card.IsWishlist() {
		return ReconcileResult{}, nil
	}

	ch := &change{}
	result, err := e.reduce(ctx, ic, card, 0, ch)
	if err != nil {
		return result, err
	}

	result.Outcome, err = e.commit(ctx, ic, ch)
	return result, err
}

func (e *Engine) reduce(ctx context.Context, ic *inventory.InventoryContext, card *inventory.Card, newQty int, ch *change) (ReconcileResult, error) {
	total := ic.TotalClaimed(card.ID)
	if newQty >= total {
		return ReconcileResult{}, nil
	}
	excess := total - newQty

	wish, err := e.collection.EnsureWishlistCard(ctx, ic, card, excess)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to reconcile card %s: %w", card.ID, err)
	}
	ch.touchCard(wish)

	result := ReconcileResult{WishlistCardID: wish.ID}
	remaining := excess

	for _, c := range ic.ReconcileOrder() {
		if remaining == 0 {
			break
		}

		moved := 0
		for i := 0; i < len(c.Allocations) && remaining > 0; {
			row := c.Allocations[i]
			if row.CardID != card.ID {
				i++
				continue
			}

			n := min(row.Quantity, remaining)
			if n == row.Quantity {
				c.Allocations = append(c.Allocations[:i], c.Allocations[i+1:]...)
			} else {
				c.Allocations[i].Quantity -= n
				i++
			}
			c.AddToAllocation(wish.ID, row.IsInSideboard, n, row.AddedAt)

			remaining -= n
			moved += n
		}

		if moved > 0 {
			ch.touchContainer(c)
			result.Containers = append(result.Containers, ContainerChange{ContainerID: c.ID, Converted: moved})
		}
	}

	result.Converted = excess - remaining

	e.logger.Info("Converted claims to wishlist",
		"cardId", card.ID,
		"wishlistCardId", wish.ID,
		"converted", result.Converted,
		"containers", len(result.Containers))

	return result, nil
}

// SetCardQuantity edits a card's quantity. Lowering an owned card below its
// claimed total first converts the shortfall to wishlist claims.
func (e *Engine) SetCardQuantity(ctx context.Context, ic *inventory.InventoryContext, cardID string, newQty int) (ReconcileResult, error) {
	card := e.collection.Lookup(ic, cardID)
	if card == nil {
		return ReconcileResult{}, inventory.ErrNotFound
	}
	if newQty < 0 {
		return ReconcileResult{}, &inventory.ValidationError{Field: "quantity", Message: "cannot be negative"}
	}

	ch := &change{}
	var result ReconcileResult
	if !card.IsWishlist() {
		var err error
		result, err = e.reduce(ctx, ic, card, newQty, ch)
		if err != nil {
			return result, err
		}
	}

	if err := e.collection.SetQuantity(card, newQty); err != nil {
		return result, err
	}
	ch.touchCard(card)

	var err error
	result.Outcome, err = e.commit(ctx, ic, ch)
	return result, err
}

// SetCardPrice changes a card's price and refreshes the stats of every
// container that claims it.
func (e *Engine) SetCardPrice(ctx context.Context, ic *inventory.InventoryContext, cardID string, price decimal.Decimal) (Outcome, error) {
	card := e.collection.Lookup(ic, cardID)
	if card == nil {
		return Outcome{}, inventory.ErrNotFound
	}
	if price.IsNegative() {
		return Outcome{}, &inventory.ValidationError{Field: "price", Message: "cannot be negative"}
	}

	card.Price = price
	card.UpdatedAt = e.collection.Now()

	ch := &change{}
	ch.touchCard(card)
	for _, c := range ic.Containers() {
		if c.Claimed(card.ID) > 0 {
			ch.touchContainer(c)
		}
	}
	return e.commit(ctx, ic, ch)
}

// DeleteCard removes a card from the collection. Claims on an owned card are
// converted to wishlist claims first, so no container loses its record of
// needing the card. Claims on a deleted wishlist card are dropped, since
// deleting it means the copies are no longer wanted.
func (e *Engine) DeleteCard(ctx context.Context, ic *inventory.InventoryContext, cardID string) (ReconcileResult, error) {
	card := e.collection.Lookup(ic, cardID)
	if card == nil {
		return ReconcileResult{}, inventory.ErrNotFound
	}

	ch := &change{}
	var result ReconcileResult

	if card.IsWishlist() {
		for _, c := range ic.Containers() {
			dropped := 0
			kept := c.Allocations[:0]
			for _, a := range c.Allocations {
				if a.CardID == card.ID {
					dropped += a.Quantity
					continue
				}
				kept = append(kept, a)
			}
			if dropped > 0 {
				c.Allocations = kept
				ch.touchContainer(c)
			}
		}
	} else {
		var err error
		result, err = e.reduce(ctx, ic, card, 0, ch)
		if err != nil {
			return result, err
		}
	}

	if !ch.empty() {
		var err error
		result.Outcome, err = e.commit(ctx, ic, ch)
		if err != nil {
			return result, err
		}
	}

	if err := e.collection.Remove(ctx, ic, card.ID); err != nil {
		result.Mutated = true
		result.Persisted = false
		return result, err
	}
	result.Mutated = true
	result.Persisted = true
	return result, nil
}

// MigrateLegacyWishlist turns a deck's free-floating wishlist items into
// collection wishlist cards claimed by the deck, then clears the legacy list.
// Every item's wishlist card is resolved before anything changes, so a failed
// lookup leaves the deck and the view untouched.
func (e *Engine) MigrateLegacyWishlist(ctx context.Context, ic *inventory.InventoryContext, containerID string) (Result, error) {
	container := ic.Container(containerID)
	if container == nil || len(container.Wishlist) == 0 {
		return Result{}, nil
	}

	type pending struct {
		template *inventory.Card
		existing *inventory.Card
		qty      int
	}

	var items []pending
	for _, item := range container.Wishlist {
		if item.Quantity <= 0 {
			continue
		}
		condition := item.Condition
		if condition == "" {
			condition = inventory.ConditionNearMint
		}
		template := &inventory.Card{
			ScryfallID: item.ScryfallID,
			Name:       item.Name,
			Edition:    item.Edition,
			Condition:  condition,
			Foil:       item.Foil,
			Price:      item.Price,
			Image:      item.Image,
		}

		existing, err := e.collection.FindWishlistCard(ctx, ic, template.Identity())
		if err != nil {
			return Result{}, fmt.Errorf("failed to migrate wishlist of %s: %w", container.ID, err)
		}
		items = append(items, pending{template: template, existing: existing, qty: item.Quantity})
	}

	ch := &change{}
	result := Result{Container: container}
	now := e.collection.Now()

	for _, p := range items {
		wish := e.collection.GrowWishlistCard(ic, p.existing, p.template, p.qty)
		ch.touchCard(wish)
		container.AddToAllocation(wish.ID, false, p.qty, now)
		result.Wishlisted += p.qty
	}

	container.Wishlist = nil
	ch.touchContainer(container)

	var err error
	result.Outcome, err = e.commit(ctx, ic, ch)
	return result, err
}
