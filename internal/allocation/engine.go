// Package allocation partitions a user's cards across decks and binders
// without letting claims exceed the copies that exist, and turns every claim
// that cannot be met from stock into a wishlist claim.
package allocation

import (
	"context"
	"log/slog"

	"github.com/ramonehamilton/cardvault/internal/collection"
	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// Options configures the engine.
type Options struct {
	Logger   *slog.Logger
	Notifier inventory.Notifier
}

// Engine applies ledger mutations to containers held in an
// InventoryContext. Every mutating call follows the same order: read the
// collection, mutate the ledger, recompute stats, persist.
type Engine struct {
	collection *collection.Store
	containers inventory.ContainerRepository
	logger     *slog.Logger
	notifier   inventory.Notifier
}

// NewEngine creates an allocation engine.
func NewEngine(coll *collection.Store, containers inventory.ContainerRepository, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = inventory.NopNotifier{}
	}

	return &Engine{
		collection: coll,
		containers: containers,
		logger:     opts.Logger,
		notifier:   opts.Notifier,
	}
}

// Result describes the effect of a single-container operation.
type Result struct {
	Allocated      int                  `json:"allocated"`
	Wishlisted     int                  `json:"wishlisted"`
	Released       int                  `json:"released,omitempty"`
	WishlistCardID string               `json:"wishlistCardId,omitempty"`
	Container      *inventory.Container `json:"container,omitempty"`
	Outcome
}

// TotalClaimed returns the copies of cardID claimed by every deck and binder.
func (e *Engine) TotalClaimed(ic *inventory.InventoryContext, cardID string) int {
	return ic.TotalClaimed(cardID)
}

// Available returns the copies of cardID not yet claimed by any container.
func (e *Engine) Available(ic *inventory.InventoryContext, cardID string) int {
	card := e.collection.Lookup(ic, cardID)
	if card == nil {
		return 0
	}
	return max(0, card.Quantity-ic.TotalClaimed(cardID))
}

// Allocate claims qty more copies of cardID for the container. Copies that
// are free are claimed directly; the rest are claimed on the card's wishlist
// twin, which is created or grown to match. Calls are served first come
// first served: there is no arbitration between containers.
//
// Unknown containers or cards make the call a no-op with a zero result.
func (e *Engine) Allocate(ctx context.Context, ic *inventory.InventoryContext, containerID, cardID string, qty int, sideboard bool) (Result, error) {
	container := ic.Container(containerID)
	card := e.collection.Lookup(ic, cardID)
	if container == nil || card == nil || qty <= 0 {
		return Result{}, nil
	}
	if !container.IsDeck() {
		sideboard = false
	}

	available := max(0, card.Quantity-ic.TotalClaimed(card.ID))
	toAllocate := min(qty, available)
	toWishlist := qty - toAllocate

	ch := &change{}
	result := Result{Allocated: toAllocate, Wishlisted: toWishlist, Container: container}

	var wish *inventory.Card
	if toWishlist > 0 {
		var err error
		wish, err = e.collection.EnsureWishlistCard(ctx, ic, card, toWishlist)
		if err != nil {
			return Result{}, err
		}
		ch.touchCard(wish)
		result.WishlistCardID = wish.ID
	}

	now := e.collection.Now()
	if toAllocate > 0 {
		container.AddToAllocation(card.ID, sideboard, toAllocate, now)
	}
	if wish != nil {
		container.AddToAllocation(wish.ID, sideboard, toWishlist, now)
		e.logger.Info("Allocation short of stock, remainder wishlisted",
			"containerId", container.ID,
			"cardId", card.ID,
			"allocated", toAllocate,
			"wishlisted", toWishlist)
	}
	ch.touchContainer(container)

	outcome, err := e.commit(ctx, ic, ch)
	result.Outcome = outcome
	return result, err
}

// Deallocate removes the container's (cardID, sideboard) row. The card
// itself is not touched.
func (e *Engine) Deallocate(ctx context.Context, ic *inventory.InventoryContext, containerID, cardID string, sideboard bool) (Result, error) {
	container := ic.Container(containerID)
	if container == nil {
		return Result{}, nil
	}
	if !container.IsDeck() {
		sideboard = false
	}

	idx := container.FindAllocation(cardID, sideboard)
	if idx < 0 {
		return Result{Container: container}, nil
	}
	released := container.Allocations[idx].Quantity
	container.RemoveAllocation(cardID, sideboard)

	ch := &change{}
	ch.touchContainer(container)

	outcome, err := e.commit(ctx, ic, ch)
	return Result{Released: released, Container: container, Outcome: outcome}, err
}

// UpdateAllocation resizes the container's (cardID, sideboard) row to
// newQty. A non-positive size removes the row. Growing past what other
// containers leave free is rejected with a CapacityExceededError and no
// change; this call never creates wishlist claims.
func (e *Engine) UpdateAllocation(ctx context.Context, ic *inventory.InventoryContext, containerID, cardID string, sideboard bool, newQty int) (Result, error) {
	if newQty <= 0 {
		return e.Deallocate(ctx, ic, containerID, cardID, sideboard)
	}

	container := ic.Container(containerID)
	card := e.collection.Lookup(ic, cardID)
	if container == nil || card == nil {
		return Result{}, nil
	}
	if !container.IsDeck() {
		sideboard = false
	}

	idx := container.FindAllocation(card.ID, sideboard)
	current := 0
	if idx >= 0 {
		current = container.Allocations[idx].Quantity
	}

	otherClaims := ic.TotalClaimed(card.ID) - current
	maxAvailable := max(0, card.Quantity-otherClaims)
	if newQty > maxAvailable {
		e.logger.Info("Allocation resize rejected",
			"containerId", container.ID,
			"cardId", card.ID,
			"requested", newQty,
			"max", maxAvailable)
		return Result{}, &inventory.CapacityExceededError{CardID: card.ID, Requested: newQty, Max: maxAvailable}
	}

	result := Result{Container: container}
	if idx >= 0 {
		container.Allocations[idx].Quantity = newQty
	} else {
		container.AddToAllocation(card.ID, sideboard, newQty, e.collection.Now())
	}
	if newQty > current {
		result.Allocated = newQty - current
	} else {
		result.Released = current - newQty
	}

	ch := &change{}
	ch.touchContainer(container)

	outcome, err := e.commit(ctx, ic, ch)
	result.Outcome = outcome
	return result, err
}
