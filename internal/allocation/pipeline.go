package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// Outcome reports how far a mutating operation got. Mutated means the
// in-memory view changed; Persisted means every resulting durable write
// succeeded. Mutated && !Persisted is the window in which local and durable
// state disagree.
type Outcome struct {
	Mutated   bool `json:"mutated"`
	Persisted bool `json:"persisted"`
}

// change tracks the entities an operation touched, in first-touch order.
type change struct {
	cards      []*inventory.Card
	containers []*inventory.Container
}

func (ch *change) touchCard(card *inventory.Card) {
	for _, c := range ch.cards {
		if c == card {
			return
		}
	}
	ch.cards = append(ch.cards, card)
}

func (ch *change) touchContainer(container *inventory.Container) {
	for _, c := range ch.containers {
		if c == container {
			return
		}
	}
	ch.containers = append(ch.containers, container)
}

func (ch *change) empty() bool {
	return len(ch.cards) == 0 && len(ch.containers) == 0
}

// commit runs the tail of every mutating operation: recompute the stats of
// each touched container, then write cards, then containers. A container
// that references a card whose write failed is not written, so no durable
// ledger points at a card that is not durable. Other writes are independent;
// a failure does not stop the rest.
func (e *Engine) commit(ctx context.Context, ic *inventory.InventoryContext, ch *change) (Outcome, error) {
	if ch.empty() {
		return Outcome{}, nil
	}

	now := e.collection.Now()
	for _, c := range ch.containers {
		c.Stats = inventory.CalculateStats(c.Allocations, ic)
		c.UpdatedAt = now
	}

	var failures []*inventory.PersistenceError
	unsaved := make(map[string]bool)

	for _, card := range ch.cards {
		if err := e.collection.Save(ctx, card); err != nil {
			failures = append(failures, asPersistenceError(err, "card", card.ID))
			unsaved[card.ID] = true
		}
	}

	for _, c := range ch.containers {
		if id, ok := referencesAny(c, unsaved); ok {
			e.logger.Error("Skipped container write",
				"containerId", c.ID,
				"kind", c.Kind,
				"unsavedCardId", id)
			failures = append(failures, &inventory.PersistenceError{
				Entity: "container",
				ID:     c.ID,
				Err:    fmt.Errorf("references unsaved card %s", id),
			})
			continue
		}
		if err := e.containers.Put(ctx, c); err != nil {
			e.logger.Error("Failed to persist container",
				"containerId", c.ID,
				"kind", c.Kind,
				"error", err)
			failures = append(failures, &inventory.PersistenceError{Entity: "container", ID: c.ID, Err: err})
			continue
		}
		e.notifier.Notify(inventory.Event{
			Type:   inventory.EventContainerUpdated,
			UserID: ic.UserID,
			ID:     c.ID,
			Data:   c,
		})
	}

	switch len(failures) {
	case 0:
		return Outcome{Mutated: true, Persisted: true}, nil
	case 1:
		return Outcome{Mutated: true}, failures[0]
	default:
		return Outcome{Mutated: true}, &inventory.BatchError{Failures: failures}
	}
}

func referencesAny(c *inventory.Container, cardIDs map[string]bool) (string, bool) {
	if len(cardIDs) == 0 {
		return "", false
	}
	for _, a := range c.Allocations {
		if cardIDs[a.CardID] {
			return a.CardID, true
		}
	}
	return "", false
}

func asPersistenceError(err error, entity, id string) *inventory.PersistenceError {
	var pe *inventory.PersistenceError
	if errors.As(err, &pe) {
		return pe
	}
	return &inventory.PersistenceError{Entity: entity, ID: id, Err: err}
}
