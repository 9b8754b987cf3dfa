package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/cardvault/internal/api/response"
	"github.com/ramonehamilton/cardvault/internal/containers"
	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// ContainerHandler handles deck or binder requests. One handler serves one
// container kind.
type ContainerHandler struct {
	registry *inventory.Registry
	store    *containers.Store
}

// NewContainerHandler creates a handler over store.
func NewContainerHandler(registry *inventory.Registry, store *containers.Store) *ContainerHandler {
	return &ContainerHandler{registry: registry, store: store}
}

func containerID(r *http.Request) string {
	return chi.URLParam(r, "containerID")
}

// List returns the user's containers.
func (h *ContainerHandler) List(w http.ResponseWriter, r *http.Request) {
	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		response.Success(w, h.store.List(ic))
		return nil
	})
}

// Create creates an empty container.
func (h *ContainerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req containers.NewContainer
	if !decode(w, r, &req) {
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		c, err := h.store.Create(r.Context(), ic, req)
		if err != nil {
			return err
		}
		response.Created(w, c)
		return nil
	})
}

// Get returns a single container with its ledger.
func (h *ContainerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		c, err := h.store.Get(ic, id)
		if err != nil {
			return err
		}
		response.Success(w, c)
		return nil
	})
}

// Update changes a container's name, description, format or commander.
func (h *ContainerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)

	var req containers.ContainerUpdate
	if !decode(w, r, &req) {
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		c, err := h.store.Update(r.Context(), ic, id, req)
		if err != nil {
			return err
		}
		response.Success(w, c)
		return nil
	})
}

// Delete removes a container. Its cards stay in the collection.
func (h *ContainerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		if err := h.store.Delete(r.Context(), ic, id); err != nil {
			return err
		}
		response.NoContent(w)
		return nil
	})
}

// Stats returns freshly computed statistics for a container.
func (h *ContainerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		stats, err := h.store.Stats(ic, id)
		if err != nil {
			return err
		}
		response.Success(w, stats)
		return nil
	})
}

// Cards returns the container's ledger joined with the collection.
func (h *ContainerHandler) Cards(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		cards, err := h.store.Hydrate(r.Context(), ic, id)
		if err != nil {
			return err
		}
		response.Success(w, cards)
		return nil
	})
}

// AllocateRequest claims copies of a card for a container.
type AllocateRequest struct {
	CardID    string `json:"cardId"`
	Quantity  int    `json:"quantity"`
	Sideboard bool   `json:"sideboard"`
}

// Allocate claims copies of a card. Copies that are not available are
// claimed on the card's wishlist twin; the response reports the split.
func (h *ContainerHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)

	var req AllocateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CardID == "" {
		response.BadRequest(w, &inventory.ValidationError{Field: "cardId", Message: "is required"})
		return
	}
	if req.Quantity <= 0 {
		response.BadRequest(w, &inventory.ValidationError{Field: "quantity", Message: "must be positive"})
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		result, err := h.store.Allocate(r.Context(), ic, id, req.CardID, req.Quantity, req.Sideboard)
		if err != nil {
			return err
		}
		response.Success(w, result)
		return nil
	})
}

// UpdateAllocationRequest resizes one ledger row.
type UpdateAllocationRequest struct {
	Quantity  int  `json:"quantity"`
	Sideboard bool `json:"sideboard"`
}

// UpdateAllocation resizes the row for a card. Asking for more copies than
// are free is a 409 carrying the largest allowed quantity.
func (h *ContainerHandler) UpdateAllocation(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)
	cardID := chi.URLParam(r, "cardID")

	var req UpdateAllocationRequest
	if !decode(w, r, &req) {
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		result, err := h.store.UpdateAllocation(r.Context(), ic, id, cardID, req.Sideboard, req.Quantity)
		if err != nil {
			return err
		}
		response.Success(w, result)
		return nil
	})
}

// Deallocate removes the row for a card. The sideboard query flag picks
// the deck section.
func (h *ContainerHandler) Deallocate(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)
	cardID := chi.URLParam(r, "cardID")

	sideboard, err := sideboardParam(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		result, err := h.store.Deallocate(r.Context(), ic, id, cardID, sideboard)
		if err != nil {
			return err
		}
		response.Success(w, result)
		return nil
	})
}

// DeckHandler adds deck-only endpoints.
type DeckHandler struct {
	*ContainerHandler
	decks *containers.DeckStore
}

// NewDeckHandler creates a new DeckHandler.
func NewDeckHandler(registry *inventory.Registry, decks *containers.DeckStore) *DeckHandler {
	return &DeckHandler{
		ContainerHandler: NewContainerHandler(registry, decks.Store),
		decks:            decks,
	}
}

// MigrateWishlist converts a deck's legacy wishlist entries into
// collection wishlist cards claimed by the deck.
func (h *DeckHandler) MigrateWishlist(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		result, err := h.decks.MigrateLegacyWishlist(r.Context(), ic, id)
		if err != nil {
			return err
		}
		response.Success(w, result)
		return nil
	})
}
