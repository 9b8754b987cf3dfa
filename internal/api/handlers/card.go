package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ramonehamilton/cardvault/internal/allocation"
	"github.com/ramonehamilton/cardvault/internal/api/response"
	"github.com/ramonehamilton/cardvault/internal/collection"
	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// CardHandler handles collection card requests.
type CardHandler struct {
	registry   *inventory.Registry
	collection *collection.Store
	engine     *allocation.Engine
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(registry *inventory.Registry, coll *collection.Store, engine *allocation.Engine) *CardHandler {
	return &CardHandler{registry: registry, collection: coll, engine: engine}
}

// ListCards returns the user's cards, optionally filtered by status.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	status := inventory.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		response.BadRequest(w, &inventory.ValidationError{Field: "status", Message: "unknown status"})
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		cards := []*inventory.Card{}
		for _, c := range ic.Cards() {
			if status == "" || c.Status == status {
				cards = append(cards, c)
			}
		}
		response.Success(w, cards)
		return nil
	})
}

// AddCard adds copies of a card to the collection.
func (h *CardHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	var req collection.NewCard
	if !decode(w, r, &req) {
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		card, err := h.collection.AddCard(r.Context(), ic, req)
		if err != nil {
			return err
		}
		response.Created(w, card)
		return nil
	})
}

// GetCard returns a single card.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		card := h.collection.Lookup(ic, cardID)
		if card == nil {
			return inventory.ErrNotFound
		}
		response.Success(w, card)
		return nil
	})
}

// UpdateCardRequest changes a card's quantity and/or price.
type UpdateCardRequest struct {
	Quantity *int             `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// UpdateCardResponse reports the card and any claims that had to move to
// the wishlist.
type UpdateCardResponse struct {
	Card           *inventory.Card             `json:"card"`
	Reconciliation *allocation.ReconcileResult `json:"reconciliation,omitempty"`
}

// UpdateCard edits a card. Lowering the quantity below what containers
// claim converts the excess claims to wishlist claims.
func (h *CardHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	var req UpdateCardRequest
	if !decode(w, r, &req) {
		return
	}

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		if h.collection.Lookup(ic, cardID) == nil {
			return inventory.ErrNotFound
		}
		if req.Quantity != nil && *req.Quantity < 0 {
			return &inventory.ValidationError{Field: "quantity", Message: "cannot be negative"}
		}

		var resp UpdateCardResponse
		if req.Price != nil {
			if _, err := h.engine.SetCardPrice(r.Context(), ic, cardID, *req.Price); err != nil {
				return err
			}
		}
		if req.Quantity != nil {
			result, err := h.engine.SetCardQuantity(r.Context(), ic, cardID, *req.Quantity)
			if err != nil {
				return err
			}
			if result.Converted > 0 {
				resp.Reconciliation = &result
			}
		}

		resp.Card = h.collection.Lookup(ic, cardID)
		response.Success(w, resp)
		return nil
	})
}

// DeleteCard removes a card. Claims on it are moved to the wishlist.
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		result, err := h.engine.DeleteCard(r.Context(), ic, cardID)
		if err != nil {
			return err
		}
		response.Success(w, result)
		return nil
	})
}

// Summary returns copy counts and values across the collection.
func (h *CardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		response.Success(w, h.collection.Summarize(ic))
		return nil
	})
}

// Availability returns how many copies of a card are claimed and free.
func (h *CardHandler) Availability(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	withInventory(w, r, h.registry, func(ic *inventory.InventoryContext) error {
		if h.collection.Lookup(ic, cardID) == nil {
			return inventory.ErrNotFound
		}
		response.Success(w, map[string]int{
			"claimed":   h.engine.TotalClaimed(ic, cardID),
			"available": h.engine.Available(ic, cardID),
		})
		return nil
	})
}
