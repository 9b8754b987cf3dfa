// Package containers implements the deck and binder stores. Containers own a
// name and a ledger of claims on collection cards; every ledger change is
// delegated to the allocation engine.
package containers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ramonehamilton/cardvault/internal/allocation"
	"github.com/ramonehamilton/cardvault/internal/collection"
	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// Options configures a container store.
type Options struct {
	Logger   *slog.Logger
	Notifier inventory.Notifier

	// Metadata enriches cards during hydration. Nil disables enrichment.
	Metadata inventory.MetadataLookup

	Now   func() time.Time
	NewID func() string
}

// Store holds the operations shared by decks and binders.
type Store struct {
	kind       inventory.ContainerKind
	repo       inventory.ContainerRepository
	engine     *allocation.Engine
	collection *collection.Store
	metadata   inventory.MetadataLookup
	logger     *slog.Logger
	notifier   inventory.Notifier
	now        func() time.Time
	newID      func() string
}

func newStore(kind inventory.ContainerKind, repo inventory.ContainerRepository, engine *allocation.Engine, coll *collection.Store, opts Options) *Store {
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
		kind:       kind,
		repo:       repo,
		engine:     engine,
		collection: coll,
		metadata:   opts.Metadata,
		logger:     opts.Logger.With("kind", string(kind)),
		notifier:   opts.Notifier,
		now:        opts.Now,
		newID:      opts.NewID,
	}
}

// Kind returns the kind of container the store manages.
func (s *Store) Kind() inventory.ContainerKind {
	return s.kind
}

// NewContainer describes a container to create. Format and Commander only
// apply to decks.
type NewContainer struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Format      string `json:"format"`
	Commander   string `json:"commander"`
}

// ContainerUpdate changes a container's descriptive fields. Nil fields are
// left alone.
type ContainerUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Format      *string `json:"format"`
	Commander   *string `json:"commander"`
}

// Create adds an empty container.
func (s *Store) Create(ctx context.Context, ic *inventory.InventoryContext, req NewContainer) (*inventory.Container, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &inventory.ValidationError{Field: "name", Message: "is required"}
	}

	now := s.now()
	c := &inventory.Container{
		ID:          s.newID(),
		UserID:      ic.UserID,
		Kind:        s.kind,
		Name:        name,
		Description: req.Description,
		Allocations: []inventory.Allocation{},
		Stats:       inventory.CalculateStats(nil, ic),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.IsDeck() {
		c.Format = req.Format
		c.Commander = req.Commander
	}

	ic.AddContainer(c)
	if err := s.put(ctx, c); err != nil {
		return c, err
	}

	s.logger.Info("Created container", "containerId", c.ID, "name", c.Name)
	return c, nil
}

// Update applies descriptive changes to a container.
func (s *Store) Update(ctx context.Context, ic *inventory.InventoryContext, id string, req ContainerUpdate) (*inventory.Container, error) {
	c, err := s.Get(ic, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, &inventory.ValidationError{Field: "name", Message: "cannot be empty"}
		}
		c.Name = name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if c.IsDeck() {
		if req.Format != nil {
			c.Format = *req.Format
		}
		if req.Commander != nil {
			c.Commander = *req.Commander
		}
	}
	c.UpdatedAt = s.now()

	if err := s.put(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// Delete removes a container and its ledger. The cards it claimed are left
// in the collection unchanged, wishlist cards included.
func (s *Store) Delete(ctx context.Context, ic *inventory.InventoryContext, id string) error {
	c, err := s.Get(ic, id)
	if err != nil {
		return err
	}

	ic.RemoveContainer(c.ID)
	if err := s.repo.Delete(ctx, c.ID); err != nil {
		s.logger.Error("Failed to delete container", "containerId", c.ID, "error", err)
		return &inventory.PersistenceError{Entity: "container", ID: c.ID, Err: err}
	}

	s.notifier.Notify(inventory.Event{Type: inventory.EventContainerDeleted, UserID: ic.UserID, ID: c.ID})
	s.logger.Info("Deleted container", "containerId", c.ID, "rows", len(c.Allocations))
	return nil
}

// List returns the user's containers of this store's kind in listing order.
func (s *Store) List(ic *inventory.InventoryContext) []*inventory.Container {
	out := ic.ContainersOfKind(s.kind)
	if out == nil {
		out = []*inventory.Container{}
	}
	return out
}

// Get returns a container of this store's kind or ErrNotFound.
func (s *Store) Get(ic *inventory.InventoryContext, id string) (*inventory.Container, error) {
	c := ic.Container(id)
	if c == nil || c.Kind != s.kind {
		return nil, fmt.Errorf("%s %s: %w", s.kind, id, inventory.ErrNotFound)
	}
	return c, nil
}

// Stats recomputes a container's statistics against the current collection.
func (s *Store) Stats(ic *inventory.InventoryContext, id string) (inventory.Stats, error) {
	c, err := s.Get(ic, id)
	if err != nil {
		return inventory.Stats{}, err
	}
	return inventory.CalculateStats(c.Allocations, ic), nil
}

// Allocate claims copies of a card for the container. Unknown ids, and ids
// of the other container kind, give a zero result.
func (s *Store) Allocate(ctx context.Context, ic *inventory.InventoryContext, id, cardID string, qty int, sideboard bool) (allocation.Result, error) {
	if !s.owns(ic, id) {
		return allocation.Result{}, nil
	}
	return s.engine.Allocate(ctx, ic, id, cardID, qty, sideboard)
}

// Deallocate drops one ledger row from the container.
func (s *Store) Deallocate(ctx context.Context, ic *inventory.InventoryContext, id, cardID string, sideboard bool) (allocation.Result, error) {
	if !s.owns(ic, id) {
		return allocation.Result{}, nil
	}
	return s.engine.Deallocate(ctx, ic, id, cardID, sideboard)
}

// UpdateAllocation resizes one ledger row of the container.
func (s *Store) UpdateAllocation(ctx context.Context, ic *inventory.InventoryContext, id, cardID string, sideboard bool, qty int) (allocation.Result, error) {
	if !s.owns(ic, id) {
		return allocation.Result{}, nil
	}
	return s.engine.UpdateAllocation(ctx, ic, id, cardID, sideboard, qty)
}

// Hydrate joins the container's ledger with the collection for display.
// Rows whose card is gone are skipped. Cards missing display metadata are
// enriched from the metadata service when one is configured; lookup
// failures leave the fields empty.
func (s *Store) Hydrate(ctx context.Context, ic *inventory.InventoryContext, id string) ([]inventory.HydratedCard, error) {
	c, err := s.Get(ic, id)
	if err != nil {
		return nil, err
	}

	out := make([]inventory.HydratedCard, 0, len(c.Allocations))
	enriched := make(map[string]bool)

	for _, row := range c.Allocations {
		h := inventory.Hydrate(row, ic)
		if h == nil {
			continue
		}
		if card := h.CardData(); card.NeedsMetadata() && !enriched[card.ID] {
			enriched[card.ID] = true
			s.enrich(ctx, card)
		}
		out = append(out, h)
	}

	return out, nil
}

func (s *Store) enrich(ctx context.Context, card *inventory.Card) {
	if s.metadata == nil {
		return
	}

	md, err := s.metadata.LookupCard(ctx, card.ScryfallID)
	if err != nil {
		s.logger.Warn("Card metadata lookup failed", "cardId", card.ID, "scryfallId", card.ScryfallID, "error", err)
		return
	}
	if md == nil {
		return
	}

	card.ApplyMetadata(md)
	card.UpdatedAt = s.now()
	if err := s.collection.Save(ctx, card); err != nil {
		s.logger.Warn("Failed to store card metadata", "cardId", card.ID, "error", err)
	}
}

func (s *Store) owns(ic *inventory.InventoryContext, id string) bool {
	c := ic.Container(id)
	return c != nil && c.Kind == s.kind
}

func (s *Store) put(ctx context.Context, c *inventory.Container) error {
	if err := s.repo.Put(ctx, c); err != nil {
		s.logger.Error("Failed to persist container", "containerId", c.ID, "error", err)
		return &inventory.PersistenceError{Entity: "container", ID: c.ID, Err: err}
	}
	s.notifier.Notify(inventory.Event{Type: inventory.EventContainerUpdated, UserID: c.UserID, ID: c.ID, Data: c})
	return nil
}

// DeckStore manages decks.
type DeckStore struct {
	*Store
}

// NewDeckStore creates a deck store.
func NewDeckStore(repo inventory.ContainerRepository, engine *allocation.Engine, coll *collection.Store, opts Options) *DeckStore {
	return &DeckStore{Store: newStore(inventory.KindDeck, repo, engine, coll, opts)}
}

// MigrateLegacyWishlist converts a deck's legacy wishlist items into
// collection wishlist cards claimed by the deck.
func (s *DeckStore) MigrateLegacyWishlist(ctx context.Context, ic *inventory.InventoryContext, id string) (allocation.Result, error) {
	if _, err := s.Get(ic, id); err != nil {
		return allocation.Result{}, err
	}
	return s.engine.MigrateLegacyWishlist(ctx, ic, id)
}

// MigrateAllLegacyWishlists runs MigrateLegacyWishlist over every deck that
// still carries legacy items and returns the number of decks migrated.
func (s *DeckStore) MigrateAllLegacyWishlists(ctx context.Context, ic *inventory.InventoryContext) (int, error) {
	migrated := 0
	for _, c := range s.List(ic) {
		if len(c.Wishlist) == 0 {
			continue
		}
		if _, err := s.engine.MigrateLegacyWishlist(ctx, ic, c.ID); err != nil {
			return migrated, fmt.Errorf("failed to migrate deck %s: %w", c.ID, err)
		}
		migrated++
	}
	return migrated, nil
}

// BinderStore manages binders.
type BinderStore struct {
	*Store
}

// NewBinderStore creates a binder store.
func NewBinderStore(repo inventory.ContainerRepository, engine *allocation.Engine, coll *collection.Store, opts Options) *BinderStore {
	return &BinderStore{Store: newStore(inventory.KindBinder, repo, engine, coll, opts)}
}
