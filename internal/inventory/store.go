package inventory

import (
	"context"
)

// CardField names a card attribute that can be queried on.
type CardField string

const (
	FieldScryfallID CardField = "scryfall_id"
	FieldStatus     CardField = "status"
	FieldEdition    CardField = "edition"
	FieldCondition  CardField = "condition"
	FieldFoil       CardField = "foil"
)

// CardRepository is the durable document store for collection cards.
// Lookups return (nil, nil) when the card does not exist.
type CardRepository interface {
	GetByID(ctx context.Context, id string) (*Card, error)
	ListByUser(ctx context.Context, userID string) ([]*Card, error)
	Put(ctx context.Context, card *Card) error
	Delete(ctx context.Context, id string) error
	QueryByField(ctx context.Context, userID string, field CardField, value any) ([]*Card, error)
}

// ContainerRepository is the durable document store for decks and binders.
// Put replaces the whole document, ledger included.
type ContainerRepository interface {
	GetByID(ctx context.Context, id string) (*Container, error)
	List(ctx context.Context, userID string, kind ContainerKind) ([]*Container, error)
	Put(ctx context.Context, container *Container) error
	Delete(ctx context.Context, id string) error
}

// MetadataLookup fetches canonical card attributes by Scryfall id.
type MetadataLookup interface {
	LookupCard(ctx context.Context, scryfallID string) (*CardMetadata, error)
}

// Event types published after durable writes.
const (
	EventContainerUpdated = "container:updated"
	EventContainerDeleted = "container:deleted"
	EventCardUpdated      = "card:updated"
	EventCardDeleted      = "card:deleted"
)

// Event describes a durable change to one entity.
type Event struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	ID     string `json:"id"`
	Data   any    `json:"data,omitempty"`
}

// Notifier receives change events. Implementations must not block.
type Notifier interface {
	Notify(event Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Event) {}
