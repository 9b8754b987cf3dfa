package storage

import (
	"context"

	"github.com/ramonehamilton/cardvault/internal/inventory"
	"github.com/ramonehamilton/cardvault/internal/storage/repository"
)

// Service exposes the database through the inventory repository
// interfaces. Every call is retried while SQLite reports the database busy.
type Service struct {
	db         *DB
	cards      inventory.CardRepository
	containers inventory.ContainerRepository
}

// NewService creates a new storage service.
func NewService(db *DB) *Service {
	return &Service{
		db:         db,
		cards:      repository.NewCardRepository(db.Conn()),
		containers: repository.NewContainerRepository(db.Conn()),
	}
}

// Cards returns the card repository.
func (s *Service) Cards() inventory.CardRepository {
	return retryingCards{s.cards}
}

// Containers returns the container repository.
func (s *Service) Containers() inventory.ContainerRepository {
	return retryingContainers{s.containers}
}

// Load reads one user's inventory. It matches inventory.LoaderFunc.
func (s *Service) Load(ctx context.Context, userID string) (*inventory.InventoryContext, error) {
	return inventory.Load(ctx, userID, s.Cards(), s.Containers())
}

// Close closes the database connection.
func (s *Service) Close() error {
	return s.db.Close()
}

type retryingCards struct {
	repo inventory.CardRepository
}

func (r retryingCards) GetByID(ctx context.Context, id string) (card *inventory.Card, err error) {
	err = RetryOnBusy(func() error {
		card, err = r.repo.GetByID(ctx, id)
		return err
	})
	return card, err
}

func (r retryingCards) ListByUser(ctx context.Context, userID string) (cards []*inventory.Card, err error) {
	err = RetryOnBusy(func() error {
		cards, err = r.repo.ListByUser(ctx, userID)
		return err
	})
	return cards, err
}

func (r retryingCards) Put(ctx context.Context, card *inventory.Card) error {
	return RetryOnBusy(func() error {
		return r.repo.Put(ctx, card)
	})
}

func (r retryingCards) Delete(ctx context.Context, id string) error {
	return RetryOnBusy(func() error {
		return r.repo.Delete(ctx, id)
	})
}

func (r retryingCards) QueryByField(ctx context.Context, userID string, field inventory.CardField, value any) (cards []*inventory.Card, err error) {
	err = RetryOnBusy(func() error {
		cards, err = r.repo.QueryByField(ctx, userID, field, value)
		return err
	})
	return cards, err
}

type retryingContainers struct {
	repo inventory.ContainerRepository
}

func (r retryingContainers) GetByID(ctx context.Context, id string) (c *inventory.Container, err error) {
	err = RetryOnBusy(func() error {
		c, err = r.repo.GetByID(ctx, id)
		return err
	})
	return c, err
}

func (r retryingContainers) List(ctx context.Context, userID string, kind inventory.ContainerKind) (cs []*inventory.Container, err error) {
	err = RetryOnBusy(func() error {
		cs, err = r.repo.List(ctx, userID, kind)
		return err
	})
	return cs, err
}

func (r retryingContainers) Put(ctx context.Context, c *inventory.Container) error {
	return RetryOnBusy(func() error {
		return r.repo.Put(ctx, c)
	})
}

func (r retryingContainers) Delete(ctx context.Context, id string) error {
	return RetryOnBusy(func() error {
		return r.repo.Delete(ctx, id)
	})
}
