// Package memstore provides in-memory card and container repositories for
// tests of packages built on top of the inventory model.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// Store implements both inventory.CardRepository and
// inventory.ContainerRepository. Documents are copied on the way in and out,
// so later in-memory edits are only visible after another Put.
type Store struct {
	mu         sync.Mutex
	cards      map[string]*inventory.Card
	containers map[string]*inventory.Container
	order      []string

	// FailPut makes Put fail for the listed ids.
	FailPut map[string]error

	// FailQuery makes QueryByField fail for the listed values.
	FailQuery map[string]error

	CardPuts      int
	ContainerPuts int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		cards:      make(map[string]*inventory.Card),
		containers: make(map[string]*inventory.Container),
		FailPut:    make(map[string]error),
		FailQuery:  make(map[string]error),
	}
}

// Cards returns the card repository view of the store.
func (s *Store) Cards() inventory.CardRepository {
	return cardRepo{s}
}

// Containers returns the container repository view of the store.
func (s *Store) Containers() inventory.ContainerRepository {
	return containerRepo{s}
}

// Card returns the durable copy of a card.
func (s *Store) Card(id string) *inventory.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCard(s.cards[id])
}

// Container returns the durable copy of a container.
func (s *Store) Container(id string) *inventory.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.containers[id]; ok {
		return c.Clone()
	}
	return nil
}

type cardRepo struct{ s *Store }

func (r cardRepo) GetByID(_ context.Context, id string) (*inventory.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyCard(r.s.cards[id]), nil
}

func (r cardRepo) ListByUser(_ context.Context, userID string) ([]*inventory.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*inventory.Card
	for _, id := range r.s.order {
		if c, ok := r.s.cards[id]; ok && c.UserID == userID {
			out = append(out, copyCard(c))
		}
	}
	return out, nil
}

func (r cardRepo) Put(_ context.Context, card *inventory.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.FailPut[card.ID]; err != nil {
		return err
	}
	if _, ok := r.s.cards[card.ID]; !ok {
		r.s.order = append(r.s.order, card.ID)
	}
	r.s.cards[card.ID] = copyCard(card)
	r.s.CardPuts++
	return nil
}

func (r cardRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.cards, id)
	return nil
}

func (r cardRepo) QueryByField(_ context.Context, userID string, field inventory.CardField, value any) ([]*inventory.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.FailQuery[fmt.Sprint(value)]; err != nil {
		return nil, err
	}

	var out []*inventory.Card
	for _, id := range r.s.order {
		c, ok := r.s.cards[id]
		if !ok || c.UserID != userID {
			continue
		}
		var got any
		switch field {
		case inventory.FieldScryfallID:
			got = c.ScryfallID
		case inventory.FieldStatus:
			got = string(c.Status)
		case inventory.FieldEdition:
			got = c.Edition
		case inventory.FieldCondition:
			got = string(c.Condition)
		case inventory.FieldFoil:
			got = c.Foil
		default:
			return nil, fmt.Errorf("unsupported field %q", field)
		}
		if fmt.Sprint(got) == fmt.Sprint(value) {
			out = append(out, copyCard(c))
		}
	}
	return out, nil
}

type containerRepo struct{ s *Store }

func (r containerRepo) GetByID(_ context.Context, id string) (*inventory.Container, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.containers[id]; ok {
		return c.Clone(), nil
	}
	return nil, nil
}

func (r containerRepo) List(_ context.Context, userID string, kind inventory.ContainerKind) ([]*inventory.Container, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*inventory.Container
	for _, c := range r.s.containers {
		if c.UserID == userID && c.Kind == kind {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r containerRepo) Put(_ context.Context, c *inventory.Container) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.FailPut[c.ID]; err != nil {
		return err
	}
	r.s.containers[c.ID] = c.Clone()
	r.s.ContainerPuts++
	return nil
}

func (r containerRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.containers, id)
	return nil
}

func copyCard(c *inventory.Card) *inventory.Card {
	if c == nil {
		return nil
	}
	out := *c
	out.Colors = slices.Clone(c.Colors)
	return &out
}
