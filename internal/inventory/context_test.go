package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryContext_TotalClaimedSpansKinds(t *testing.T) {
	deck := &Container{ID: "d1", Kind: KindDeck, Allocations: []Allocation{
		{CardID: "x", Quantity: 2},
		{CardID: "x", Quantity: 1, IsInSideboard: true},
	}}
	binder := &Container{ID: "b1", Kind: KindBinder, Allocations: []Allocation{{CardID: "x", Quantity: 3}}}

	ic := NewInventoryContext("u1", nil, []*Container{deck, binder})

	assert.Equal(t, 6, ic.TotalClaimed("x"))
	assert.Equal(t, 0, ic.TotalClaimed("y"))
	assert.Len(t, ic.ContainersOfKind(KindDeck), 1)
	assert.Len(t, ic.ContainersOfKind(KindBinder), 1)
}

func TestInventoryContext_ReconcileOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := &Container{ID: "a", CreatedAt: base.Add(time.Hour)}
	older := &Container{ID: "z", CreatedAt: base}
	tieB := &Container{ID: "b", CreatedAt: base.Add(2 * time.Hour)}
	tieA := &Container{ID: "a2", CreatedAt: base.Add(2 * time.Hour)}

	ic := NewInventoryContext("u1", nil, []*Container{newer, tieB, older, tieA})

	var ids []string
	for _, c := range ic.ReconcileOrder() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"z", "a", "a2", "b"}, ids)

	// Listing order is untouched.
	assert.Equal(t, "a", ic.Containers()[0].ID)
}

func TestInventoryContext_AddRemove(t *testing.T) {
	ic := NewInventoryContext("u1", []*Card{testCard("x", 1, StatusCollection, "1")}, nil)

	replacement := testCard("x", 5, StatusCollection, "1")
	ic.AddCard(replacement)
	require.Len(t, ic.Cards(), 1)
	assert.Equal(t, 5, ic.CardByID("x").Quantity)

	ic.RemoveCard("x")
	assert.Nil(t, ic.CardByID("x"))
	assert.Empty(t, ic.Cards())

	ic.AddContainer(&Container{ID: "d1", Kind: KindDeck})
	ic.RemoveContainer("d1")
	assert.Nil(t, ic.Container("d1"))
	assert.Empty(t, ic.Containers())
}

func TestInventoryContext_FindWishlistCard(t *testing.T) {
	owned := testCard("x", 1, StatusCollection, "1")
	wish := testCard("xw", 1, StatusWishlist, "1")
	wish.ScryfallID = owned.ScryfallID

	ic := NewInventoryContext("u1", []*Card{owned, wish}, nil)

	found := ic.FindWishlistCard(owned.Identity())
	require.NotNil(t, found)
	assert.Equal(t, "xw", found.ID)

	foil := owned.Identity()
	foil.Foil = true
	assert.Nil(t, ic.FindWishlistCard(foil))
}

func TestContainer_LedgerHelpers(t *testing.T) {
	now := time.Now()
	c := &Container{ID: "d1", Kind: KindDeck}

	c.AddToAllocation("x", false, 2, now)
	c.AddToAllocation("x", false, 1, now)
	c.AddToAllocation("x", true, 4, now)
	c.AddToAllocation("x", true, 0, now)

	require.Len(t, c.Allocations, 2)
	assert.Equal(t, 3, c.Allocations[0].Quantity)
	assert.Equal(t, 7, c.Claimed("x"))

	assert.True(t, c.RemoveAllocation("x", true))
	assert.False(t, c.RemoveAllocation("x", true))
	assert.Equal(t, 3, c.Claimed("x"))
}

func TestCondition(t *testing.T) {
	assert.True(t, ConditionMint.Better(ConditionNearMint))
	assert.True(t, ConditionHeavyPlay.Better(ConditionPoor))
	assert.False(t, ConditionPoor.Better(ConditionPoor))
	assert.False(t, Condition("graded-10").Valid())
	assert.True(t, ConditionLightPlay.Valid())
}

func TestRegistry_LoadsOnceAndSerializes(t *testing.T) {
	loads := 0
	reg := NewRegistry(func(_ context.Context, userID string) (*InventoryContext, error) {
		loads++
		return NewInventoryContext(userID, nil, nil), nil
	})

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Do(context.Background(), "u1", func(ic *InventoryContext) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, loads)
	assert.Equal(t, 20, counter)
}

func TestRegistry_InvalidatesOnPersistenceFailure(t *testing.T) {
	loads := 0
	reg := NewRegistry(func(_ context.Context, userID string) (*InventoryContext, error) {
		loads++
		return NewInventoryContext(userID, nil, nil), nil
	})
	ctx := context.Background()

	err := reg.Do(ctx, "u1", func(*InventoryContext) error {
		return &BatchError{Failures: []*PersistenceError{{Entity: "container", ID: "d1", Err: errors.New("disk full")}}}
	})
	require.Error(t, err)

	err = reg.Do(ctx, "u1", func(*InventoryContext) error { return errors.New("plain failure") })
	require.Error(t, err)

	require.NoError(t, reg.Do(ctx, "u1", func(*InventoryContext) error { return nil }))

	// Initial load, reload after the batch failure; the plain failure keeps the cache.
	assert.Equal(t, 2, loads)
}
