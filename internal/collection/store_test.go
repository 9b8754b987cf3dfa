package collection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/cardvault/internal/inventory"
	"github.com/ramonehamilton/cardvault/internal/inventory/memstore"
)

func newTestStore(t *testing.T) (*Store, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	seq := 0
	store := NewStore(mem.Cards(), Options{
		Now: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("card-%d", seq)
		},
	})
	return store, mem
}

func bolt(qty int) NewCard {
	return NewCard{
		ScryfallID: "bolt",
		Name:       "Lightning Bolt",
		Edition:    "M10",
		Condition:  inventory.ConditionNearMint,
		Quantity:   qty,
		Price:      decimal.RequireFromString("1.25"),
	}
}

func TestAddCard_CreatesAndMerges(t *testing.T) {
	store, mem := newTestStore(t)
	ctx := context.Background()
	ic := inventory.NewInventoryContext("u1", nil, nil)

	card, err := store.AddCard(ctx, ic, bolt(2))
	require.NoError(t, err)
	assert.Equal(t, "card-1", card.ID)
	assert.Equal(t, inventory.StatusCollection, card.Status)
	assert.Equal(t, "u1", card.UserID)

	again, err := store.AddCard(ctx, ic, bolt(3))
	require.NoError(t, err)
	assert.Equal(t, card.ID, again.ID)
	assert.Equal(t, 5, again.Quantity)
	assert.Equal(t, 5, mem.Card(card.ID).Quantity)

	foil := bolt(1)
	foil.Foil = true
	other, err := store.AddCard(ctx, ic, foil)
	require.NoError(t, err)
	assert.NotEqual(t, card.ID, other.ID)
	assert.Len(t, ic.Cards(), 2)
}

func TestAddCard_Validation(t *testing.T) {
	store, _ := newTestStore(t)
	ic := inventory.NewInventoryContext("u1", nil, nil)

	tests := []struct {
		name  string
		mut   func(*NewCard)
		field string
	}{
		{"missing scryfall id", func(n *NewCard) { n.ScryfallID = "" }, "scryfallId"},
		{"zero quantity", func(n *NewCard) { n.Quantity = 0 }, "quantity"},
		{"bad condition", func(n *NewCard) { n.Condition = "pristine" }, "condition"},
		{"bad status", func(n *NewCard) { n.Status = "borrowed" }, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bolt(1)
			tt.mut(&req)
			_, err := store.AddCard(context.Background(), ic, req)

			var verr *inventory.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEnsureWishlistCard_Upserts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owned := &inventory.Card{ID: "x", UserID: "u1", ScryfallID: "bolt", Edition: "M10", Condition: inventory.ConditionNearMint, Quantity: 4, Status: inventory.StatusCollection, Price: decimal.RequireFromString("1.25")}
	ic := inventory.NewInventoryContext("u1", []*inventory.Card{owned}, nil)

	wish, err := store.EnsureWishlistCard(ctx, ic, owned, 2)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusWishlist, wish.Status)
	assert.Equal(t, 2, wish.Quantity)
	assert.Equal(t, owned.Identity(), wish.Identity())

	pricier := *owned
	pricier.Price = decimal.RequireFromString("9.99")
	again, err := store.EnsureWishlistCard(ctx, ic, &pricier, 1)
	require.NoError(t, err)
	assert.Equal(t, wish.ID, again.ID)
	assert.Equal(t, 3, again.Quantity)
	assert.Equal(t, "1.25", again.Price.String(), "first price wins")

	// Owned card is not touched.
	assert.Equal(t, 4, owned.Quantity)
}

func TestEnsureWishlistCard_FindsDurableCardMissingFromView(t *testing.T) {
	store, mem := newTestStore(t)
	ctx := context.Background()

	existing := &inventory.Card{ID: "w-old", UserID: "u1", ScryfallID: "bolt", Edition: "M10", Condition: inventory.ConditionNearMint, Quantity: 1, Status: inventory.StatusWishlist}
	require.NoError(t, mem.Cards().Put(ctx, existing))

	owned := &inventory.Card{ID: "x", UserID: "u1", ScryfallID: "bolt", Edition: "M10", Condition: inventory.ConditionNearMint, Quantity: 1, Status: inventory.StatusCollection}
	ic := inventory.NewInventoryContext("u1", []*inventory.Card{owned}, nil)

	wish, err := store.EnsureWishlistCard(ctx, ic, owned, 2)
	require.NoError(t, err)
	assert.Equal(t, "w-old", wish.ID)
	assert.Equal(t, 3, wish.Quantity)
	assert.Same(t, wish, ic.CardByID("w-old"))
}

func TestEnsureWishlistCard_KeepsKnownColorless(t *testing.T) {
	store, mem := newTestStore(t)
	ctx := context.Background()

	typeLine := "Artifact"
	manaValue := 1.0
	owned := &inventory.Card{
		ID: "x", UserID: "u1", ScryfallID: "sol-ring", Edition: "C21", Condition: inventory.ConditionNearMint,
		Quantity: 1, Status: inventory.StatusCollection,
		TypeLine: &typeLine, ManaValue: &manaValue, Colors: []string{},
	}
	ic := inventory.NewInventoryContext("u1", []*inventory.Card{owned}, nil)

	wish, err := store.EnsureWishlistCard(ctx, ic, owned, 1)
	require.NoError(t, err)
	assert.NotNil(t, wish.Colors)
	assert.Empty(t, wish.Colors)
	assert.False(t, wish.NeedsMetadata())

	require.NoError(t, store.Save(ctx, wish))
	assert.NotNil(t, mem.Card(wish.ID).Colors)
}

func TestFindWishlistCard_QueryFailureChangesNothing(t *testing.T) {
	store, mem := newTestStore(t)
	ctx := context.Background()
	mem.FailQuery["bolt"] = errors.New("disk I/O error")

	owned := &inventory.Card{ID: "x", UserID: "u1", ScryfallID: "bolt", Edition: "M10", Condition: inventory.ConditionNearMint, Quantity: 1, Status: inventory.StatusCollection}
	ic := inventory.NewInventoryContext("u1", []*inventory.Card{owned}, nil)

	_, err := store.EnsureWishlistCard(ctx, ic, owned, 2)
	require.Error(t, err)
	assert.Len(t, ic.Cards(), 1)
	assert.Nil(t, ic.FindWishlistCard(owned.Identity()))
}

func TestSave_WrapsPersistenceFailure(t *testing.T) {
	store, mem := newTestStore(t)
	mem.FailPut["x"] = errors.New("disk full")

	err := store.Save(context.Background(), &inventory.Card{ID: "x"})

	var perr *inventory.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "card", perr.Entity)
	assert.Equal(t, "x", perr.ID)
}

func TestSetQuantity_RejectsNegative(t *testing.T) {
	store, _ := newTestStore(t)
	card := &inventory.Card{ID: "x", Quantity: 2}

	require.Error(t, store.SetQuantity(card, -1))
	assert.Equal(t, 2, card.Quantity)

	require.NoError(t, store.SetQuantity(card, 0))
	assert.Equal(t, 0, card.Quantity)
}

func TestSummarize(t *testing.T) {
	store, _ := newTestStore(t)
	ic := inventory.NewInventoryContext("u1", []*inventory.Card{
		{ID: "a", Quantity: 2, Status: inventory.StatusCollection, Price: decimal.RequireFromString("1.50")},
		{ID: "b", Quantity: 1, Status: inventory.StatusTrade, Price: decimal.RequireFromString("4")},
		{ID: "c", Quantity: 3, Status: inventory.StatusWishlist, Price: decimal.RequireFromString("2")},
		{ID: "d", Quantity: 0, Status: inventory.StatusCollection, Price: decimal.RequireFromString("100")},
	}, nil)

	summary := store.Summarize(ic)

	assert.Equal(t, 3, summary.DistinctCards)
	assert.Equal(t, 3, summary.OwnedCopies)
	assert.Equal(t, 3, summary.WishlistCopies)
	assert.Equal(t, "7", summary.OwnedValue.String())
	assert.Equal(t, "6", summary.WishlistValue.String())
}
