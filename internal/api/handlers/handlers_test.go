package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/cardvault/internal/allocation"
	"github.com/ramonehamilton/cardvault/internal/collection"
	"github.com/ramonehamilton/cardvault/internal/containers"
	"github.com/ramonehamilton/cardvault/internal/inventory"
	"github.com/ramonehamilton/cardvault/internal/inventory/memstore"
)

type testAPI struct {
	mem    *memstore.Store
	router chi.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mem := memstore.New()
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	coll := collection.NewStore(mem.Cards(), collection.Options{Now: clock, NewID: newID})
	engine := allocation.NewEngine(coll, mem.Containers(), allocation.Options{})
	opts := containers.Options{Now: clock, NewID: newID}
	decks := containers.NewDeckStore(mem.Containers(), engine, coll, opts)
	binders := containers.NewBinderStore(mem.Containers(), engine, coll, opts)

	registry := inventory.NewRegistry(func(ctx context.Context, userID string) (*inventory.InventoryContext, error) {
		return inventory.Load(ctx, userID, mem.Cards(), mem.Containers())
	})

	cards := NewCardHandler(registry, coll, engine)
	deckHandler := NewDeckHandler(registry, decks)
	binderHandler := NewContainerHandler(registry, binders.Store)

	r := chi.NewRouter()
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/cards", cards.ListCards)
		r.Post("/cards", cards.AddCard)
		r.Get("/cards/summary", cards.Summary)
		r.Get("/cards/{cardID}", cards.GetCard)
		r.Patch("/cards/{cardID}", cards.UpdateCard)
		r.Delete("/cards/{cardID}", cards.DeleteCard)
		r.Get("/cards/{cardID}/availability", cards.Availability)

		for prefix, h := range map[string]*ContainerHandler{"/decks": deckHandler.ContainerHandler, "/binders": binderHandler} {
			r.Get(prefix, h.List)
			r.Post(prefix, h.Create)
			r.Get(prefix+"/{containerID}", h.Get)
			r.Put(prefix+"/{containerID}", h.Update)
			r.Delete(prefix+"/{containerID}", h.Delete)
			r.Get(prefix+"/{containerID}/stats", h.Stats)
			r.Get(prefix+"/{containerID}/cards", h.Cards)
			r.Post(prefix+"/{containerID}/allocations", h.Allocate)
			r.Put(prefix+"/{containerID}/allocations/{cardID}", h.UpdateAllocation)
			r.Delete(prefix+"/{containerID}/allocations/{cardID}", h.Deallocate)
		}
		r.Post("/decks/{containerID}/migrate-wishlist", deckHandler.MigrateWishlist)
	})

	return &testAPI{mem: mem, router: r}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, "/users/u1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

// seed adds a four-copy card (id-1) and a deck (id-2).
func (a *testAPI) seed(t *testing.T) {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/cards", map[string]interface{}{
		"scryfallId": "bolt",
		"name":       "Lightning Bolt",
		"edition":    "M10",
		"quantity":   4,
		"price":      "1.25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/decks", map[string]string{"name": "Burn", "format": "modern"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCards_AddListGet(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodGet, "/cards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cards []inventory.Card
	decodeData(t, rec, &cards)
	require.Len(t, cards, 1)
	assert.Equal(t, "id-1", cards[0].ID)
	assert.Equal(t, inventory.StatusCollection, cards[0].Status)
	assert.Equal(t, inventory.ConditionNearMint, cards[0].Condition)

	rec = api.do(t, http.MethodGet, "/cards/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/cards/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/cards?status=wishlist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &cards)
	assert.Empty(t, cards)

	rec = api.do(t, http.MethodGet, "/cards?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCards_AddRejectsBadInput(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", `{"scryfallId":`},
		{"missing scryfall id", map[string]interface{}{"quantity": 1}},
		{"zero quantity", map[string]interface{}{"scryfallId": "bolt", "quantity": 0}},
		{"unknown condition", map[string]interface{}{"scryfallId": "bolt", "quantity": 1, "condition": "mangled"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/cards", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestAllocate_SplitsShortfallToWishlist(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/decks/id-2/allocations", AllocateRequest{CardID: "id-1", Quantity: 6})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result allocation.Result
	decodeData(t, rec, &result)
	assert.Equal(t, 4, result.Allocated)
	assert.Equal(t, 2, result.Wishlisted)
	assert.Equal(t, "id-3", result.WishlistCardID)
	assert.True(t, result.Persisted)

	rec = api.do(t, http.MethodGet, "/cards/id-1/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var avail map[string]int
	decodeData(t, rec, &avail)
	assert.Equal(t, map[string]int{"claimed": 4, "available": 0}, avail)

	rec = api.do(t, http.MethodGet, "/decks/id-2/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats inventory.Stats
	decodeData(t, rec, &stats)
	assert.Equal(t, 6, stats.TotalCards)
	assert.Equal(t, 4, stats.OwnedCards)
	assert.Equal(t, 2, stats.WishlistCards)

	rec = api.do(t, http.MethodGet, "/decks/id-2/cards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hydrated []map[string]interface{}
	decodeData(t, rec, &hydrated)
	require.Len(t, hydrated, 2)
}

func TestAllocate_ValidatesRequest(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/decks/id-2/allocations", AllocateRequest{Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/decks/id-2/allocations", AllocateRequest{CardID: "id-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllocate_UnknownContainerIsNoOp(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/binders/id-2/allocations", AllocateRequest{CardID: "id-1", Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var result allocation.Result
	decodeData(t, rec, &result)
	assert.False(t, result.Mutated)
	assert.Zero(t, result.Allocated)
}

func TestUpdateAllocation_ConflictCarriesMax(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/binders", map[string]string{"name": "Trade binder"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/binders/id-3/allocations", AllocateRequest{CardID: "id-1", Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPut, "/decks/id-2/allocations/id-1", UpdateAllocationRequest{Quantity: 4})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Code int  `json:"code"`
		Max  *int `json:"max"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Max)
	assert.Equal(t, 3, *body.Max)

	rec = api.do(t, http.MethodPut, "/decks/id-2/allocations/id-1", UpdateAllocationRequest{Quantity: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	var result allocation.Result
	decodeData(t, rec, &result)
	assert.Equal(t, 3, result.Allocated)
}

func TestDeallocate_SideboardFlag(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/decks/id-2/allocations", AllocateRequest{CardID: "id-1", Quantity: 2, Sideboard: true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodDelete, "/decks/id-2/allocations/id-1?sideboard=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/decks/id-2/allocations/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result allocation.Result
	decodeData(t, rec, &result)
	assert.Zero(t, result.Released)

	rec = api.do(t, http.MethodDelete, "/decks/id-2/allocations/id-1?sideboard=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &result)
	assert.Equal(t, 2, result.Released)
}

func TestUpdateCard_LoweringQuantityConvertsClaims(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/decks/id-2/allocations", AllocateRequest{CardID: "id-1", Quantity: 4})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPatch, "/cards/id-1", map[string]interface{}{"quantity": 1, "price": "2.00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UpdateCardResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 1, resp.Card.Quantity)
	assert.Equal(t, "2", resp.Card.Price.String())
	require.NotNil(t, resp.Reconciliation)
	assert.Equal(t, 3, resp.Reconciliation.Converted)

	rec = api.do(t, http.MethodPatch, "/cards/id-1", map[string]interface{}{"quantity": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, "/cards/nope", map[string]interface{}{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCard_RejectedRequestChangesNothing(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)
	puts := api.mem.CardPuts

	rec := api.do(t, http.MethodPatch, "/cards/id-1", map[string]interface{}{"quantity": -1, "price": "9.99"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, puts, api.mem.CardPuts)
	assert.Equal(t, "1.25", api.mem.Card("id-1").Price.String())

	rec = api.do(t, http.MethodGet, "/cards/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var card inventory.Card
	decodeData(t, rec, &card)
	assert.Equal(t, "1.25", card.Price.String())
	assert.Equal(t, 4, card.Quantity)
}

func TestDeleteCard_KeepsDeckNeed(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/decks/id-2/allocations", AllocateRequest{CardID: "id-1", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodDelete, "/cards/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/cards/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary collection.Summary
	decodeData(t, rec, &summary)
	assert.Zero(t, summary.OwnedCopies)
	assert.Equal(t, 2, summary.WishlistCopies)
}

func TestContainers_CRUD(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	rec := api.do(t, http.MethodPut, "/decks/id-2", map[string]string{"name": "Mono Red"})
	require.Equal(t, http.StatusOK, rec.Code)
	var c inventory.Container
	decodeData(t, rec, &c)
	assert.Equal(t, "Mono Red", c.Name)
	assert.Equal(t, "modern", c.Format)

	rec = api.do(t, http.MethodPut, "/decks/id-2", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/binders/id-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/decks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []inventory.Container
	decodeData(t, rec, &list)
	assert.Len(t, list, 1)

	rec = api.do(t, http.MethodDelete, "/decks/id-2", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/decks/id-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/decks", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMigrateWishlist(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, api.mem.Containers().Put(ctx, &inventory.Container{
		ID:     "legacy",
		UserID: "u1",
		Kind:   inventory.KindDeck,
		Name:   "Old deck",
		Wishlist: []inventory.WishlistItem{
			{ScryfallID: "bolt", Name: "Lightning Bolt", Edition: "M10", Condition: inventory.ConditionNearMint, Quantity: 2},
		},
	}))

	rec := api.do(t, http.MethodPost, "/decks/legacy/migrate-wishlist", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/decks/legacy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c inventory.Container
	decodeData(t, rec, &c)
	assert.Empty(t, c.Wishlist)
	require.Len(t, c.Allocations, 1)
	assert.Equal(t, 2, c.Allocations[0].Quantity)

	rec = api.do(t, http.MethodPost, "/decks/missing/migrate-wishlist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPersistenceFailure_ReloadsDurableState(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	api.mem.FailPut["id-2"] = errors.New("disk full")
	rec := api.do(t, http.MethodPost, "/decks/id-2/allocations", AllocateRequest{CardID: "id-1", Quantity: 2})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Retryable bool `json:"retryable"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Retryable)

	delete(api.mem.FailPut, "id-2")
	rec = api.do(t, http.MethodGet, "/decks/id-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c inventory.Container
	decodeData(t, rec, &c)
	assert.Empty(t, c.Allocations)
}
