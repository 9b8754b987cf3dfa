// Package handlers implements the REST endpoints over a user's card
// collection, decks and binders.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/ramonehamilton/cardvault/internal/api/response"
	"github.com/ramonehamilton/cardvault/internal/inventory"
)

var errInvalidBody = errors.New("invalid request body")

// userID returns the user the request is scoped to.
func userID(r *http.Request) string {
	return chi.URLParam(r, "userID")
}

// decode reads a JSON request body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		response.BadRequest(w, errInvalidBody)
		return false
	}
	return true
}

// sideboardParam parses the optional sideboard query flag.
func sideboardParam(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("sideboard")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &inventory.ValidationError{Field: "sideboard", Message: "must be a boolean"}
	}
	return v, nil
}

// withInventory runs fn against the user's inventory and writes the error
// response if it fails. fn writes its own success response so the payload
// is encoded while the user's view is still locked.
func withInventory(w http.ResponseWriter, r *http.Request, registry *inventory.Registry, fn func(ic *inventory.InventoryContext) error) {
	uid := userID(r)
	if uid == "" {
		response.BadRequest(w, errors.New("user ID is required"))
		return
	}

	if err := registry.Do(r.Context(), uid, fn); err != nil {
		response.FromError(w, err)
	}
}
