package inventory

import (
	"github.com/shopspring/decimal"
)

// Stats is the denormalized summary cached on every container.
type Stats struct {
	TotalCards           int             `json:"totalCards"`
	SideboardCards       int             `json:"sideboardCards"`
	OwnedCards           int             `json:"ownedCards"`
	WishlistCards        int             `json:"wishlistCards"`
	AvgPrice             decimal.Decimal `json:"avgPrice"`
	TotalPrice           decimal.Decimal `json:"totalPrice"`
	CompletionPercentage float64         `json:"completionPercentage"`
}

// CardSnapshot resolves card ids against a view of the collection.
type CardSnapshot interface {
	CardByID(id string) *Card
}

// CardMap is a CardSnapshot backed by a plain map.
type CardMap map[string]*Card

// CardByID implements CardSnapshot.
func (m CardMap) CardByID(id string) *Card {
	return m[id]
}

// CalculateStats derives container statistics from a ledger and the current
// collection. Rows whose card cannot be resolved are skipped: they belong to
// cards removed elsewhere and are treated as already reconciled.
func CalculateStats(allocations []Allocation, cards CardSnapshot) Stats {
	var (
		owned, wishlist, sideboard int
		ownedPrice                 = decimal.Zero
		wishlistPrice              = decimal.Zero
	)

	for _, a := range allocations {
		card := cards.CardByID(a.CardID)
		if card == nil {
			continue
		}

		linePrice := card.Price.Mul(decimal.NewFromInt(int64(a.Quantity)))
		if card.IsWishlist() {
			wishlist += a.Quantity
			wishlistPrice = wishlistPrice.Add(linePrice)
		} else {
			owned += a.Quantity
			ownedPrice = ownedPrice.Add(linePrice)
		}

		if a.IsInSideboard {
			sideboard += a.Quantity
		}
	}

	total := owned + wishlist
	totalPrice := ownedPrice.Add(wishlistPrice)

	stats := Stats{
		TotalCards:           total,
		SideboardCards:       sideboard,
		OwnedCards:           owned,
		WishlistCards:        wishlist,
		AvgPrice:             decimal.Zero,
		TotalPrice:           totalPrice,
		CompletionPercentage: 100,
	}
	if total > 0 {
		stats.AvgPrice = totalPrice.Div(decimal.NewFromInt(int64(total)))
		stats.CompletionPercentage = float64(owned) / float64(total) * 100
	}

	return stats
}
