package models

import "time"

type Cart struct {
	ID     string
	UserID string
	Timestamps
}

// CartLine is one product in a cart. UnitPriceCents is the catalog price
// captured when the line was last added to or updated.
type CartLine struct {
	ID             string
	CartID         string
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int64
	AddedAt        time.Time
}

type CartItemView struct {
	ProductID      string    `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	SubtotalCents  int64     `json:"subtotal_cents"`
	AddedAt        time.Time `json:"added_at"`
}

// CartView is a read projection whose totals are always derived from Items.
type CartView struct {
	CartID           string         `json:"cart_id,omitempty"`
	UserID           string         `json:"user_id"`
	Items            []CartItemView `json:"items"`
	TotalAmountCents int64          `json:"total_amount_cents"`
	TotalItems       int            `json:"total_items"`
}

// NewCartView builds a view for userID. A nil cart yields an empty view.
func NewCartView(userID string, cart *Cart, lines []CartLine) CartView {
	v := CartView{UserID: userID, Items: make([]CartItemView, 0, len(lines))}
	if cart != nil {
		v.CartID = cart.ID
	}
	for _, l := range lines {
		sub := l.UnitPriceCents * int64(l.Quantity)
		v.Items = append(v.Items, CartItemView{
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			SubtotalCents:  sub,
			AddedAt:        l.AddedAt,
		})
		v.TotalAmountCents += sub
		v.TotalItems += l.Quantity
	}
	return v
}
