package models

// Product is a catalog item. It doubles as the stock source for carts.
type Product struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	PriceCents    int64  `json:"price_cents"`
	StockQuantity int    `json:"stock_quantity"`
	CategoryID    string `json:"category_id"`
	CategoryName  string `json:"category_name,omitempty"`
	ImageKey      string `json:"-"`
	ImageURL      string `json:"image_url,omitempty"`
	IsActive      bool   `json:"is_active"`
	Rate          int    `json:"rate"`
	Timestamps
}

// ImageUpload tells an admin client where to PUT a product image.
type ImageUpload struct {
	ProductID string `json:"product_id"`
	Key       string `json:"key"`
	URL       string `json:"url"`
}
