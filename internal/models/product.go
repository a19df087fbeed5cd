package models

// Product is a sellable item. Quantity reflects the server's view; local
// stock movements adjust it only after their own sync completes.
type Product struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	SKU        string  `json:"sku"`
	CategoryID string  `json:"category_id"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
}

func (p Product) EntityID() string { return p.ID }

func (p Product) NaturalKey() string {
	return NormalizeKey(p.Name, p.SKU)
}

func (p Product) UpdatedUnix() int64 { return p.UpdatedAt }
