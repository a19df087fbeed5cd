package models

import "strconv"

// StockIn records an intake of product units from a supplier.
type StockIn struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"product_id"`
	Quantity   int     `json:"quantity"`
	UnitCost   float64 `json:"unit_cost"`
	Supplier   string  `json:"supplier"`
	ReceivedAt int64   `json:"received_at"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
}

func (s StockIn) EntityID() string { return s.ID }

func (s StockIn) NaturalKey() string {
	return NormalizeKey(s.ProductID, s.Supplier, strconv.Itoa(s.Quantity), strconv.FormatInt(s.ReceivedAt, 10))
}

func (s StockIn) UpdatedUnix() int64 { return s.UpdatedAt }
