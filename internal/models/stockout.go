package models

import "strconv"

// StockOut records units leaving stock, either sold or written off.
// StockInID links the movement back to the intake batch it draws from.
type StockOut struct {
	ID        string  `json:"id"`
	StockInID string  `json:"stock_in_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Reason    string  `json:"reason"`
	IssuedAt  int64   `json:"issued_at"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

func (s StockOut) EntityID() string { return s.ID }

func (s StockOut) NaturalKey() string {
	return NormalizeKey(s.ProductID, s.Reason, strconv.Itoa(s.Quantity), strconv.FormatInt(s.IssuedAt, 10))
}

func (s StockOut) UpdatedUnix() int64 { return s.UpdatedAt }
