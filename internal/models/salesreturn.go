package models

import "strconv"

// SalesReturn records units coming back from a sale, referencing the
// stock-out they were issued under.
type SalesReturn struct {
	ID         string `json:"id"`
	StockOutID string `json:"stock_out_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason"`
	ReturnedAt int64  `json:"returned_at"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

func (s SalesReturn) EntityID() string { return s.ID }

func (s SalesReturn) NaturalKey() string {
	return NormalizeKey(s.StockOutID, s.Reason, strconv.Itoa(s.Quantity), strconv.FormatInt(s.ReturnedAt, 10))
}

func (s SalesReturn) UpdatedUnix() int64 { return s.UpdatedAt }
