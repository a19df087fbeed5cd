package models

// Category groups products for reporting and navigation.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func (c Category) EntityID() string { return c.ID }

func (c Category) NaturalKey() string {
	return NormalizeKey(c.Name, c.Description)
}

func (c Category) UpdatedUnix() int64 { return c.UpdatedAt }
