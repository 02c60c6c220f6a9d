package model

// Category classifies transactions and scopes budgets.
type Category struct {
	Title  string
	Symbol string
	ID     int64
}

// Validate checks the user-editable fields.
func (c *Category) Validate() error {
	return validateTitle("title", c.Title)
}
