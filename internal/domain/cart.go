package domain

import (
	"github.com/shopspring/decimal"
)

// DefaultStorageKey is the storage key a cart snapshot lives under when no
// session scoping is applied.
const DefaultStorageKey = "ctn-fastfood-cart"

// LineItem is one product entry in the cart, unique per (Name, Category).
type LineItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"price"`
	ImageRef  string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns UnitPrice multiplied by Quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Matches reports whether the item is the entry for the given name and category.
func (i LineItem) Matches(name, category string) bool {
	return i.Name == name && i.Category == category
}

// Cart is the ordered list of line items owned by a single store.
type Cart struct {
	Items []LineItem `json:"items"`
}

// TotalAmount calculates sum(unit price * quantity) over all items.
func (c *Cart) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ItemCount returns the total number of items in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindItemIndex returns the index of the line item matching the given name and category.
// Returns -1 if not found.
func (c *Cart) FindItemIndex(name, category string) int {
	for i := range c.Items {
		if c.Items[i].Matches(name, category) {
			return i
		}
	}
	return -1
}

// IndexOfID returns the index of the line item with the given id, or -1.
func (c *Cart) IndexOfID(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// RemoveAt deletes the item at index i, preserving the order of the rest.
func (c *Cart) RemoveAt(i int) LineItem {
	removed := c.Items[i]
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return removed
}

// Clone returns a deep copy of the item list.
func (c *Cart) Clone() []LineItem {
	out := make([]LineItem, len(c.Items))
	copy(out, c.Items)
	return out
}

// Summary is the read model handed to pages: items plus the figures shown
// in the order summary and the navbar badge.
type Summary struct {
	Items        []LineItem      `json:"items"`
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
	ItemCount    int             `json:"item_count"`
}

// Summarize builds the Summary for the cart.
func (c *Cart) Summarize() Summary {
	total := c.TotalAmount()
	return Summary{
		Items:        c.Clone(),
		Total:        total,
		TotalDisplay: total.StringFixed(2),
		ItemCount:    c.ItemCount(),
	}
}
