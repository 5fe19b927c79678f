// Package catalog holds the fixed, read-only grocery catalog.
//
// A Catalog is built once at startup and shared by the cart and order
// services. It is never mutated after construction, so concurrent readers
// need no locking.
package catalog

import (
	"fmt"

	"github.com/itsneelabh/gomind-grocery/core"
)

// Item is a purchasable product. Price is per Unit.
type Item struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string { return e.msg }

// Is lets catalog lookups satisfy core.IsNotFound.
func (e *notFoundError) Is(target error) bool { return target == core.ErrNotFound }

var (
	ErrCategoryNotFound error = &notFoundError{"category not found"}
	ErrItemNotFound     error = &notFoundError{"item not found"}
)

// Reader is the read side of the catalog used by the services.
type Reader interface {
	ListCategories() []string
	ListItems(category string) ([]Item, error)
	GetItem(id int) (Item, error)
}

// Catalog is an immutable category -> items index.
type Catalog struct {
	categories []string
	items      map[string][]Item
	byID       map[int]Item
}

// Category groups items under a name, in display order.
type Category struct {
	Name  string
	Items []Item
}

// New builds a catalog from categories in display order. Duplicate
// category names or item ids are rejected.
func New(categories ...Category) (*Catalog, error) {
	c := &Catalog{
		items: make(map[string][]Item, len(categories)),
		byID:  make(map[int]Item),
	}
	for _, cat := range categories {
		if _, dup := c.items[cat.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q: %w", cat.Name, core.ErrInvalidConfiguration)
		}
		items := make([]Item, len(cat.Items))
		copy(items, cat.Items)
		for _, it := range items {
			if _, dup := c.byID[it.ID]; dup {
				return nil, fmt.Errorf("duplicate item id %d: %w", it.ID, core.ErrInvalidConfiguration)
			}
			c.byID[it.ID] = it
		}
		c.categories = append(c.categories, cat.Name)
		c.items[cat.Name] = items
	}
	return c, nil
}

// Default returns the shop's fixed catalog.
func Default() *Catalog {
	c, err := New(
		Category{Name: "Fruits", Items: []Item{
			{ID: 1, Name: "Banana", Price: 20, Unit: "kg"},
			{ID: 2, Name: "Apple", Price: 30, Unit: "kg"},
		}},
		Category{Name: "Vegetables", Items: []Item{
			{ID: 3, Name: "Carrot", Price: 15, Unit: "kg"},
			{ID: 4, Name: "Potato", Price: 10, Unit: "kg"},
		}},
		Category{Name: "Dairy", Items: []Item{
			{ID: 5, Name: "Milk", Price: 50, Unit: "liter"},
			{ID: 6, Name: "Curd", Price: 40, Unit: "kg"},
		}},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// ListCategories returns category names in display order.
func (c *Catalog) ListCategories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// ListItems returns the items of a category. Names are case sensitive.
func (c *Catalog) ListItems(category string) ([]Item, error) {
	items, ok := c.items[category]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out, nil
}

// GetItem looks an item up by id.
func (c *Catalog) GetItem(id int) (Item, error) {
	it, ok := c.byID[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}
