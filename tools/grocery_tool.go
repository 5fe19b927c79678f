// Package tools exposes the grocery shop as tool capabilities that an
// agent or chat bridge can call over HTTP.
//
// Every capability is a thin proxy: it decodes a JSON payload, calls the
// shop REST API and returns the raw result together with a short
// human-readable message.
package tools

import (
	"context"
	"net/http"

	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/order"
	"github.com/itsneelabh/gomind-grocery/session"
)

// ShopAPI is the shop client the tool proxies to.
type ShopAPI interface {
	Categories(ctx context.Context) ([]string, error)
	Items(ctx context.Context, category string) ([]catalog.Item, error)
	Item(ctx context.Context, id int) (catalog.Item, error)
	AddToCart(ctx context.Context, userID string, itemID int, quantity float64) ([]session.CartLine, error)
	RemoveFromCart(ctx context.Context, userID string, itemID int) ([]session.CartLine, error)
	Cart(ctx context.Context, userID string) ([]session.CartLine, error)
	ConfirmOrder(ctx context.Context, userID string) (*order.Order, error)
}

// GroceryTool serves the grocery capabilities.
type GroceryTool struct {
	*core.BaseTool
	shop ShopAPI
}

// Capability payloads.
type (
	CategoryItemsRequest struct {
		Category string `json:"category"`
	}

	ItemInfoRequest struct {
		ItemID *int `json:"item_id"`
	}

	AddToCartRequest struct {
		UserID   string   `json:"user_id"`
		ItemID   *int     `json:"item_id"`
		Quantity *float64 `json:"quantity"`
	}

	RemoveFromCartRequest struct {
		UserID string `json:"user_id"`
		ItemID *int   `json:"item_id"`
	}

	UserRequest struct {
		UserID string `json:"user_id"`
	}
)

// Capability results. Message carries the text shown to the shopper.
type (
	CategoriesResult struct {
		Categories []string `json:"categories"`
		Message    string   `json:"message"`
	}

	CategoryItemsResult struct {
		Category string         `json:"category"`
		Items    []catalog.Item `json:"items"`
		Message  string         `json:"message"`
	}

	ItemInfoResult struct {
		Item    catalog.Item `json:"item"`
		Message string       `json:"message"`
	}

	CartResult struct {
		UserID  string             `json:"user_id"`
		Cart    []session.CartLine `json:"cart"`
		Message string             `json:"message"`
	}

	OrderResult struct {
		OrderID     string             `json:"order_id"`
		TotalAmount float64            `json:"total_amount"`
		Items       []session.CartLine `json:"items"`
		Message     string             `json:"message"`
	}
)

// NewGroceryTool creates the tool and registers its capabilities.
// logger may be nil.
func NewGroceryTool(cfg *core.Config, shop ShopAPI, logger core.Logger) *GroceryTool {
	if cfg == nil {
		cfg = core.DefaultConfig()
		cfg.Name = "grocery-tools"
	}
	tool := &GroceryTool{
		BaseTool: core.NewToolWithConfig(cfg),
		shop:     shop,
	}
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("grocery/tools")
		}
		tool.Logger = logger
	}
	tool.registerCapabilities()
	return tool
}

func (g *GroceryTool) registerCapabilities() {
	userID := core.FieldHint{Name: "user_id", Type: "string", Example: "whatsapp:+15550100", Description: "Shopper identifier"}
	itemID := core.FieldHint{Name: "item_id", Type: "integer", Example: "1", Description: "Catalog item id"}

	g.RegisterCapability(core.Capability{
		Name:         "get_categories",
		Description:  "Lists all product categories in the shop.",
		InputTypes:   []string{"json"},
		OutputTypes:  []string{"json"},
		Handler:      g.handleGetCategories,
		InputSummary: &core.SchemaSummary{},
	})

	g.RegisterCapability(core.Capability{
		Name:        "get_category_items",
		Description: "Lists the items of a category with price and unit. Required: category (Fruits, Vegetables, Dairy).",
		InputTypes:  []string{"json"},
		OutputTypes: []string{"json"},
		Handler:     g.handleGetCategoryItems,
		InputSummary: &core.SchemaSummary{
			RequiredFields: []core.FieldHint{
				{Name: "category", Type: "string", Example: "Fruits", Description: "Category name, case sensitive"},
			},
		},
	})

	g.RegisterCapability(core.Capability{
		Name:        "get_item_info",
		Description: "Gets name, price and unit of one item. Required: item_id (integer).",
		InputTypes:  []string{"json"},
		OutputTypes: []string{"json"},
		Handler:     g.handleGetItemInfo,
		InputSummary: &core.SchemaSummary{
			RequiredFields: []core.FieldHint{itemID},
		},
	})

	g.RegisterCapability(core.Capability{
		Name:        "add_to_cart",
		Description: "Adds a quantity of an item to the shopper's cart. Adding an item already in the cart increases its quantity.",
		InputTypes:  []string{"json"},
		OutputTypes: []string{"json"},
		Handler:     g.handleAddToCart,
		Methods:     []string{http.MethodPost},
		InputSummary: &core.SchemaSummary{
			RequiredFields: []core.FieldHint{
				userID,
				itemID,
				{Name: "quantity", Type: "number", Example: "1.5", Description: "Amount in the item's unit, greater than zero"},
			},
		},
	})

	g.RegisterCapability(core.Capability{
		Name:        "remove_from_cart",
		Description: "Removes an item line from the shopper's cart.",
		InputTypes:  []string{"json"},
		OutputTypes: []string{"json"},
		Handler:     g.handleRemoveFromCart,
		Methods:     []string{http.MethodPost},
		InputSummary: &core.SchemaSummary{
			RequiredFields: []core.FieldHint{userID, itemID},
		},
	})

	g.RegisterCapability(core.Capability{
		Name:        "view_cart",
		Description: "Shows the shopper's cart.",
		InputTypes:  []string{"json"},
		OutputTypes: []string{"json"},
		Handler:     g.handleViewCart,
		InputSummary: &core.SchemaSummary{
			RequiredFields: []core.FieldHint{userID},
		},
	})

	g.RegisterCapability(core.Capability{
		Name:        "confirm_order",
		Description: "Confirms the order for everything in the shopper's cart and empties the cart.",
		InputTypes:  []string{"json"},
		OutputTypes: []string{"json"},
		Handler:     g.handleConfirmOrder,
		Methods:     []string{http.MethodPost},
		InputSummary: &core.SchemaSummary{
			RequiredFields: []core.FieldHint{userID},
		},
	})
}
