package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/session"
)

// num prints a number without trailing zeros: 20, 1.5, 0.25.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func categoriesMessage(categories []string) string {
	return "Available categories: " + strings.Join(categories, ", ")
}

func categoryItemsMessage(category string, items []catalog.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Items in %s:", category)
	for _, it := range items {
		fmt.Fprintf(&b, "\n%s: $%s per %s", it.Name, num(it.Price), it.Unit)
	}
	return b.String()
}

func itemInfoMessage(it catalog.Item) string {
	return fmt.Sprintf("Item %d: %s, Price: $%s, Unit: %s", it.ID, it.Name, num(it.Price), it.Unit)
}

func addedMessage(itemID int, quantity float64) string {
	return fmt.Sprintf("Added %s units of item %d to cart", num(quantity), itemID)
}

func removedMessage(itemID int) string {
	return fmt.Sprintf("Removed item %d from cart", itemID)
}

func cartMessage(lines []session.CartLine) string {
	if len(lines) == 0 {
		return "Your cart is empty"
	}
	var b strings.Builder
	b.WriteString("Your cart contains:")
	for _, l := range lines {
		fmt.Fprintf(&b, "\n%s: %s units", l.Name, num(l.Quantity))
	}
	return b.String()
}

func orderMessage(total float64, items []session.CartLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order confirmed!\nTotal amount: $%.2f\nItems ordered:", total)
	for _, l := range items {
		fmt.Fprintf(&b, "\n- %s: %s units", l.Name, num(l.Quantity))
	}
	return b.String()
}
