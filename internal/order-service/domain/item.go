package domain

import (
	"slices"
	"strings"
)

// ItemKey is the composite identity of a cart line: the product plus its
// customization. Two lines with equal keys are the same thing and get merged.
type ItemKey struct {
	ProductID string   `json:"product_id"`
	Size      string   `json:"size,omitempty"`
	AddOnIDs  []string `json:"addon_ids,omitempty"`
	HalfIDs   []string `json:"half_ids,omitempty"`
}

// NewItemKey builds a key with add-ons and halves in canonical order.
func NewItemKey(productID, size string, addOnIDs, halfIDs []string) ItemKey {
	return ItemKey{
		ProductID: productID,
		Size:      size,
		AddOnIDs:  canonical(addOnIDs),
		HalfIDs:   canonical(halfIDs),
	}
}

// canonical sorts a copy of ids and drops empty entries.
func canonical(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Equal compares keys independently of add-on and half ordering.
func (k ItemKey) Equal(other ItemKey) bool {
	return k.ProductID == other.ProductID &&
		k.Size == other.Size &&
		slices.Equal(canonical(k.AddOnIDs), canonical(other.AddOnIDs)) &&
		slices.Equal(canonical(k.HalfIDs), canonical(other.HalfIDs))
}

// String renders the canonical signature, e.g. "pizza-12|size=Grande|addons=3,9|halves=12,17".
func (k ItemKey) String() string {
	var b strings.Builder
	b.WriteString(k.ProductID)
	if k.Size != "" {
		b.WriteString("|size=")
		b.WriteString(k.Size)
	}
	if addOns := canonical(k.AddOnIDs); len(addOns) > 0 {
		b.WriteString("|addons=")
		b.WriteString(strings.Join(addOns, ","))
	}
	if halves := canonical(k.HalfIDs); len(halves) > 0 {
		b.WriteString("|halves=")
		b.WriteString(strings.Join(halves, ","))
	}
	return b.String()
}

// Item is a single line of an order.
type Item struct {
	LineID      string  `json:"line_id"`
	Key         ItemKey `json:"key"`
	Name        string  `json:"name"`
	UnitPrice   Money   `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	Description string  `json:"description,omitempty"`
}

// LineTotal is unit price times quantity.
func (i Item) LineTotal() Money {
	return i.UnitPrice.Times(i.Quantity)
}

// Subtotal sums price*quantity over items.
func Subtotal(items []Item) Money {
	var sum Money
	for _, it := range items {
		sum += it.LineTotal()
	}
	return sum
}

// TotalPrice applies the discount (never below zero) and adds the delivery fee.
func TotalPrice(subtotal, discount, deliveryFee Money) Money {
	net := subtotal - discount
	if net < 0 {
		net = 0
	}
	return net + deliveryFee
}
