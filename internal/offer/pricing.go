// Package offer holds the pricing math over catalog items. It is independent
// of conversation state.
package offer

import (
	"sort"

	"sales-copilot/internal/domain"
)

// PricedItem is a catalog item together with the overrides applied to it by
// the current selection or bundle.
type PricedItem struct {
	Item      domain.CatalogItem    `json:"item"`
	Overrides *domain.ItemOverrides `json:"overrides,omitempty"`
}

// EffectivePrice resolves, first match wins:
// override retail price, role retail price, catalog price, zero.
func EffectivePrice(item domain.CatalogItem, ov *domain.ItemOverrides) float64 {
	var override *float64
	if ov != nil {
		override = ov.RetailPrice
	}
	if v, ok := firstSet(override, item.RoleRetailPrice, item.Price); ok {
		return v
	}
	return 0
}

// EffectiveValue resolves, first match wins:
// override perceived value, catalog perceived value, EffectivePrice.
func EffectiveValue(item domain.CatalogItem, ov *domain.ItemOverrides) float64 {
	var override *float64
	if ov != nil {
		override = ov.PerceivedValue
	}
	if v, ok := firstSet(override, item.PerceivedValue); ok {
		return v
	}
	return EffectivePrice(item, ov)
}

// BuildGrandSlamOffer sums effective price and value over the selected items.
// Terms are added in ascending order so the float result does not depend on
// the order of items.
func BuildGrandSlamOffer(items []PricedItem) domain.GrandSlamOffer {
	prices := make([]float64, 0, len(items))
	values := make([]float64, 0, len(items))
	for _, it := range items {
		prices = append(prices, EffectivePrice(it.Item, it.Overrides))
		values = append(values, EffectiveValue(it.Item, it.Overrides))
	}
	return domain.GrandSlamOffer{
		OfferPrice:          sortedSum(prices),
		TotalPerceivedValue: sortedSum(values),
	}
}

func sortedSum(vals []float64) float64 {
	sort.Float64s(vals)
	var total float64
	for _, v := range vals {
		total += v
	}
	return total
}

// Resolve joins a selection against the catalog. Selected refs missing from
// the catalog are returned separately so callers can report them.
func Resolve(selection []domain.SelectedItem, catalog []domain.CatalogItem) (priced []PricedItem, missing []domain.ItemRef) {
	byRef := make(map[domain.ItemRef]domain.CatalogItem, len(catalog))
	for _, c := range catalog {
		byRef[c.Ref()] = c
	}
	priced = make([]PricedItem, 0, len(selection))
	for _, s := range selection {
		item, ok := byRef[s.ItemRef]
		if !ok {
			missing = append(missing, s.ItemRef)
			continue
		}
		priced = append(priced, PricedItem{Item: item, Overrides: s.Overrides})
	}
	return priced, missing
}

func firstSet(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}
