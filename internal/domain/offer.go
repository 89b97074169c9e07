package domain

// ItemRef identifies a catalog item across content types.
type ItemRef struct {
	ContentType ContentType `json:"contentType" dynamodbav:"contentType"`
	ContentID   string      `json:"contentId" dynamodbav:"contentId"`
}

func (r ItemRef) String() string { return string(r.ContentType) + ":" + r.ContentID }

// CatalogItem is a content item with its offer role, owned by the catalog.
type CatalogItem struct {
	ContentType      ContentType `json:"content_type"`
	ContentID        string      `json:"content_id"`
	Title            string      `json:"title"`
	OfferRole        OfferRole   `json:"offer_role,omitempty"`
	RoleRetailPrice  *float64    `json:"role_retail_price"`
	PerceivedValue   *float64    `json:"perceived_value"`
	Price            *float64    `json:"price"`
	ShortDescription string      `json:"short_description,omitempty"`
}

func (c CatalogItem) Ref() ItemRef {
	return ItemRef{ContentType: c.ContentType, ContentID: c.ContentID}
}

// ItemOverrides replace catalog pricing for one item in a bundle or selection.
type ItemOverrides struct {
	RetailPrice    *float64 `json:"retail_price,omitempty" dynamodbav:"retailPrice,omitempty"`
	PerceivedValue *float64 `json:"perceived_value,omitempty" dynamodbav:"perceivedValue,omitempty"`
}

// SelectedItem is one member of the offer stack under construction.
type SelectedItem struct {
	ItemRef
	Overrides *ItemOverrides `json:"overrides,omitempty" dynamodbav:"overrides,omitempty"`
	// DisplayOrder is the position the item held in the bundle it was seeded
	// from. Items added afterwards have none.
	DisplayOrder *int `json:"displayOrder,omitempty" dynamodbav:"displayOrder,omitempty"`
}

// OfferBundle is a named, forkable preset of catalog items.
type OfferBundle struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	ItemCount      int     `json:"item_count"`
	ParentBundleID *string `json:"parent_bundle_id"`
}

// ResolvedBundleItem is one concrete member of a bundle.
type ResolvedBundleItem struct {
	ContentType  ContentType    `json:"content_type"`
	ContentID    string         `json:"content_id"`
	DisplayOrder int            `json:"display_order"`
	Overrides    *ItemOverrides `json:"overrides"`
}

func (r ResolvedBundleItem) Ref() ItemRef {
	return ItemRef{ContentType: r.ContentType, ContentID: r.ContentID}
}

// GrandSlamOffer is the aggregate of the current selection. It is derived
// and never stored.
type GrandSlamOffer struct {
	OfferPrice          float64 `json:"offerPrice"`
	TotalPerceivedValue float64 `json:"totalPerceivedValue"`
}
