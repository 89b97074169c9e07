// Package catalog is the client for the content catalog collaborator: items
// with their offer roles, and the bundle store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"sales-copilot/internal/domain"
	"sales-copilot/internal/integrations/restclient"
)

// Requester is the JSON transport. *restclient.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, method, path string, in, out any) error
}

// Client implements bundle.Store and usecase.CatalogReader.
type Client struct {
	rest Requester
}

func New(rest Requester) (*Client, error) {
	if rest == nil {
		return nil, errors.New("catalog: requester must not be nil")
	}
	return &Client{rest: rest}, nil
}

type itemsResponse struct {
	Items []domain.CatalogItem `json:"items"`
}

func (c *Client) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	var out itemsResponse
	if err := c.rest.Do(ctx, http.MethodGet, "/catalog/items", nil, &out); err != nil {
		return nil, fmt.Errorf("catalog: list items: %w", err)
	}
	if out.Items == nil {
		out.Items = []domain.CatalogItem{}
	}
	return out.Items, nil
}

func (c *Client) GetBundle(ctx context.Context, id string) (domain.OfferBundle, error) {
	var out domain.OfferBundle
	if err := c.rest.Do(ctx, http.MethodGet, "/bundles/"+restclient.PathEscape(id), nil, &out); err != nil {
		return domain.OfferBundle{}, notFound(fmt.Sprintf("get bundle %q", id), err)
	}
	return out, nil
}

type bundleItemsResponse struct {
	Items []domain.ResolvedBundleItem `json:"items"`
}

func (c *Client) GetBundleItems(ctx context.Context, id string) ([]domain.ResolvedBundleItem, error) {
	var out bundleItemsResponse
	if err := c.rest.Do(ctx, http.MethodGet, "/bundles/"+restclient.PathEscape(id)+"/items", nil, &out); err != nil {
		return nil, notFound(fmt.Sprintf("get bundle %q items", id), err)
	}
	if out.Items == nil {
		out.Items = []domain.ResolvedBundleItem{}
	}
	return out.Items, nil
}

type createBundleRequest struct {
	ID             string                      `json:"id,omitempty"`
	Name           string                      `json:"name"`
	Description    *string                     `json:"description"`
	ParentBundleID *string                     `json:"parent_bundle_id"`
	Items          []domain.ResolvedBundleItem `json:"items"`
}

// CreateBundle stores a new immutable bundle. The collaborator assigns the id
// when b.ID is empty.
func (c *Client) CreateBundle(ctx context.Context, b domain.OfferBundle, items []domain.ResolvedBundleItem) (domain.OfferBundle, error) {
	in := createBundleRequest{
		ID:             b.ID,
		Name:           b.Name,
		Description:    b.Description,
		ParentBundleID: b.ParentBundleID,
		Items:          items,
	}
	var out domain.OfferBundle
	if err := c.rest.Do(ctx, http.MethodPost, "/bundles", in, &out); err != nil {
		return domain.OfferBundle{}, fmt.Errorf("catalog: create bundle: %w", err)
	}
	if out.ItemCount == 0 {
		out.ItemCount = len(items)
	}
	return out, nil
}

func notFound(op string, err error) error {
	var statusErr *restclient.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("catalog: %s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("catalog: %s: %w", op, err)
}
