// Package bundle expands named offer bundles into concrete catalog items and
// records forks of a selection as new bundles.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sales-copilot/internal/domain"
)

var (
	// ErrNotFound is returned when a bundle id is unknown to the store.
	ErrNotFound = domain.ErrNotFound
	// ErrInvalid is returned for bundles that cannot be saved as given.
	ErrInvalid = errors.New("bundle: invalid bundle")
)

// maxLineageDepth bounds parent walks in case the store hands back a cycle.
const maxLineageDepth = 64

// Store is the bundle collaborator. Bundles are immutable once created.
type Store interface {
	GetBundle(ctx context.Context, id string) (domain.OfferBundle, error)
	GetBundleItems(ctx context.Context, id string) ([]domain.ResolvedBundleItem, error)
	CreateBundle(ctx context.Context, b domain.OfferBundle, items []domain.ResolvedBundleItem) (domain.OfferBundle, error)
}

type snapshot struct {
	bundle domain.OfferBundle
	items  []domain.ResolvedBundleItem
}

// Resolver keeps an arena of immutable bundle snapshots indexed by id.
// Parent ids are plain references into the arena; forking always allocates
// a new entry.
type Resolver struct {
	store Store

	mu    sync.RWMutex
	arena map[string]snapshot
}

func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("bundle: store must not be nil")
	}
	return &Resolver{store: store, arena: make(map[string]snapshot)}, nil
}

// Resolve returns the bundle's items ordered by display order.
func (r *Resolver) Resolve(ctx context.Context, bundleID string) ([]domain.ResolvedBundleItem, error) {
	snap, err := r.load(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	return cloneItems(snap.items), nil
}

// SaveAsBundle creates a new bundle from items. When parentBundleID is set the
// parent must exist; it is recorded as lineage and never modified.
func (r *Resolver) SaveAsBundle(ctx context.Context, name string, description *string, items []domain.ResolvedBundleItem, parentBundleID *string) (domain.OfferBundle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.OfferBundle{}, fmt.Errorf("%w: name must not be empty", ErrInvalid)
	}
	if len(items) == 0 {
		return domain.OfferBundle{}, fmt.Errorf("%w: a bundle needs at least one item", ErrInvalid)
	}
	if parentBundleID != nil {
		if _, err := r.load(ctx, *parentBundleID); err != nil {
			return domain.OfferBundle{}, fmt.Errorf("bundle: fork parent %s: %w", *parentBundleID, err)
		}
	}

	ordered := assignDisplayOrder(items)
	created, err := r.store.CreateBundle(ctx, domain.OfferBundle{
		Name:           name,
		Description:    description,
		ItemCount:      len(ordered),
		ParentBundleID: parentBundleID,
	}, ordered)
	if err != nil {
		return domain.OfferBundle{}, fmt.Errorf("bundle: create: %w", err)
	}
	if created.ID == "" {
		return domain.OfferBundle{}, errors.New("bundle: store returned a bundle without id")
	}

	r.mu.Lock()
	r.arena[created.ID] = snapshot{bundle: created, items: ordered}
	r.mu.Unlock()
	return created, nil
}

// Lineage returns the bundle followed by its ancestors up to the root.
func (r *Resolver) Lineage(ctx context.Context, bundleID string) ([]domain.OfferBundle, error) {
	var chain []domain.OfferBundle
	seen := map[string]bool{}
	id := bundleID
	for {
		if seen[id] || len(chain) >= maxLineageDepth {
			return nil, fmt.Errorf("bundle: lineage of %s does not terminate", bundleID)
		}
		seen[id] = true
		snap, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, snap.bundle)
		if snap.bundle.ParentBundleID == nil {
			return chain, nil
		}
		id = *snap.bundle.ParentBundleID
	}
}

func (r *Resolver) load(ctx context.Context, id string) (snapshot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return snapshot{}, fmt.Errorf("%w: id must not be empty", ErrInvalid)
	}
	r.mu.RLock()
	snap, ok := r.arena[id]
	r.mu.RUnlock()
	if ok {
		return snap, nil
	}

	b, err := r.store.GetBundle(ctx, id)
	if err != nil {
		return snapshot{}, fmt.Errorf("bundle: get %s: %w", id, err)
	}
	items, err := r.store.GetBundleItems(ctx, id)
	if err != nil {
		return snapshot{}, fmt.Errorf("bundle: get items of %s: %w", id, err)
	}
	items = cloneItems(items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })
	snap = snapshot{bundle: b, items: items}

	r.mu.Lock()
	r.arena[id] = snap
	r.mu.Unlock()
	return snap, nil
}

// assignDisplayOrder keeps the incoming display orders when they already
// increase strictly in slice order, and renumbers by position otherwise.
func assignDisplayOrder(items []domain.ResolvedBundleItem) []domain.ResolvedBundleItem {
	out := cloneItems(items)
	for i := 1; i < len(out); i++ {
		if out[i].DisplayOrder <= out[i-1].DisplayOrder {
			for j := range out {
				out[j].DisplayOrder = j
			}
			break
		}
	}
	return out
}

func cloneItems(in []domain.ResolvedBundleItem) []domain.ResolvedBundleItem {
	out := make([]domain.ResolvedBundleItem, len(in))
	for i, it := range in {
		if it.Overrides != nil {
			ov := *it.Overrides
			it.Overrides = &ov
		}
		out[i] = it
	}
	return out
}
