package usecase

import (
	"context"
	"sort"
	"strings"

	"sales-copilot/internal/conversation"
	"sales-copilot/internal/domain"
	"sales-copilot/internal/objection"
	"sales-copilot/internal/offer"
)

// OfferView is the priced offer stack for the current selection.
type OfferView struct {
	Selection []domain.SelectedItem `json:"selection"`
	Offer     domain.GrandSlamOffer `json:"offer"`
	Groups    []offer.Group         `json:"groups"`
	// Missing lists selected items the catalog no longer carries. They are
	// left out of the totals.
	Missing          []domain.ItemRef `json:"missing"`
	SeededFromBundle *string          `json:"seededFromBundleId,omitempty"`
}

// SelectionChange adds and removes items in one step. Removals apply after
// additions.
type SelectionChange struct {
	Add    []domain.SelectedItem
	Remove []domain.ItemRef
}

// SessionUpdate carries the operator-editable durable fields of a session.
type SessionUpdate struct {
	FunnelStage   *domain.FunnelStage
	Outcome       *domain.Outcome
	Notes         *string
	ClientContext *domain.ClientContext
}

// Offer prices the session's current selection.
func (s *Service) Offer(ctx context.Context, sessionID string) (OfferView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return OfferView{}, err
	}
	st, err := s.conversations.GetConversation(ctx, sessionID)
	if err != nil {
		return OfferView{}, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	return s.offerView(ctx, st)
}

func (s *Service) AddItems(ctx context.Context, sessionID string, items []domain.SelectedItem) (OfferView, error) {
	return s.ChangeSelection(ctx, sessionID, SelectionChange{Add: items})
}

func (s *Service) RemoveItems(ctx context.Context, sessionID string, refs []domain.ItemRef) (OfferView, error) {
	return s.ChangeSelection(ctx, sessionID, SelectionChange{Remove: refs})
}

// ChangeSelection updates the selection with set semantics on item refs and
// queues the new selection for the session record.
func (s *Service) ChangeSelection(ctx context.Context, sessionID string, change SelectionChange) (OfferView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return OfferView{}, err
	}
	add := make([]domain.SelectedItem, 0, len(change.Add))
	for _, it := range change.Add {
		it.ItemRef, err = normalizeRef(it.ItemRef)
		if err != nil {
			return OfferView{}, err
		}
		it.DisplayOrder = nil
		add = append(add, it)
	}
	remove := make([]domain.ItemRef, 0, len(change.Remove))
	for _, r := range change.Remove {
		r, err = normalizeRef(r)
		if err != nil {
			return OfferView{}, err
		}
		remove = append(remove, r)
	}
	if len(add) == 0 && len(remove) == 0 {
		return OfferView{}, newError(ErrorInvalidInput, "empty_selection_change", nil)
	}

	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		return reduceAll(st,
			conversation.ItemsAdded{Items: add},
			conversation.ItemsRemoved{Refs: remove},
		)
	})
	if err != nil {
		return OfferView{}, err
	}
	s.queueSelection(st)
	return s.offerView(ctx, st)
}

// SeedFromBundle replaces the selection with the bundle's items and remembers
// the bundle as the parent of later saves.
func (s *Service) SeedFromBundle(ctx context.Context, sessionID, bundleID string) (OfferView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return OfferView{}, err
	}
	bundleID = strings.TrimSpace(bundleID)
	if bundleID == "" {
		return OfferView{}, newError(ErrorInvalidInput, "empty_bundle_id", nil)
	}
	resolved, err := s.bundles.Resolve(ctx, bundleID)
	if err != nil {
		return OfferView{}, bundleError(err)
	}
	items := make([]domain.SelectedItem, 0, len(resolved))
	for _, it := range resolved {
		order := it.DisplayOrder
		items = append(items, domain.SelectedItem{ItemRef: it.Ref(), Overrides: it.Overrides, DisplayOrder: &order})
	}

	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		return reduceAll(st, conversation.SelectionSeeded{BundleID: bundleID, Items: items})
	})
	if err != nil {
		return OfferView{}, err
	}
	s.queueSelection(st)
	return s.offerView(ctx, st)
}

// SaveSelectionAsBundle stores the current selection as a new bundle, forked
// from the bundle the selection was seeded from, if any.
func (s *Service) SaveSelectionAsBundle(ctx context.Context, sessionID, name string, description *string) (domain.OfferBundle, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return domain.OfferBundle{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.OfferBundle{}, newError(ErrorInvalidInput, "empty_bundle_name", nil)
	}
	st, err := s.conversations.GetConversation(ctx, sessionID)
	if err != nil {
		return domain.OfferBundle{}, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	if len(st.SelectedProducts) == 0 {
		return domain.OfferBundle{}, newError(ErrorInvalidState, "empty_selection", nil)
	}

	items := bundleItems(st.SelectedProducts)
	created, err := s.bundles.SaveAsBundle(ctx, name, trimmedOrNil(description), items, st.SeededFromBundleID)
	if err != nil {
		return domain.OfferBundle{}, bundleError(err)
	}
	return created, nil
}

func (s *Service) BundleItems(ctx context.Context, bundleID string) ([]domain.ResolvedBundleItem, error) {
	items, err := s.bundles.Resolve(ctx, bundleID)
	if err != nil {
		return nil, bundleError(err)
	}
	return items, nil
}

// BundleLineage returns the bundle and its fork ancestors, nearest first.
func (s *Service) BundleLineage(ctx context.Context, bundleID string) ([]domain.OfferBundle, error) {
	chain, err := s.bundles.Lineage(ctx, bundleID)
	if err != nil {
		return nil, bundleError(err)
	}
	return chain, nil
}

// UpdateSession queues a durable-field update. It returns once the update is
// queued, not once it is written.
func (s *Service) UpdateSession(_ context.Context, sessionID string, in SessionUpdate) error {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return err
	}
	if in.FunnelStage != nil && !in.FunnelStage.Valid() {
		return newError(ErrorInvalidInput, "invalid_funnel_stage", nil)
	}
	if in.Outcome != nil && !in.Outcome.Valid() {
		return newError(ErrorInvalidInput, "invalid_outcome", nil)
	}
	patch := domain.SessionPatch{
		FunnelStage:   in.FunnelStage,
		Outcome:       in.Outcome,
		Notes:         in.Notes,
		ClientContext: in.ClientContext,
	}
	if patch.Empty() {
		return newError(ErrorInvalidInput, "empty_session_update", nil)
	}
	if err := s.writer.Enqueue(sessionID, patch); err != nil {
		return newError(ErrorInternal, "session_write_not_queued", err)
	}
	return nil
}

// ObjectionMatch is the suggested handling for what the prospect said.
// ResponseType pre-fills the response form when a category matched.
type ObjectionMatch struct {
	ResponseType *domain.ResponseType `json:"responseType,omitempty"`
	Handlers     []objection.Handler  `json:"handlers"`
}

// FindObjectionHandlers returns suggested handlers for the prospect's words.
// No match is an empty list.
func (s *Service) FindObjectionHandlers(text string) ObjectionMatch {
	m := ObjectionMatch{Handlers: s.objections.FindHandlers(text)}
	if rt, ok := s.objections.Classify(text); ok {
		m.ResponseType = &rt
	}
	return m
}

func (s *Service) queueSelection(st conversation.State) {
	selection := st.SelectedProducts
	s.enqueue(st.SessionID, domain.SessionPatch{Selection: &selection})
}

func (s *Service) offerView(ctx context.Context, st conversation.State) (OfferView, error) {
	catalog, err := s.catalog.ListItems(ctx)
	if err != nil {
		return OfferView{}, newError(ErrorUpstream, "catalog_error", err)
	}
	priced, missing := offer.Resolve(st.SelectedProducts, catalog)
	if len(missing) > 0 {
		// The cached listing may predate an item the rep just added.
		if c, ok := s.catalog.(catalogInvalidator); ok {
			if err := c.Invalidate(ctx); err != nil {
				s.log.Warn("catalog invalidate failed", "session_id", st.SessionID, "error", err)
			} else if catalog, err = s.catalog.ListItems(ctx); err != nil {
				return OfferView{}, newError(ErrorUpstream, "catalog_error", err)
			} else {
				priced, missing = offer.Resolve(st.SelectedProducts, catalog)
			}
		}
	}
	if missing == nil {
		missing = []domain.ItemRef{}
	}
	groups := offer.GroupByRole(priced)
	if groups == nil {
		groups = []offer.Group{}
	}
	selection := st.SelectedProducts
	if selection == nil {
		selection = []domain.SelectedItem{}
	}
	return OfferView{
		Selection:        selection,
		Offer:            s.memo.Build(priced),
		Groups:           groups,
		Missing:          missing,
		SeededFromBundle: st.SeededFromBundleID,
	}, nil
}

// bundleItems keeps the display order seeded items carried over from their
// bundle and places items added since after the largest of them.
func bundleItems(selection []domain.SelectedItem) []domain.ResolvedBundleItem {
	next := 0
	for _, sel := range selection {
		if sel.DisplayOrder != nil && *sel.DisplayOrder >= next {
			next = *sel.DisplayOrder + 1
		}
	}
	items := make([]domain.ResolvedBundleItem, 0, len(selection))
	for _, sel := range selection {
		order := next
		if sel.DisplayOrder != nil {
			order = *sel.DisplayOrder
		} else {
			next++
		}
		items = append(items, domain.ResolvedBundleItem{
			ContentType:  sel.ContentType,
			ContentID:    sel.ContentID,
			DisplayOrder: order,
			Overrides:    sel.Overrides,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })
	return items
}

func normalizeRef(r domain.ItemRef) (domain.ItemRef, error) {
	r.ContentID = strings.TrimSpace(r.ContentID)
	if r.ContentID == "" {
		return r, newError(ErrorInvalidInput, "empty_content_id", nil)
	}
	if strings.TrimSpace(string(r.ContentType)) == "" {
		r.ContentType = domain.ContentProduct
	}
	return r, nil
}
