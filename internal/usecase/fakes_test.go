package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sales-copilot/internal/bundle"
	"sales-copilot/internal/conversation"
	"sales-copilot/internal/domain"
	"sales-copilot/internal/objection"
)

type memStore struct {
	mu        sync.Mutex
	states    map[string]conversation.State
	conflicts int
	getErr    error
	saveErr   error
	saves     int
}

func newMemStore() *memStore {
	return &memStore{states: map[string]conversation.State{}}
}

func (m *memStore) GetConversation(_ context.Context, id string) (conversation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return conversation.State{}, m.getErr
	}
	st, ok := m.states[id]
	if !ok {
		return conversation.New(id), nil
	}
	return st, nil
}

func (m *memStore) SaveConversation(_ context.Context, st conversation.State) (conversation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return conversation.State{}, m.saveErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		return conversation.State{}, fmt.Errorf("mem: %w", conversation.ErrVersionConflict)
	}
	if cur := m.states[st.SessionID]; cur.Version != st.Version {
		return conversation.State{}, fmt.Errorf("mem: %w", conversation.ErrVersionConflict)
	}
	st.Version++
	m.states[st.SessionID] = st
	m.saves++
	return st, nil
}

// bump simulates another writer touching the snapshot.
func (m *memStore) bump(id string, fn func(*conversation.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	fn(&st)
	st.Version++
	m.states[id] = st
}

type fakeSessions struct {
	sessions map[string]domain.Session
	err      error
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (domain.Session, error) {
	if f.err != nil {
		return domain.Session{}, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("fake: session %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

type queuedPatch struct {
	sessionID string
	patch     domain.SessionPatch
}

type fakeWriter struct {
	patches []queuedPatch
	err     error
}

func (f *fakeWriter) Enqueue(sessionID string, patch domain.SessionPatch) error {
	if f.err != nil {
		return f.err
	}
	f.patches = append(f.patches, queuedPatch{sessionID: sessionID, patch: patch})
	return nil
}

type fakeCatalog struct {
	items []domain.CatalogItem
	err   error

	// fresh replaces items on Invalidate when set.
	fresh         []domain.CatalogItem
	invalidateErr error
	invalidations int
}

func (f *fakeCatalog) Invalidate(context.Context) error {
	f.invalidations++
	if f.invalidateErr != nil {
		return f.invalidateErr
	}
	if f.fresh != nil {
		f.items = f.fresh
	}
	return nil
}

func (f *fakeCatalog) ListItems(_ context.Context) ([]domain.CatalogItem, error) {
	return f.items, f.err
}

type memBundles struct {
	bundles map[string]domain.OfferBundle
	items   map[string][]domain.ResolvedBundleItem
	next    int
}

func newMemBundles() *memBundles {
	return &memBundles{bundles: map[string]domain.OfferBundle{}, items: map[string][]domain.ResolvedBundleItem{}}
}

func (m *memBundles) GetBundle(_ context.Context, id string) (domain.OfferBundle, error) {
	b, ok := m.bundles[id]
	if !ok {
		return domain.OfferBundle{}, bundle.ErrNotFound
	}
	return b, nil
}

func (m *memBundles) GetBundleItems(_ context.Context, id string) ([]domain.ResolvedBundleItem, error) {
	return m.items[id], nil
}

func (m *memBundles) CreateBundle(_ context.Context, b domain.OfferBundle, items []domain.ResolvedBundleItem) (domain.OfferBundle, error) {
	m.next++
	b.ID = fmt.Sprintf("b-%d", m.next)
	m.bundles[b.ID] = b
	m.items[b.ID] = items
	return b, nil
}

type stepResult struct {
	step *domain.DynamicStep
	err  error
}

type fakeSteps struct {
	results []stepResult
	calls   int
	reqs    []domain.StepRequest
	onCall  func()
}

func (f *fakeSteps) GenerateStep(_ context.Context, req domain.StepRequest) (*domain.DynamicStep, error) {
	f.reqs = append(f.reqs, req)
	if f.onCall != nil {
		f.onCall()
	}
	if len(f.results) == 0 {
		return nil, errors.New("no step configured")
	}
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx].step, f.results[idx].err
}

type recResult struct {
	recs []domain.AIRecommendation
	err  error
}

type fakeRecommender struct {
	results []recResult
	calls   int
	reqs    []domain.RecommendationRequest
	onCall  func()
}

func (f *fakeRecommender) Recommend(_ context.Context, req domain.RecommendationRequest) ([]domain.AIRecommendation, error) {
	f.reqs = append(f.reqs, req)
	if f.onCall != nil {
		f.onCall()
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx].recs, f.results[idx].err
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return fmt.Sprintf("upstream status %d", e.code) }
func (e statusErr) HTTPStatusCode() int { return e.code }

type harness struct {
	svc      *Service
	store    *memStore
	sessions *fakeSessions
	writer   *fakeWriter
	catalog  *fakeCatalog
	bundles  *memBundles
	steps    *fakeSteps
	recs     *fakeRecommender
}

var fixedNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }
func sp(s string) *string   { return &s }
func ip(v int) *int         { return &v }

func catalogItem(id string, role domain.OfferRole, retail, perceived *float64) domain.CatalogItem {
	return domain.CatalogItem{
		ContentType:     domain.ContentProduct,
		ContentID:       id,
		Title:           "Item " + id,
		OfferRole:       role,
		RoleRetailPrice: retail,
		PerceivedValue:  perceived,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ids := 0
	prevUUID, prevNow := newUUID, now
	newUUID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { newUUID, now = prevUUID, prevNow })

	h := &harness{
		store: newMemStore(),
		sessions: &fakeSessions{sessions: map[string]domain.Session{
			"sess-1": {ID: "sess-1", ClientContext: domain.ClientContext{
				ClientName:         "Dana",
				BusinessChallenges: []string{"inconsistent lead flow"},
			}},
		}},
		writer: &fakeWriter{},
		catalog: &fakeCatalog{items: []domain.CatalogItem{
			catalogItem("7", domain.RoleCoreOffer, fp(500), fp(800)),
			catalogItem("9", domain.RoleBonus, fp(1200), nil),
			catalogItem("11", "", nil, nil),
		}},
		bundles: newMemBundles(),
		steps:   &fakeSteps{},
		recs:    &fakeRecommender{},
	}
	resolver, err := bundle.NewResolver(h.bundles)
	require.NoError(t, err)
	svc, err := NewService(Deps{
		Conversations: h.store,
		Sessions:      h.sessions,
		SessionWriter: h.writer,
		Catalog:       h.catalog,
		Bundles:       resolver,
		Objections:    objection.Default(),
		Steps:         h.steps,
		Recommender:   h.recs,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func step(id string, st domain.StepType) *domain.DynamicStep {
	return &domain.DynamicStep{ID: id, StepType: st, Content: domain.StepContent{Title: string(st)}}
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	require.Error(t, err)
	var ue *Error
	require.True(t, errors.As(err, &ue), "expected *usecase.Error, got %T", err)
	require.Equal(t, code, ue.Code)
	require.Equal(t, reason, ue.Reason)
}
