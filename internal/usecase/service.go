package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sales-copilot/internal/bundle"
	"sales-copilot/internal/conversation"
	"sales-copilot/internal/domain"
	"sales-copilot/internal/objection"
	"sales-copilot/internal/offer"
)

const (
	maxApplyAttempts = 3
	offerMemoSize    = 256
)

// StepGenerator produces the next conversational step. A nil step with a nil
// error means the service had nothing to offer.
type StepGenerator interface {
	GenerateStep(ctx context.Context, req domain.StepRequest) (*domain.DynamicStep, error)
}

// StrategyRecommender ranks next moves after a prospect response, best first.
type StrategyRecommender interface {
	Recommend(ctx context.Context, req domain.RecommendationRequest) ([]domain.AIRecommendation, error)
}

// ConversationStore persists call snapshots with optimistic versioning.
// SaveConversation returns an error wrapping conversation.ErrVersionConflict
// when the snapshot changed since it was read.
type ConversationStore interface {
	GetConversation(ctx context.Context, sessionID string) (conversation.State, error)
	SaveConversation(ctx context.Context, st conversation.State) (conversation.State, error)
}

type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
}

type CatalogReader interface {
	ListItems(ctx context.Context) ([]domain.CatalogItem, error)
}

// catalogInvalidator is implemented by readers that cache the listing.
type catalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

// SessionWriter queues durable session updates. Writes are applied in
// enqueue order.
type SessionWriter interface {
	Enqueue(sessionID string, patch domain.SessionPatch) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Deps groups the collaborators of Service.
type Deps struct {
	Conversations ConversationStore
	Sessions      SessionReader
	SessionWriter SessionWriter
	Catalog       CatalogReader
	Bundles       *bundle.Resolver
	Objections    *objection.Index
	Steps         StepGenerator
	Recommender   StrategyRecommender
	Logger        *slog.Logger
}

// Service drives live calls and the offer selection of a sales session.
type Service struct {
	conversations ConversationStore
	sessions      SessionReader
	writer        SessionWriter
	catalog       CatalogReader
	bundles       *bundle.Resolver
	objections    *objection.Index
	steps         StepGenerator
	recommender   StrategyRecommender
	log           *slog.Logger
	memo          *offer.Memo
}

func NewService(d Deps) (*Service, error) {
	switch {
	case d.Conversations == nil:
		return nil, errors.New("usecase: conversation store must not be nil")
	case d.Sessions == nil:
		return nil, errors.New("usecase: session reader must not be nil")
	case d.SessionWriter == nil:
		return nil, errors.New("usecase: session writer must not be nil")
	case d.Catalog == nil:
		return nil, errors.New("usecase: catalog reader must not be nil")
	case d.Bundles == nil:
		return nil, errors.New("usecase: bundle resolver must not be nil")
	case d.Steps == nil:
		return nil, errors.New("usecase: step generator must not be nil")
	case d.Recommender == nil:
		return nil, errors.New("usecase: strategy recommender must not be nil")
	}
	objections := d.Objections
	if objections == nil {
		objections = objection.Default()
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conversations: d.Conversations,
		sessions:      d.Sessions,
		writer:        d.SessionWriter,
		catalog:       d.Catalog,
		bundles:       d.Bundles,
		objections:    objections,
		steps:         d.Steps,
		recommender:   d.Recommender,
		log:           log,
		memo:          offer.NewMemo(offerMemoSize),
	}, nil
}

// apply reads the session's snapshot, runs fn on it and saves the result,
// retrying from a fresh read when another writer got there first.
func (s *Service) apply(ctx context.Context, sessionID string, fn func(conversation.State) (conversation.State, error)) (conversation.State, error) {
	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		st, err := s.conversations.GetConversation(ctx, sessionID)
		if err != nil {
			return conversation.State{}, newError(ErrorInternal, "dynamodb_read_error", err)
		}
		next, err := fn(st)
		if err != nil {
			var ue *Error
			if errors.As(err, &ue) {
				return conversation.State{}, ue
			}
			return conversation.State{}, transitionError(err)
		}
		saved, err := s.conversations.SaveConversation(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, conversation.ErrVersionConflict) {
			return conversation.State{}, newError(ErrorInternal, "dynamodb_write_error", err)
		}
		lastErr = err
	}
	return conversation.State{}, newError(ErrorConflict, "concurrent_update", lastErr)
}

// reduceAll applies actions in order and stops at the first rejection.
func reduceAll(st conversation.State, actions ...conversation.Action) (conversation.State, error) {
	for _, a := range actions {
		next, err := conversation.Reduce(st, a)
		if err != nil {
			return st, err
		}
		st = next
	}
	return st, nil
}

// clientContext returns the diagnostic summary stored on the session. Missing
// sessions and read failures degrade to an empty context.
func (s *Service) clientContext(ctx context.Context, sessionID string) domain.ClientContext {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("session read failed", "session_id", sessionID, "err", err)
		}
		return domain.ClientContext{}
	}
	return sess.ClientContext
}

// catalogItems lists the catalog for reasoning context. A failure degrades to
// an empty list.
func (s *Service) catalogItems(ctx context.Context, sessionID string) []domain.CatalogItem {
	items, err := s.catalog.ListItems(ctx)
	if err != nil {
		s.log.Warn("catalog read failed", "session_id", sessionID, "err", err)
		return []domain.CatalogItem{}
	}
	return items
}

func (s *Service) enqueue(sessionID string, patch domain.SessionPatch) {
	if err := s.writer.Enqueue(sessionID, patch); err != nil {
		s.log.Error("session write not queued", "session_id", sessionID, "err", err)
	}
}

func validSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", newError(ErrorInvalidInput, "empty_session_id", nil)
	}
	return id, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = func() time.Time {
	return time.Now().UTC()
}
