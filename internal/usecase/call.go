package usecase

import (
	"context"
	"errors"
	"strings"

	"sales-copilot/internal/conversation"
	"sales-copilot/internal/domain"
)

// Outcome tells a successful reasoning result apart from an empty one and
// from a failure the operator may retry.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeEmpty  Outcome = "empty"
	OutcomeFailed Outcome = "failed"
)

type OperationResult struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// CallView is the call state as returned to the operator.
type CallView struct {
	State                    conversation.State `json:"state"`
	IsLoadingNextStep        bool               `json:"isLoadingNextStep"`
	IsLoadingRecommendations bool               `json:"isLoadingRecommendations"`
	Step                     *OperationResult   `json:"step,omitempty"`
	Recommendations          *OperationResult   `json:"recommendations,omitempty"`
}

func newCallView(st conversation.State) CallView {
	return CallView{
		State:                    st,
		IsLoadingNextStep:        st.IsLoadingNextStep(),
		IsLoadingRecommendations: st.IsLoadingRecommendations(),
	}
}

type RecordResponseInput struct {
	ResponseType   domain.ResponseType
	Notes          *string
	OfferPresented *string
}

// GetCall returns the current call state without changing it.
func (s *Service) GetCall(ctx context.Context, sessionID string) (CallView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return CallView{}, err
	}
	st, err := s.conversations.GetConversation(ctx, sessionID)
	if err != nil {
		return CallView{}, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	return newCallView(st), nil
}

// StartCall activates the call and fetches the opening step. The call stays
// active when the opening step cannot be fetched; RetryStep re-requests it.
func (s *Service) StartCall(ctx context.Context, sessionID string) (CallView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return CallView{}, err
	}
	req := conversation.StepRequest{StepType: domain.StepOpening}
	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		return reduceAll(st,
			conversation.CallStarted{},
			conversation.StepRequested{Request: req},
		)
	})
	if err != nil {
		return CallView{}, err
	}
	return s.fetchStep(ctx, st, st.StepSeq, req)
}

// RetryStep re-issues the most recent step request.
func (s *Service) RetryStep(ctx context.Context, sessionID string) (CallView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return CallView{}, err
	}
	var req conversation.StepRequest
	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		if st.LastStepRequest == nil {
			return st, newError(ErrorInvalidState, "no_step_request", nil)
		}
		req = *st.LastStepRequest
		return reduceAll(st, conversation.StepRequested{Request: req})
	})
	if err != nil {
		return CallView{}, err
	}
	return s.fetchStep(ctx, st, st.StepSeq, req)
}

// RecordResponse appends the prospect's reaction to the current step and
// fetches fresh strategy recommendations for it.
func (s *Service) RecordResponse(ctx context.Context, sessionID string, in RecordResponseInput) (CallView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return CallView{}, err
	}
	if !in.ResponseType.Valid() {
		return CallView{}, newError(ErrorInvalidInput, "invalid_response_type", nil)
	}
	resp := domain.ConversationResponse{
		ID:             newUUID(),
		ResponseType:   in.ResponseType,
		Notes:          trimmedOrNil(in.Notes),
		Timestamp:      now(),
		OfferPresented: trimmedOrNil(in.OfferPresented),
	}
	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		r := resp
		if cur, ok := st.Current(); ok {
			r.StepID = cur.ID
		}
		return reduceAll(st,
			conversation.ResponseRecorded{Response: r},
			conversation.RecommendationsRequested{},
		)
	})
	if err != nil {
		return CallView{}, err
	}
	return s.fetchRecommendations(ctx, st, st.RecSeq)
}

// RefreshRecommendations re-requests recommendations for the latest response
// without recording a new one.
func (s *Service) RefreshRecommendations(ctx context.Context, sessionID string) (CallView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return CallView{}, err
	}
	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		if !st.IsCallActive {
			return st, conversation.ErrCallNotActive
		}
		if _, ok := st.LastResponse(); !ok {
			return st, newError(ErrorInvalidState, "no_response_recorded", nil)
		}
		return reduceAll(st, conversation.RecommendationsRequested{})
	})
	if err != nil {
		return CallView{}, err
	}
	return s.fetchRecommendations(ctx, st, st.RecSeq)
}

// SelectStrategy completes the current step with the chosen recommendation,
// adds its products to the offer and fetches the step the strategy leads to.
func (s *Service) SelectStrategy(ctx context.Context, sessionID string, rec domain.AIRecommendation) (CallView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return CallView{}, err
	}
	stepType, err := conversation.StepTypeFor(rec.Strategy)
	if err != nil {
		return CallView{}, transitionError(err)
	}
	strategy := rec.Strategy
	req := conversation.StepRequest{StepType: stepType, ChosenStrategy: &strategy}
	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		return reduceAll(st,
			conversation.StrategySelected{Recommendation: rec, At: now()},
			conversation.StepRequested{Request: req},
		)
	})
	if err != nil {
		return CallView{}, err
	}

	selection := st.SelectedProducts
	s.enqueue(sessionID, domain.SessionPatch{
		OffersPresented: st.OffersPresented,
		Selection:       &selection,
	})
	return s.fetchStep(ctx, st, st.StepSeq, req)
}

// CompleteStep closes one step by hand. It neither advances the call nor
// requests a new step.
func (s *Service) CompleteStep(ctx context.Context, sessionID, stepID string) (CallView, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return CallView{}, err
	}
	stepID = strings.TrimSpace(stepID)
	if stepID == "" {
		return CallView{}, newError(ErrorInvalidInput, "empty_step_id", nil)
	}
	st, err := s.apply(ctx, sessionID, func(st conversation.State) (conversation.State, error) {
		return reduceAll(st, conversation.StepCompleted{StepID: stepID, At: now()})
	})
	if err != nil {
		return CallView{}, err
	}
	return newCallView(st), nil
}

// fetchStep calls the step generator for request seq and applies the result.
// Failures are logged and reported on the view; they never fail the call.
func (s *Service) fetchStep(ctx context.Context, st conversation.State, seq uint64, req conversation.StepRequest) (CallView, error) {
	sreq := domain.StepRequest{
		StepType:              req.StepType,
		PriorSteps:            st.DynamicSteps,
		ChosenStrategy:        req.ChosenStrategy,
		ClientContext:         s.clientContext(ctx, st.SessionID),
		AvailableCatalogItems: s.catalogItems(ctx, st.SessionID),
		ConversationHistory:   st.ResponseHistory,
	}
	if last, ok := st.LastResponse(); ok {
		sreq.LastResponse = &last
	}

	step, genErr := s.steps.GenerateStep(ctx, sreq)
	result := OperationResult{Outcome: OutcomeOK}
	var action conversation.Action
	switch {
	case genErr != nil:
		result = failedResult(genErr)
		s.log.Warn("step generation failed", "session_id", st.SessionID, "operation", "generate_step", "err", genErr)
		action = conversation.StepFailed{Seq: seq}
	case step == nil:
		result = OperationResult{Outcome: OutcomeEmpty}
		action = conversation.StepReceived{Seq: seq}
	default:
		received := *step
		if strings.TrimSpace(received.ID) == "" {
			received.ID = newUUID()
		}
		action = conversation.StepReceived{Seq: seq, Step: &received}
	}

	saved, err := s.apply(ctx, st.SessionID, func(cur conversation.State) (conversation.State, error) {
		next, err := conversation.Reduce(cur, action)
		if errors.Is(err, conversation.ErrInvalidStep) {
			result = failedResult(errors.Join(domain.ErrMalformedResponse, err))
			s.log.Warn("step rejected", "session_id", st.SessionID, "operation", "generate_step", "err", err)
			return conversation.Reduce(cur, conversation.StepFailed{Seq: seq})
		}
		return next, err
	})
	if err != nil {
		return CallView{}, err
	}
	view := newCallView(saved)
	view.Step = &result
	return view, nil
}

// fetchRecommendations asks for strategies for the latest response under
// request seq and applies them. Failures settle with an empty list.
func (s *Service) fetchRecommendations(ctx context.Context, st conversation.State, seq uint64) (CallView, error) {
	last, _ := st.LastResponse()
	catalog := s.catalogItems(ctx, st.SessionID)
	presented := make([]domain.CatalogItem, 0, len(st.SelectedProducts))
	byRef := make(map[domain.ItemRef]domain.CatalogItem, len(catalog))
	for _, c := range catalog {
		byRef[c.Ref()] = c
	}
	for _, sel := range st.SelectedProducts {
		if c, ok := byRef[sel.ItemRef]; ok {
			presented = append(presented, c)
		}
	}

	recs, recErr := s.recommender.Recommend(ctx, domain.RecommendationRequest{
		ClientContext:         s.clientContext(ctx, st.SessionID),
		CurrentResponse:       last,
		ConversationHistory:   st.ResponseHistory,
		ProductsPresented:     presented,
		AvailableCatalogItems: catalog,
	})

	result := OperationResult{Outcome: OutcomeOK}
	var action conversation.Action
	switch {
	case recErr != nil:
		result = failedResult(recErr)
		s.log.Warn("strategy recommendation failed", "session_id", st.SessionID, "operation", "recommend_strategies", "err", recErr)
		action = conversation.RecommendationsFailed{Seq: seq}
	case len(recs) == 0:
		result = OperationResult{Outcome: OutcomeEmpty}
		action = conversation.RecommendationsReceived{Seq: seq, Recommendations: []domain.AIRecommendation{}}
	default:
		action = conversation.RecommendationsReceived{Seq: seq, Recommendations: recs}
	}

	saved, err := s.apply(ctx, st.SessionID, func(cur conversation.State) (conversation.State, error) {
		return conversation.Reduce(cur, action)
	})
	if err != nil {
		return CallView{}, err
	}
	view := newCallView(saved)
	view.Recommendations = &result
	return view, nil
}

func failedResult(err error) OperationResult {
	reason := "reasoning_error"
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		reason = "reasoning_rate_limited"
	} else if errors.Is(err, domain.ErrMalformedResponse) {
		reason = "reasoning_malformed_response"
	}
	return OperationResult{Outcome: OutcomeFailed, Reason: reason}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
