package conversation

import (
	"fmt"
	"strings"
	"time"

	"sales-copilot/internal/domain"
)

// Action is a state transition input. The set is closed.
type Action interface {
	isAction()
}

// CallStarted marks the call active. It fails when a call is already active.
type CallStarted struct{}

// StepRequested issues a new step request epoch.
type StepRequested struct {
	Request StepRequest
}

// StepReceived delivers a generated step for request Seq. A nil Step is a
// legitimate empty result.
type StepReceived struct {
	Seq  uint64
	Step *domain.DynamicStep
}

// StepFailed settles request Seq without a step.
type StepFailed struct {
	Seq uint64
}

// ResponseRecorded appends a prospect reaction.
type ResponseRecorded struct {
	Response domain.ConversationResponse
}

// RecommendationsRequested issues a new recommendation request epoch.
type RecommendationsRequested struct{}

// RecommendationsReceived delivers ranked recommendations for request Seq.
type RecommendationsReceived struct {
	Seq             uint64
	Recommendations []domain.AIRecommendation
}

// RecommendationsFailed settles request Seq with an empty list.
type RecommendationsFailed struct {
	Seq uint64
}

// StrategySelected completes the current step with the chosen strategy.
// The caller follows up with StepRequested for the mapped step type.
type StrategySelected struct {
	Recommendation domain.AIRecommendation
	At             time.Time
}

// StepCompleted closes one step by hand without advancing.
type StepCompleted struct {
	StepID string
	At     time.Time
}

// ItemsAdded unions items into the selection.
type ItemsAdded struct {
	Items []domain.SelectedItem
}

// ItemsRemoved drops items from the selection.
type ItemsRemoved struct {
	Refs []domain.ItemRef
}

// SelectionSeeded replaces the selection with a bundle's items.
type SelectionSeeded struct {
	BundleID string
	Items    []domain.SelectedItem
}

func (CallStarted) isAction()              {}
func (StepRequested) isAction()            {}
func (StepReceived) isAction()             {}
func (StepFailed) isAction()               {}
func (ResponseRecorded) isAction()         {}
func (RecommendationsRequested) isAction() {}
func (RecommendationsReceived) isAction()  {}
func (RecommendationsFailed) isAction()    {}
func (StrategySelected) isAction()         {}
func (StepCompleted) isAction()            {}
func (ItemsAdded) isAction()               {}
func (ItemsRemoved) isAction()             {}
func (SelectionSeeded) isAction()          {}

// Reduce applies a to s and returns the next state. s is never modified.
// On error the returned state equals s.
func Reduce(s State, a Action) (State, error) {
	next := s.clone()
	var err error
	switch a := a.(type) {
	case CallStarted:
		err = next.startCall()
	case StepRequested:
		err = next.requestStep(a)
	case StepReceived:
		err = next.receiveStep(a)
	case StepFailed:
		next.settleStep(a.Seq)
	case ResponseRecorded:
		err = next.recordResponse(a)
	case RecommendationsRequested:
		next.RecSeq++
	case RecommendationsReceived:
		next.receiveRecommendations(a.Seq, a.Recommendations)
	case RecommendationsFailed:
		next.receiveRecommendations(a.Seq, []domain.AIRecommendation{})
	case StrategySelected:
		err = next.selectStrategy(a)
	case StepCompleted:
		err = next.completeStep(a)
	case ItemsAdded:
		next.addItems(a.Items)
	case ItemsRemoved:
		next.removeItems(a.Refs)
	case SelectionSeeded:
		next.SelectedProducts = []domain.SelectedItem{}
		next.addItems(a.Items)
		id := a.BundleID
		next.SeededFromBundleID = &id
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
	if err != nil {
		return s, err
	}
	return next, nil
}

func (s *State) startCall() error {
	if s.IsCallActive {
		return ErrCallAlreadyActive
	}
	s.IsCallActive = true
	s.CurrentStep = 0
	return nil
}

func (s *State) requestStep(a StepRequested) error {
	if !s.IsCallActive {
		return ErrCallNotActive
	}
	if !a.Request.StepType.Valid() {
		return fmt.Errorf("%w: step type %q", ErrInvalidStep, a.Request.StepType)
	}
	req := a.Request
	s.LastStepRequest = &req
	s.StepSeq++
	return nil
}

func (s *State) receiveStep(a StepReceived) error {
	if a.Seq != s.StepSeq || s.StepSettled == s.StepSeq {
		return nil // stale or already settled
	}
	if a.Step == nil {
		s.StepSettled = a.Seq
		return nil
	}
	step := *a.Step
	if strings.TrimSpace(step.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidStep)
	}
	if !step.StepType.Valid() {
		return fmt.Errorf("%w: step type %q", ErrInvalidStep, step.StepType)
	}
	for _, existing := range s.DynamicSteps {
		if existing.ID == step.ID {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidStep, step.ID)
		}
	}
	step.Status = domain.StepActive
	step.CompletedAt = nil
	step.Response = nil
	s.DynamicSteps = append(s.DynamicSteps, step)
	s.CurrentStep = len(s.DynamicSteps) - 1
	s.StepSettled = a.Seq
	return nil
}

func (s *State) settleStep(seq uint64) {
	if seq == s.StepSeq {
		s.StepSettled = seq
	}
}

func (s *State) recordResponse(a ResponseRecorded) error {
	if !s.IsCallActive {
		return ErrCallNotActive
	}
	r := a.Response
	if !r.ResponseType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidResponseType, r.ResponseType)
	}
	s.ResponseHistory = append(s.ResponseHistory, r)
	if r.ResponseType.IsObjection() {
		s.ObjectionsRaised = append(s.ObjectionsRaised, r.ResponseType)
	}
	if r.ResponseType.IsPositive() {
		s.PositiveSignals++
	}
	return nil
}

// receiveRecommendations replaces the pending set and attaches it to the
// latest response. Stale results are dropped.
func (s *State) receiveRecommendations(seq uint64, recs []domain.AIRecommendation) {
	if seq != s.RecSeq || s.RecSettled == s.RecSeq {
		return
	}
	s.RecSettled = seq
	s.PendingRecommendations = cloneSlice(recs)
	if n := len(s.ResponseHistory); n > 0 {
		s.ResponseHistory[n-1].AIRecommendations = cloneSlice(recs)
	}
}

func (s *State) selectStrategy(a StrategySelected) error {
	rec := a.Recommendation
	if _, err := StepTypeFor(rec.Strategy); err != nil {
		return err
	}
	if !s.IsCallActive {
		return ErrCallNotActive
	}
	if s.CurrentStep < 0 || s.CurrentStep >= len(s.DynamicSteps) {
		return ErrNoCurrentStep
	}

	items := make([]domain.SelectedItem, 0, len(rec.Products))
	for _, p := range rec.Products {
		if strings.TrimSpace(p.ID) == "" {
			continue
		}
		items = append(items, domain.SelectedItem{ItemRef: p.Ref()})
	}
	s.addItems(items)

	step := &s.DynamicSteps[s.CurrentStep]
	if step.Status != domain.StepCompleted {
		at := a.At
		step.Status = domain.StepCompleted
		step.CompletedAt = &at
	}
	if n := len(s.ResponseHistory); n > 0 {
		rt := s.ResponseHistory[n-1].ResponseType
		step.Response = &rt
		strategy := rec.Strategy
		s.ResponseHistory[n-1].StrategyChosen = &strategy
	}

	s.OffersPresented = append(s.OffersPresented, rec.Strategy)
	s.PendingRecommendations = []domain.AIRecommendation{}
	// Late recommendation results for the old response are no longer wanted.
	s.RecSettled = s.RecSeq
	return nil
}

func (s *State) completeStep(a StepCompleted) error {
	for i := range s.DynamicSteps {
		if s.DynamicSteps[i].ID != a.StepID {
			continue
		}
		step := &s.DynamicSteps[i]
		if step.Status == domain.StepCompleted {
			return nil
		}
		at := a.At
		step.Status = domain.StepCompleted
		step.CompletedAt = &at
		return nil
	}
	return fmt.Errorf("%w: %q", ErrStepNotFound, a.StepID)
}

func (s *State) addItems(items []domain.SelectedItem) {
	for _, it := range items {
		if strings.TrimSpace(it.ContentID) == "" || s.IsSelected(it.ItemRef) {
			continue
		}
		s.SelectedProducts = append(s.SelectedProducts, it)
	}
}

func (s *State) removeItems(refs []domain.ItemRef) {
	drop := make(map[domain.ItemRef]bool, len(refs))
	for _, r := range refs {
		drop[r] = true
	}
	kept := s.SelectedProducts[:0]
	for _, it := range s.SelectedProducts {
		if !drop[it.ItemRef] {
			kept = append(kept, it)
		}
	}
	s.SelectedProducts = kept
}
