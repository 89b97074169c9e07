// Package conversation holds the live-call state machine as a pure reducer.
// Reduce never performs I/O; the caller issues requests to the reasoning
// services and feeds their results back as actions.
package conversation

import (
	"errors"

	"sales-copilot/internal/domain"
)

var (
	ErrCallAlreadyActive   = errors.New("conversation: call already active")
	ErrCallNotActive       = errors.New("conversation: call not active")
	ErrNoCurrentStep       = errors.New("conversation: no current step")
	ErrStepNotFound        = errors.New("conversation: step not found")
	ErrUnmappedStrategy    = errors.New("conversation: strategy has no step type")
	ErrInvalidResponseType = errors.New("conversation: invalid response type")
	ErrInvalidStep         = errors.New("conversation: invalid step")
	ErrUnknownAction       = errors.New("conversation: unknown action")

	// ErrVersionConflict is returned by snapshot stores when the state
	// changed since it was read.
	ErrVersionConflict = errors.New("conversation: version conflict")
)

// StepRequest records what the most recent step request asked for, so a
// failed fetch can be retried as-is.
type StepRequest struct {
	StepType       domain.StepType       `json:"stepType" dynamodbav:"stepType"`
	ChosenStrategy *domain.OfferStrategy `json:"chosenStrategy,omitempty" dynamodbav:"chosenStrategy,omitempty"`
}

// State is the state of one live call.
type State struct {
	SessionID        string                        `json:"sessionId" dynamodbav:"sessionId"`
	CurrentStep      int                           `json:"currentStep" dynamodbav:"currentStep"`
	IsCallActive     bool                          `json:"isCallActive" dynamodbav:"isCallActive"`
	DynamicSteps     []domain.DynamicStep          `json:"dynamicSteps" dynamodbav:"dynamicSteps"`
	ResponseHistory  []domain.ConversationResponse `json:"responseHistory" dynamodbav:"responseHistory"`
	ObjectionsRaised []domain.ResponseType         `json:"objectionsRaised" dynamodbav:"objectionsRaised"`
	PositiveSignals  int                           `json:"positiveSignals" dynamodbav:"positiveSignals"`
	OffersPresented  []domain.OfferStrategy        `json:"offersPresented" dynamodbav:"offersPresented"`
	SelectedProducts []domain.SelectedItem         `json:"selectedProducts" dynamodbav:"selectedProducts"`

	PendingRecommendations []domain.AIRecommendation `json:"pendingRecommendations" dynamodbav:"pendingRecommendations"`
	SeededFromBundleID     *string                   `json:"seededFromBundleId,omitempty" dynamodbav:"seededFromBundleId,omitempty"`
	LastStepRequest        *StepRequest              `json:"lastStepRequest,omitempty" dynamodbav:"lastStepRequest,omitempty"`

	// Request epochs. A result is applied only when its sequence equals the
	// latest one issued for its class.
	StepSeq     uint64 `json:"stepSeq" dynamodbav:"stepSeq"`
	StepSettled uint64 `json:"stepSettled" dynamodbav:"stepSettled"`
	RecSeq      uint64 `json:"recSeq" dynamodbav:"recSeq"`
	RecSettled  uint64 `json:"recSettled" dynamodbav:"recSettled"`

	// Version is owned by the store for optimistic writes.
	Version int64 `json:"version" dynamodbav:"version"`
}

// New returns the not-started state for a session.
func New(sessionID string) State {
	return State{SessionID: sessionID}
}

func (s State) IsLoadingNextStep() bool { return s.StepSeq != s.StepSettled }

func (s State) IsLoadingRecommendations() bool { return s.RecSeq != s.RecSettled }

// Current returns the active step, if any.
func (s State) Current() (domain.DynamicStep, bool) {
	if !s.IsCallActive || s.CurrentStep < 0 || s.CurrentStep >= len(s.DynamicSteps) {
		return domain.DynamicStep{}, false
	}
	return s.DynamicSteps[s.CurrentStep], true
}

// LastResponse returns the most recently recorded response, if any.
func (s State) LastResponse() (domain.ConversationResponse, bool) {
	if len(s.ResponseHistory) == 0 {
		return domain.ConversationResponse{}, false
	}
	return s.ResponseHistory[len(s.ResponseHistory)-1], true
}

// IsSelected reports whether ref is part of the selection.
func (s State) IsSelected(ref domain.ItemRef) bool {
	for _, it := range s.SelectedProducts {
		if it.ItemRef == ref {
			return true
		}
	}
	return false
}

// clone copies every slice the reducer may write to, so a returned State
// never aliases its input.
func (s State) clone() State {
	out := s
	out.DynamicSteps = cloneSlice(s.DynamicSteps)
	out.ResponseHistory = cloneSlice(s.ResponseHistory)
	out.ObjectionsRaised = cloneSlice(s.ObjectionsRaised)
	out.OffersPresented = cloneSlice(s.OffersPresented)
	out.SelectedProducts = cloneSlice(s.SelectedProducts)
	out.PendingRecommendations = cloneSlice(s.PendingRecommendations)
	return out
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
