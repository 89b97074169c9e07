package conversation

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sales-copilot/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func reduce(t *testing.T, s State, actions ...Action) State {
	t.Helper()
	for _, a := range actions {
		var err error
		s, err = Reduce(s, a)
		require.NoError(t, err, "action %T", a)
	}
	return s
}

func openingStep(id string) *domain.DynamicStep {
	return &domain.DynamicStep{ID: id, StepType: domain.StepOpening, Status: domain.StepActive}
}

func startedWithOpening(t *testing.T) State {
	t.Helper()
	s := reduce(t, New("sess-1"),
		CallStarted{},
		StepRequested{Request: StepRequest{StepType: domain.StepOpening}},
	)
	return reduce(t, s, StepReceived{Seq: s.StepSeq, Step: openingStep("s1")})
}

func response(id string, rt domain.ResponseType) domain.ConversationResponse {
	return domain.ConversationResponse{ID: id, StepID: "s1", ResponseType: rt, Timestamp: t0}
}

func product(id string) domain.SelectedItem {
	return domain.SelectedItem{ItemRef: domain.ItemRef{ContentType: domain.ContentProduct, ContentID: id}}
}

func TestStartCall_OpeningStep(t *testing.T) {
	s := startedWithOpening(t)
	require.True(t, s.IsCallActive)
	require.Equal(t, 0, s.CurrentStep)
	require.Len(t, s.DynamicSteps, 1)
	require.Equal(t, "s1", s.DynamicSteps[0].ID)
	require.Equal(t, domain.StepActive, s.DynamicSteps[0].Status)
	require.False(t, s.IsLoadingNextStep())
}

func TestStartCall_AlreadyActive(t *testing.T) {
	s := startedWithOpening(t)
	out, err := Reduce(s, CallStarted{})
	require.ErrorIs(t, err, ErrCallAlreadyActive)
	require.Equal(t, s, out)
}

func TestStartCall_StepFailureKeepsCallActive(t *testing.T) {
	s := reduce(t, New("sess-1"), CallStarted{}, StepRequested{Request: StepRequest{StepType: domain.StepOpening}})
	require.True(t, s.IsLoadingNextStep())

	s = reduce(t, s, StepFailed{Seq: s.StepSeq})
	require.True(t, s.IsCallActive)
	require.Empty(t, s.DynamicSteps)
	require.False(t, s.IsLoadingNextStep())
	require.Equal(t, domain.StepOpening, s.LastStepRequest.StepType)

	// Retry succeeds.
	s = reduce(t, s, StepRequested{Request: *s.LastStepRequest})
	s = reduce(t, s, StepReceived{Seq: s.StepSeq, Step: openingStep("s1")})
	require.Len(t, s.DynamicSteps, 1)
	require.Equal(t, 0, s.CurrentStep)
}

func TestStepReceived_EmptyResultSettles(t *testing.T) {
	s := reduce(t, New("sess-1"), CallStarted{}, StepRequested{Request: StepRequest{StepType: domain.StepOpening}})
	s = reduce(t, s, StepReceived{Seq: s.StepSeq, Step: nil})
	require.Empty(t, s.DynamicSteps)
	require.False(t, s.IsLoadingNextStep())
}

func TestStepReceived_StaleResultIgnored(t *testing.T) {
	s := reduce(t, New("sess-1"), CallStarted{}, StepRequested{Request: StepRequest{StepType: domain.StepOpening}})
	first := s.StepSeq
	s = reduce(t, s, StepRequested{Request: StepRequest{StepType: domain.StepOpening}})

	s = reduce(t, s, StepReceived{Seq: first, Step: openingStep("old")})
	require.Empty(t, s.DynamicSteps)
	require.True(t, s.IsLoadingNextStep())

	s = reduce(t, s, StepReceived{Seq: s.StepSeq, Step: openingStep("new")})
	require.Len(t, s.DynamicSteps, 1)
	require.Equal(t, "new", s.DynamicSteps[0].ID)

	// A duplicate delivery for a settled request is a no-op.
	s = reduce(t, s, StepReceived{Seq: s.StepSeq, Step: openingStep("again")})
	require.Len(t, s.DynamicSteps, 1)
}

func TestStepReceived_Validation(t *testing.T) {
	s := reduce(t, New("sess-1"), CallStarted{}, StepRequested{Request: StepRequest{StepType: domain.StepOpening}})

	_, err := Reduce(s, StepReceived{Seq: s.StepSeq, Step: &domain.DynamicStep{StepType: domain.StepOpening}})
	require.ErrorIs(t, err, ErrInvalidStep)

	_, err = Reduce(s, StepReceived{Seq: s.StepSeq, Step: &domain.DynamicStep{ID: "x", StepType: "smalltalk"}})
	require.ErrorIs(t, err, ErrInvalidStep)
}

func TestStepRequested_RequiresActiveCall(t *testing.T) {
	_, err := Reduce(New("sess-1"), StepRequested{Request: StepRequest{StepType: domain.StepOpening}})
	require.ErrorIs(t, err, ErrCallNotActive)
}

func TestRecordResponse_Counters(t *testing.T) {
	s := startedWithOpening(t)
	s = reduce(t, s, ResponseRecorded{Response: response("r1", domain.ResponseObjectionPrice)})
	require.Equal(t, []domain.ResponseType{domain.ResponseObjectionPrice}, s.ObjectionsRaised)
	require.Equal(t, 0, s.PositiveSignals)

	s = reduce(t, s,
		ResponseRecorded{Response: response("r2", domain.ResponsePositive)},
		ResponseRecorded{Response: response("r3", domain.ResponseNeutral)},
		ResponseRecorded{Response: response("r4", domain.ResponseObjectionTiming)},
	)
	require.Equal(t, 1, s.PositiveSignals)
	require.Equal(t, []domain.ResponseType{domain.ResponseObjectionPrice, domain.ResponseObjectionTiming}, s.ObjectionsRaised)
	require.Len(t, s.ResponseHistory, 4)
	require.Equal(t, "r4", s.ResponseHistory[3].ID)
}

func TestRecordResponse_Validation(t *testing.T) {
	_, err := Reduce(New("sess-1"), ResponseRecorded{Response: response("r1", domain.ResponsePositive)})
	require.ErrorIs(t, err, ErrCallNotActive)

	_, err = Reduce(startedWithOpening(t), ResponseRecorded{Response: response("r1", "meh")})
	require.ErrorIs(t, err, ErrInvalidResponseType)
}

func TestRecommendations_ReplaceAndDiscardStale(t *testing.T) {
	s := startedWithOpening(t)
	s = reduce(t, s, ResponseRecorded{Response: response("r1", domain.ResponseObjectionPrice)}, RecommendationsRequested{})
	stale := s.RecSeq
	s = reduce(t, s, RecommendationsRequested{})
	require.True(t, s.IsLoadingRecommendations())

	fresh := []domain.AIRecommendation{{Strategy: domain.StrategyValueStack}, {Strategy: domain.StrategyPaymentPlan}}
	s = reduce(t, s, RecommendationsReceived{Seq: s.RecSeq, Recommendations: fresh})
	s = reduce(t, s, RecommendationsReceived{Seq: stale, Recommendations: []domain.AIRecommendation{{Strategy: domain.StrategyDownsell}}})

	require.Equal(t, fresh, s.PendingRecommendations)
	require.Equal(t, fresh, s.ResponseHistory[0].AIRecommendations)
	require.False(t, s.IsLoadingRecommendations())

	// Order is preserved, and a newer request replaces rather than merges.
	s = reduce(t, s, RecommendationsRequested{})
	s = reduce(t, s, RecommendationsReceived{Seq: s.RecSeq, Recommendations: []domain.AIRecommendation{{Strategy: domain.StrategyUrgency}}})
	require.Equal(t, []domain.AIRecommendation{{Strategy: domain.StrategyUrgency}}, s.PendingRecommendations)
}

func TestRecommendations_FailureYieldsEmptyList(t *testing.T) {
	s := startedWithOpening(t)
	s = reduce(t, s, ResponseRecorded{Response: response("r1", domain.ResponseNeutral)}, RecommendationsRequested{})
	s = reduce(t, s, RecommendationsReceived{Seq: s.RecSeq, Recommendations: []domain.AIRecommendation{{Strategy: domain.StrategyValueStack}}})
	s = reduce(t, s, RecommendationsRequested{})
	s = reduce(t, s, RecommendationsFailed{Seq: s.RecSeq})
	require.NotNil(t, s.PendingRecommendations)
	require.Empty(t, s.PendingRecommendations)
	require.False(t, s.IsLoadingRecommendations())
}

func TestSelectStrategy_UnionsProductsAndCompletesStep(t *testing.T) {
	s := startedWithOpening(t)
	s = reduce(t, s, ItemsAdded{Items: []domain.SelectedItem{product("7")}})
	s = reduce(t, s, ResponseRecorded{Response: response("r1", domain.ResponseObjectionPrice)}, RecommendationsRequested{})
	rec := domain.AIRecommendation{
		Strategy: domain.StrategyValueStack,
		Products: []domain.RecommendedItem{{ID: "7", Reason: "core"}, {ID: "9", Reason: "bonus"}},
	}
	s = reduce(t, s, RecommendationsReceived{Seq: s.RecSeq, Recommendations: []domain.AIRecommendation{rec}})

	s = reduce(t, s, StrategySelected{Recommendation: rec, At: t0})
	require.Equal(t, []domain.SelectedItem{product("7"), product("9")}, s.SelectedProducts)
	require.Equal(t, []domain.OfferStrategy{domain.StrategyValueStack}, s.OffersPresented)
	require.Equal(t, domain.StepCompleted, s.DynamicSteps[0].Status)
	require.Equal(t, t0, *s.DynamicSteps[0].CompletedAt)
	require.Equal(t, domain.ResponseObjectionPrice, *s.DynamicSteps[0].Response)
	require.Equal(t, domain.StrategyValueStack, *s.ResponseHistory[0].StrategyChosen)
	require.Empty(t, s.PendingRecommendations)

	next, err := StepTypeFor(rec.Strategy)
	require.NoError(t, err)
	s = reduce(t, s, StepRequested{Request: StepRequest{StepType: next, ChosenStrategy: &rec.Strategy}})
	s = reduce(t, s, StepReceived{Seq: s.StepSeq, Step: &domain.DynamicStep{ID: "s2", StepType: next}})
	require.Len(t, s.DynamicSteps, 2)
	require.Equal(t, 1, s.CurrentStep)
	require.Equal(t, domain.StepActive, s.DynamicSteps[1].Status)
}

func TestSelectStrategy_Validation(t *testing.T) {
	rec := domain.AIRecommendation{Strategy: domain.StrategyValueStack}

	_, err := Reduce(startedWithOpening(t), StrategySelected{Recommendation: domain.AIRecommendation{Strategy: "wing_it"}, At: t0})
	require.ErrorIs(t, err, ErrUnmappedStrategy)

	_, err = Reduce(New("sess-1"), StrategySelected{Recommendation: rec, At: t0})
	require.ErrorIs(t, err, ErrCallNotActive)

	noStep := reduce(t, New("sess-1"), CallStarted{})
	_, err = Reduce(noStep, StrategySelected{Recommendation: rec, At: t0})
	require.ErrorIs(t, err, ErrNoCurrentStep)
}

func TestCompleteStep(t *testing.T) {
	s := startedWithOpening(t)
	s = reduce(t, s, StepCompleted{StepID: "s1", At: t0})
	require.Equal(t, domain.StepCompleted, s.DynamicSteps[0].Status)
	require.Equal(t, 0, s.CurrentStep)
	require.Len(t, s.DynamicSteps, 1)
	require.False(t, s.IsLoadingNextStep())

	later := t0.Add(time.Minute)
	s = reduce(t, s, StepCompleted{StepID: "s1", At: later})
	require.Equal(t, t0, *s.DynamicSteps[0].CompletedAt)

	_, err := Reduce(s, StepCompleted{StepID: "nope", At: t0})
	require.ErrorIs(t, err, ErrStepNotFound)
}

func TestSelection_AddRemoveSeed(t *testing.T) {
	s := New("sess-1")
	s = reduce(t, s, ItemsAdded{Items: []domain.SelectedItem{product("1"), product("2"), product("1")}})
	require.Equal(t, []domain.SelectedItem{product("1"), product("2")}, s.SelectedProducts)

	s = reduce(t, s, ItemsRemoved{Refs: []domain.ItemRef{product("1").ItemRef, product("404").ItemRef}})
	require.Equal(t, []domain.SelectedItem{product("2")}, s.SelectedProducts)

	s = reduce(t, s, SelectionSeeded{BundleID: "b-1", Items: []domain.SelectedItem{product("5"), product("6")}})
	require.Equal(t, []domain.SelectedItem{product("5"), product("6")}, s.SelectedProducts)
	require.Equal(t, "b-1", *s.SeededFromBundleID)
}

func TestReduce_DoesNotAliasInput(t *testing.T) {
	s := startedWithOpening(t)
	s = reduce(t, s, ResponseRecorded{Response: response("r1", domain.ResponseNeutral)})
	before := fmt.Sprintf("%+v", s)

	_ = reduce(t, s,
		ItemsAdded{Items: []domain.SelectedItem{product("1")}},
		StrategySelected{Recommendation: domain.AIRecommendation{Strategy: domain.StrategyTrialClose}, At: t0},
	)
	require.Equal(t, before, fmt.Sprintf("%+v", s))
}

func TestReduce_UnknownAction(t *testing.T) {
	_, err := Reduce(New("x"), nil)
	require.ErrorIs(t, err, ErrUnknownAction)
}

// TestReduce_StepHistoryOnlyGrows drives random action sequences and checks
// that steps are append-only and the current step stays in range.
func TestReduce_StepHistoryOnlyGrows(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		s := startedWithOpening(t)
		stepN := 1
		for i := 0; i < 60; i++ {
			prev := s
			var a Action
			switch rng.Intn(6) {
			case 0:
				rt := domain.AllResponseTypes[rng.Intn(len(domain.AllResponseTypes))]
				a = ResponseRecorded{Response: response(fmt.Sprintf("r%d", i), rt)}
			case 1:
				st := domain.AllOfferStrategies[rng.Intn(len(domain.AllOfferStrategies))]
				a = StrategySelected{Recommendation: domain.AIRecommendation{Strategy: st, Products: []domain.RecommendedItem{{ID: fmt.Sprint(rng.Intn(4))}}}, At: t0}
			case 2:
				a = StepRequested{Request: StepRequest{StepType: domain.StepDiscovery}}
			case 3:
				stepN++
				a = StepReceived{Seq: s.StepSeq - uint64(rng.Intn(2)), Step: &domain.DynamicStep{ID: fmt.Sprintf("s%d", stepN), StepType: domain.StepDiscovery}}
			case 4:
				a = StepFailed{Seq: s.StepSeq}
			case 5:
				a = RecommendationsRequested{}
			}
			next, err := Reduce(s, a)
			if err != nil {
				require.False(t, errors.Is(err, ErrUnknownAction))
				require.Equal(t, prev, next)
				continue
			}
			s = next

			require.GreaterOrEqual(t, len(s.DynamicSteps), len(prev.DynamicSteps))
			require.LessOrEqual(t, len(s.DynamicSteps), len(prev.DynamicSteps)+1)
			for j := range prev.DynamicSteps {
				require.Equal(t, prev.DynamicSteps[j].ID, s.DynamicSteps[j].ID)
			}
			require.True(t, s.IsCallActive)
			require.Less(t, s.CurrentStep, len(s.DynamicSteps))
			if len(s.DynamicSteps) > len(prev.DynamicSteps) {
				require.Equal(t, len(s.DynamicSteps)-1, s.CurrentStep)
			}
		}
	}
}
