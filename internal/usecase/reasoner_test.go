package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sales-copilot/internal/domain"
)

type capturingLLM struct {
	reply string
	err   error
	model string
	msgs  []domain.ChatMessage
}

func (c *capturingLLM) Chat(_ context.Context, model string, msgs []domain.ChatMessage) (string, error) {
	c.model = model
	c.msgs = msgs
	return c.reply, c.err
}

func TestNewLLMReasoner_Validation(t *testing.T) {
	_, err := NewLLMReasoner(nil, "gpt-4o-mini")
	require.Error(t, err)
	_, err = NewLLMReasoner(&capturingLLM{}, " ")
	require.ErrorContains(t, err, "model")
}

func TestLLMReasoner_GenerateStep(t *testing.T) {
	llm := &capturingLLM{reply: `{"step":{"stepType":"discovery","title":"Dig into lead flow","talkingPoints":["Ask about last quarter"],"questions":["Where do leads come from today?"]}}`}
	r, err := NewLLMReasoner(llm, "gpt-4o-mini")
	require.NoError(t, err)

	strategy := domain.StrategyDeepenDiscovery
	got, err := r.GenerateStep(context.Background(), domain.StepRequest{
		StepType:       domain.StepDiscovery,
		ChosenStrategy: &strategy,
		ClientContext:  domain.ClientContext{ClientName: "Dana"},
		AvailableCatalogItems: []domain.CatalogItem{
			{ContentType: domain.ContentProduct, ContentID: "7", Title: "  Growth   Audit ", OfferRole: domain.RoleCoreOffer},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, got.ID)
	require.Equal(t, domain.StepDiscovery, got.StepType)
	require.Equal(t, "Dig into lead flow", got.Content.Title)
	require.Equal(t, []string{"Ask about last quarter"}, got.Content.TalkingPoints)

	require.Equal(t, "gpt-4o-mini", llm.model)
	require.Len(t, llm.msgs, 2)
	require.Equal(t, "system", llm.msgs[0].Role)
	require.Contains(t, llm.msgs[0].Content, "stepType must be one of: opening, discovery")
	require.Contains(t, llm.msgs[1].Content, `"chosenStrategy":"deepen_discovery"`)
	require.Contains(t, llm.msgs[1].Content, `"title":"Growth Audit"`)
	require.Contains(t, llm.msgs[1].Content, `"clientName":"Dana"`)
}

func TestLLMReasoner_GenerateStep_UpstreamError(t *testing.T) {
	r, err := NewLLMReasoner(&capturingLLM{err: statusErr{code: 429}}, "m")
	require.NoError(t, err)
	_, err = r.GenerateStep(context.Background(), domain.StepRequest{StepType: domain.StepOpening})
	status, ok := upstreamStatusCode(err)
	require.True(t, ok)
	require.Equal(t, 429, status)

	_, err = r.GenerateStep(context.Background(), domain.StepRequest{StepType: "bogus"})
	require.ErrorContains(t, err, "unknown step type")
}

func TestParseStepReply(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantNil   bool
		wantErr   bool
		wantType  domain.StepType
		malformed bool
	}{
		{name: "null step", raw: `{"step":null}`, wantNil: true},
		{name: "missing type defaults to requested", raw: `{"step":{"title":"Open warmly","talkingPoints":["hi"]}}`, wantType: domain.StepOpening},
		{name: "matching type kept", raw: `{"step":{"stepType":"opening","title":"Open warmly"}}`, wantType: domain.StepOpening},
		{name: "type other than requested", raw: `{"step":{"stepType":"closing","title":"Ask for the sale"}}`, wantErr: true, malformed: true},
		{name: "unknown step type", raw: `{"step":{"stepType":"monologue","title":"x"}}`, wantErr: true, malformed: true},
		{name: "unknown field", raw: `{"step":{"title":"x","mood":"happy"}}`, wantErr: true, malformed: true},
		{name: "trailing data", raw: `{"step":null} {"step":null}`, wantErr: true, malformed: true},
		{name: "empty step", raw: `{"step":{"stepType":"opening"}}`, wantErr: true, malformed: true},
		{name: "not json", raw: `sure, here is a step`, wantErr: true, malformed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseStepReply(tc.raw, domain.StepOpening)
			if tc.wantErr {
				require.Error(t, err)
				require.Equal(t, tc.malformed, errors.Is(err, domain.ErrMalformedResponse))
				return
			}
			require.NoError(t, err)
			if tc.wantNil {
				require.Nil(t, got)
				return
			}
			require.Equal(t, tc.wantType, got.StepType)
			require.NotNil(t, got.Content.TalkingPoints)
		})
	}
}

func TestParseRecommendationsReply(t *testing.T) {
	catalog := []domain.CatalogItem{
		{ContentType: domain.ContentService, ContentID: "7"},
		{ContentType: domain.ContentProduct, ContentID: "9"},
	}
	raw := `{"recommendations":[
		{"strategy":"risk_reversal","rationale":"trust objection","products":[{"id":"7","reason":"guarantee","talkingPoint":"We stand behind it"},{"id":"404","reason":"?","talkingPoint":"?"}]},
		{"strategy":"social_proof","products":[]},
		{"strategy":"payment_plan","products":[{"id":"9","contentType":"product","reason":"spread cost","talkingPoint":"Three payments"}]}
	]}`

	got, err := parseRecommendationsReply(raw, catalog)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []domain.OfferStrategy{domain.StrategyRiskReversal, domain.StrategySocialProof, domain.StrategyPaymentPlan},
		[]domain.OfferStrategy{got[0].Strategy, got[1].Strategy, got[2].Strategy}, "ranking order must be preserved")
	require.Len(t, got[0].Products, 1, "products outside the catalog are dropped")
	require.Equal(t, domain.ContentService, got[0].Products[0].ContentType)
	require.Empty(t, got[1].Products)

	empty, err := parseRecommendationsReply(`{"recommendations":[]}`, catalog)
	require.NoError(t, err)
	require.Empty(t, empty)

	for _, bad := range []string{
		`{"recommendations":[{"strategy":"wing_it","products":[]}]}`,
		`{"recommendations":[{"products":[]}]}`,
		`{"recommendations":[],"extra":true}`,
	} {
		_, err := parseRecommendationsReply(bad, catalog)
		require.ErrorIs(t, err, domain.ErrMalformedResponse, bad)
	}
}

func TestParseRecommendationsReply_SharedIDAcrossContentTypes(t *testing.T) {
	catalog := []domain.CatalogItem{
		{ContentType: domain.ContentProduct, ContentID: "12"},
		{ContentType: domain.ContentPublication, ContentID: "12"},
		{ContentType: domain.ContentService, ContentID: "30"},
	}
	raw := `{"recommendations":[{"strategy":"value_stack","products":[
		{"id":"12","contentType":"publication","reason":"proof","talkingPoint":"Read the case study"},
		{"id":"12","contentType":"service","reason":"?","talkingPoint":"?"},
		{"id":"30","contentType":"product","reason":"?","talkingPoint":"?"},
		{"id":"12","reason":"ambiguous","talkingPoint":"?"},
		{"id":"30","reason":"only one type","talkingPoint":"Done for you"}
	]}]}`

	got, err := parseRecommendationsReply(raw, catalog)
	require.NoError(t, err)
	require.Len(t, got, 1)
	var refs []domain.ItemRef
	for _, p := range got[0].Products {
		refs = append(refs, p.Ref())
	}
	require.Equal(t, []domain.ItemRef{
		{ContentType: domain.ContentPublication, ContentID: "12"},
		{ContentType: domain.ContentProduct, ContentID: "12"},
		{ContentType: domain.ContentService, ContentID: "30"},
	}, refs)
}

func TestLLMReasoner_Recommend(t *testing.T) {
	llm := &capturingLLM{reply: `{"recommendations":[{"strategy":"value_stack","products":[]}]}`}
	r, err := NewLLMReasoner(llm, "gpt-4o-mini")
	require.NoError(t, err)

	got, err := r.Recommend(context.Background(), domain.RecommendationRequest{
		CurrentResponse: domain.ConversationResponse{ID: "r1", ResponseType: domain.ResponseObjectionPrice},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StrategyValueStack, got[0].Strategy)
	require.Contains(t, llm.msgs[0].Content, "strategy must be one of:")
	require.True(t, strings.Contains(llm.msgs[1].Content, `"responseType":"objection_price"`))
}

func TestPromptHistoryIsBounded(t *testing.T) {
	history := make([]domain.ConversationResponse, maxPromptHistory+5)
	for i := range history {
		history[i] = domain.ConversationResponse{ID: "r", ResponseType: domain.ResponseNeutral}
	}
	history[len(history)-1].ID = "latest"
	require.Len(t, tail(history, maxPromptHistory), maxPromptHistory)
	require.Equal(t, "latest", tail(history, maxPromptHistory)[maxPromptHistory-1].ID)
	require.Len(t, tail(history[:3], maxPromptHistory), 3)
}
