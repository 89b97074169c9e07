package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"sales-copilot/internal/domain"
)

const maxPromptHistory = 20

type generatedStep struct {
	StepType        domain.StepType  `json:"stepType"`
	Title           string           `json:"title"`
	Script          string           `json:"script"`
	TalkingPoints   []string         `json:"talkingPoints"`
	Questions       []string         `json:"questions"`
	SuggestedOffers []domain.ItemRef `json:"suggestedOffers"`
}

type stepReply struct {
	Step *generatedStep `json:"step"`
}

type recommendationsReply struct {
	Recommendations []domain.AIRecommendation `json:"recommendations"`
}

func buildStepMessages(req domain.StepRequest) ([]domain.ChatMessage, error) {
	payload, err := json.Marshal(struct {
		StepType       domain.StepType               `json:"stepType"`
		ChosenStrategy *domain.OfferStrategy         `json:"chosenStrategy,omitempty"`
		LastResponse   *domain.ConversationResponse  `json:"lastResponse,omitempty"`
		PriorSteps     []promptStep                  `json:"priorSteps"`
		History        []domain.ConversationResponse `json:"conversationHistory"`
		Client         domain.ClientContext          `json:"clientContext"`
		Catalog        []promptItem                  `json:"availableCatalogItems"`
	}{
		StepType:       req.StepType,
		ChosenStrategy: req.ChosenStrategy,
		LastResponse:   req.LastResponse,
		PriorSteps:     promptSteps(req.PriorSteps),
		History:        tail(req.ConversationHistory, maxPromptHistory),
		Client:         req.ClientContext,
		Catalog:        promptItems(req.AvailableCatalogItems),
	})
	if err != nil {
		return nil, fmt.Errorf("usecase: marshal step context: %w", err)
	}
	return []domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: buildStepPolicyPrompt()},
		{Role: domain.ChatRoleUser, Content: string(payload)},
	}, nil
}

func buildRecommendationMessages(req domain.RecommendationRequest) ([]domain.ChatMessage, error) {
	payload, err := json.Marshal(struct {
		Current   domain.ConversationResponse   `json:"currentObjectionOrResponse"`
		History   []domain.ConversationResponse `json:"conversationHistory"`
		Presented []promptItem                  `json:"productsPresented"`
		Catalog   []promptItem                  `json:"availableCatalogItems"`
		Client    domain.ClientContext          `json:"clientContext"`
	}{
		Current:   req.CurrentResponse,
		History:   tail(req.ConversationHistory, maxPromptHistory),
		Presented: promptItems(req.ProductsPresented),
		Catalog:   promptItems(req.AvailableCatalogItems),
		Client:    req.ClientContext,
	})
	if err != nil {
		return nil, fmt.Errorf("usecase: marshal recommendation context: %w", err)
	}
	return []domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: buildRecommendationPolicyPrompt()},
		{Role: domain.ChatRoleUser, Content: string(payload)},
	}, nil
}

func buildStepPolicyPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You coach a salesperson through a live consultative sales call.",
		"",
		"Task:",
		"Write the next step of the call for the requested stepType, using the call context in the user message.",
		"",
		"Behavior Rules:",
		"1) Keep talking points short enough to say aloud.",
		"2) Build on what the prospect already said; do not repeat earlier steps.",
		"3) When a chosen strategy is given, the step must carry it out.",
		"4) Only suggest offers from availableCatalogItems, referenced by contentType and contentId.",
		"",
		"Output Contract:",
		"Return JSON only: {\"step\": {\"stepType\": string, \"title\": string, \"script\": string, " +
			"\"talkingPoints\": [string], \"questions\": [string], " +
			"\"suggestedOffers\": [{\"contentType\": string, \"contentId\": string}]}}.",
		"stepType must be one of: " + joinValues(domain.AllStepTypes) + ".",
		"Return {\"step\": null} if no sensible step exists.",
	}, "\n")
}

func buildRecommendationPolicyPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You advise a salesperson on the best next move after the prospect's latest response.",
		"",
		"Task:",
		"Rank the strategies that best answer currentObjectionOrResponse, best first.",
		"",
		"Behavior Rules:",
		"1) Address objections directly before pushing for a close.",
		"2) Only propose products from availableCatalogItems, by their contentId.",
		"3) Do not propose products already in productsPresented.",
		"4) Return at most three recommendations.",
		"",
		"Output Contract:",
		"Return JSON only: {\"recommendations\": [{\"strategy\": string, \"rationale\": string, " +
			"\"products\": [{\"id\": string, \"contentType\": string, \"reason\": string, \"talkingPoint\": string}]}]}.",
		"strategy must be one of: " + joinValues(domain.AllOfferStrategies) + ".",
		"Return an empty recommendations list if no strategy fits.",
	}, "\n")
}

// promptStep drops bookkeeping fields the model does not need.
type promptStep struct {
	StepType domain.StepType      `json:"stepType"`
	Title    string               `json:"title"`
	Response *domain.ResponseType `json:"response,omitempty"`
}

func promptSteps(steps []domain.DynamicStep) []promptStep {
	out := make([]promptStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, promptStep{StepType: s.StepType, Title: s.Content.Title, Response: s.Response})
	}
	return out
}

type promptItem struct {
	ContentType domain.ContentType `json:"contentType"`
	ContentID   string             `json:"contentId"`
	Title       string             `json:"title"`
	Role        domain.OfferRole   `json:"role"`
	Description string             `json:"description,omitempty"`
}

func promptItems(items []domain.CatalogItem) []promptItem {
	out := make([]promptItem, 0, len(items))
	for _, it := range items {
		out = append(out, promptItem{
			ContentType: it.ContentType,
			ContentID:   it.ContentID,
			Title:       normalizePromptInput(it.Title),
			Role:        it.OfferRole.Normalize(),
			Description: normalizePromptInput(it.ShortDescription),
		})
	}
	return out
}

func tail[T any](in []T, n int) []T {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}

func joinValues[T ~string](vals []T) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, string(v))
	}
	return strings.Join(parts, ", ")
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// decodeStrict decodes exactly one JSON value into out, rejecting unknown
// fields and trailing data.
func decodeStrict(raw string, out any) error {
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return fmt.Errorf("%w: multiple JSON values", domain.ErrMalformedResponse)
		}
		return fmt.Errorf("%w: trailing data: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func parseStepReply(raw string, requested domain.StepType) (*domain.DynamicStep, error) {
	var reply stepReply
	if err := decodeStrict(raw, &reply); err != nil {
		return nil, fmt.Errorf("usecase: decode step: %w", err)
	}
	if reply.Step == nil {
		return nil, nil
	}
	g := reply.Step
	if strings.TrimSpace(g.Title) == "" && len(g.TalkingPoints) == 0 {
		return nil, fmt.Errorf("usecase: decode step: %w: step has neither title nor talking points", domain.ErrMalformedResponse)
	}
	if g.StepType != "" && g.StepType != requested {
		return nil, fmt.Errorf("usecase: decode step: %w: asked for %s, got %s", domain.ErrMalformedResponse, requested, g.StepType)
	}
	return &domain.DynamicStep{
		ID:       newUUID(),
		StepType: requested,
		Content: domain.StepContent{
			Title:           strings.TrimSpace(g.Title),
			Script:          strings.TrimSpace(g.Script),
			TalkingPoints:   nonNil(g.TalkingPoints),
			Questions:       g.Questions,
			SuggestedOffers: g.SuggestedOffers,
		},
	}, nil
}

// parseRecommendationsReply decodes ranked recommendations, keeping their
// order. Products the catalog does not carry are dropped when a catalog is
// given. A product without a content type takes the catalog's when its id is
// unambiguous.
func parseRecommendationsReply(raw string, catalog []domain.CatalogItem) ([]domain.AIRecommendation, error) {
	var reply recommendationsReply
	if err := decodeStrict(raw, &reply); err != nil {
		return nil, fmt.Errorf("usecase: decode recommendations: %w", err)
	}
	known := make(map[domain.ItemRef]bool, len(catalog))
	typesByID := make(map[string][]domain.ContentType, len(catalog))
	for _, c := range catalog {
		known[c.Ref()] = true
		typesByID[c.ContentID] = append(typesByID[c.ContentID], c.ContentType)
	}

	out := make([]domain.AIRecommendation, 0, len(reply.Recommendations))
	for i, rec := range reply.Recommendations {
		if !rec.Strategy.Valid() {
			return nil, fmt.Errorf("usecase: decode recommendations: %w: recommendation %d has no strategy", domain.ErrMalformedResponse, i)
		}
		products := make([]domain.RecommendedItem, 0, len(rec.Products))
		for _, p := range rec.Products {
			p.ID = strings.TrimSpace(p.ID)
			if p.ID == "" {
				continue
			}
			if len(catalog) > 0 {
				if p.ContentType == "" {
					if types := typesByID[p.ID]; len(types) == 1 {
						p.ContentType = types[0]
					}
				}
				if !known[p.Ref()] {
					continue
				}
			}
			products = append(products, p)
		}
		rec.Products = products
		out = append(out, rec)
	}
	return out, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
