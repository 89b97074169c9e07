package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sales-copilot/internal/domain"
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// LLMReasoner generates steps and strategy recommendations by prompting a
// chat model directly. It satisfies StepGenerator and StrategyRecommender.
type LLMReasoner struct {
	llm   LLMClient
	model string
}

func NewLLMReasoner(llm LLMClient, model string) (*LLMReasoner, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	return &LLMReasoner{llm: llm, model: model}, nil
}

func (r *LLMReasoner) GenerateStep(ctx context.Context, req domain.StepRequest) (*domain.DynamicStep, error) {
	if !req.StepType.Valid() {
		return nil, fmt.Errorf("usecase: generate step: unknown step type %q", req.StepType)
	}
	msgs, err := buildStepMessages(req)
	if err != nil {
		return nil, err
	}
	raw, err := r.llm.Chat(ctx, r.model, msgs)
	if err != nil {
		return nil, err
	}
	return parseStepReply(raw, req.StepType)
}

func (r *LLMReasoner) Recommend(ctx context.Context, req domain.RecommendationRequest) ([]domain.AIRecommendation, error) {
	msgs, err := buildRecommendationMessages(req)
	if err != nil {
		return nil, err
	}
	raw, err := r.llm.Chat(ctx, r.model, msgs)
	if err != nil {
		return nil, err
	}
	return parseRecommendationsReply(raw, req.AvailableCatalogItems)
}
