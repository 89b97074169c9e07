// Package reasoning talks to the remote step generation and strategy
// recommendation endpoints.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"sales-copilot/internal/domain"
	"sales-copilot/internal/integrations/restclient"
)

// Requester is the JSON transport. *restclient.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, method, path string, in, out any) error
}

// Client satisfies usecase.StepGenerator and usecase.StrategyRecommender.
type Client struct {
	rest Requester
}

func New(rest Requester) (*Client, error) {
	if rest == nil {
		return nil, errors.New("reasoning: requester must not be nil")
	}
	return &Client{rest: rest}, nil
}

type generateStepResponse struct {
	Step *domain.DynamicStep `json:"step"`
}

// GenerateStep posts req to generate-step. A null step means the service had
// nothing to offer and is returned as (nil, nil).
func (c *Client) GenerateStep(ctx context.Context, req domain.StepRequest) (*domain.DynamicStep, error) {
	if !req.StepType.Valid() {
		return nil, fmt.Errorf("reasoning: generate step: unknown step type %q", req.StepType)
	}
	var out generateStepResponse
	if err := c.rest.Do(ctx, http.MethodPost, "/generate-step", req, &out); err != nil {
		return nil, wrap("generate step", err)
	}
	if out.Step == nil {
		return nil, nil
	}
	step := *out.Step
	switch step.StepType {
	case "":
		step.StepType = req.StepType
	case req.StepType:
	default:
		return nil, fmt.Errorf("reasoning: generate step: %w: asked for %s, got %s", domain.ErrMalformedResponse, req.StepType, step.StepType)
	}
	if step.Content.TalkingPoints == nil {
		step.Content.TalkingPoints = []string{}
	}
	return &step, nil
}

type recommendationsResponse struct {
	Recommendations []domain.AIRecommendation `json:"recommendations"`
}

// Recommend posts req to strategy-recommendations. Order is the service's
// ranking and is preserved.
func (c *Client) Recommend(ctx context.Context, req domain.RecommendationRequest) ([]domain.AIRecommendation, error) {
	var out recommendationsResponse
	if err := c.rest.Do(ctx, http.MethodPost, "/strategy-recommendations", req, &out); err != nil {
		return nil, wrap("strategy recommendations", err)
	}
	recs := make([]domain.AIRecommendation, 0, len(out.Recommendations))
	for i, rec := range out.Recommendations {
		if !rec.Strategy.Valid() {
			return nil, fmt.Errorf("reasoning: recommendation %d: %w: missing strategy", i, domain.ErrMalformedResponse)
		}
		if rec.Products == nil {
			rec.Products = []domain.RecommendedItem{}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, restclient.ErrDecode) {
		return fmt.Errorf("reasoning: %s: %w: %w", op, domain.ErrMalformedResponse, err)
	}
	return fmt.Errorf("reasoning: %s: %w", op, err)
}
