package domain

import "time"

// StepContent is the generated payload of a DynamicStep.
type StepContent struct {
	Title           string    `json:"title" dynamodbav:"title"`
	Script          string    `json:"script,omitempty" dynamodbav:"script,omitempty"`
	TalkingPoints   []string  `json:"talkingPoints" dynamodbav:"talkingPoints"`
	Questions       []string  `json:"questions,omitempty" dynamodbav:"questions,omitempty"`
	SuggestedOffers []ItemRef `json:"suggestedOffers,omitempty" dynamodbav:"suggestedOffers,omitempty"`
}

// DynamicStep is one generated beat of a live call.
type DynamicStep struct {
	ID          string        `json:"id" dynamodbav:"id"`
	StepType    StepType      `json:"stepType" dynamodbav:"stepType"`
	Status      StepStatus    `json:"status" dynamodbav:"status"`
	Content     StepContent   `json:"content" dynamodbav:"content"`
	CompletedAt *time.Time    `json:"completedAt" dynamodbav:"completedAt,omitempty"`
	Response    *ResponseType `json:"response" dynamodbav:"response,omitempty"`
}

// ConversationResponse is one recorded prospect reaction.
type ConversationResponse struct {
	ID                string             `json:"id" dynamodbav:"id"`
	StepID            string             `json:"stepId" dynamodbav:"stepId"`
	ResponseType      ResponseType       `json:"responseType" dynamodbav:"responseType"`
	Notes             *string            `json:"notes" dynamodbav:"notes,omitempty"`
	Timestamp         time.Time          `json:"timestamp" dynamodbav:"timestamp"`
	OfferPresented    *string            `json:"offerPresented" dynamodbav:"offerPresented,omitempty"`
	AIRecommendations []AIRecommendation `json:"aiRecommendations" dynamodbav:"aiRecommendations,omitempty"`
	StrategyChosen    *OfferStrategy     `json:"strategyChosen" dynamodbav:"strategyChosen,omitempty"`
}

// RecommendedItem is a catalog item a recommendation proposes to add.
type RecommendedItem struct {
	ID           string      `json:"id" dynamodbav:"id"`
	ContentType  ContentType `json:"contentType,omitempty" dynamodbav:"contentType,omitempty"`
	Reason       string      `json:"reason" dynamodbav:"reason"`
	TalkingPoint string      `json:"talkingPoint" dynamodbav:"talkingPoint"`
}

// Ref returns the catalog reference, defaulting the content type to product.
func (r RecommendedItem) Ref() ItemRef {
	ct := r.ContentType
	if ct == "" {
		ct = ContentProduct
	}
	return ItemRef{ContentType: ct, ContentID: r.ID}
}

// AIRecommendation is one ranked next move.
type AIRecommendation struct {
	Strategy  OfferStrategy     `json:"strategy" dynamodbav:"strategy"`
	Rationale string            `json:"rationale,omitempty" dynamodbav:"rationale,omitempty"`
	Products  []RecommendedItem `json:"products" dynamodbav:"products"`
}

// ClientContext is the diagnostic summary handed to the reasoning service.
type ClientContext struct {
	ClientName         string   `json:"clientName,omitempty" dynamodbav:"clientName,omitempty"`
	Company            string   `json:"company,omitempty" dynamodbav:"company,omitempty"`
	BusinessChallenges []string `json:"businessChallenges,omitempty" dynamodbav:"businessChallenges,omitempty"`
	BudgetSignals      []string `json:"budgetSignals,omitempty" dynamodbav:"budgetSignals,omitempty"`
	UrgencyScore       *int     `json:"urgencyScore,omitempty" dynamodbav:"urgencyScore,omitempty"`
	OpportunityScore   *int     `json:"opportunityScore,omitempty" dynamodbav:"opportunityScore,omitempty"`
}

// StepRequest is the payload sent to the step generation service.
type StepRequest struct {
	StepType              StepType               `json:"stepType"`
	PriorSteps            []DynamicStep          `json:"priorSteps"`
	LastResponse          *ConversationResponse  `json:"lastResponse"`
	ChosenStrategy        *OfferStrategy         `json:"chosenStrategy"`
	ClientContext         ClientContext          `json:"clientContext"`
	AvailableCatalogItems []CatalogItem          `json:"availableCatalogItems"`
	ConversationHistory   []ConversationResponse `json:"conversationHistory"`
}

// RecommendationRequest is the payload sent to the strategy recommendation service.
type RecommendationRequest struct {
	ClientContext         ClientContext          `json:"clientContext"`
	CurrentResponse       ConversationResponse   `json:"currentObjectionOrResponse"`
	ConversationHistory   []ConversationResponse `json:"conversationHistory"`
	ProductsPresented     []CatalogItem          `json:"productsPresented"`
	AvailableCatalogItems []CatalogItem          `json:"availableCatalogItems"`
}
