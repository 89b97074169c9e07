package domain

import "time"

// Session is the persisted sales session the engine reads and patches.
type Session struct {
	ID              string          `json:"id" dynamodbav:"sessionId"`
	FunnelStage     FunnelStage     `json:"funnelStage,omitempty" dynamodbav:"funnelStage,omitempty"`
	Outcome         Outcome         `json:"outcome,omitempty" dynamodbav:"outcome,omitempty"`
	Notes           string          `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	OffersPresented []OfferStrategy `json:"offersPresented,omitempty" dynamodbav:"offersPresented,omitempty"`
	Selection       []SelectedItem  `json:"selection,omitempty" dynamodbav:"selection,omitempty"`
	ClientContext   ClientContext   `json:"clientContext" dynamodbav:"clientContext"`
	UpdatedAt       time.Time       `json:"updatedAt" dynamodbav:"updatedAt"`
}

// SessionPatch is a partial update; nil fields are left untouched.
type SessionPatch struct {
	FunnelStage     *FunnelStage    `json:"funnelStage,omitempty"`
	Outcome         *Outcome        `json:"outcome,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	OffersPresented []OfferStrategy `json:"offersPresented,omitempty"`
	Selection       *[]SelectedItem `json:"selection,omitempty"`
	ClientContext   *ClientContext  `json:"clientContext,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.FunnelStage == nil && p.Outcome == nil && p.Notes == nil &&
		p.OffersPresented == nil && p.Selection == nil && p.ClientContext == nil
}
