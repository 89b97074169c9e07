package domain

import "fmt"

// StepType is one beat of the live sales script.
type StepType string

const (
	StepOpening           StepType = "opening"
	StepDiscovery         StepType = "discovery"
	StepPainAmplification StepType = "pain_amplification"
	StepValuePresentation StepType = "value_presentation"
	StepObjectionHandling StepType = "objection_handling"
	StepOfferPresentation StepType = "offer_presentation"
	StepNegotiation       StepType = "negotiation"
	StepTrialClose        StepType = "trial_close"
	StepClose             StepType = "close"
	StepFollowUp          StepType = "follow_up"
)

// AllStepTypes lists every StepType in script order.
var AllStepTypes = []StepType{
	StepOpening,
	StepDiscovery,
	StepPainAmplification,
	StepValuePresentation,
	StepObjectionHandling,
	StepOfferPresentation,
	StepNegotiation,
	StepTrialClose,
	StepClose,
	StepFollowUp,
}

func (t StepType) Valid() bool { return contains(AllStepTypes, t) }

func (t *StepType) UnmarshalText(b []byte) error {
	v := StepType(b)
	if !v.Valid() {
		return fmt.Errorf("domain: unknown step type %q", string(b))
	}
	*t = v
	return nil
}

// StepStatus tracks a DynamicStep through pending, active and completed.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
)

var allStepStatuses = []StepStatus{StepPending, StepActive, StepCompleted}

func (s StepStatus) Valid() bool { return contains(allStepStatuses, s) }

// UnmarshalText accepts an empty status because the reasoning service leaves
// it unset; the engine assigns it.
func (s *StepStatus) UnmarshalText(b []byte) error {
	v := StepStatus(b)
	if v != "" && !v.Valid() {
		return fmt.Errorf("domain: unknown step status %q", string(b))
	}
	*s = v
	return nil
}

// ResponseType classifies the prospect's reaction to a step.
type ResponseType string

const (
	ResponsePositive              ResponseType = "positive"
	ResponseReadyToBuy            ResponseType = "ready_to_buy"
	ResponseNeutral               ResponseType = "neutral"
	ResponseQuestion              ResponseType = "question"
	ResponseObjectionPrice        ResponseType = "objection_price"
	ResponseObjectionTiming       ResponseType = "objection_timing"
	ResponseObjectionTrust        ResponseType = "objection_trust"
	ResponseObjectionStakeholder  ResponseType = "objection_stakeholder"
	ResponseObjectionPriorAttempt ResponseType = "objection_prior_attempt"
	ResponseObjectionNeed         ResponseType = "objection_need"
)

var AllResponseTypes = []ResponseType{
	ResponsePositive,
	ResponseReadyToBuy,
	ResponseNeutral,
	ResponseQuestion,
	ResponseObjectionPrice,
	ResponseObjectionTiming,
	ResponseObjectionTrust,
	ResponseObjectionStakeholder,
	ResponseObjectionPriorAttempt,
	ResponseObjectionNeed,
}

func (r ResponseType) Valid() bool { return contains(AllResponseTypes, r) }

// IsObjection reports whether r is one of the objection categories.
func (r ResponseType) IsObjection() bool {
	switch r {
	case ResponseObjectionPrice, ResponseObjectionTiming, ResponseObjectionTrust,
		ResponseObjectionStakeholder, ResponseObjectionPriorAttempt, ResponseObjectionNeed:
		return true
	}
	return false
}

// IsPositive reports whether r counts as a buying signal.
func (r ResponseType) IsPositive() bool {
	return r == ResponsePositive || r == ResponseReadyToBuy
}

func (r *ResponseType) UnmarshalText(b []byte) error {
	v := ResponseType(b)
	if !v.Valid() {
		return fmt.Errorf("domain: unknown response type %q", string(b))
	}
	*r = v
	return nil
}

// OfferStrategy is a named next move offered after a prospect reaction.
type OfferStrategy string

const (
	StrategyDeepenDiscovery  OfferStrategy = "deepen_discovery"
	StrategyAmplifyPain      OfferStrategy = "amplify_pain"
	StrategyValueStack       OfferStrategy = "value_stack"
	StrategyPriceAnchor      OfferStrategy = "price_anchor"
	StrategyPaymentPlan      OfferStrategy = "payment_plan"
	StrategyDownsell         OfferStrategy = "downsell"
	StrategyBonusStack       OfferStrategy = "bonus_stack"
	StrategyOrderBump        OfferStrategy = "order_bump"
	StrategyRiskReversal     OfferStrategy = "risk_reversal"
	StrategySocialProof      OfferStrategy = "social_proof"
	StrategyUrgency          OfferStrategy = "urgency"
	StrategyStakeholderSetup OfferStrategy = "stakeholder_setup"
	StrategyTrialClose       OfferStrategy = "trial_close"
	StrategyDirectClose      OfferStrategy = "direct_close"
	StrategyScheduleFollowUp OfferStrategy = "schedule_follow_up"
)

var AllOfferStrategies = []OfferStrategy{
	StrategyDeepenDiscovery,
	StrategyAmplifyPain,
	StrategyValueStack,
	StrategyPriceAnchor,
	StrategyPaymentPlan,
	StrategyDownsell,
	StrategyBonusStack,
	StrategyOrderBump,
	StrategyRiskReversal,
	StrategySocialProof,
	StrategyUrgency,
	StrategyStakeholderSetup,
	StrategyTrialClose,
	StrategyDirectClose,
	StrategyScheduleFollowUp,
}

func (s OfferStrategy) Valid() bool { return contains(AllOfferStrategies, s) }

func (s *OfferStrategy) UnmarshalText(b []byte) error {
	v := OfferStrategy(b)
	if !v.Valid() {
		return fmt.Errorf("domain: unknown offer strategy %q", string(b))
	}
	*s = v
	return nil
}

// OfferRole is the position a catalog item plays in an offer stack.
type OfferRole string

const (
	RoleCoreOffer    OfferRole = "core_offer"
	RoleBonus        OfferRole = "bonus"
	RoleOrderBump    OfferRole = "order_bump"
	RoleUpsell       OfferRole = "upsell"
	RoleDownsell     OfferRole = "downsell"
	RoleUnclassified OfferRole = "unclassified"
)

// DeclaredRoles are the roles a catalog item may be assigned, in display order.
var DeclaredRoles = []OfferRole{RoleCoreOffer, RoleBonus, RoleOrderBump, RoleUpsell, RoleDownsell}

// Normalize maps empty and unknown roles to RoleUnclassified.
func (r OfferRole) Normalize() OfferRole {
	if contains(DeclaredRoles, r) {
		return r
	}
	return RoleUnclassified
}

// ContentType discriminates catalog items. The catalog owns the set, so
// unknown values pass through untouched.
type ContentType string

const (
	ContentProduct     ContentType = "product"
	ContentService     ContentType = "service"
	ContentPublication ContentType = "publication"
	ContentLeadMagnet  ContentType = "lead_magnet"
)

// FunnelStage is the prospect's position in the sales pipeline.
type FunnelStage string

const (
	FunnelProspect    FunnelStage = "prospect"
	FunnelQualified   FunnelStage = "qualified"
	FunnelDiscovery   FunnelStage = "discovery"
	FunnelProposal    FunnelStage = "proposal"
	FunnelNegotiating FunnelStage = "negotiating"
	FunnelWon         FunnelStage = "won"
	FunnelLost        FunnelStage = "lost"
)

var allFunnelStages = []FunnelStage{
	FunnelProspect, FunnelQualified, FunnelDiscovery, FunnelProposal,
	FunnelNegotiating, FunnelWon, FunnelLost,
}

func (f FunnelStage) Valid() bool { return contains(allFunnelStages, f) }

func (f *FunnelStage) UnmarshalText(b []byte) error {
	v := FunnelStage(b)
	if !v.Valid() {
		return fmt.Errorf("domain: unknown funnel stage %q", string(b))
	}
	*f = v
	return nil
}

// Outcome records how a call ended.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeWon      Outcome = "won"
	OutcomeLost     Outcome = "lost"
	OutcomeFollowUp Outcome = "follow_up"
	OutcomeNoShow   Outcome = "no_show"
)

var allOutcomes = []Outcome{OutcomePending, OutcomeWon, OutcomeLost, OutcomeFollowUp, OutcomeNoShow}

func (o Outcome) Valid() bool { return contains(allOutcomes, o) }

func (o *Outcome) UnmarshalText(b []byte) error {
	v := Outcome(b)
	if !v.Valid() {
		return fmt.Errorf("domain: unknown outcome %q", string(b))
	}
	*o = v
	return nil
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
