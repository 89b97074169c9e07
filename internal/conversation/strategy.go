package conversation

import (
	"fmt"

	"sales-copilot/internal/domain"
)

// StepTypeFor maps a chosen strategy to the step type generated next. The
// switch covers every domain.OfferStrategy; the default branch only fires for
// values that failed boundary validation.
func StepTypeFor(s domain.OfferStrategy) (domain.StepType, error) {
	switch s {
	case domain.StrategyDeepenDiscovery:
		return domain.StepDiscovery, nil
	case domain.StrategyAmplifyPain:
		return domain.StepPainAmplification, nil
	case domain.StrategyValueStack, domain.StrategySocialProof:
		return domain.StepValuePresentation, nil
	case domain.StrategyPriceAnchor, domain.StrategyBonusStack, domain.StrategyOrderBump:
		return domain.StepOfferPresentation, nil
	case domain.StrategyPaymentPlan, domain.StrategyDownsell:
		return domain.StepNegotiation, nil
	case domain.StrategyRiskReversal, domain.StrategyStakeholderSetup:
		return domain.StepObjectionHandling, nil
	case domain.StrategyUrgency, domain.StrategyTrialClose:
		return domain.StepTrialClose, nil
	case domain.StrategyDirectClose:
		return domain.StepClose, nil
	case domain.StrategyScheduleFollowUp:
		return domain.StepFollowUp, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnmappedStrategy, s)
}
