package usecase

import (
	"errors"
	"fmt"

	"sales-copilot/internal/bundle"
	"sales-copilot/internal/conversation"
	"sales-copilot/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorInvalidState ErrorCode = "INVALID_STATE"
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorConflict     ErrorCode = "CONFLICT"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// transitionError classifies a rejected state transition.
func transitionError(err error) *Error {
	switch {
	case errors.Is(err, conversation.ErrCallAlreadyActive):
		return newError(ErrorInvalidState, "call_already_active", err)
	case errors.Is(err, conversation.ErrCallNotActive):
		return newError(ErrorInvalidState, "call_not_active", err)
	case errors.Is(err, conversation.ErrNoCurrentStep):
		return newError(ErrorInvalidState, "no_current_step", err)
	case errors.Is(err, conversation.ErrStepNotFound):
		return newError(ErrorNotFound, "step_not_found", err)
	case errors.Is(err, conversation.ErrUnmappedStrategy):
		return newError(ErrorInvalidInput, "unmapped_strategy", err)
	case errors.Is(err, conversation.ErrInvalidResponseType):
		return newError(ErrorInvalidInput, "invalid_response_type", err)
	case errors.Is(err, conversation.ErrInvalidStep):
		return newError(ErrorInvalidInput, "invalid_step", err)
	default:
		return newError(ErrorInternal, "transition_error", err)
	}
}

// bundleError classifies failures from the bundle resolver.
func bundleError(err error) *Error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newError(ErrorNotFound, "bundle_not_found", err)
	case errors.Is(err, bundle.ErrInvalid):
		return newError(ErrorInvalidInput, "invalid_bundle", err)
	default:
		return newError(ErrorUpstream, "catalog_error", err)
	}
}
