package app

import (
	"errors"
	"fmt"
	"net/http"

	"parliament/internal/guard"
	"parliament/internal/ledger"
	"parliament/internal/motion"
	"parliament/internal/oracle"
	"parliament/internal/tally"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates domain sentinels into the HTTP error shape.
func mapError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	switch {
	case errors.Is(err, motion.ErrNotFound):
		return domainError(http.StatusNotFound, "MOTION_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, motion.ErrDuplicate):
		return domainError(http.StatusConflict, "MOTION_EXISTS", err.Error(), nil)
	case errors.Is(err, motion.ErrInvalidTransition):
		return domainError(http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, motion.ErrConcurrentUpdate):
		return domainError(http.StatusConflict, "CONCURRENT_UPDATE", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidBallot):
		return domainError(http.StatusBadRequest, "INVALID_BALLOT", err.Error(), nil)
	case errors.Is(err, ledger.ErrWeightOutOfRange):
		return domainError(http.StatusBadRequest, "WEIGHT_OUT_OF_RANGE", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidStance):
		return domainError(http.StatusBadRequest, "INVALID_STANCE", err.Error(), nil)
	case errors.Is(err, tally.ErrThresholdOutOfRange):
		return domainError(http.StatusBadRequest, "INVALID_THRESHOLD", err.Error(), nil)
	case errors.Is(err, oracle.ErrNotVoting):
		return domainError(http.StatusConflict, "NOT_IN_VOTING", err.Error(), nil)
	case errors.Is(err, oracle.ErrEnactment):
		return domainError(http.StatusBadGateway, "ENACTMENT_FAILED", err.Error(), nil)
	case errors.Is(err, guard.ErrLockHeld):
		return domainError(http.StatusConflict, "DECISION_IN_PROGRESS", err.Error(), nil)
	}
	return domainError(http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}
