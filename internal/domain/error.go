package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrRateLimited     = errors.New("too many requests")

	// Enrollment and entitlement
	ErrAlreadyEnrolled      = errors.New("already enrolled")
	ErrAlreadyActive        = errors.New("already has active access to this course")
	ErrPaidCourse           = errors.New("course is not free")
	ErrEnrollmentInProgress = errors.New("another enrollment for this course is in progress")
	ErrInvalidTransition    = errors.New("invalid subscription status transition")

	// Payment and gateway
	ErrInvalidSignature = errors.New("invalid signature")
	ErrPaymentGateway   = errors.New("payment gateway error")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrPersistence      = errors.New("failed to persist record")

	// Storage errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)

// GatewayError carries the gateway's own description of a failed call.
// It unwraps to ErrPaymentGateway.
type GatewayError struct {
	Op          string
	Description string
	Err         error
}

func (e *GatewayError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("gateway %s: %s", e.Op, e.Description)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return "gateway " + e.Op + " failed"
}

func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPaymentGateway, e.Err}
	}
	return []error{ErrPaymentGateway}
}

// NewGatewayError wraps err returned by the gateway during op.
func NewGatewayError(op string, err error) *GatewayError {
	ge := &GatewayError{Op: op, Err: err}
	var inner *GatewayError
	if errors.As(err, &inner) {
		ge.Description = inner.Description
	} else if err != nil {
		ge.Description = err.Error()
	}
	return ge
}
