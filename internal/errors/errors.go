// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"strings"
)

// Run-level sentinels. Per-recipient failures never surface as errors.
var (
	ErrAlreadyDispatching = errors.New("campaign is already being dispatched")
	ErrNoRecipients       = errors.New("campaign has no recipients to notify")
	ErrLockLost           = errors.New("dispatch lock lost to another run")
	ErrNotDispatching     = errors.New("campaign is not dispatching")
)

// CampaignNotFoundError is returned when a campaign id does not exist.
type CampaignNotFoundError struct {
	CampaignID string
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &CampaignNotFoundError{CampaignID: id}
}

// InvalidStateError reports an operation attempted from the wrong lifecycle status.
type InvalidStateError struct {
	CampaignID string
	Status     string
	Operation  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign %s in status %s", e.Operation, e.CampaignID, e.Status)
}

func NewInvalidState(id, status, op string) error {
	return &InvalidStateError{CampaignID: id, Status: status, Operation: op}
}

// ValidationError carries field-level input problems.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func NewValidation(problems ...string) error {
	return &ValidationError{Problems: problems}
}

func IsNotFound(err error) bool {
	var nf *CampaignNotFoundError
	return errors.As(err, &nf)
}

func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
