package services

import (
	"errors"

	"jt-wrs/backend/internal/repository"
)

var (
	// ErrOwnerNotFound means the account service has no owner by that name.
	ErrOwnerNotFound = errors.New("owner name not found")
	// ErrOwnerIDNotFound means the account service has no owner by that id.
	ErrOwnerIDNotFound = errors.New("owner id not found")
	// ErrServiceUnavailable means the account service could not be reached.
	ErrServiceUnavailable = errors.New("account management service temporarily not available")
	// ErrSourceUnavailable means the source-control server could not be reached.
	ErrSourceUnavailable = errors.New("source control server temporarily not available")
	// ErrStoreUnavailable means the key-value store failed.
	ErrStoreUnavailable = repository.ErrStoreUnavailable

	ErrDuplicateRegistration     = errors.New("workflow version already registered")
	ErrVersionTagMismatch        = errors.New("workflow version does not match git tag")
	ErrInvalidEntry              = errors.New("invalid workflow entry")
	ErrDefinitionNotFound        = errors.New("workflow definition file not found")
	ErrInvalidWorkflowDefinition = errors.New("invalid workflow definition")
	ErrUnsupportedWorkflowType   = errors.New("unsupported workflow type")
	ErrRegistrationConflict      = errors.New("registration kept losing concurrent updates")
	ErrNotImplemented            = errors.New("not implemented")

	// ErrArtifactNotFound is the empty result of artifact and workflow
	// reads. Read paths return it only where a value is required, such as
	// execution planning.
	ErrArtifactNotFound = errors.New("workflow or version not found")
)

// failureReason is the metric label of a failed registration.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrOwnerNotFound):
		return "owner_not_found"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, ErrDuplicateRegistration):
		return "duplicate"
	case errors.Is(err, ErrVersionTagMismatch):
		return "tag_mismatch"
	case errors.Is(err, ErrInvalidEntry):
		return "invalid_entry"
	case errors.Is(err, ErrDefinitionNotFound):
		return "definition_not_found"
	case errors.Is(err, ErrInvalidWorkflowDefinition):
		return "invalid_definition"
	case errors.Is(err, ErrUnsupportedWorkflowType):
		return "unsupported_type"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	default:
		return "other"
	}
}
