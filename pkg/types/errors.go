package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories returned by Category. They are part of the public API and must stay stable.
const (
	CategoryValidation    = "validation"
	CategoryUnauthorized  = "unauthorized"
	CategoryForbidden     = "forbidden"
	CategoryNotFound      = "not_found"
	CategoryConflict      = "conflict"
	CategoryUnavailable   = "unavailable"
	CategoryMisconfigured = "misconfigured"
	CategoryInternal      = "internal"
)

// ValidationError represents an error that occurs during validation.
type ValidationError struct {
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with the given message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// WrapValidationError wraps an error with additional context.
func WrapValidationError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	message := fmt.Sprintf(format, args...)
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &ValidationError{
			Message: fmt.Sprintf("%s: %s", message, ve.Message),
		}
	}

	return &ValidationError{
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}

// AuthError is returned for bad signatures, malformed or expired tokens and unknown clients.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Reason
}

// NewAuthError creates a new AuthError.
func NewAuthError(format string, args ...interface{}) *AuthError {
	return &AuthError{Reason: fmt.Sprintf(format, args...)}
}

// IsAuthError checks if an error is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// ForbiddenError is returned when an authenticated caller lacks the right to act on a resource.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// NewForbiddenError creates a new ForbiddenError.
func NewForbiddenError(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

// IsForbiddenError checks if an error is a ForbiddenError.
func IsForbiddenError(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// NotFoundError reports that no matching resource exists.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConflictKind distinguishes the two sources of conflicts.
type ConflictKind string

const (
	// ConflictDuplicate is a create or rename that collides with an existing resource.
	ConflictDuplicate ConflictKind = "duplicate"

	// ConflictResolution is a tie between equally specific config entries.
	ConflictResolution ConflictKind = "resolution"
)

// ConflictError reports a duplicate resource or an ambiguous resolution.
type ConflictError struct {
	Kind     ConflictKind
	Message  string
	EntryIDs []string
}

func (e *ConflictError) Error() string {
	if len(e.EntryIDs) == 0 {
		return "conflict: " + e.Message
	}
	return fmt.Sprintf("conflict: %s (entries: %s)", e.Message, strings.Join(e.EntryIDs, ", "))
}

// NewDuplicateError creates a ConflictError for an already existing resource.
func NewDuplicateError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Kind: ConflictDuplicate, Message: fmt.Sprintf(format, args...)}
}

// NewResolutionConflict creates a ConflictError naming the tied entries.
func NewResolutionConflict(name string, weight int, entryIDs []string) *ConflictError {
	return &ConflictError{
		Kind:     ConflictResolution,
		Message:  fmt.Sprintf("config %q has more than one entry with specificity %d; remove duplicates or add tags", name, weight),
		EntryIDs: entryIDs,
	}
}

// IsConflictError checks if an error is a ConflictError.
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// StoreError wraps a failure of the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a StoreError for the given operation. Errors that are already
// typed by this package are returned untouched.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if Category(err) != CategoryInternal {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError checks if an error is a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// MisconfiguredError reports operator-fixable bad data, such as a tag type with no priority.
type MisconfiguredError struct {
	Message string
}

func (e *MisconfiguredError) Error() string {
	return "misconfigured: " + e.Message
}

// NewMisconfiguredError creates a new MisconfiguredError.
func NewMisconfiguredError(format string, args ...interface{}) *MisconfiguredError {
	return &MisconfiguredError{Message: fmt.Sprintf(format, args...)}
}

// IsMisconfiguredError checks if an error is a MisconfiguredError.
func IsMisconfiguredError(err error) bool {
	var me *MisconfiguredError
	return errors.As(err, &me)
}

// Category maps an error to its stable category string.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidationError(err):
		return CategoryValidation
	case IsAuthError(err):
		return CategoryUnauthorized
	case IsForbiddenError(err):
		return CategoryForbidden
	case IsNotFoundError(err):
		return CategoryNotFound
	case IsConflictError(err):
		return CategoryConflict
	case IsStoreError(err):
		return CategoryUnavailable
	case IsMisconfiguredError(err):
		return CategoryMisconfigured
	default:
		return CategoryInternal
	}
}
