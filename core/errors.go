package core

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every "missing entity" error below via errors.Is.
var ErrNotFound = errors.New("not found")

var (
	ErrUserNotFound        = notFound("user")
	ErrQuestionNotFound    = notFound("question")
	ErrCategoryNotFound    = notFound("category")
	ErrChallengeNotFound   = notFound("challenge")
	ErrAchievementNotFound = notFound("achievement")
	ErrBeltNotFound        = notFound("belt")
)

var (
	// ErrAlreadyAnswered is returned when (user, question) already has an answer.
	// It is not a hard failure: the caller still receives the prior result.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrInvariant marks a programming error such as mastery evaluation against an empty category.
	ErrInvariant = errors.New("invariant violated")
	// ErrInsufficientXP is returned when a user cannot pay for a hint.
	ErrInsufficientXP = errors.New("not enough xp")
	// ErrChallengeCompleted is returned on a second completion of the same daily challenge.
	ErrChallengeCompleted = errors.New("challenge already completed")
	// ErrDisplayLimit is returned when equipping or displaying more items than allowed.
	ErrDisplayLimit = errors.New("display limit reached")
	// ErrNotUnlocked is returned when toggling an achievement or belt the user does not own.
	ErrNotUnlocked = errors.New("not unlocked")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

type notFoundError struct{ entity string }

func notFound(entity string) error { return &notFoundError{entity: entity} }

func (e *notFoundError) Error() string        { return e.entity + " not found" }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError describes malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
