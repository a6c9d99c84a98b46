package service

import (
	"errors"

	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
)

var (
	// ErrInvalidTransition means the event does not apply to the task's
	// current state, usually because another event won a race.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrNoCandidates is returned when there is nobody to offer a task to.
	ErrNoCandidates = errors.New("no candidates available")
	// ErrNotMember is returned when the acting user is not registered in the chat.
	ErrNotMember = errors.New("user is not a chat member")
	// ErrForbidden is returned when the policy rejects the actor.
	ErrForbidden = errors.New("action not allowed")
	ErrEmptyText = errors.New("task text is empty")
)

// IsOutcome reports whether err is an expected business outcome rather than
// a storage failure. Outcomes are never retried.
func IsOutcome(err error) bool {
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrStaleState) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNoCandidates) ||
		errors.Is(err, ErrNotMember) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrEmptyText)
}
