package service

import "github.com/Barahlush/housekeeper-tg-bot/internal/model"

// Action names a button-driven transition.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionComplete Action = "complete"
	ActionRemove   Action = "remove"
)

// Policy decides whether a chat member may apply an action to a task.
// It runs inside the transition's transaction after membership is checked.
type Policy func(action Action, actor model.User, task model.Task) error

// AllowMembers lets any chat member press any button.
func AllowMembers(Action, model.User, model.Task) error {
	return nil
}

// CandidateOnly restricts accepting and declining an offer to the offered
// candidate. Completion and removal stay open to every member.
func CandidateOnly(action Action, actor model.User, task model.Task) error {
	if action != ActionAccept && action != ActionDecline {
		return nil
	}
	if task.CandidateID != nil && *task.CandidateID != actor.ID {
		return ErrForbidden
	}
	return nil
}
