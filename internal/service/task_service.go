package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
)

// TaskRef addresses a task through the chat message that displays it.
type TaskRef struct {
	ChatID    int64
	MessageID int
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	ChatID    int64
	CreatorID int64
	Text      string
	Note      string
	// MessageID is the already-sent message that will render the task.
	MessageID int
}

// Transition is the committed result of a lifecycle operation.
type Transition struct {
	Task  model.Task
	Actor model.User
	// NoAlternative is set when a decline found nobody else to offer the
	// task to and the offer stayed with the current candidate.
	NoAlternative bool
}

// TaskService owns the task lifecycle. Each operation reads the task, checks
// that the transition is legal and writes the new state inside one
// transaction.
type TaskService struct {
	repo     repository.Repository
	selector *Selector
	policy   Policy
	now      func() time.Time
	log      *logrus.Entry
}

func NewTaskService(repo repository.Repository, selector *Selector, policy Policy, log *logrus.Entry) *TaskService {
	if policy == nil {
		policy = AllowMembers
	}
	return &TaskService{
		repo:     repo,
		selector: selector,
		policy:   policy,
		now:      time.Now,
		log:      log.WithField("component", "tasks"),
	}
}

// Create stores a new unassigned task bound to in.MessageID.
func (s *TaskService) Create(ctx context.Context, in TaskInput) (*model.Task, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	var created *model.Task
	err := s.inTx(ctx, "create", func(tx repository.Repository) error {
		chat, err := tx.FindChat(ctx, in.ChatID)
		if err != nil {
			return err
		}
		creator, err := s.member(ctx, tx, chat.ID, in.CreatorID)
		if err != nil {
			return err
		}

		task := model.Task{
			ChatID:    chat.ID,
			CreatorID: creator.ID,
			Text:      text,
			Note:      strings.TrimSpace(in.Note),
			Deadline:  s.now().Add(model.DefaultDeadline),
			MessageID: in.MessageID,
		}
		if err := tx.CreateTask(ctx, &task); err != nil {
			return err
		}
		created, err = tx.GetTaskByMessage(ctx, chat.ID, in.MessageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"task_id": created.ID, "chat_id": in.ChatID, "creator": in.CreatorID}).Info("task created")
	return created, nil
}

// Offer draws a candidate among all chat members, creator included, and
// offers them the task. ErrNoCandidates leaves the task unassigned.
func (s *TaskService) Offer(ctx context.Context, ref TaskRef) (*Transition, error) {
	var tr Transition
	err := s.inTx(ctx, "offer", func(tx repository.Repository) error {
		task, err := s.task(ctx, tx, ref)
		if err != nil {
			return err
		}
		if task.State() != model.StateUnassigned {
			return fmt.Errorf("offer from %s: %w", task.State(), ErrInvalidTransition)
		}

		members, err := tx.GetChatMembers(ctx, task.ChatID)
		if err != nil {
			return err
		}
		candidate, err := s.selector.Select(ctx, tx, task.ChatID, members)
		if err != nil {
			return err
		}
		if err := tx.OfferTask(ctx, task.ID, candidate.ID); err != nil {
			return err
		}
		return s.reload(ctx, tx, task, &tr)
	})
	if err != nil {
		return nil, translate(err)
	}

	s.log.WithFields(logrus.Fields{"task_id": tr.Task.ID, "candidate": tr.Task.CandidateID}).Info("task offered")
	return &tr, nil
}

// Accept fixes the offered candidate as executor.
func (s *TaskService) Accept(ctx context.Context, ref TaskRef, actorID int64) (*Transition, error) {
	var tr Transition
	err := s.inTx(ctx, "accept", func(tx repository.Repository) error {
		task, actor, err := s.resolve(ctx, tx, ref, actorID, ActionAccept)
		if err != nil {
			return err
		}
		if task.State() != model.StateOffered {
			return fmt.Errorf("accept from %s: %w", task.State(), ErrInvalidTransition)
		}
		if err := tx.SetExecutor(ctx, task.ID, *task.CandidateID); err != nil {
			return err
		}
		tr.Actor = *actor
		return s.reload(ctx, tx, task, &tr)
	})
	if err != nil {
		return nil, translate(err)
	}

	s.log.WithFields(logrus.Fields{"task_id": tr.Task.ID, "actor": actorID}).Info("offer accepted")
	return &tr, nil
}

// Decline passes the offer to another member, excluding the current
// candidate and the declining user. With nobody left the offer stays where
// it is and NoAlternative is reported.
func (s *TaskService) Decline(ctx context.Context, ref TaskRef, actorID int64) (*Transition, error) {
	var tr Transition
	err := s.inTx(ctx, "decline", func(tx repository.Repository) error {
		tr = Transition{}
		task, actor, err := s.resolve(ctx, tx, ref, actorID, ActionDecline)
		if err != nil {
			return err
		}
		if task.State() != model.StateOffered {
			return fmt.Errorf("decline from %s: %w", task.State(), ErrInvalidTransition)
		}
		tr.Actor = *actor

		members, err := tx.GetChatMembers(ctx, task.ChatID)
		if err != nil {
			return err
		}
		pool := make([]model.User, 0, len(members))
		for _, m := range members {
			if m.ID == *task.CandidateID || m.ID == actor.ID {
				continue
			}
			pool = append(pool, m)
		}
		if len(pool) == 0 {
			tr.Task = *task
			tr.NoAlternative = true
			return nil
		}

		next, err := s.selector.Select(ctx, tx, task.ChatID, pool)
		if err != nil {
			return err
		}
		if err := tx.ReofferTask(ctx, task.ID, *task.CandidateID, next.ID); err != nil {
			return err
		}
		return s.reload(ctx, tx, task, &tr)
	})
	if err != nil {
		return nil, translate(err)
	}

	s.log.WithFields(logrus.Fields{
		"task_id":        tr.Task.ID,
		"actor":          actorID,
		"candidate":      tr.Task.CandidateID,
		"no_alternative": tr.NoAlternative,
	}).Info("offer declined")
	return &tr, nil
}

// Complete finishes an open task. The actor becomes executor unless one was
// already fixed by an accepted offer.
func (s *TaskService) Complete(ctx context.Context, ref TaskRef, actorID int64) (*Transition, error) {
	var tr Transition
	err := s.inTx(ctx, "complete", func(tx repository.Repository) error {
		task, actor, err := s.resolve(ctx, tx, ref, actorID, ActionComplete)
		if err != nil {
			return err
		}
		if !task.IsOpen() {
			return fmt.Errorf("complete from %s: %w", task.State(), ErrInvalidTransition)
		}

		executorID := actor.ID
		if task.ExecutorID != nil {
			executorID = *task.ExecutorID
		}
		if err := tx.SetFinished(ctx, task.ID, task.ExecutorID, executorID, s.now()); err != nil {
			return err
		}
		tr.Actor = *actor
		return s.reload(ctx, tx, task, &tr)
	})
	if err != nil {
		return nil, translate(err)
	}

	s.log.WithFields(logrus.Fields{"task_id": tr.Task.ID, "actor": actorID, "executor": tr.Task.ExecutorID}).Info("task completed")
	return &tr, nil
}

// Remove deletes an open task. The returned transition carries the task as
// it was before removal.
func (s *TaskService) Remove(ctx context.Context, ref TaskRef, actorID int64) (*Transition, error) {
	var tr Transition
	err := s.inTx(ctx, "remove", func(tx repository.Repository) error {
		task, actor, err := s.resolve(ctx, tx, ref, actorID, ActionRemove)
		if err != nil {
			return err
		}
		if !task.IsOpen() {
			return fmt.Errorf("remove from %s: %w", task.State(), ErrInvalidTransition)
		}
		if err := tx.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
		tr = Transition{Task: *task, Actor: *actor}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.log.WithFields(logrus.Fields{"task_id": tr.Task.ID, "actor": actorID}).Info("task removed")
	return &tr, nil
}

// Get returns the task displayed by the referenced message.
func (s *TaskService) Get(ctx context.Context, ref TaskRef) (*model.Task, error) {
	return s.task(ctx, s.repo, ref)
}

// ListOpen returns the chat's unfinished tasks in creation order.
func (s *TaskService) ListOpen(ctx context.Context, chatID int64) ([]model.Task, error) {
	chat, err := s.repo.FindChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOpenTasks(ctx, chat.ID)
}

func (s *TaskService) task(ctx context.Context, tx repository.Repository, ref TaskRef) (*model.Task, error) {
	chat, err := tx.FindChat(ctx, ref.ChatID)
	if err != nil {
		return nil, err
	}
	return tx.GetTaskByMessage(ctx, chat.ID, ref.MessageID)
}

func (s *TaskService) resolve(ctx context.Context, tx repository.Repository, ref TaskRef, actorID int64, action Action) (*model.Task, *model.User, error) {
	task, err := s.task(ctx, tx, ref)
	if err != nil {
		return nil, nil, err
	}
	actor, err := s.member(ctx, tx, task.ChatID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.policy(action, *actor, *task); err != nil {
		return nil, nil, err
	}
	return task, actor, nil
}

func (s *TaskService) member(ctx context.Context, tx repository.Repository, chatID uint, telegramID int64) (*model.User, error) {
	user, err := tx.FindByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	ok, err := tx.IsMember(ctx, chatID, user.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	return user, nil
}

func (s *TaskService) reload(ctx context.Context, tx repository.Repository, task *model.Task, tr *Transition) error {
	fresh, err := tx.GetTaskByMessage(ctx, task.ChatID, task.MessageID)
	if err != nil {
		return err
	}
	tr.Task = *fresh
	return nil
}

// inTx runs fn in a transaction and retries once when the failure is not a
// business outcome.
func (s *TaskService) inTx(ctx context.Context, op string, fn func(tx repository.Repository) error) error {
	err := s.repo.WithTransaction(ctx, fn)
	if err == nil || IsOutcome(err) || ctx.Err() != nil {
		return err
	}
	s.log.WithError(err).WithField("operation", op).Warn("transaction failed, retrying")
	return s.repo.WithTransaction(ctx, fn)
}

// translate reports a lost guarded write as an invalid transition.
func translate(err error) error {
	if errors.Is(err, repository.ErrStaleState) {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return err
}
