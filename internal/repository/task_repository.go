package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
)

// TaskRepository handles CRUD for tasks. Every state-changing method is a
// guarded write: it only touches a row that is still in the expected state
// and returns ErrStaleState otherwise.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTask(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetTaskByMessage(ctx context.Context, chatID uint, messageID int) (*model.Task, error) {
	var task model.Task
	err := r.withPeople(ctx).
		Where("chat_id = ? AND message_id = ?", chatID, messageID).
		First(&task).Error
	if err != nil {
		return nil, fmt.Errorf("find task by message %d: %w", messageID, notFound(err))
	}
	return &task, nil
}

func (r *TaskRepository) ListOpenTasks(ctx context.Context, chatID uint) ([]model.Task, error) {
	var tasks []model.Task
	err := r.withPeople(ctx).
		Where("chat_id = ? AND is_finished = ?", chatID, false).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	return tasks, nil
}

// CountTasksByExecutor counts every task in the chat that has the user as
// executor, open or finished.
func (r *TaskRepository) CountTasksByExecutor(ctx context.Context, chatID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("chat_id = ? AND executor_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// OfferTask moves an unassigned task to the offered state.
func (r *TaskRepository) OfferTask(ctx context.Context, taskID, candidateID uint) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND is_finished = ? AND executor_id IS NULL AND candidate_id IS NULL", taskID, false).
		Update("candidate_id", candidateID)
	return guarded("offer task", res)
}

// ReofferTask hands an open offer from one candidate to another.
func (r *TaskRepository) ReofferTask(ctx context.Context, taskID, fromID, toID uint) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND is_finished = ? AND executor_id IS NULL AND candidate_id = ?", taskID, false, fromID).
		Update("candidate_id", toID)
	return guarded("reoffer task", res)
}

// SetExecutor fixes the offered candidate as executor.
func (r *TaskRepository) SetExecutor(ctx context.Context, taskID, candidateID uint) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND is_finished = ? AND executor_id IS NULL AND candidate_id = ?", taskID, false, candidateID).
		Update("executor_id", candidateID)
	return guarded("set executor", res)
}

// SetFinished closes an open task. prevExecutorID is the executor the caller
// observed; the write is rejected if it changed in the meantime.
func (r *TaskRepository) SetFinished(ctx context.Context, taskID uint, prevExecutorID *uint, executorID uint, finishedAt time.Time) error {
	q := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND is_finished = ?", taskID, false)
	if prevExecutorID == nil {
		q = q.Where("executor_id IS NULL")
	} else {
		q = q.Where("executor_id = ?", *prevExecutorID)
	}
	res := q.Updates(map[string]interface{}{
		"is_finished": true,
		"executor_id": executorID,
		"finished_at": finishedAt,
	})
	return guarded("finish task", res)
}

// DeleteTask removes an open task. Finished tasks are kept.
func (r *TaskRepository) DeleteTask(ctx context.Context, taskID uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND is_finished = ?", taskID, false).
		Delete(&model.Task{})
	return guarded("delete task", res)
}

func (r *TaskRepository) withPeople(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Chat").
		Preload("Creator").
		Preload("Executor").
		Preload("Candidate")
}

func guarded(op string, res *gorm.DB) error {
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrStaleState)
	}
	return nil
}
