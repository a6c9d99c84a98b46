package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
)

// TaskLister returns the open tasks of a chat by its Telegram id.
type TaskLister interface {
	ListOpen(ctx context.Context, chatID int64) ([]model.Task, error)
}

// Health answers liveness probes. ping may be nil.
type Health struct {
	ping func(ctx context.Context) error
}

func NewHealthHandler(ping func(ctx context.Context) error) *Health {
	return &Health{ping: ping}
}

func (h *Health) EnrichRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthAction)
}

func (h *Health) healthAction(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type Tasks struct {
	tasks TaskLister
	log   *logrus.Entry
}

func NewTasksHandler(tasks TaskLister, log *logrus.Entry) *Tasks {
	return &Tasks{tasks: tasks, log: log}
}

func (h *Tasks) EnrichRoutes(router *gin.Engine) {
	chatRoutes := router.Group("/chats")
	chatRoutes.GET("/:chatID/tasks", h.listOpenTasksAction)
}

type taskView struct {
	ID        uint      `json:"id"`
	MessageID int       `json:"message_id"`
	Text      string    `json:"text"`
	Note      string    `json:"note,omitempty"`
	State     string    `json:"state"`
	Creator   string    `json:"creator"`
	Candidate string    `json:"candidate,omitempty"`
	Executor  string    `json:"executor,omitempty"`
	Deadline  time.Time `json:"deadline"`
	CreatedAt time.Time `json:"created_at"`
}

func newTaskView(t model.Task) taskView {
	v := taskView{
		ID:        t.ID,
		MessageID: t.MessageID,
		Text:      t.Text,
		Note:      t.Note,
		State:     t.State().String(),
		Creator:   t.Creator.DisplayName(),
		Deadline:  t.Deadline,
		CreatedAt: t.CreatedAt,
	}
	if t.Candidate != nil {
		v.Candidate = t.Candidate.DisplayName()
	}
	if t.Executor != nil {
		v.Executor = t.Executor.DisplayName()
	}
	return v
}

func (h *Tasks) listOpenTasksAction(c *gin.Context) {
	const op = "server.Tasks.listOpenTasksAction"
	log := h.log.WithField("operation", op)

	chatID, ok := chatParam(c)
	if !ok {
		return
	}

	tasks, err := h.tasks.ListOpen(c.Request.Context(), chatID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	case err != nil:
		log.WithError(err).Error("failed to list tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t))
	}
	c.JSON(http.StatusOK, views)
}

// MemberLister returns the members of a chat by its Telegram id.
type MemberLister interface {
	Members(ctx context.Context, chatID int64) ([]model.User, error)
}

type Members struct {
	members MemberLister
	log     *logrus.Entry
}

func NewMembersHandler(members MemberLister, log *logrus.Entry) *Members {
	return &Members{members: members, log: log}
}

func (h *Members) EnrichRoutes(router *gin.Engine) {
	chatRoutes := router.Group("/chats")
	chatRoutes.GET("/:chatID/members", h.listMembersAction)
}

type memberView struct {
	TelegramID int64  `json:"telegram_id"`
	Name       string `json:"name"`
	Username   string `json:"username,omitempty"`
}

func (h *Members) listMembersAction(c *gin.Context) {
	const op = "server.Members.listMembersAction"
	log := h.log.WithField("operation", op)

	chatID, ok := chatParam(c)
	if !ok {
		return
	}

	members, err := h.members.Members(c.Request.Context(), chatID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	case err != nil:
		log.WithError(err).Error("failed to list members")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views := make([]memberView, 0, len(members))
	for _, m := range members {
		views = append(views, memberView{TelegramID: m.TelegramID, Name: m.DisplayName(), Username: m.Username})
	}
	c.JSON(http.StatusOK, views)
}

func chatParam(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("chatID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id must be an integer"})
		return 0, false
	}
	return chatID, true
}
