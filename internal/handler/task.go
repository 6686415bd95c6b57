package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/apperr"
	"github.com/dukerupert/questlog/internal/auth"
	"github.com/dukerupert/questlog/internal/model"
	"github.com/dukerupert/questlog/internal/push"
	"github.com/dukerupert/questlog/internal/task"
	"github.com/dukerupert/questlog/internal/websocket"
)

// Publisher delivers realtime events. *websocket.Hub implements it.
type Publisher interface {
	Publish(userID uuid.UUID, msg websocket.Message)
	Broadcast(msg websocket.Message)
}

// Notifier sends out-of-band notifications. *push.Notifier implements it.
type Notifier interface {
	Notify(userID uuid.UUID, payload push.Payload)
}

type TaskHandler struct {
	svc      *task.Service
	hub      Publisher
	notifier Notifier
	logger   *slog.Logger
}

// NewTaskHandler wires task routes. hub and notifier may be nil.
func NewTaskHandler(svc *task.Service, hub Publisher, notifier Notifier, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, hub: hub, notifier: notifier, logger: logger}
}

func (h *TaskHandler) publish(userID uuid.UUID, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Publish(userID, msg)
	}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *TaskHandler) notify(userID uuid.UUID, payload push.Payload) {
	if h.notifier != nil {
		h.notifier.Notify(userID, payload)
	}
}

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Difficulty  *string `json:"difficulty"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Difficulty  *string `json:"difficulty"`
}

type completeTaskRequest struct {
	TimeSpent *int `json:"time_spent"`
}

// parseDifficulty normalizes case; the service rejects unknown values.
func parseDifficulty(s *string) *model.Difficulty {
	if s == nil {
		return nil
	}
	d := model.Difficulty(strings.ToUpper(strings.TrimSpace(*s)))
	return &d
}

func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, apperr.KindValidation, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var completed *bool
	if v := r.URL.Query().Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, apperr.KindValidation, "completed must be true or false")
			return
		}
		completed = &b
	}

	tasks, err := h.svc.ListTasks(r.Context(), auth.UserID(r.Context()), completed)
	if err != nil {
		writeError(w, h.logger, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	userID := auth.UserID(r.Context())
	created, err := h.svc.CreateTask(r.Context(), userID, req.Title, req.Description, parseDifficulty(req.Difficulty))
	if err != nil {
		writeError(w, h.logger, "create task", err)
		return
	}

	h.publish(userID, websocket.NewMessage("task", "created", created.ID, nil))

	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	found, err := h.svc.GetTask(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	userID := auth.UserID(r.Context())
	updated, err := h.svc.UpdateTask(r.Context(), userID, id, model.TaskFields{
		Title:       req.Title,
		Description: req.Description,
		Difficulty:  parseDifficulty(req.Difficulty),
	})
	if err != nil {
		writeError(w, h.logger, "update task", err)
		return
	}

	h.publish(userID, websocket.NewMessage("task", "updated", id, nil))

	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var req completeTaskRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	userID := auth.UserID(r.Context())
	res, err := h.svc.CompleteTask(r.Context(), userID, id, req.TimeSpent)
	if err != nil {
		writeError(w, h.logger, "complete task", err)
		return
	}

	h.publish(userID, websocket.NewMessage("task", "completed", id, map[string]any{
		"xp_gained": res.XPGained,
		"xp":        res.NewXP,
		"level":     res.NewLevel,
		"level_up":  res.LevelUp,
	}))
	if res.LevelUp {
		h.publish(userID, websocket.NewMessage("user", "level_up", userID, map[string]any{
			"from": res.LevelBefore,
			"to":   res.NewLevel,
		}))
		h.broadcast(websocket.NewMessage("leaderboard", "changed", uuid.Nil, nil))
		h.notify(userID, push.Payload{
			Title: "Level up!",
			Body:  fmt.Sprintf("You reached level %d.", res.NewLevel),
			URL:   "/",
			Tag:   "level",
		})
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	userID := auth.UserID(r.Context())
	res, err := h.svc.DeleteTask(r.Context(), userID, id)
	if err != nil {
		writeError(w, h.logger, "delete task", err)
		return
	}

	payload := map[string]any{"refunded_xp": res.RefundedXP}
	if res.NewXP != nil && res.NewLevel != nil {
		payload["xp"] = *res.NewXP
		payload["level"] = *res.NewLevel
	}
	h.publish(userID, websocket.NewMessage("task", "deleted", id, payload))
	if res.LevelDown {
		h.publish(userID, websocket.NewMessage("user", "level_down", userID, map[string]any{
			"from": res.LevelBefore,
			"to":   *res.NewLevel,
		}))
		h.broadcast(websocket.NewMessage("leaderboard", "changed", uuid.Nil, nil))
	}

	writeJSON(w, http.StatusOK, res)
}
