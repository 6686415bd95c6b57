package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/questlog/internal/apperr"
	"github.com/dukerupert/questlog/internal/auth"
	"github.com/dukerupert/questlog/internal/model"
	"github.com/dukerupert/questlog/internal/progression"
	"github.com/dukerupert/questlog/internal/store"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type ProfileHandler struct {
	userStore *store.UserStore
	policy    progression.Policy
	logger    *slog.Logger
}

func NewProfileHandler(us *store.UserStore, policy progression.Policy, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{userStore: us, policy: policy, logger: logger}
}

type profileResponse struct {
	User     *model.User        `json:"user"`
	Progress progression.Status `json:"progress"`
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userStore.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "get user", err)
		return
	}
	if user == nil {
		writeError(w, h.logger, "get user", apperr.NotFound("user not found"))
		return
	}

	status, err := h.policy.Progress(user.XP, user.Level)
	if err != nil {
		writeError(w, h.logger, "progress", err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: user, Progress: status})
}

func (h *ProfileHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			writeErrorMsg(w, http.StatusBadRequest, apperr.KindValidation, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	entries, err := h.userStore.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, "leaderboard", err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
