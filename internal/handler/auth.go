package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/questlog/internal/apperr"
	"github.com/dukerupert/questlog/internal/auth"
	"github.com/dukerupert/questlog/internal/middleware"
	"github.com/dukerupert/questlog/internal/model"
	"github.com/dukerupert/questlog/internal/store"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	maxPasswordBytes = 72
	maxNameLength    = 100
)

type AuthHandler struct {
	userStore     *store.UserStore
	sessionStore  *store.SessionStore
	sessionTTL    time.Duration
	secureCookies bool
	bcryptCost    int
	logger        *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, sessionTTL time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:     us,
		sessionStore:  ss,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		bcryptCost:    bcrypt.DefaultCost,
		logger:        logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func validateRegistration(req *registerRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if req.Email == "" {
		return apperr.Validation("email is required")
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return apperr.Validation("email is invalid")
	}
	if req.Name == "" {
		return apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(req.Name) > maxNameLength {
		return apperr.Validation("name must be at most %d characters", maxNameLength)
	}
	if len(req.Password) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if len(req.Password) > maxPasswordBytes {
		return apperr.Validation("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := validateRegistration(&req); err != nil {
		writeError(w, h.logger, "register", err)
		return
	}

	existing, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, "register lookup", err)
		return
	}
	if existing != nil {
		writeError(w, h.logger, "register", apperr.Conflict("email already registered"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		writeError(w, h.logger, "hash password", err)
		return
	}

	user, err := h.userStore.Create(r.Context(), req.Email, req.Name, string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with another registration for the same email.
		err = apperr.Conflict("email already registered")
	}
	if err != nil {
		writeError(w, h.logger, "create user", err)
		return
	}
	h.logger.Info("user registered", "user_id", user.ID)

	h.startSession(w, r, user, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, h.logger, "login", apperr.Validation("email and password are required"))
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, "login lookup", err)
		return
	}
	// Same response for unknown email and wrong password.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, h.logger, "login", apperr.Unauthenticated("invalid email or password"))
		return
	}

	h.startSession(w, r, user, http.StatusOK)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *model.User, status int) {
	sess, err := h.sessionStore.Create(r.Context(), user.ID, h.sessionTTL)
	if err != nil {
		writeError(w, h.logger, "create session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, status, sessionResponse{User: user, Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if id := auth.SessionID(r.Context()); id != 0 {
		if err := h.sessionStore.Delete(r.Context(), id); err != nil {
			writeError(w, h.logger, "delete session", err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
