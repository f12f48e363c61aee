package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	middleware "github.com/markdave123-py/contexta-loader/internal/api/middlewares"
	"github.com/markdave123-py/contexta-loader/internal/models"
)

const tokenTTL = 24 * time.Hour

// UserStore is what the auth endpoints need from the user service.
type UserStore interface {
	Create(ctx context.Context, firstName, email, password string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

type AuthHandler struct {
	users     UserStore
	jwtSecret string
	logger    *slog.Logger
}

func NewAuthHandler(users UserStore, jwtSecret string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, logger: logger}
}

type signupRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Create(r.Context(), req.FirstName, req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondWithToken(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	name := user.FirstName
	if name == "" {
		name = user.Email
	}
	token, err := middleware.NewToken(h.jwtSecret, user.ID, name, tokenTTL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, User: user})
}
