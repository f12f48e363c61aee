package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/contexta-loader/internal/core"
	db "github.com/markdave123-py/contexta-loader/internal/core/database"
	"github.com/markdave123-py/contexta-loader/internal/models"
)

type UserService struct {
	db core.DbClient
}

func NewUserService(dbClient core.DbClient) *UserService {
	return &UserService{db: dbClient}
}

// Create registers a user with a bcrypt-hashed password.
func (s *UserService) Create(ctx context.Context, firstName, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || password == "" {
		return nil, fmt.Errorf("%w: a valid email and password are required", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(firstName),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateUser(ctx, u); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return u, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.db.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

// Authenticate returns the user when the password matches. Unknown emails and
// wrong passwords both report ErrUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}
