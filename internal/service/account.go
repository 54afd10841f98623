package service

import (
	"context"
	"errors"
	"time"

	"github.com/marketplace-service/internal/auth"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/repo"
)

type AccountService struct {
	users  repo.UserRepository
	tokens *auth.Manager
}

func NewAccountService(users repo.UserRepository, tokens *auth.Manager) *AccountService {
	return &AccountService{users: users, tokens: tokens}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
