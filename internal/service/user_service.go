package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"prs/internal/apperror"
	"prs/internal/model"
	"prs/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username  string `json:"username" binding:"required,max=20"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"required,max=20"`
	LastName  string `json:"last_name" binding:"required,max=20"`
	Phone     string `json:"phone" binding:"max=12"`
	Email     string `json:"email" binding:"required,email"`
	Reviewer  bool   `json:"reviewer"`
	Admin     bool   `json:"admin"`
}

type LoginUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token string        `json:"token"`
	User  *UserResponse `json:"user"`
}

// DTO for returning User without exposing the password hash
type UserResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Reviewer  bool   `json:"reviewer"`
	Admin     bool   `json:"admin"`
	CreatedAt string `json:"created_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id uint) (*UserResponse, error)
	ListUsers(ctx context.Context) ([]UserResponse, error)
	EnsureAdmin(ctx context.Context, username, password, email string) (bool, error)
}

type userService struct {
	repo     repository.UserRepository
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewUserService returns a new instance of UserService. Tokens are signed with secret.
func NewUserService(repo repository.UserRepository, secret []byte) UserService {
	return &userService{repo: repo, secret: secret, tokenTTL: 24 * time.Hour, now: time.Now}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
		Email:     user.Email,
		Reviewer:  user.Reviewer,
		Admin:     user.Admin,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperror.Validation("username is required")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:  username,
		Password:  string(hashedPassword),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Reviewer:  req.Reviewer,
		Admin:     req.Admin,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Conflict("username or email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapToResponse(user), nil
}

// Login checks the credentials and issues a token whose subject is the user id.
func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid username or password")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperror.Unauthorized("invalid username or password")
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(user.ID), 10),
		"admin": user.Admin,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{Token: tokenString, User: mapToResponse(user)}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id uint) (*UserResponse, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("user %d not found", id)
		}
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context) ([]UserResponse, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, nil
}

// EnsureAdmin creates an administrator named username unless a user by that name
// already exists. It reports whether a user was created. An empty username is a no-op.
func (s *userService) EnsureAdmin(ctx context.Context, username, password, email string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}

	_, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("failed to look up user %s: %w", username, err)
	}

	_, err = s.CreateUser(ctx, CreateUserRequest{
		Username:  username,
		Password:  password,
		FirstName: "System",
		LastName:  "Administrator",
		Email:     email,
		Reviewer:  true,
		Admin:     true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
