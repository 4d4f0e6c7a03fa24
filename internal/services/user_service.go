package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"proxyhub-api/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserStore is the persistence contract for user rows
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error)
	RefCodeExists(ctx context.Context, refCode string) (bool, error)
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService handles registration and login around the balance-carrying
// user model.
type UserService struct {
	users UserStore
}

// NewUserService creates a user service
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// Register creates a new account with a hashed password and a fresh
// unique referral code.
func (s *UserService) Register(ctx context.Context, username, email, password, invitedBy string) (*models.User, error) {
	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email are required", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already in use", ErrValidation)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already in use", ErrValidation)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	refCode, err := s.generateUniqueRefCode(ctx)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:  username,
		Email:     email,
		Password:  string(hashed),
		RefCode:   refCode,
		InvitedBy: invitedBy,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login resolves a username-or-email identifier and checks the password
func (s *UserService) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	user, err := s.users.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

const refCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateUniqueRefCode draws 8-char codes until one is free
func (s *UserService) generateUniqueRefCode(ctx context.Context) (string, error) {
	for attempts := 0; attempts < 20; attempts++ {
		var sb strings.Builder
		for i := 0; i < 8; i++ {
			sb.WriteByte(refCodeCharset[rand.Intn(len(refCodeCharset))])
		}
		code := sb.String()

		exists, err := s.users.RefCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique referral code")
}
