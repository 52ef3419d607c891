package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

type TokenIssuer interface {
	Generate(subject string, role auth.Role) (string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// Service is the credential service: account creation, login and token issuance.
type Service struct {
	repo   Repository
	tokens TokenIssuer
	hasher PasswordHasher
	newID  func() (string, error)
	logger zerolog.Logger
}

func NewService(repo Repository, tokens TokenIssuer, hasher PasswordHasher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		newID:  ids.NewULID,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  Summary
	Token string
}

// Register creates an attendee or organizer account and issues a token for it.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Name = sanitize.Text(input.Name)
	input.Email = NormalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return AuthResult{}, err
	}

	role, err := auth.ParseRole(input.Role)
	if err != nil || !role.SelfAssignable() {
		return AuthResult{}, validation.New("role", "must be attendee or organizer")
	}

	user, err := s.create(ctx, input.Name, input.Email, input.Password, role)
	if err != nil {
		return AuthResult{}, err
	}

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return AuthResult{User: user.Summary(), Token: token}, nil
}

// Login verifies the password for the account with the given email.
// It returns ErrNotFound for unknown emails and ErrInvalidCredentials on mismatch.
func (s *Service) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = NormalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return AuthResult{}, err
	}

	user, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.hasher.Verify(user.PasswordHash, input.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{User: user.Summary(), Token: token}, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, ids.Normalize(id))
}

// BootstrapAdmin creates an admin account unless one with the email already exists.
// It reports whether a new account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, name, email, password string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("check admin user: %w", err)
	}

	if _, err := s.create(ctx, sanitize.Text(name), email, password, auth.RoleAdmin); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) create(ctx context.Context, name, email, password string, role auth.Role) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, validation.New("password", fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes))
	}
	if err != nil {
		return nil, err
	}
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	return s.repo.Create(ctx, User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
}
