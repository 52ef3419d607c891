package users

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryRepo struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: map[string]User{}, byEmail: map[string]string{}}
}

func (r *memoryRepo) Create(_ context.Context, user User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return nil, ErrEmailTaken
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return &user, nil
}

func (r *memoryRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	user := r.byID[id]
	return &user, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *auth.JWTManager) {
	t.Helper()
	repo := newMemoryRepo()
	tokens := auth.NewJWTManager("test-secret", time.Hour, "rsvp-test")
	svc := NewService(repo, tokens, auth.PasswordHasher{Cost: bcrypt.MinCost}, zerolog.Nop())
	counter := 0
	svc.newID = func() (string, error) {
		counter++
		return fmt.Sprintf("01HYX3KQW7ERTV9XNBM2P8Q%03d", counter), nil
	}
	return svc, repo, tokens
}

func TestRegister_IssuesTokenAndHashesPassword(t *testing.T) {
	svc, repo, tokens := newTestService(t)

	result, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada Lovelace",
		Email:    "Ada@Example.com",
		Password: "analytical",
		Role:     "organizer",
	})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", result.User.Email)
	require.Equal(t, auth.RoleOrganizer, result.User.Role)

	claims, err := tokens.Validate(result.Token)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, claims.UserID())
	require.Equal(t, auth.RoleOrganizer, claims.Role)

	stored, err := repo.GetByID(context.Background(), result.User.ID)
	require.NoError(t, err)
	require.NotEqual(t, "analytical", stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("analytical")))
}

func TestRegister_DefaultsToAttendee(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.Register(context.Background(), RegisterInput{Name: "Bo", Email: "bo@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, auth.RoleAttendee, result.User.Role)
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Imposter", Email: "  ADA@example.COM ", Password: "secret2"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name      string
		input     RegisterInput
		wantField string
	}{
		{name: "missing name", input: RegisterInput{Email: "a@example.com", Password: "secret1"}, wantField: "name"},
		{name: "html-only name", input: RegisterInput{Name: "<b></b>", Email: "a@example.com", Password: "secret1"}, wantField: "name"},
		{name: "bad email", input: RegisterInput{Name: "A", Email: "not-an-email", Password: "secret1"}, wantField: "email"},
		{name: "short password", input: RegisterInput{Name: "A", Email: "a@example.com", Password: "123"}, wantField: "password"},
		{name: "multibyte password over 72 bytes", input: RegisterInput{Name: "A", Email: "a@example.com", Password: strings.Repeat("é", 40)}, wantField: "password"},
		{name: "admin role", input: RegisterInput{Name: "A", Email: "a@example.com", Password: "secret1", Role: "admin"}, wantField: "role"},
		{name: "unknown role", input: RegisterInput{Name: "A", Email: "a@example.com", Password: "secret1", Role: "wizard"}, wantField: "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			_, err := svc.Register(context.Background(), tt.input)
			verr, ok := validation.As(err)
			require.True(t, ok, "expected validation error, got %v", err)
			require.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("success with different case", func(t *testing.T) {
		result, err := svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "secret1"})
		require.NoError(t, err)
		require.Equal(t, registered.User.ID, result.User.ID)
		require.NotEmpty(t, result.Token)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret2"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com"})
		_, ok := validation.As(err)
		require.True(t, ok)
	})
}

func TestBootstrapAdmin(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.BootstrapAdmin(ctx, "Root", "Root@Example.com", "rootpass")
	require.NoError(t, err)
	require.True(t, created)

	admin, err := repo.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, admin.Role)

	created, err = svc.BootstrapAdmin(ctx, "Root", "root@example.com", "rootpass")
	require.NoError(t, err)
	require.False(t, created)

	created, err = svc.BootstrapAdmin(ctx, "Root", "", "")
	require.NoError(t, err)
	require.False(t, created)
}
