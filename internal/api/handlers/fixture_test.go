package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/storage/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testEnv = "test"

type fixture struct {
	store         *memory.Store
	users         *users.Service
	events        *events.Service
	registrations *registrations.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	tokens := auth.NewJWTManager("test-secret-with-enough-length-1234", time.Hour, "rsvp-test")
	return &fixture{
		store:         store,
		users:         users.NewService(store.Users(), tokens, auth.PasswordHasher{Cost: bcrypt.MinCost}, zerolog.Nop()),
		events:        events.NewService(store.Events(), nil, audit.Nop(), zerolog.Nop()),
		registrations: registrations.NewService(store.Registrations(), store.Events(), zerolog.Nop()),
	}
}

// account registers a user and returns the actor for it.
func (f *fixture) account(t *testing.T, name string, role auth.Role) auth.Actor {
	t.Helper()
	result, err := f.users.Register(context.Background(), users.RegisterInput{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "secret123",
		Role:     string(role),
	})
	require.NoError(t, err)
	return auth.Actor{UserID: result.User.ID, Role: result.User.Role}
}

func (f *fixture) event(t *testing.T, organizer auth.Actor, name string) *events.Event {
	t.Helper()
	price := 10.0
	event, err := f.events.Create(context.Background(), organizer, events.CreateInput{
		Name:        name,
		Description: "An evening of talks",
		Date:        time.Now().Add(72 * time.Hour),
		Location:    "Toronto",
		Price:       &price,
	})
	require.NoError(t, err)
	return event
}

func asActor(r *http.Request, actor auth.Actor) *http.Request {
	claims := &auth.Claims{
		Role:             actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: actor.UserID},
	}
	return r.WithContext(middleware.ContextWithClaims(r.Context(), claims))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type problemBody struct {
	Type   string            `json:"type"`
	Status int               `json:"status"`
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors"`
}
