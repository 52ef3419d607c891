package handlers

import (
	"errors"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
)

type AuthHandler struct {
	Users *users.Service
	Env   string
}

func NewAuthHandler(service *users.Service, env string) *AuthHandler {
	return &AuthHandler{Users: service, Env: env}
}

type registerResponse struct {
	users.Summary
	Token string `json:"token"`
}

type loginResponse struct {
	User  users.Summary `json:"user"`
	Token string        `json:"token"`
}

// Register creates an account and returns it with a token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	result, err := h.Users.Register(r.Context(), input)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	metrics.UsersRegistered.Inc()
	writeJSON(w, http.StatusCreated, registerResponse{Summary: result.User, Token: result.Token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input users.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	result, err := h.Users.Login(r.Context(), input)
	metrics.LoginAttempts.WithLabelValues(loginResult(err)).Inc()
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{User: result.User, Token: result.Token})
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, users.ErrNotFound):
		return "unknown_email"
	case errors.Is(err, users.ErrInvalidCredentials):
		return "bad_credentials"
	default:
		return "error"
	}
}
