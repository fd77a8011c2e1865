package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smartcanteen/api/internal/auth"
	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/enum"
)

// AuthStore defines the database methods needed by auth handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type AuthStore interface {
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	store      AuthStore
	jwtSecret  string
	allowStaff bool
}

// AuthOption configures an AuthHandler.
type AuthOption func(*AuthHandler)

// WithStaffRegistration lets /auth/register create staff accounts.
func WithStaffRegistration(allow bool) AuthOption {
	return func(h *AuthHandler) { h.allowStaff = allow }
}

// NewAuthHandler creates a new AuthHandler. Self-registration only creates
// students unless WithStaffRegistration(true) is passed.
func NewAuthHandler(store AuthStore, jwtSecret string, opts ...AuthOption) *AuthHandler {
	h := &AuthHandler{store: store, jwtSecret: jwtSecret}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
}

// --- Request / Response types ---

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// --- Handlers ---

// Register creates a user with a bcrypt-hashed password.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	role := req.Role
	if role == "" {
		role = enum.UserRoleStudent
	}
	if !isValidRole(role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be student or staff"})
		return
	}
	if role == enum.UserRoleStaff && !h.allowStaff {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "staff accounts cannot self-register"})
		return
	}

	_, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Username exists"})
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("ERROR: lookup user %q: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("ERROR: hash password: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if _, err := h.store.CreateUser(r.Context(), database.CreateUserParams{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
	}); err != nil {
		// Lost a race with a concurrent registration of the same name.
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Username exists"})
			return
		}
		log.Printf("ERROR: create user: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "registered"})
}

// Login verifies username + password and issues an 8 hour bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		log.Printf("ERROR: lookup user for login: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, user.Username, user.Role)
	if err != nil {
		log.Printf("ERROR: sign token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		Username: user.Username,
		Role:     user.Role,
	})
}

// --- Helpers ---

func isValidRole(role string) bool {
	return role == enum.UserRoleStudent || role == enum.UserRoleStaff
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}
