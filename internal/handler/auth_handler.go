package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"course-admin-service/internal/service"
	"course-admin-service/internal/util"
)

// AuthHandler handles registration, login and the current user's account.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(Protect(h.authService))
			r.Get("/me", h.Me)
			r.Post("/change-password", h.ChangePassword)
		})
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (r registerRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" || !strings.Contains(r.Email, "@") {
		return errors.New("a valid email is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return
	}

	user, err := h.authService.Register(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Registration failed")
		return
	}

	respondWithJSON(w, http.StatusCreated,
		successResponse(user, "Account created, pending admin approval"))
	h.logger.Info("User registered via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  interface{} `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("email and password are required"), "Invalid request")
		return
	}

	user, token, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Login failed")
		return
	}

	respondWithJSON(w, http.StatusOK,
		successResponse(loginResponse{Token: token, User: user}, "Login successful"))
	h.logger.Info("User logged in via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	profile, err := h.authService.Profile(r.Context(), user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to load profile")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(profile, ""))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		respondWithError(w, http.StatusBadRequest,
			errors.New("password must be at least 8 characters"), "Invalid request")
		return
	}

	if err := h.authService.ChangePassword(r.Context(), user.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to change password")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Password changed"))
}
