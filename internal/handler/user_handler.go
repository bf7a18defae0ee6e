package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"course-admin-service/internal/service"
	"course-admin-service/internal/util"
)

// UserHandler covers the administrative user management surface.
type UserHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewUserHandler(authService *service.AuthService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		authService: authService,
		logger:      logger,
	}
}

// RegisterRoutes mounts the admin-only user routes. The caller wraps them
// in Protect and RequireAdmin.
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/{userID}/approve", h.ApproveUser)
		r.Post("/{userID}/ban", h.BanUser)
		r.Post("/{userID}/unban", h.UnbanUser)
		r.Delete("/{userID}", h.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.ListUsers(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list users")
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    users,
		Meta:    &Meta{Total: len(users)},
	})
}

func (h *UserHandler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := h.authService.Approve(r.Context(), actor.UserID, userID); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to approve user")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "User approved"))
	h.logger.Info("User approved via HTTP",
		util.String("user_id", userID),
		util.String("actor_id", actor.UserID),
	)
}

func (h *UserHandler) BanUser(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if actor.UserID == userID {
		respondWithError(w, http.StatusForbidden,
			errors.New("cannot ban yourself"), "Forbidden")
		return
	}

	if err := h.authService.Ban(r.Context(), actor.UserID, userID); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to ban user")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "User banned"))
	h.logger.Info("User banned via HTTP",
		util.String("user_id", userID),
		util.String("actor_id", actor.UserID),
	)
}

func (h *UserHandler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := h.authService.Unban(r.Context(), actor.UserID, userID); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to unban user")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "User unbanned"))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if actor.UserID == userID {
		respondWithError(w, http.StatusForbidden,
			errors.New("cannot delete yourself"), "Forbidden")
		return
	}

	if err := h.authService.Delete(r.Context(), actor.UserID, userID); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to delete user")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "User deleted"))
	h.logger.Info("User deleted via HTTP",
		util.String("user_id", userID),
		util.String("actor_id", actor.UserID),
	)
}
