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

// maxQuestionLength bounds what gets forwarded upstream.
const maxQuestionLength = 4000

// ChatHandler proxies questions to course chatbots and serves transcripts.
type ChatHandler struct {
	chatService *service.ChatService
	logger      *zap.Logger
}

func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

func (h *ChatHandler) RegisterRoutes(router chi.Router) {
	router.Post("/chat/{courseCode}", h.Ask)
	router.Get("/chat/{courseCode}/history", h.GetConversation)
	router.Get("/chat/conversations", h.ListConversations)
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	user := UserFromContext(ctx)
	courseCode := chi.URLParam(r, "courseCode")

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("question is required"), "Invalid request")
		return
	}
	if len(question) > maxQuestionLength {
		respondWithError(w, http.StatusBadRequest,
			errors.New("question is too long"), "Invalid request")
		return
	}

	answer, err := h.chatService.Ask(ctx, user, courseCode, question)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Chat request failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(askResponse{Answer: answer}, ""))
	h.logger.Info("Chat exchange completed",
		util.String("user_id", user.UserID),
		util.String("course", courseCode),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	courseCode := chi.URLParam(r, "courseCode")

	conv, err := h.chatService.GetConversation(r.Context(), user.UserID, courseCode)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to load conversation")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(conv, ""))
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	conversations, err := h.chatService.ListConversations(r.Context(), user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list conversations")
		return
	}
	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    conversations,
		Meta:    &Meta{Total: len(conversations)},
	})
}
