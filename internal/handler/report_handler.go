package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"course-admin-service/internal/service"
)

// ReportHandler serves the admin-only reporting surface.
type ReportHandler struct {
	reportService *service.ReportService
	logger        *zap.Logger
}

func NewReportHandler(reportService *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

func (h *ReportHandler) RegisterRoutes(router chi.Router) {
	router.Route("/reports", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/activity", h.UserActivity)
		r.Get("/conversations/search", h.SearchConversations)
	})
}

func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reportService.Stats(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to build stats")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(stats, ""))
}

func (h *ReportHandler) UserActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.reportService.UserActivity(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to build activity report")
		return
	}
	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    activity,
		Meta:    &Meta{Total: len(activity)},
	})
}

func (h *ReportHandler) SearchConversations(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("query parameter q is required"), "Invalid request")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		limit = parsed
	}

	results, err := h.reportService.SearchConversations(r.Context(), term, limit)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Search failed")
		return
	}
	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    results,
		Meta:    &Meta{Total: len(results)},
	})
}
