package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"course-admin-service/internal/service"
	"course-admin-service/internal/util"
)

// CourseHandler covers the catalog: categories and courses. Reads are open
// to any authenticated user; writes are wrapped in RequireAdmin by the
// router.
type CourseHandler struct {
	courseService *service.CourseService
	logger        *zap.Logger
}

func NewCourseHandler(courseService *service.CourseService, logger *zap.Logger) *CourseHandler {
	return &CourseHandler{
		courseService: courseService,
		logger:        logger,
	}
}

func (h *CourseHandler) RegisterReadRoutes(router chi.Router) {
	router.Get("/categories", h.ListCategories)
	router.Get("/categories/{code}", h.GetCategory)
	router.Get("/courses", h.ListCourses)
	router.Get("/courses/{code}", h.GetCourse)
}

func (h *CourseHandler) RegisterAdminRoutes(router chi.Router) {
	router.Post("/categories", h.CreateCategory)
	router.Put("/categories/{code}", h.UpdateCategory)
	router.Delete("/categories/{code}", h.DeleteCategory)
	router.Post("/courses", h.CreateCourse)
	router.Put("/courses/{code}", h.UpdateCourse)
	router.Delete("/courses/{code}", h.DeleteCourse)
}

type categoryRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r categoryRequest) validate(requireCode bool) error {
	if requireCode && strings.TrimSpace(r.Code) == "" {
		return errors.New("code is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

func (h *CourseHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := req.validate(true); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return
	}

	category, err := h.courseService.CreateCategory(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to create category")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(category, "Category created"))
	h.logger.Info("Category created via HTTP", util.String("code", category.Code))
}

func (h *CourseHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.courseService.GetCategory(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get category")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(category, ""))
}

func (h *CourseHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.courseService.ListCategories(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list categories")
		return
	}
	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    categories,
		Meta:    &Meta{Total: len(categories)},
	})
}

func (h *CourseHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := req.validate(false); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return
	}

	category, err := h.courseService.UpdateCategory(r.Context(), chi.URLParam(r, "code"), req.Name, req.Description)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to update category")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(category, "Category updated"))
}

func (h *CourseHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.courseService.DeleteCategory(r.Context(), chi.URLParam(r, "code")); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to delete category")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Category deleted"))
}

type courseRequest struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	CategoryCode string `json:"category_code"`
	APIHost      string `json:"api_host"`
	ChatbotID    string `json:"chatbot_id"`
	SecurityKey  string `json:"security_key"`
}

func (r courseRequest) validate(requireKey bool) error {
	switch {
	case strings.TrimSpace(r.Code) == "":
		return errors.New("code is required")
	case strings.TrimSpace(r.Name) == "":
		return errors.New("name is required")
	case strings.TrimSpace(r.CategoryCode) == "":
		return errors.New("category_code is required")
	case !strings.HasPrefix(r.APIHost, "http://") && !strings.HasPrefix(r.APIHost, "https://"):
		return errors.New("api_host must be an http(s) URL")
	case strings.TrimSpace(r.ChatbotID) == "":
		return errors.New("chatbot_id is required")
	case requireKey && r.SecurityKey == "":
		return errors.New("security_key is required")
	}
	return nil
}

func (r courseRequest) toInput() service.CourseInput {
	return service.CourseInput{
		Code:         r.Code,
		Name:         r.Name,
		CategoryCode: r.CategoryCode,
		APIHost:      strings.TrimRight(r.APIHost, "/"),
		ChatbotID:    r.ChatbotID,
		SecurityKey:  r.SecurityKey,
	}
}

func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := req.validate(true); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return
	}

	course, err := h.courseService.CreateCourse(r.Context(), req.toInput())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to create course")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(course, "Course created"))
	h.logger.Info("Course created via HTTP", util.String("code", course.Code))
}

func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.courseService.GetCourse(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get course")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(course, ""))
}

func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courseService.ListCourses(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list courses")
		return
	}
	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    courses,
		Meta:    &Meta{Total: len(courses)},
	})
}

func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	req.Code = chi.URLParam(r, "code")
	if err := req.validate(false); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return
	}

	course, err := h.courseService.UpdateCourse(r.Context(), req.toInput())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to update course")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(course, "Course updated"))
}

func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.courseService.DeleteCourse(r.Context(), code); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to delete course")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Course deleted"))
	h.logger.Info("Course deleted via HTTP", util.String("code", code))
}
