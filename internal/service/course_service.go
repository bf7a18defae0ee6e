package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"course-admin-service/internal/encryption"
	"course-admin-service/internal/model"
	redisrepo "course-admin-service/internal/repository/redis"
	"course-admin-service/internal/repository/scylla"
	"course-admin-service/internal/util"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrCodeTaken        = errors.New("code already in use")
)

// CourseService manages the catalog. Upstream chatbot security keys are
// envelope-encrypted before they reach Scylla and only come back out in
// DecryptSecurityKey, which the chat proxy calls per request.
type CourseService struct {
	catalog    scylla.CatalogRepository
	encryption *encryption.Manager
	cache      *redisrepo.CatalogCache
}

func NewCourseService(
	catalog scylla.CatalogRepository,
	encryptionManager *encryption.Manager,
	cache *redisrepo.CatalogCache,
) *CourseService {
	return &CourseService{
		catalog:    catalog,
		encryption: encryptionManager,
		cache:      cache,
	}
}

func (s *CourseService) CreateCategory(ctx context.Context, code, name, description string) (*model.Category, error) {
	category := &model.Category{
		CategoryID:  uuid.New().String(),
		Code:        code,
		Name:        name,
		Description: description,
	}
	if err := s.catalog.CreateCategory(ctx, category); err != nil {
		if errors.Is(err, scylla.ErrAlreadyExists) {
			return nil, ErrCodeTaken
		}
		return nil, err
	}
	return category, nil
}

func (s *CourseService) GetCategory(ctx context.Context, code string) (*model.Category, error) {
	category, err := s.catalog.GetCategory(ctx, code)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return category, nil
}

func (s *CourseService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return s.catalog.ListCategories(ctx)
}

func (s *CourseService) UpdateCategory(ctx context.Context, code, name, description string) (*model.Category, error) {
	category, err := s.GetCategory(ctx, code)
	if err != nil {
		return nil, err
	}

	category.Name = name
	category.Description = description
	if err := s.catalog.UpdateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CourseService) DeleteCategory(ctx context.Context, code string) error {
	if _, err := s.GetCategory(ctx, code); err != nil {
		return err
	}

	// Refuse to orphan courses.
	courses, err := s.catalog.ListCourses(ctx)
	if err != nil {
		return err
	}
	for _, course := range courses {
		if course.CategoryCode == code {
			return fmt.Errorf("category %s still has courses", code)
		}
	}
	return s.catalog.DeleteCategory(ctx, code)
}

// CourseInput is everything an admin supplies when creating or updating a
// course. SecurityKey is plaintext here and nowhere else.
type CourseInput struct {
	Code         string
	Name         string
	CategoryCode string
	APIHost      string
	ChatbotID    string
	SecurityKey  string
}

func (s *CourseService) CreateCourse(ctx context.Context, input CourseInput) (*model.Course, error) {
	if _, err := s.GetCategory(ctx, input.CategoryCode); err != nil {
		return nil, err
	}

	encrypted, err := s.encryption.EncryptField(ctx, input.SecurityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt security key: %w", err)
	}

	course := &model.Course{
		CourseID:     uuid.New().String(),
		Code:         input.Code,
		Name:         input.Name,
		CategoryCode: input.CategoryCode,
		APIHost:      input.APIHost,
		ChatbotID:    input.ChatbotID,
		SecurityKey:  encrypted,
	}
	if err := s.catalog.CreateCourse(ctx, course); err != nil {
		if errors.Is(err, scylla.ErrAlreadyExists) {
			return nil, ErrCodeTaken
		}
		return nil, err
	}

	s.cache.SetCourse(ctx, course)
	return course, nil
}

func (s *CourseService) GetCourse(ctx context.Context, code string) (*model.Course, error) {
	if course, ok := s.cache.GetCourse(ctx, code); ok {
		return course, nil
	}

	course, err := s.catalog.GetCourse(ctx, code)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}

	s.cache.SetCourse(ctx, course)
	return course, nil
}

func (s *CourseService) ListCourses(ctx context.Context) ([]*model.Course, error) {
	return s.catalog.ListCourses(ctx)
}

func (s *CourseService) UpdateCourse(ctx context.Context, input CourseInput) (*model.Course, error) {
	course, err := s.GetCourse(ctx, input.Code)
	if err != nil {
		return nil, err
	}
	if input.CategoryCode != course.CategoryCode {
		if _, err := s.GetCategory(ctx, input.CategoryCode); err != nil {
			return nil, err
		}
	}

	course.Name = input.Name
	course.CategoryCode = input.CategoryCode
	course.APIHost = input.APIHost
	course.ChatbotID = input.ChatbotID

	// An empty key on update means keep the stored one.
	if input.SecurityKey != "" {
		encrypted, err := s.encryption.EncryptField(ctx, input.SecurityKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt security key: %w", err)
		}
		course.SecurityKey = encrypted
	}

	if err := s.catalog.UpdateCourse(ctx, course); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, course.Code)
	return course, nil
}

func (s *CourseService) DeleteCourse(ctx context.Context, code string) error {
	if _, err := s.GetCourse(ctx, code); err != nil {
		return err
	}
	if err := s.catalog.DeleteCourse(ctx, code); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, code)
	util.Info("Course deleted", zap.String("code", code))
	return nil
}

// DecryptSecurityKey recovers the plaintext upstream key for one course.
func (s *CourseService) DecryptSecurityKey(ctx context.Context, course *model.Course) (string, error) {
	key, err := s.encryption.DecryptField(ctx, course.SecurityKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt security key for course %s: %w", course.Code, err)
	}
	return key, nil
}
