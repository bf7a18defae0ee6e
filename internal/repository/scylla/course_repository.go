package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"course-admin-service/internal/model"
	"course-admin-service/internal/util"
)

// CatalogRepository stores the course catalog: categories and the courses
// under them, including the encrypted upstream security key.
type CatalogRepository interface {
	CreateCategory(ctx context.Context, category *model.Category) error
	GetCategory(ctx context.Context, code string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]*model.Category, error)
	UpdateCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, code string) error

	CreateCourse(ctx context.Context, course *model.Course) error
	GetCourse(ctx context.Context, code string) (*model.Course, error)
	ListCourses(ctx context.Context) ([]*model.Course, error)
	UpdateCourse(ctx context.Context, course *model.Course) error
	DeleteCourse(ctx context.Context, code string) error

	HealthCheck(ctx context.Context) error
}

type catalogRepository struct {
	client *ScyllaClient
}

func NewCatalogRepository(client *ScyllaClient) CatalogRepository {
	return &catalogRepository{client: client}
}

func (r *catalogRepository) CreateCategory(ctx context.Context, category *model.Category) error {
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now

	applied, err := r.client.Prepared.CreateCategory.WithContext(ctx).Bind(
		category.Code, category.CategoryID, category.Name, category.Description,
		category.CreatedAt, category.UpdatedAt,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	if !applied {
		return ErrAlreadyExists
	}

	util.Info("Category created", zap.String("code", category.Code))
	return nil
}

func (r *catalogRepository) GetCategory(ctx context.Context, code string) (*model.Category, error) {
	category := &model.Category{}
	err := r.client.Prepared.GetCategory.WithContext(ctx).Bind(code).Scan(
		&category.Code, &category.CategoryID, &category.Name, &category.Description,
		&category.CreatedAt, &category.UpdatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return category, nil
}

func (r *catalogRepository) ListCategories(ctx context.Context) ([]*model.Category, error) {
	iter := r.client.Prepared.ListCategories.WithContext(ctx).Iter()

	var categories []*model.Category
	for {
		category := &model.Category{}
		if !iter.Scan(
			&category.Code, &category.CategoryID, &category.Name, &category.Description,
			&category.CreatedAt, &category.UpdatedAt,
		) {
			break
		}
		categories = append(categories, category)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (r *catalogRepository) UpdateCategory(ctx context.Context, category *model.Category) error {
	category.UpdatedAt = time.Now().UTC()
	if err := r.client.Prepared.UpdateCategory.WithContext(ctx).Bind(
		category.Name, category.Description, category.UpdatedAt, category.Code,
	).Exec(); err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return nil
}

func (r *catalogRepository) DeleteCategory(ctx context.Context, code string) error {
	if err := r.client.Prepared.DeleteCategory.WithContext(ctx).Bind(code).Exec(); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func (r *catalogRepository) CreateCourse(ctx context.Context, course *model.Course) error {
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	applied, err := r.client.Prepared.CreateCourse.WithContext(ctx).Bind(
		course.Code, course.CourseID, course.Name, course.CategoryCode,
		course.APIHost, course.ChatbotID,
		course.SecurityKey.Ciphertext, course.SecurityKey.EncryptedDEK, course.SecurityKey.KeyID,
		course.CreatedAt, course.UpdatedAt,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to create course",
			zap.String("code", course.Code),
			zap.Error(err))
		return fmt.Errorf("failed to create course: %w", err)
	}
	if !applied {
		return ErrAlreadyExists
	}

	util.Info("Course created",
		zap.String("code", course.Code),
		zap.String("category", course.CategoryCode))
	return nil
}

func (r *catalogRepository) GetCourse(ctx context.Context, code string) (*model.Course, error) {
	course := &model.Course{}
	err := r.client.Prepared.GetCourse.WithContext(ctx).Bind(code).Scan(
		&course.Code, &course.CourseID, &course.Name, &course.CategoryCode,
		&course.APIHost, &course.ChatbotID,
		&course.SecurityKey.Ciphertext, &course.SecurityKey.EncryptedDEK, &course.SecurityKey.KeyID,
		&course.CreatedAt, &course.UpdatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return course, nil
}

func (r *catalogRepository) ListCourses(ctx context.Context) ([]*model.Course, error) {
	iter := r.client.Prepared.ListCourses.WithContext(ctx).Iter()

	var courses []*model.Course
	for {
		course := &model.Course{}
		if !iter.Scan(
			&course.Code, &course.CourseID, &course.Name, &course.CategoryCode,
			&course.APIHost, &course.ChatbotID,
			&course.SecurityKey.Ciphertext, &course.SecurityKey.EncryptedDEK, &course.SecurityKey.KeyID,
			&course.CreatedAt, &course.UpdatedAt,
		) {
			break
		}
		courses = append(courses, course)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, nil
}

func (r *catalogRepository) UpdateCourse(ctx context.Context, course *model.Course) error {
	course.UpdatedAt = time.Now().UTC()
	if err := r.client.Prepared.UpdateCourse.WithContext(ctx).Bind(
		course.Name, course.CategoryCode, course.APIHost, course.ChatbotID,
		course.SecurityKey.Ciphertext, course.SecurityKey.EncryptedDEK, course.SecurityKey.KeyID,
		course.UpdatedAt, course.Code,
	).Exec(); err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	return nil
}

func (r *catalogRepository) DeleteCourse(ctx context.Context, code string) error {
	if err := r.client.Prepared.DeleteCourse.WithContext(ctx).Bind(code).Exec(); err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	return nil
}

func (r *catalogRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
