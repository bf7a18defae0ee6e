package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"course-admin-service/internal/model"
)

func TestStatsCountsUsersAndCatalog(t *testing.T) {
	users := newFakeUserRepo()
	catalog := newFakeCatalogRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, users.Create(ctx, &model.User{
		UserID: "u1", Email: "a@example.com", Role: model.RoleStandard, IsApproved: true,
	}))
	require.NoError(t, users.Create(ctx, &model.User{
		UserID: "u2", Email: "b@example.com", Role: model.RoleStandard, IsApproved: false,
	}))
	require.NoError(t, users.Create(ctx, &model.User{
		UserID: "u3", Email: "c@example.com", Role: model.RoleStandard, IsApproved: true,
		LoginAttempts: 5, LockUntil: now.Add(time.Hour),
	}))
	require.NoError(t, users.Create(ctx, &model.User{
		UserID: "admin", Email: "root@example.com", Role: model.RoleAdmin, IsApproved: false,
	}))

	require.NoError(t, catalog.CreateCategory(ctx, &model.Category{Code: "prog", Name: "Programming"}))
	require.NoError(t, catalog.CreateCourse(ctx, &model.Course{Code: "go101", Name: "Go", CategoryCode: "prog"}))
	require.NoError(t, catalog.CreateCourse(ctx, &model.Course{Code: "go201", Name: "Go II", CategoryCode: "prog"}))

	svc := NewReportService(users, catalog, nil, nil, "conversations")
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	require.Equal(t, 4, stats.TotalUsers)
	// The unapproved admin does not count as pending; admins bypass approval.
	require.Equal(t, 1, stats.PendingUsers)
	require.Equal(t, 1, stats.LockedUsers)
	require.Equal(t, 1, stats.TotalCategories)
	require.Equal(t, 2, stats.TotalCourses)
	// ClickHouse absent: usage degrades to empty rather than failing.
	require.Empty(t, stats.CourseUsage)
}

func TestUserActivity(t *testing.T) {
	users := newFakeUserRepo()
	ctx := context.Background()
	now := time.Now().UTC()
	lastWeek := now.Add(-7 * 24 * time.Hour)

	require.NoError(t, users.Create(ctx, &model.User{
		UserID: "u1", Email: "a@example.com", Name: "Active",
		Role: model.RoleStandard, IsApproved: true, LastLogin: &lastWeek,
	}))
	require.NoError(t, users.Create(ctx, &model.User{
		UserID: "u2", Email: "b@example.com", Name: "Locked Out",
		Role: model.RoleStandard, IsApproved: true, LockUntil: now.Add(time.Hour),
	}))

	svc := NewReportService(users, newFakeCatalogRepo(), nil, nil, "conversations")
	activity, err := svc.UserActivity(ctx)
	require.NoError(t, err)
	require.Len(t, activity, 2)

	byID := make(map[string]UserActivity, len(activity))
	for _, entry := range activity {
		byID[entry.UserID] = entry
	}
	require.False(t, byID["u1"].Locked)
	require.NotNil(t, byID["u1"].LastLogin)
	require.True(t, byID["u2"].Locked)
	require.Nil(t, byID["u2"].LastLogin)
}

func TestSearchConversationsWithoutES(t *testing.T) {
	svc := NewReportService(newFakeUserRepo(), newFakeCatalogRepo(), nil, nil, "conversations")

	results, err := svc.SearchConversations(context.Background(), "goroutine", 10)
	require.NoError(t, err)
	require.Nil(t, results)
}
