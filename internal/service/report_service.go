package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"course-admin-service/internal/client"
	"course-admin-service/internal/model"
	"course-admin-service/internal/repository/scylla"
	"course-admin-service/internal/util"
)

// PlatformStats is the admin dashboard snapshot.
type PlatformStats struct {
	TotalUsers      int           `json:"total_users"`
	PendingUsers    int           `json:"pending_users"`
	LockedUsers     int           `json:"locked_users"`
	TotalCategories int           `json:"total_categories"`
	TotalCourses    int           `json:"total_courses"`
	CourseUsage     []CourseUsage `json:"course_usage,omitempty"`
}

// CourseUsage aggregates chat volume per course from ClickHouse.
type CourseUsage struct {
	CourseCode   string  `json:"course_code"`
	Questions    uint64  `json:"questions"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// ReportService assembles admin reports from the primary store and the
// analytics backends. ClickHouse and Elasticsearch being down degrades the
// report, it does not fail it.
type ReportService struct {
	users      scylla.UserRepository
	catalog    scylla.CatalogRepository
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	esIndex    string
	now        func() time.Time
}

func NewReportService(
	users scylla.UserRepository,
	catalog scylla.CatalogRepository,
	clickhouse *client.ClickHouseClient,
	es *client.ESClient,
	esIndex string,
) *ReportService {
	return &ReportService{
		users:      users,
		catalog:    catalog,
		clickhouse: clickhouse,
		es:         es,
		esIndex:    esIndex,
		now:        time.Now,
	}
}

// Stats fans the independent counts out in parallel.
func (s *ReportService) Stats(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}
	now := s.now().UTC()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		users, err := s.users.List(gctx)
		if err != nil {
			return err
		}
		stats.TotalUsers = len(users)
		for _, user := range users {
			if !user.IsApproved && !user.IsAdmin() {
				stats.PendingUsers++
			}
			if user.LockUntil.After(now) {
				stats.LockedUsers++
			}
		}
		return nil
	})

	g.Go(func() error {
		categories, err := s.catalog.ListCategories(gctx)
		if err != nil {
			return err
		}
		stats.TotalCategories = len(categories)
		return nil
	})

	g.Go(func() error {
		courses, err := s.catalog.ListCourses(gctx)
		if err != nil {
			return err
		}
		stats.TotalCourses = len(courses)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.CourseUsage = s.courseUsage(ctx, 30*24*time.Hour)
	return stats, nil
}

// courseUsage queries ClickHouse for the last window of chat volume.
func (s *ReportService) courseUsage(ctx context.Context, window time.Duration) []CourseUsage {
	if s.clickhouse == nil {
		return nil
	}

	since := s.now().UTC().Add(-window)
	rows, err := s.clickhouse.QueryRows(ctx, `
        SELECT course_code, count() AS questions, avg(latency_ms) AS avg_latency
        FROM chat_events
        WHERE occurred_at >= ?
        GROUP BY course_code
        ORDER BY questions DESC`, since)
	if err != nil {
		util.Warn("Course usage query failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var usage []CourseUsage
	for rows.Next() {
		var row CourseUsage
		if err := rows.Scan(&row.CourseCode, &row.Questions, &row.AvgLatencyMS); err != nil {
			util.Warn("Course usage row scan failed", zap.Error(err))
			return usage
		}
		usage = append(usage, row)
	}
	return usage
}

// UserActivity is the per-user slice of the activity report.
type UserActivity struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	Locked    bool       `json:"locked"`
	Approved  bool       `json:"approved"`
}

func (s *ReportService) UserActivity(ctx context.Context) ([]UserActivity, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	activity := make([]UserActivity, 0, len(users))
	for _, user := range users {
		activity = append(activity, UserActivity{
			UserID:    user.UserID,
			Email:     user.Email,
			Name:      user.Name,
			LastLogin: user.LastLogin,
			Locked:    user.LockUntil.After(now),
			Approved:  user.IsApproved,
		})
	}
	return activity, nil
}

// SearchConversations runs a full-text match over indexed transcripts.
func (s *ReportService) SearchConversations(ctx context.Context, term string, limit int) ([]*model.Conversation, error) {
	if s.es == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"messages.content": term,
			},
		},
		"sort": []map[string]interface{}{
			{"last_message_at": map[string]interface{}{"order": "desc"}},
		},
	}

	result, err := s.es.Search(ctx, s.esIndex, query)
	if err != nil {
		return nil, err
	}
	return decodeConversationHits(result), nil
}

func decodeConversationHits(result map[string]interface{}) []*model.Conversation {
	hitsWrapper, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil
	}
	hits, ok := hitsWrapper["hits"].([]interface{})
	if !ok {
		return nil
	}

	var conversations []*model.Conversation
	for _, hit := range hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		conv := &model.Conversation{}
		if v, ok := source["id"].(string); ok {
			conv.ConversationID = v
		}
		if v, ok := source["user_id"].(string); ok {
			conv.UserID = v
		}
		if v, ok := source["course_code"].(string); ok {
			conv.CourseCode = v
		}
		if v, ok := source["last_message_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				conv.LastMessageAt = t
			}
		}
		if rawMessages, ok := source["messages"].([]interface{}); ok {
			for _, rawMessage := range rawMessages {
				msgMap, ok := rawMessage.(map[string]interface{})
				if !ok {
					continue
				}
				msg := model.Message{}
				if v, ok := msgMap["role"].(string); ok {
					msg.Role = v
				}
				if v, ok := msgMap["content"].(string); ok {
					msg.Content = v
				}
				if v, ok := msgMap["timestamp"].(string); ok {
					if t, err := time.Parse(time.RFC3339, v); err == nil {
						msg.Timestamp = t
					}
				}
				conv.Messages = append(conv.Messages, msg)
			}
		}
		conversations = append(conversations, conv)
	}
	return conversations
}
