package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"course-admin-service/internal/client"
	"course-admin-service/internal/model"
	redisrepo "course-admin-service/internal/repository/redis"
	"course-admin-service/internal/repository/scylla"
	"course-admin-service/internal/util"
)

// ErrChatUnavailable hides upstream failure details from the caller.
var ErrChatUnavailable = errors.New("chatbot is not responding")

// RateLimitedError tells the caller when the window resets.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many questions, try again in %s", e.RetryAfter.Round(time.Second))
}

// ChatService proxies questions to each course's upstream chatbot and keeps
// the transcript. Indexing and analytics are best effort and never fail the
// exchange.
type ChatService struct {
	courses       *CourseService
	conversations scylla.ConversationRepository
	chatbot       *client.ChatbotClient
	limiter       *redisrepo.RateLimiter
	es            *client.ESClient
	clickhouse    *client.ClickHouseClient
	esIndex       string
	now           func() time.Time
}

func NewChatService(
	courses *CourseService,
	conversations scylla.ConversationRepository,
	chatbot *client.ChatbotClient,
	limiter *redisrepo.RateLimiter,
	es *client.ESClient,
	clickhouse *client.ClickHouseClient,
	esIndex string,
) *ChatService {
	return &ChatService{
		courses:       courses,
		conversations: conversations,
		chatbot:       chatbot,
		limiter:       limiter,
		es:            es,
		clickhouse:    clickhouse,
		esIndex:       esIndex,
		now:           time.Now,
	}
}

// Ask sends the question upstream and appends both sides of the exchange
// to the user's transcript for the course.
func (s *ChatService) Ask(ctx context.Context, user *model.User, courseCode, question string) (string, error) {
	if allowed, retryAfter := s.limiter.Allow(ctx, user.UserID); !allowed {
		return "", &RateLimitedError{RetryAfter: retryAfter}
	}

	course, err := s.courses.GetCourse(ctx, courseCode)
	if err != nil {
		return "", err
	}

	securityKey, err := s.courses.DecryptSecurityKey(ctx, course)
	if err != nil {
		return "", err
	}

	started := s.now()
	answer, err := s.chatbot.Ask(ctx, course.APIHost, course.ChatbotID, securityKey, question)
	if err != nil {
		util.Error("Upstream chatbot request failed",
			zap.String("course", courseCode),
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return "", ErrChatUnavailable
	}
	latency := s.now().Sub(started)

	conv, err := s.appendExchange(ctx, user.UserID, courseCode, question, answer)
	if err != nil {
		// The answer is already in hand; losing the transcript entry is
		// logged, not returned.
		util.Error("Failed to persist conversation",
			zap.String("course", courseCode),
			zap.String("user_id", user.UserID),
			zap.Error(err))
	} else {
		s.indexConversation(ctx, conv)
	}

	s.recordChatEvent(ctx, model.ChatEvent{
		UserID:        user.UserID,
		CourseCode:    courseCode,
		QuestionChars: len(question),
		AnswerChars:   len(answer),
		LatencyMS:     latency.Milliseconds(),
		OccurredAt:    started.UTC(),
	})

	return answer, nil
}

func (s *ChatService) GetConversation(ctx context.Context, userID, courseCode string) (*model.Conversation, error) {
	conv, err := s.conversations.Get(ctx, userID, courseCode)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return &model.Conversation{
				UserID:     userID,
				CourseCode: courseCode,
				Messages:   []model.Message{},
			}, nil
		}
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return s.conversations.ListByUser(ctx, userID)
}

func (s *ChatService) appendExchange(ctx context.Context, userID, courseCode, question, answer string) (*model.Conversation, error) {
	now := s.now().UTC()

	conv, err := s.conversations.Get(ctx, userID, courseCode)
	if err != nil {
		if !errors.Is(err, scylla.ErrNotFound) {
			return nil, err
		}
		conv = &model.Conversation{
			ConversationID: uuid.New().String(),
			UserID:         userID,
			CourseCode:     courseCode,
			CreatedAt:      now,
		}
	}

	conv.Messages = append(conv.Messages,
		model.Message{Role: model.MessageRoleUser, Content: question, Timestamp: now},
		model.Message{Role: model.MessageRoleBot, Content: answer, Timestamp: now},
	)
	conv.LastMessageAt = now

	if err := s.conversations.Upsert(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) indexConversation(ctx context.Context, conv *model.Conversation) {
	if s.es == nil {
		return
	}

	indexCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	docID := conv.UserID + ":" + conv.CourseCode
	if err := s.es.Index(indexCtx, s.esIndex, docID, conv); err != nil {
		util.Warn("Failed to index conversation",
			zap.String("doc_id", docID), zap.Error(err))
	}
}

func (s *ChatService) recordChatEvent(ctx context.Context, event model.ChatEvent) {
	if s.clickhouse == nil {
		return
	}

	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := s.clickhouse.Exec(insertCtx, `
        INSERT INTO chat_events (user_id, course_code, question_chars, answer_chars, latency_ms, occurred_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		event.UserID, event.CourseCode, event.QuestionChars, event.AnswerChars,
		event.LatencyMS, event.OccurredAt,
	)
	if err != nil {
		util.Warn("Failed to record chat event", zap.Error(err))
	}
}
