package scylla

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gocql/gocql"

	"course-admin-service/internal/model"
)

// ConversationRepository stores chat transcripts keyed by user and course.
// Messages are serialized as a JSON text column; transcripts are small and
// always read whole.
type ConversationRepository interface {
	Get(ctx context.Context, userID, courseCode string) (*model.Conversation, error)
	Upsert(ctx context.Context, conversation *model.Conversation) error
	ListByUser(ctx context.Context, userID string) ([]*model.Conversation, error)
	DeleteByUser(ctx context.Context, userID string) error
}

type conversationRepository struct {
	client *ScyllaClient
}

func NewConversationRepository(client *ScyllaClient) ConversationRepository {
	return &conversationRepository{client: client}
}

func (r *conversationRepository) Get(ctx context.Context, userID, courseCode string) (*model.Conversation, error) {
	conv := &model.Conversation{}
	var messagesJSON string

	err := r.client.Prepared.GetConversation.WithContext(ctx).Bind(userID, courseCode).Scan(
		&conv.UserID, &conv.CourseCode, &conv.ConversationID,
		&messagesJSON, &conv.LastMessageAt, &conv.CreatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if messagesJSON != "" {
		if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode conversation messages: %w", err)
		}
	}
	return conv, nil
}

func (r *conversationRepository) Upsert(ctx context.Context, conversation *model.Conversation) error {
	messagesJSON, err := json.Marshal(conversation.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode conversation messages: %w", err)
	}

	if err := r.client.Prepared.UpsertConversation.WithContext(ctx).Bind(
		conversation.UserID, conversation.CourseCode, conversation.ConversationID,
		string(messagesJSON), conversation.LastMessageAt, conversation.CreatedAt,
	).Exec(); err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return nil
}

func (r *conversationRepository) ListByUser(ctx context.Context, userID string) ([]*model.Conversation, error) {
	iter := r.client.Prepared.ListConversations.WithContext(ctx).Bind(userID).Iter()

	var conversations []*model.Conversation
	for {
		conv := &model.Conversation{}
		var messagesJSON string
		if !iter.Scan(
			&conv.UserID, &conv.CourseCode, &conv.ConversationID,
			&messagesJSON, &conv.LastMessageAt, &conv.CreatedAt,
		) {
			break
		}
		if messagesJSON != "" {
			if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
				return nil, fmt.Errorf("failed to decode conversation messages: %w", err)
			}
		}
		conversations = append(conversations, conv)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

func (r *conversationRepository) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.client.Prepared.DeleteConversations.WithContext(ctx).Bind(userID).Exec(); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	return nil
}
