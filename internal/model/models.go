package model

import "time"

// Role determines what the authorization gate allows.
const (
	RoleStandard = "standard"
	RoleAdmin    = "admin"
)

// User is the credential-store record. LoginAttempts and LockUntil are
// owned by the lockout state machine; nothing else may write them.
type User struct {
	UserID        string     `json:"id" db:"user_id"`
	Email         string     `json:"email" db:"email"`
	Name          string     `json:"name" db:"name"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Role          string     `json:"role" db:"role"`
	IsApproved    bool       `json:"is_approved" db:"is_approved"`
	LoginAttempts int        `json:"-" db:"login_attempts"`
	LockUntil     time.Time  `json:"-" db:"lock_until"`
	LastLogin     *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Category groups courses in the catalog.
type Category struct {
	CategoryID  string    `json:"id" db:"category_id"`
	Code        string    `json:"code" db:"code"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Course carries the upstream chatbot wiring for one course. The security
// key is envelope-encrypted at rest and never serialized to clients.
type Course struct {
	CourseID     string    `json:"id" db:"course_id"`
	Code         string    `json:"code" db:"code"`
	Name         string    `json:"name" db:"name"`
	CategoryCode string    `json:"category_code" db:"category_code"`
	APIHost      string    `json:"api_host" db:"api_host"`
	ChatbotID    string    `json:"chatbot_id" db:"chatbot_id"`
	SecurityKey  Encrypted `json:"-" db:"security_key"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Encrypted is an envelope-encrypted field as stored.
type Encrypted struct {
	Ciphertext   string `json:"ciphertext" db:"ciphertext"`
	EncryptedDEK string `json:"encrypted_dek" db:"encrypted_dek"`
	KeyID        string `json:"key_id" db:"key_id"`
}

// Message roles within a conversation.
const (
	MessageRoleUser = "user"
	MessageRoleBot  = "bot"
)

type Message struct {
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Conversation is one user's transcript for one course.
type Conversation struct {
	ConversationID string    `json:"id" db:"conversation_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	CourseCode     string    `json:"course_code" db:"course_code"`
	Messages       []Message `json:"messages" db:"messages"`
	LastMessageAt  time.Time `json:"last_message_at" db:"last_message_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// SecurityEvent is published to Kafka for the audit trail.
type SecurityEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Security event types.
const (
	EventLoginFailed    = "login_failed"
	EventLoginSucceeded = "login_succeeded"
	EventAccountLocked  = "account_locked"
	EventUserApproved   = "user_approved"
	EventUserBanned     = "user_banned"
	EventUserUnbanned   = "user_unbanned"
	EventUserDeleted    = "user_deleted"
	EventPasswordChange = "password_changed"
)

// ChatEvent is the analytics record inserted into ClickHouse per exchange.
type ChatEvent struct {
	UserID        string
	CourseCode    string
	QuestionChars int
	AnswerChars   int
	LatencyMS     int64
	OccurredAt    time.Time
}
