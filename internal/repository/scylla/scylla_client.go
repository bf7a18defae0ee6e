package scylla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"course-admin-service/internal/config"
	"course-admin-service/internal/util"
)

// ErrNotFound is the only not-found signal repositories surface; driver
// errors never cross the repository boundary.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists signals a lost IF NOT EXISTS race on a unique key.
var ErrAlreadyExists = errors.New("record already exists")

// PreparedStatements holds the statements the repositories execute.
type PreparedStatements struct {
	CreateUser        *gocql.Query
	CreateUserByEmail *gocql.Query
	GetUserByID       *gocql.Query
	GetUserIDByEmail  *gocql.Query
	ListUsers         *gocql.Query
	UpdateApproval    *gocql.Query
	UpdatePassword    *gocql.Query
	UpdateLastLogin   *gocql.Query
	CASLoginState     *gocql.Query
	ForceLoginState   *gocql.Query

	CreateCategory *gocql.Query
	GetCategory    *gocql.Query
	ListCategories *gocql.Query
	UpdateCategory *gocql.Query
	DeleteCategory *gocql.Query

	CreateCourse *gocql.Query
	GetCourse    *gocql.Query
	ListCourses  *gocql.Query
	UpdateCourse *gocql.Query
	DeleteCourse *gocql.Query

	UpsertConversation  *gocql.Query
	GetConversation     *gocql.Query
	ListConversations   *gocql.Query
	DeleteConversations *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_id, email, name, password_hash, role, is_approved,
            login_attempts, lock_until, last_login, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateUserByEmail = s.Session.Query(`
        INSERT INTO users_by_email (email, user_id) VALUES (?, ?) IF NOT EXISTS`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_id, email, name, password_hash, role, is_approved,
            login_attempts, lock_until, last_login, created_at, updated_at
        FROM users WHERE user_id = ?`)

	prepared.GetUserIDByEmail = s.Session.Query(`
        SELECT user_id FROM users_by_email WHERE email = ?`)

	prepared.ListUsers = s.Session.Query(`
        SELECT user_id, email, name, password_hash, role, is_approved,
            login_attempts, lock_until, last_login, created_at, updated_at
        FROM users`)

	prepared.UpdateApproval = s.Session.Query(`
        UPDATE users SET is_approved = ?, updated_at = ? WHERE user_id = ?`)

	prepared.UpdatePassword = s.Session.Query(`
        UPDATE users SET password_hash = ?, updated_at = ? WHERE user_id = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE users SET last_login = ? WHERE user_id = ?`)

	// Lightweight transaction: the lockout state only advances from the
	// snapshot the caller read, so concurrent attempts cannot lose updates.
	prepared.CASLoginState = s.Session.Query(`
        UPDATE users SET login_attempts = ?, lock_until = ?, updated_at = ?
        WHERE user_id = ?
        IF login_attempts = ? AND lock_until = ?`)

	prepared.ForceLoginState = s.Session.Query(`
        UPDATE users SET login_attempts = ?, lock_until = ?, updated_at = ?
        WHERE user_id = ?`)

	prepared.CreateCategory = s.Session.Query(`
        INSERT INTO categories (code, category_id, name, description, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetCategory = s.Session.Query(`
        SELECT code, category_id, name, description, created_at, updated_at
        FROM categories WHERE code = ?`)

	prepared.ListCategories = s.Session.Query(`
        SELECT code, category_id, name, description, created_at, updated_at
        FROM categories`)

	prepared.UpdateCategory = s.Session.Query(`
        UPDATE categories SET name = ?, description = ?, updated_at = ? WHERE code = ?`)

	prepared.DeleteCategory = s.Session.Query(`DELETE FROM categories WHERE code = ?`)

	prepared.CreateCourse = s.Session.Query(`
        INSERT INTO courses (
            code, course_id, name, category_code, api_host, chatbot_id,
            security_key_ciphertext, security_key_dek, security_key_id,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetCourse = s.Session.Query(`
        SELECT code, course_id, name, category_code, api_host, chatbot_id,
            security_key_ciphertext, security_key_dek, security_key_id,
            created_at, updated_at
        FROM courses WHERE code = ?`)

	prepared.ListCourses = s.Session.Query(`
        SELECT code, course_id, name, category_code, api_host, chatbot_id,
            security_key_ciphertext, security_key_dek, security_key_id,
            created_at, updated_at
        FROM courses`)

	prepared.UpdateCourse = s.Session.Query(`
        UPDATE courses SET name = ?, category_code = ?, api_host = ?, chatbot_id = ?,
            security_key_ciphertext = ?, security_key_dek = ?, security_key_id = ?,
            updated_at = ?
        WHERE code = ?`)

	prepared.DeleteCourse = s.Session.Query(`DELETE FROM courses WHERE code = ?`)

	prepared.UpsertConversation = s.Session.Query(`
        INSERT INTO conversations (
            user_id, course_code, conversation_id, messages, last_message_at, created_at
        ) VALUES (?, ?, ?, ?, ?, ?)`)

	prepared.GetConversation = s.Session.Query(`
        SELECT user_id, course_code, conversation_id, messages, last_message_at, created_at
        FROM conversations WHERE user_id = ? AND course_code = ?`)

	prepared.ListConversations = s.Session.Query(`
        SELECT user_id, course_code, conversation_id, messages, last_message_at, created_at
        FROM conversations WHERE user_id = ?`)

	prepared.DeleteConversations = s.Session.Query(`
        DELETE FROM conversations WHERE user_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}
