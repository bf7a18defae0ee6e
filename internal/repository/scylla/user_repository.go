package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"course-admin-service/internal/lockout"
	"course-admin-service/internal/model"
	"course-admin-service/internal/util"
)

// UserRepository is the credential store contract the services depend on.
// The login-state methods are the only write path for the lockout fields.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, userID string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	UpdateApproval(ctx context.Context, userID string, approved bool) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	CompareAndSwapLoginState(ctx context.Context, userID string, prev, next lockout.State) (bool, error)
	ForceLoginState(ctx context.Context, userID string, state lockout.State) error
	Delete(ctx context.Context, userID, email string) error
	HealthCheck(ctx context.Context) error
}

type userRepository struct {
	client *ScyllaClient
}

func NewUserRepository(client *ScyllaClient) UserRepository {
	return &userRepository{client: client}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	// Claim the email first; the mapping insert is the uniqueness guard.
	applied, err := r.client.Prepared.CreateUserByEmail.WithContext(ctx).
		Bind(user.Email, user.UserID).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	if !applied {
		return ErrAlreadyExists
	}

	if err := r.client.Prepared.CreateUser.WithContext(ctx).Bind(
		user.UserID, user.Email, user.Name, user.PasswordHash, user.Role,
		user.IsApproved, user.LoginAttempts, user.LockUntil, user.LastLogin,
		user.CreatedAt, user.UpdatedAt,
	).Exec(); err != nil {
		util.Error("Failed to create user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.String("role", user.Role))
	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var userID string
	err := r.client.Prepared.GetUserIDByEmail.WithContext(ctx).Bind(email).Scan(&userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return r.GetByID(ctx, userID)
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	user := &model.User{}
	var lastLogin time.Time

	err := r.client.Prepared.GetUserByID.WithContext(ctx).Bind(userID).Scan(
		&user.UserID, &user.Email, &user.Name, &user.PasswordHash, &user.Role,
		&user.IsApproved, &user.LoginAttempts, &user.LockUntil, &lastLogin,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !lastLogin.IsZero() {
		user.LastLogin = &lastLogin
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	iter := r.client.Prepared.ListUsers.WithContext(ctx).Iter()

	var users []*model.User
	for {
		user := &model.User{}
		var lastLogin time.Time
		if !iter.Scan(
			&user.UserID, &user.Email, &user.Name, &user.PasswordHash, &user.Role,
			&user.IsApproved, &user.LoginAttempts, &user.LockUntil, &lastLogin,
			&user.CreatedAt, &user.UpdatedAt,
		) {
			break
		}
		if !lastLogin.IsZero() {
			user.LastLogin = &lastLogin
		}
		users = append(users, user)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *userRepository) UpdateApproval(ctx context.Context, userID string, approved bool) error {
	if err := r.client.Prepared.UpdateApproval.WithContext(ctx).
		Bind(approved, time.Now().UTC(), userID).Exec(); err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}
	return nil
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	if err := r.client.Prepared.UpdatePassword.WithContext(ctx).
		Bind(passwordHash, time.Now().UTC(), userID).Exec(); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	if err := r.client.Prepared.UpdateLastLogin.WithContext(ctx).
		Bind(at.UTC(), userID).Exec(); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// CompareAndSwapLoginState advances the lockout fields only if they still
// match the snapshot the caller read. Returns false when another attempt
// got there first; the caller re-reads and retries.
func (r *userRepository) CompareAndSwapLoginState(ctx context.Context, userID string, prev, next lockout.State) (bool, error) {
	applied, err := r.client.Prepared.CASLoginState.WithContext(ctx).Bind(
		next.Attempts, next.LockedUntil, time.Now().UTC(), userID,
		prev.Attempts, prev.LockedUntil,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Login state CAS failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return false, fmt.Errorf("failed to update login state: %w", err)
	}
	return applied, nil
}

func (r *userRepository) ForceLoginState(ctx context.Context, userID string, state lockout.State) error {
	if err := r.client.Prepared.ForceLoginState.WithContext(ctx).
		Bind(state.Attempts, state.LockedUntil, time.Now().UTC(), userID).Exec(); err != nil {
		return fmt.Errorf("failed to force login state: %w", err)
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, userID, email string) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM users WHERE user_id = ?`, userID)
	batch.Query(`DELETE FROM users_by_email WHERE email = ?`, email)
	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	util.Info("User deleted", zap.String("user_id", userID))
	return nil
}

func (r *userRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
