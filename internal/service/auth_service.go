package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"course-admin-service/internal/auth"
	"course-admin-service/internal/crypto"
	"course-admin-service/internal/events"
	"course-admin-service/internal/lockout"
	"course-admin-service/internal/model"
	"course-admin-service/internal/repository/scylla"
	"course-admin-service/internal/util"
)

// Service-level errors the handlers translate to status codes. Bad email
// and bad password are deliberately the same error so responses cannot be
// used to probe which addresses exist.
var (
	ErrBadCredentials    = errors.New("invalid email or password")
	ErrAccountUnapproved = errors.New("account pending approval")
	ErrEmailTaken        = errors.New("email already registered")
	ErrUserNotFound      = errors.New("user not found")
	ErrForbidden         = errors.New("operation not allowed")
)

// AccountLockedError carries how long the caller has to wait, rounded up
// to whole minutes for the response body.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	minutes := int((e.RetryAfter + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("account locked, try again in %d minutes", minutes)
}

func (e *AccountLockedError) Minutes() int {
	return int((e.RetryAfter + time.Minute - 1) / time.Minute)
}

// casRetries bounds the read-transition-swap loop under write contention.
const casRetries = 5

type AuthService struct {
	users     scylla.UserRepository
	convs     scylla.ConversationRepository
	hasher    *crypto.Hasher
	issuer    *auth.Issuer
	policy    lockout.Policy
	publisher *events.Publisher
	now       func() time.Time
}

func NewAuthService(
	users scylla.UserRepository,
	convs scylla.ConversationRepository,
	hasher *crypto.Hasher,
	issuer *auth.Issuer,
	policy lockout.Policy,
	publisher *events.Publisher,
) *AuthService {
	return &AuthService{
		users:     users,
		convs:     convs,
		hasher:    hasher,
		issuer:    issuer,
		policy:    policy,
		publisher: publisher,
		now:       time.Now,
	}
}

// WithClock overrides the clock for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Register creates an unapproved standard account. An admin must approve
// it before login succeeds.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	email = normalizeEmail(email)

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		UserID:       uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleStandard,
		IsApproved:   false,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, scylla.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	util.Info("User registered",
		zap.String("user_id", user.UserID),
		zap.String("email", email))
	return user, nil
}

// Login authenticates the credentials and returns the account with a fresh
// token. Every failure path updates the lockout state through a
// compare-and-swap so concurrent attempts never lose a count.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	email = normalizeEmail(email)
	now := s.now().UTC()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.publisher.Publish(ctx, model.SecurityEvent{
				Type: model.EventLoginFailed, Email: email, Detail: "unknown email",
			})
			return nil, "", ErrBadCredentials
		}
		return nil, "", err
	}

	state := lockout.State{Attempts: user.LoginAttempts, LockedUntil: user.LockUntil}
	if state.Locked(now) {
		return nil, "", &AccountLockedError{RetryAfter: state.Remaining(now)}
	}

	// Admins stay in regardless of approval; everyone else waits for it.
	if !user.IsApproved && !user.IsAdmin() {
		return nil, "", ErrAccountUnapproved
	}

	if err := s.hasher.CheckPassword(user.PasswordHash, password); err != nil {
		newState, casErr := s.recordFailure(ctx, user.UserID, now)
		if casErr != nil {
			return nil, "", casErr
		}

		s.publisher.Publish(ctx, model.SecurityEvent{
			Type: model.EventLoginFailed, UserID: user.UserID, Email: email,
		})

		if newState.Locked(now) {
			util.Warn("Account locked after repeated failures",
				zap.String("user_id", user.UserID),
				zap.Int("attempts", newState.Attempts))
			s.publisher.Publish(ctx, model.SecurityEvent{
				Type: model.EventAccountLocked, UserID: user.UserID, Email: email,
			})
			return nil, "", &AccountLockedError{RetryAfter: newState.Remaining(now)}
		}
		return nil, "", ErrBadCredentials
	}

	if err := s.recordSuccess(ctx, user.UserID, state); err != nil {
		return nil, "", err
	}
	if err := s.users.UpdateLastLogin(ctx, user.UserID, now); err != nil {
		util.Warn("Failed to record last login",
			zap.String("user_id", user.UserID), zap.Error(err))
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	user.LoginAttempts = 0
	user.LockUntil = time.Time{}
	user.LastLogin = &now

	s.publisher.Publish(ctx, model.SecurityEvent{
		Type: model.EventLoginSucceeded, UserID: user.UserID, Email: email,
	})
	return user, token, nil
}

// recordFailure advances the failure count with optimistic concurrency:
// read the current state, compute the transition, swap only if unchanged,
// otherwise re-read and try again.
func (s *AuthService) recordFailure(ctx context.Context, userID string, now time.Time) (lockout.State, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return lockout.State{}, err
		}

		prev := lockout.State{Attempts: user.LoginAttempts, LockedUntil: user.LockUntil}
		next := s.policy.Fail(prev, now)

		applied, err := s.users.CompareAndSwapLoginState(ctx, userID, prev, next)
		if err != nil {
			return lockout.State{}, err
		}
		if applied {
			return next, nil
		}
	}
	return lockout.State{}, fmt.Errorf("login state contention for user %s", userID)
}

func (s *AuthService) recordSuccess(ctx context.Context, userID string, prev lockout.State) error {
	if prev.Attempts == 0 && prev.LockedUntil.IsZero() {
		return nil
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		applied, err := s.users.CompareAndSwapLoginState(ctx, userID, prev, s.policy.Succeed())
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		prev = lockout.State{Attempts: user.LoginAttempts, LockedUntil: user.LockUntil}
	}
	return fmt.Errorf("login state contention for user %s", userID)
}

// VerifyToken validates the bearer token and loads the live account, so a
// ban or approval change takes effect on the very next request. When the
// token is inside the refresh threshold a replacement is returned too.
func (s *AuthService) VerifyToken(ctx context.Context, tokenString string) (*model.User, string, error) {
	claims, err := s.issuer.Verify(tokenString)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, "", auth.ErrTokenInvalid
		}
		return nil, "", err
	}

	if !user.IsApproved && !user.IsAdmin() {
		return nil, "", ErrAccountUnapproved
	}

	var reissued string
	if s.issuer.NeedsRefresh(claims) {
		reissued, err = s.issuer.Issue(user)
		if err != nil {
			util.Warn("Failed to reissue token",
				zap.String("user_id", user.UserID), zap.Error(err))
			reissued = ""
		}
	}
	return user, reissued, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword requires the current password before accepting a new one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.hasher.CheckPassword(user.PasswordHash, current); err != nil {
		return ErrBadCredentials
	}

	hash, err := s.hasher.HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}

	s.publisher.Publish(ctx, model.SecurityEvent{
		Type: model.EventPasswordChange, UserID: userID, Email: user.Email,
	})
	return nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.users.List(ctx)
}

// Approve lets a pending account log in and wipes any lock it picked up
// while waiting.
func (s *AuthService) Approve(ctx context.Context, actorID, userID string) error {
	user, err := s.loadTarget(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.users.UpdateApproval(ctx, userID, true); err != nil {
		return err
	}
	if err := s.users.ForceLoginState(ctx, userID, s.policy.Succeed()); err != nil {
		return err
	}

	s.publisher.Publish(ctx, model.SecurityEvent{
		Type: model.EventUserApproved, UserID: userID, Email: user.Email, ActorID: actorID,
	})
	return nil
}

// Ban revokes approval and locks the account immediately, as if it had
// just exhausted its attempts.
func (s *AuthService) Ban(ctx context.Context, actorID, userID string) error {
	user, err := s.loadTarget(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return ErrForbidden
	}

	if err := s.users.UpdateApproval(ctx, userID, false); err != nil {
		return err
	}
	if err := s.users.ForceLoginState(ctx, userID, s.policy.Banned(s.now().UTC())); err != nil {
		return err
	}

	util.Warn("User banned",
		zap.String("user_id", userID),
		zap.String("actor_id", actorID))
	s.publisher.Publish(ctx, model.SecurityEvent{
		Type: model.EventUserBanned, UserID: userID, Email: user.Email, ActorID: actorID,
	})
	return nil
}

func (s *AuthService) Unban(ctx context.Context, actorID, userID string) error {
	user, err := s.loadTarget(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.users.UpdateApproval(ctx, userID, true); err != nil {
		return err
	}
	if err := s.users.ForceLoginState(ctx, userID, s.policy.Succeed()); err != nil {
		return err
	}

	s.publisher.Publish(ctx, model.SecurityEvent{
		Type: model.EventUserUnbanned, UserID: userID, Email: user.Email, ActorID: actorID,
	})
	return nil
}

// Delete removes the account and its conversations. Admins cannot delete
// themselves or each other through this path.
func (s *AuthService) Delete(ctx context.Context, actorID, userID string) error {
	user, err := s.loadTarget(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return ErrForbidden
	}

	if err := s.users.Delete(ctx, userID, user.Email); err != nil {
		return err
	}
	if s.convs != nil {
		if err := s.convs.DeleteByUser(ctx, userID); err != nil {
			util.Warn("Failed to delete conversations for removed user",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	s.publisher.Publish(ctx, model.SecurityEvent{
		Type: model.EventUserDeleted, UserID: userID, Email: user.Email, ActorID: actorID,
	})
	return nil
}

// EnsureAdminUser creates the bootstrap admin from configuration when it
// does not exist yet. Safe to call on every startup.
func (s *AuthService) EnsureAdminUser(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	email = normalizeEmail(email)

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, scylla.ErrNotFound) {
		return err
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &model.User{
		UserID:       uuid.New().String(),
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsApproved:   true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		if errors.Is(err, scylla.ErrAlreadyExists) {
			return nil
		}
		return err
	}

	util.Info("Bootstrap admin created", zap.String("email", email))
	return nil
}

func (s *AuthService) loadTarget(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
