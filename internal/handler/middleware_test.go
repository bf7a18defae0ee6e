package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"course-admin-service/internal/auth"
	"course-admin-service/internal/crypto"
	"course-admin-service/internal/events"
	"course-admin-service/internal/lockout"
	"course-admin-service/internal/model"
	"course-admin-service/internal/repository/scylla"
	"course-admin-service/internal/service"
)

// memUserRepo is the minimal in-memory store the gate tests need.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (m *memUserRepo) Create(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *user
	m.users[user.UserID] = &clone
	return nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (m *memUserRepo) GetByID(ctx context.Context, userID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (m *memUserRepo) List(ctx context.Context) ([]*model.User, error) { return nil, nil }

func (m *memUserRepo) UpdateApproval(ctx context.Context, userID string, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[userID]; ok {
		user.IsApproved = approved
	}
	return nil
}

func (m *memUserRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return nil
}

func (m *memUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return nil
}

func (m *memUserRepo) CompareAndSwapLoginState(ctx context.Context, userID string, prev, next lockout.State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return false, scylla.ErrNotFound
	}
	if user.LoginAttempts != prev.Attempts || !user.LockUntil.Equal(prev.LockedUntil) {
		return false, nil
	}
	user.LoginAttempts = next.Attempts
	user.LockUntil = next.LockedUntil
	return true, nil
}

func (m *memUserRepo) ForceLoginState(ctx context.Context, userID string, state lockout.State) error {
	return nil
}

func (m *memUserRepo) Delete(ctx context.Context, userID, email string) error { return nil }

func (m *memUserRepo) HealthCheck(ctx context.Context) error { return nil }

type gateFixture struct {
	repo    *memUserRepo
	service *service.AuthService
	clock   time.Time
	clockMu sync.Mutex
}

func (g *gateFixture) now() time.Time {
	g.clockMu.Lock()
	defer g.clockMu.Unlock()
	return g.clock
}

func (g *gateFixture) advance(d time.Duration) {
	g.clockMu.Lock()
	defer g.clockMu.Unlock()
	g.clock = g.clock.Add(d)
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	fx := &gateFixture{
		repo:  &memUserRepo{users: make(map[string]*model.User)},
		clock: time.Now().UTC(),
	}
	issuer := auth.NewIssuer("gate-secret", "course-admin", 24*time.Hour, time.Hour).
		WithClock(fx.now)
	fx.service = service.NewAuthService(
		fx.repo, nil,
		crypto.NewHasher(bcrypt.MinCost),
		issuer,
		lockout.DefaultPolicy,
		events.NewPublisher(nil, ""),
	).WithClock(fx.now)
	return fx
}

func (g *gateFixture) addUser(t *testing.T, userID, role string, approved bool) {
	t.Helper()
	err := g.repo.Create(context.Background(), &model.User{
		UserID:     userID,
		Email:      userID + "@example.com",
		Role:       role,
		IsApproved: approved,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func (g *gateFixture) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	user, err := g.repo.GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	issuer := auth.NewIssuer("gate-secret", "course-admin", 24*time.Hour, time.Hour).
		WithClock(g.now)
	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return token
}

func protectedEcho(fx *gateFixture) http.Handler {
	return Protect(fx.service)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		respondWithJSON(w, http.StatusOK, successResponse(user.UserID, ""))
	}))
}

func doRequest(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestProtectMissingToken(t *testing.T) {
	fx := newGateFixture(t)
	rec := doRequest(protectedEcho(fx), "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProtectGarbageToken(t *testing.T) {
	fx := newGateFixture(t)
	rec := doRequest(protectedEcho(fx), "not-a-token")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Expired {
		t.Fatal("invalid token must not be flagged as expired")
	}
}

func TestProtectValidToken(t *testing.T) {
	fx := newGateFixture(t)
	fx.addUser(t, "u1", model.RoleStandard, true)

	rec := doRequest(protectedEcho(fx), fx.tokenFor(t, "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(NewTokenHeader) != "" {
		t.Fatal("fresh token must not trigger reissue")
	}
}

func TestProtectExpiredTokenFlagged(t *testing.T) {
	fx := newGateFixture(t)
	fx.addUser(t, "u1", model.RoleStandard, true)
	token := fx.tokenFor(t, "u1")

	fx.advance(25 * time.Hour)

	rec := doRequest(protectedEcho(fx), token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !resp.Expired {
		t.Fatal("expired token response must carry expired flag")
	}
}

func TestProtectReissuesNearExpiry(t *testing.T) {
	fx := newGateFixture(t)
	fx.addUser(t, "u1", model.RoleStandard, true)
	token := fx.tokenFor(t, "u1")

	fx.advance(23*time.Hour + 30*time.Minute)

	rec := doRequest(protectedEcho(fx), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	reissued := rec.Header().Get(NewTokenHeader)
	if reissued == "" || reissued == token {
		t.Fatalf("expected a fresh token in %s header", NewTokenHeader)
	}
}

func TestProtectUnapprovedUser(t *testing.T) {
	fx := newGateFixture(t)
	fx.addUser(t, "u1", model.RoleStandard, true)
	token := fx.tokenFor(t, "u1")

	// Approval pulled after the token was minted.
	if err := fx.repo.UpdateApproval(context.Background(), "u1", false); err != nil {
		t.Fatalf("UpdateApproval error: %v", err)
	}

	rec := doRequest(protectedEcho(fx), token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestProtectDeletedUser(t *testing.T) {
	fx := newGateFixture(t)
	fx.addUser(t, "u1", model.RoleStandard, true)
	token := fx.tokenFor(t, "u1")

	fx.repo.mu.Lock()
	delete(fx.repo.users, "u1")
	fx.repo.mu.Unlock()

	rec := doRequest(protectedEcho(fx), token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	fx := newGateFixture(t)
	fx.addUser(t, "admin", model.RoleAdmin, true)
	fx.addUser(t, "student", model.RoleStandard, true)

	handler := Protect(fx.service)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, successResponse(nil, "ok"))
	})))

	if rec := doRequest(handler, fx.tokenFor(t, "student")); rec.Code != http.StatusForbidden {
		t.Fatalf("standard user: status = %d, want 403", rec.Code)
	}
	if rec := doRequest(handler, fx.tokenFor(t, "admin")); rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200", rec.Code)
	}
}
