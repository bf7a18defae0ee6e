package auth

import (
	"errors"
	"testing"
	"time"

	"course-admin-service/internal/model"
)

func testUser() *model.User {
	return &model.User{
		UserID: "user-1",
		Email:  "student@example.com",
		Role:   model.RoleStandard,
	}
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("test-secret", "course-admin", 24*time.Hour, time.Hour)

	token, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Email != "student@example.com" {
		t.Fatalf("Email = %q", claims.Email)
	}
	if claims.Role != model.RoleStandard {
		t.Fatalf("Role = %q", claims.Role)
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	start := time.Now()
	issuer := NewIssuer("test-secret", "course-admin", 24*time.Hour, time.Hour).
		WithClock(func() time.Time { return start })

	token, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Advance past the lifetime.
	issuer.WithClock(func() time.Time { return start.Add(25 * time.Hour) })

	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("right-secret", "course-admin", 24*time.Hour, time.Hour)
	token, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	other := NewIssuer("wrong-secret", "course-admin", 24*time.Hour, time.Hour)
	_, err = other.Verify(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer("test-secret", "course-admin", 24*time.Hour, time.Hour)
	_, err := issuer.Verify("not.a.jwt")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestNeedsRefresh(t *testing.T) {
	t.Parallel()

	start := time.Now()
	issuer := NewIssuer("test-secret", "course-admin", 24*time.Hour, time.Hour).
		WithClock(func() time.Time { return start })

	token, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	// Fresh token, well above the threshold.
	if issuer.NeedsRefresh(claims) {
		t.Fatal("fresh token should not need refresh")
	}

	// 23h30m in: thirty minutes left, inside the one hour threshold.
	issuer.WithClock(func() time.Time { return start.Add(23*time.Hour + 30*time.Minute) })
	if !issuer.NeedsRefresh(claims) {
		t.Fatal("token inside refresh threshold should need refresh")
	}

	// Still verifiable at that point.
	if _, err := issuer.Verify(token); err != nil {
		t.Fatalf("token inside threshold must still verify: %v", err)
	}
}

func TestExpiredExactlyAtBoundaryStillValid(t *testing.T) {
	t.Parallel()

	start := time.Now()
	issuer := NewIssuer("test-secret", "course-admin", time.Hour, time.Minute).
		WithClock(func() time.Time { return start })

	token, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// One second before expiry.
	issuer.WithClock(func() time.Time { return start.Add(time.Hour - time.Second) })
	if _, err := issuer.Verify(token); err != nil {
		t.Fatalf("token just before expiry must verify: %v", err)
	}
}
