package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"course-admin-service/internal/client"
	"course-admin-service/internal/config"
	"course-admin-service/internal/encryption"
	"course-admin-service/internal/model"
	redisrepo "course-admin-service/internal/repository/redis"
	"course-admin-service/internal/repository/scylla"
	"course-admin-service/internal/util"
)

type fakeCatalogRepo struct {
	mu         sync.Mutex
	categories map[string]*model.Category
	courses    map[string]*model.Course
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		categories: make(map[string]*model.Category),
		courses:    make(map[string]*model.Course),
	}
}

func (f *fakeCatalogRepo) CreateCategory(ctx context.Context, category *model.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.categories[category.Code]; exists {
		return scylla.ErrAlreadyExists
	}
	clone := *category
	f.categories[category.Code] = &clone
	return nil
}

func (f *fakeCatalogRepo) GetCategory(ctx context.Context, code string) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	category, ok := f.categories[code]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	clone := *category
	return &clone, nil
}

func (f *fakeCatalogRepo) ListCategories(ctx context.Context) ([]*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Category, 0, len(f.categories))
	for _, category := range f.categories {
		clone := *category
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeCatalogRepo) UpdateCategory(ctx context.Context, category *model.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *category
	f.categories[category.Code] = &clone
	return nil
}

func (f *fakeCatalogRepo) DeleteCategory(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.categories, code)
	return nil
}

func (f *fakeCatalogRepo) CreateCourse(ctx context.Context, course *model.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.courses[course.Code]; exists {
		return scylla.ErrAlreadyExists
	}
	clone := *course
	f.courses[course.Code] = &clone
	return nil
}

func (f *fakeCatalogRepo) GetCourse(ctx context.Context, code string) (*model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	course, ok := f.courses[code]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	clone := *course
	return &clone, nil
}

func (f *fakeCatalogRepo) ListCourses(ctx context.Context) ([]*model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Course, 0, len(f.courses))
	for _, course := range f.courses {
		clone := *course
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeCatalogRepo) UpdateCourse(ctx context.Context, course *model.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *course
	f.courses[course.Code] = &clone
	return nil
}

func (f *fakeCatalogRepo) DeleteCourse(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.courses, code)
	return nil
}

func (f *fakeCatalogRepo) HealthCheck(ctx context.Context) error { return nil }

type fakeConversationRepo struct {
	mu    sync.Mutex
	store map[string]*model.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{store: make(map[string]*model.Conversation)}
}

func (f *fakeConversationRepo) key(userID, courseCode string) string {
	return userID + "/" + courseCode
}

func (f *fakeConversationRepo) Get(ctx context.Context, userID, courseCode string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.store[f.key(userID, courseCode)]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	clone := *conv
	clone.Messages = append([]model.Message(nil), conv.Messages...)
	return &clone, nil
}

func (f *fakeConversationRepo) Upsert(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *conv
	clone.Messages = append([]model.Message(nil), conv.Messages...)
	f.store[f.key(conv.UserID, conv.CourseCode)] = &clone
	return nil
}

func (f *fakeConversationRepo) ListByUser(ctx context.Context, userID string) ([]*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Conversation
	for _, conv := range f.store {
		if conv.UserID == userID {
			clone := *conv
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) DeleteByUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, conv := range f.store {
		if conv.UserID == userID {
			delete(f.store, key)
		}
	}
	return nil
}

// upstreamBot fakes the course chatbot API and records what it saw.
type upstreamBot struct {
	t           *testing.T
	securityKey string
	answer      string

	mu        sync.Mutex
	questions []string
}

func (b *upstreamBot) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+b.securityKey {
			b.t.Errorf("Authorization = %q, want bearer with decrypted key", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.questions = append(b.questions, req.Question)
		b.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"answer": b.answer})
	}
}

func newChatFixture(t *testing.T, bot *upstreamBot) (*ChatService, *fakeConversationRepo, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(bot.handler())
	t.Cleanup(server.Close)

	cfg := &config.Config{Environment: "development"}
	manager, err := encryption.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	catalog := newFakeCatalogRepo()
	courses := NewCourseService(catalog, manager, redisrepo.NewCatalogCache(nil))

	ctx := context.Background()
	if _, err := courses.CreateCategory(ctx, "prog", "Programming", ""); err != nil {
		t.Fatalf("CreateCategory error: %v", err)
	}
	_, err = courses.CreateCourse(ctx, CourseInput{
		Code:         "go101",
		Name:         "Intro to Go",
		CategoryCode: "prog",
		APIHost:      server.URL,
		ChatbotID:    "bot-1",
		SecurityKey:  bot.securityKey,
	})
	if err != nil {
		t.Fatalf("CreateCourse error: %v", err)
	}

	convs := newFakeConversationRepo()
	chat := NewChatService(
		courses,
		convs,
		client.NewChatbotClient(5*time.Second, util.Get()),
		redisrepo.NewRateLimiter(nil, 30, time.Minute),
		nil, nil, "conversations",
	)
	return chat, convs, server
}

func TestAskProxiesAndPersists(t *testing.T) {
	bot := &upstreamBot{t: t, securityKey: "sk-secret", answer: "Goroutines are cheap."}
	chat, convs, _ := newChatFixture(t, bot)
	user := &model.User{UserID: "u1", Role: model.RoleStandard, IsApproved: true}
	ctx := context.Background()

	answer, err := chat.Ask(ctx, user, "go101", "What is a goroutine?")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if answer != "Goroutines are cheap." {
		t.Fatalf("answer = %q", answer)
	}

	conv, err := convs.Get(ctx, "u1", "go101")
	if err != nil {
		t.Fatalf("Get conversation error: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Role != model.MessageRoleUser || conv.Messages[1].Role != model.MessageRoleBot {
		t.Fatalf("unexpected roles: %q %q", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if conv.Messages[1].Content != "Goroutines are cheap." {
		t.Fatalf("bot message = %q", conv.Messages[1].Content)
	}
}

func TestAskAppendsToExistingTranscript(t *testing.T) {
	bot := &upstreamBot{t: t, securityKey: "sk-secret", answer: "Channels synchronize."}
	chat, convs, _ := newChatFixture(t, bot)
	user := &model.User{UserID: "u1", Role: model.RoleStandard, IsApproved: true}
	ctx := context.Background()

	if _, err := chat.Ask(ctx, user, "go101", "first"); err != nil {
		t.Fatalf("first Ask error: %v", err)
	}
	if _, err := chat.Ask(ctx, user, "go101", "second"); err != nil {
		t.Fatalf("second Ask error: %v", err)
	}

	conv, err := convs.Get(ctx, "u1", "go101")
	if err != nil {
		t.Fatalf("Get conversation error: %v", err)
	}
	if len(conv.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(conv.Messages))
	}
}

func TestAskUnknownCourse(t *testing.T) {
	bot := &upstreamBot{t: t, securityKey: "sk-secret", answer: "n/a"}
	chat, _, _ := newChatFixture(t, bot)
	user := &model.User{UserID: "u1"}

	_, err := chat.Ask(context.Background(), user, "missing", "hello?")
	if !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestAskUpstreamFailure(t *testing.T) {
	bot := &upstreamBot{t: t, securityKey: "sk-secret", answer: "n/a"}
	chat, _, server := newChatFixture(t, bot)
	user := &model.User{UserID: "u1"}

	server.Close()

	_, err := chat.Ask(context.Background(), user, "go101", "anyone home?")
	if !errors.Is(err, ErrChatUnavailable) {
		t.Fatalf("expected ErrChatUnavailable, got %v", err)
	}
}

func TestGetConversationEmptyForNewUser(t *testing.T) {
	bot := &upstreamBot{t: t, securityKey: "sk-secret", answer: "n/a"}
	chat, _, _ := newChatFixture(t, bot)

	conv, err := chat.GetConversation(context.Background(), "nobody", "go101")
	if err != nil {
		t.Fatalf("GetConversation error: %v", err)
	}
	if len(conv.Messages) != 0 {
		t.Fatalf("messages = %d, want 0", len(conv.Messages))
	}
}

func TestSecurityKeyRoundTrip(t *testing.T) {
	cfg := &config.Config{Environment: "development"}
	manager, err := encryption.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	catalog := newFakeCatalogRepo()
	courses := NewCourseService(catalog, manager, redisrepo.NewCatalogCache(nil))
	ctx := context.Background()

	if _, err := courses.CreateCategory(ctx, "prog", "Programming", ""); err != nil {
		t.Fatalf("CreateCategory error: %v", err)
	}
	created, err := courses.CreateCourse(ctx, CourseInput{
		Code:         "go101",
		Name:         "Intro to Go",
		CategoryCode: "prog",
		APIHost:      "https://bots.example.com",
		ChatbotID:    "bot-1",
		SecurityKey:  "plaintext-key",
	})
	if err != nil {
		t.Fatalf("CreateCourse error: %v", err)
	}

	// The stored form must not contain the plaintext.
	if created.SecurityKey.Ciphertext == "plaintext-key" || created.SecurityKey.Ciphertext == "" {
		t.Fatalf("security key not encrypted: %q", created.SecurityKey.Ciphertext)
	}

	loaded, err := courses.GetCourse(ctx, "go101")
	if err != nil {
		t.Fatalf("GetCourse error: %v", err)
	}
	key, err := courses.DecryptSecurityKey(ctx, loaded)
	if err != nil {
		t.Fatalf("DecryptSecurityKey error: %v", err)
	}
	if key != "plaintext-key" {
		t.Fatalf("decrypted key = %q", key)
	}
}
