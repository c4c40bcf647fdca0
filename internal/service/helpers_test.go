package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"peoplegrid_backend/internal/config"
	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/repository"
	"peoplegrid_backend/internal/testsupport"
	"peoplegrid_backend/internal/util"

	"gorm.io/gorm"
)

// fakeConn 记录收到的推送；blocking 时直到 ctx 结束都不接收
type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
	blocking bool
}

func (f *fakeConn) Push(ctx context.Context, payload []byte) error {
	if f.blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return util.ErrConnectionClosed
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (f *fakeConn) frames(t *testing.T, typ string) []json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, p := range f.payloads {
		var fr frame
		if err := json.Unmarshal(p, &fr); err != nil {
			t.Fatalf("Failed to decode pushed frame: %v", err)
		}
		if fr.Type == typ {
			out = append(out, fr.Data)
		}
	}
	return out
}

func (f *fakeConn) statuses(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, raw := range f.frames(t, util.EventUserStatus) {
		var data struct {
			UserID uint   `json:"userId"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			t.Fatalf("Failed to decode status: %v", err)
		}
		out = append(out, data.Status)
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	users     *repository.UserRepository
	friends   *repository.FriendshipRepository
	directory *SessionDirectory
	presence  *PresenceService
	graph     *FriendshipService
	relay     *MessageRelay
	feed      *FeedService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testsupport.NewDB(t)

	cfg := config.Defaults().Chat
	cfg.PushTimeout = 200 * time.Millisecond

	users := repository.NewUserRepository(db)
	friends := repository.NewFriendshipRepository(db, nil)
	directory := NewSessionDirectory()

	return &testEnv{
		db:        db,
		users:     users,
		friends:   friends,
		directory: directory,
		presence:  NewPresenceService(directory, friends, users, cfg.PushTimeout),
		graph:     NewFriendshipService(friends, users, directory),
		relay:     NewMessageRelay(repository.NewChatRepository(db), friends, directory, cfg),
		feed:      NewFeedService(repository.NewPostRepository(db), repository.NewCommentRepository(db)),
	}
}

func (e *testEnv) user(t *testing.T, id uint, username string) {
	t.Helper()
	if err := e.users.EnsureExists(context.Background(), &model.User{ID: id, Username: username}); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
}

func (e *testEnv) befriend(t *testing.T, a, b uint) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.graph.Request(ctx, a, b); err != nil {
		t.Fatalf("Request %d->%d failed: %v", a, b, err)
	}
	if _, err := e.graph.Accept(ctx, a, b); err != nil {
		t.Fatalf("Accept %d->%d failed: %v", a, b, err)
	}
}
