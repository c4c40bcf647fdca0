package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"peoplegrid_backend/internal/config"
	"peoplegrid_backend/internal/middleware"
	"peoplegrid_backend/internal/repository"
	"peoplegrid_backend/internal/service"
	"peoplegrid_backend/internal/testsupport"
	"peoplegrid_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const testSecret = "controller-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router    *gin.Engine
	tokens    map[uint]string
	uploadDir string
	hub       *service.ChatHub
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testsupport.NewDB(t)
	cfg := config.Defaults()
	cfg.Storage.LocalPath = t.TempDir()
	cfg.Chat.PushTimeout = 500 * time.Millisecond
	if tweak != nil {
		tweak(cfg)
	}

	userRepo := repository.NewUserRepository(db)
	friendRepo := repository.NewFriendshipRepository(db, nil)
	directory := service.NewSessionDirectory()
	users := service.NewUserService(userRepo)
	friends := service.NewFriendshipService(friendRepo, userRepo, directory)
	feed := service.NewFeedService(repository.NewPostRepository(db), repository.NewCommentRepository(db))
	presence := service.NewPresenceService(directory, friendRepo, userRepo, cfg.Chat.PushTimeout)
	relay := service.NewMessageRelay(repository.NewChatRepository(db), friends, directory, cfg.Chat)
	storage := service.NewStorageService(&cfg.Storage)

	userCtrl := NewUserController(users, storage)
	friendCtrl := NewFriendshipController(friends)
	hub := service.NewChatHub(presence, relay, cfg.Chat)
	chatCtrl := NewChatController(relay, hub)
	feedCtrl := NewFeedController(feed, storage)

	r := gin.New()
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(testSecret), middleware.IdentityMiddleware(users))
	api.GET("/profile", userCtrl.GetProfile)
	api.PUT("/profile", userCtrl.UpdateProfile)
	api.GET("/friends/list", friendCtrl.ListFriends)
	api.GET("/friends/pending", friendCtrl.ListPending)
	api.POST("/friends/request/:id", friendCtrl.SendRequest)
	api.PUT("/friends/accept/:id", friendCtrl.Accept)
	api.GET("/chat/ws", chatCtrl.HandleWS)
	api.GET("/messages/:userId", chatCtrl.GetHistory)
	api.POST("/messages/:userId", chatCtrl.SendMessage)
	api.GET("/posts", feedCtrl.ListPosts)
	api.POST("/posts", feedCtrl.CreatePost)
	api.POST("/posts/:id/like", feedCtrl.ToggleLike)
	api.POST("/posts/:id/comments", feedCtrl.AddComment)
	api.DELETE("/posts/:id/comments/:commentId", feedCtrl.DeleteComment)

	s := &testServer{router: r, tokens: map[uint]string{}, uploadDir: cfg.Storage.LocalPath, hub: hub}
	for id, name := range map[uint]string{1: "ada", 2: "grace", 3: "linus"} {
		token, err := util.GenerateJWT(id, name, testSecret, time.Hour)
		if err != nil {
			t.Fatalf("Failed to sign token: %v", err)
		}
		s.tokens[id] = token
		// 先访问一次以建立用户记录
		s.do(t, id, http.MethodGet, "/api/profile", nil)
	}
	return s
}

func (s *testServer) do(t *testing.T, as uint, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.tokens[as])
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, env
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, 1, http.MethodPut, "/api/profile", map[string]interface{}{"bio": "hello", "pronouns": "she/her"})
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from profile update, got %d (%s)", code, env.Message)
	}

	code, env = s.do(t, 1, http.MethodGet, "/api/profile", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from profile read, got %d", code)
	}
	var profile struct {
		Username string `json:"username"`
		Bio      string `json:"bio"`
		Pronouns string `json:"pronouns"`
	}
	json.Unmarshal(env.Data, &profile)
	if profile.Username != "ada" || profile.Bio != "hello" || profile.Pronouns != "she/her" {
		t.Errorf("Expected updated profile, got %+v", profile)
	}

	code, _ = s.do(t, 1, http.MethodPut, "/api/profile", map[string]interface{}{"username": "grace"})
	if code != http.StatusConflict {
		t.Errorf("Expected 409 for taken username, got %d", code)
	}
}

func TestFriendshipGatesMessaging(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, 1, http.MethodPost, "/api/messages/2", map[string]string{"text": "hi"})
	if code != http.StatusForbidden {
		t.Errorf("Expected 403 before friendship, got %d", code)
	}

	if code, env := s.do(t, 1, http.MethodPost, "/api/friends/request/2", nil); code != http.StatusCreated {
		t.Fatalf("Expected 201 from friend request, got %d (%s)", code, env.Message)
	}
	if code, _ := s.do(t, 2, http.MethodPost, "/api/friends/request/1", nil); code != http.StatusConflict {
		t.Errorf("Expected 409 for reverse request, got %d", code)
	}
	if code, _ := s.do(t, 1, http.MethodPost, "/api/friends/request/1", nil); code != http.StatusConflict {
		t.Errorf("Expected 409 for self request, got %d", code)
	}

	_, env := s.do(t, 2, http.MethodGet, "/api/friends/pending", nil)
	var pending []service.PendingRequest
	json.Unmarshal(env.Data, &pending)
	if len(pending) != 1 || pending[0].Requester.ID != 1 {
		t.Fatalf("Expected one pending request from user 1, got %+v", pending)
	}

	if code, _ := s.do(t, 1, http.MethodPut, "/api/friends/accept/2", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 when requester tries to accept, got %d", code)
	}
	if code, env := s.do(t, 2, http.MethodPut, "/api/friends/accept/1", nil); code != http.StatusOK {
		t.Fatalf("Expected 200 from accept, got %d (%s)", code, env.Message)
	}

	_, env = s.do(t, 1, http.MethodGet, "/api/friends/list", nil)
	var friends []service.FriendView
	json.Unmarshal(env.Data, &friends)
	if len(friends) != 1 || friends[0].ID != 2 {
		t.Fatalf("Expected user 2 as the only friend, got %+v", friends)
	}

	code, env = s.do(t, 1, http.MethodPost, "/api/messages/2", map[string]string{"text": "hi", "clientMsgId": "c-1"})
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 from send, got %d (%s)", code, env.Message)
	}
	var result struct {
		State string `json:"state"`
	}
	json.Unmarshal(env.Data, &result)
	if result.State != "queued" {
		t.Errorf("Expected queued state for offline recipient, got %s", result.State)
	}

	_, env = s.do(t, 2, http.MethodGet, "/api/messages/1", nil)
	var history []struct {
		SenderID uint   `json:"senderId"`
		Text     string `json:"text"`
	}
	json.Unmarshal(env.Data, &history)
	if len(history) != 1 || history[0].Text != "hi" || history[0].SenderID != 1 {
		t.Errorf("Expected history with the sent message, got %+v", history)
	}
}

func TestFeedEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, 1, http.MethodPost, "/api/posts", map[string]string{"kind": "blog", "title": "t", "content": "first"})
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 from create post, got %d (%s)", code, env.Message)
	}
	var post struct {
		ID string `json:"id"`
	}
	json.Unmarshal(env.Data, &post)

	if code, _ := s.do(t, 1, http.MethodPost, "/api/posts", map[string]string{"kind": "poll", "content": "x"}); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown post kind, got %d", code)
	}

	for i, want := range []bool{true, false} {
		_, env = s.do(t, 2, http.MethodPost, fmt.Sprintf("/api/posts/%s/like", post.ID), nil)
		var like service.LikeResult
		json.Unmarshal(env.Data, &like)
		if like.Liked != want {
			t.Errorf("Toggle %d: expected liked=%v, got %v", i, want, like.Liked)
		}
	}

	code, env = s.do(t, 2, http.MethodPost, fmt.Sprintf("/api/posts/%s/comments", post.ID), map[string]string{"content": "nice"})
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 from comment, got %d (%s)", code, env.Message)
	}
	var comment struct {
		ID string `json:"id"`
	}
	json.Unmarshal(env.Data, &comment)

	path := fmt.Sprintf("/api/posts/%s/comments/%s", post.ID, comment.ID)
	if code, _ := s.do(t, 3, http.MethodDelete, path, nil); code != http.StatusForbidden {
		t.Errorf("Expected 403 when a stranger deletes a comment, got %d", code)
	}
	if code, _ := s.do(t, 2, http.MethodDelete, path, nil); code != http.StatusOK {
		t.Errorf("Expected 200 when the author deletes a comment, got %d", code)
	}

	_, env = s.do(t, 3, http.MethodGet, "/api/posts?kind=blog", nil)
	var views []struct {
		LikeCount    int64 `json:"likeCount"`
		CommentCount int64 `json:"commentCount"`
	}
	json.Unmarshal(env.Data, &views)
	if len(views) != 1 || views[0].LikeCount != 0 || views[0].CommentCount != 0 {
		t.Errorf("Expected one post with no likes or comments, got %+v", views)
	}

	if code, _ := s.do(t, 1, http.MethodPost, "/api/posts/missing/like", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 liking a missing post, got %d", code)
	}
}

func (s *testServer) befriend(t *testing.T, a, b uint) {
	t.Helper()
	if code, env := s.do(t, a, http.MethodPost, fmt.Sprintf("/api/friends/request/%d", b), nil); code != http.StatusCreated {
		t.Fatalf("Friend request %d->%d failed: %d (%s)", a, b, code, env.Message)
	}
	if code, env := s.do(t, b, http.MethodPut, fmt.Sprintf("/api/friends/accept/%d", a), nil); code != http.StatusOK {
		t.Fatalf("Accept %d->%d failed: %d (%s)", a, b, code, env.Message)
	}
}

func (s *testServer) postMultipart(t *testing.T, as uint, path string, fields map[string]string, fileField, filename string, content []byte) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.tokens[as])
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, env
}

func (s *testServer) storedFiles(t *testing.T) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(s.uploadDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk upload dir: %v", err)
	}
	return count
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestCreateMediaPostStoresFileOnlyWhenValid(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.postMultipart(t, 1, "/api/posts", map[string]string{"post_type": "poll", "content": "x"}, "mediaFile", "a.png", pngHeader)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown post kind, got %d", code)
	}
	code, _ = s.postMultipart(t, 1, "/api/posts", map[string]string{"post_type": "media", "content": " "}, "mediaFile", "a.png", pngHeader)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty content, got %d", code)
	}
	if n := s.storedFiles(t); n != 0 {
		t.Errorf("Expected rejected posts to store no media, got %d files", n)
	}

	code, env := s.postMultipart(t, 1, "/api/posts", map[string]string{"post_type": "media", "content": "sunset"}, "mediaFile", "a.png", pngHeader)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 for a media post, got %d (%s)", code, env.Message)
	}
	var post struct {
		MediaRef string `json:"mediaRef"`
	}
	json.Unmarshal(env.Data, &post)
	if !strings.HasPrefix(post.MediaRef, "/uploads/media/1/") {
		t.Errorf("Expected a local media reference, got %q", post.MediaRef)
	}
	if n := s.storedFiles(t); n != 1 {
		t.Errorf("Expected one stored file, got %d", n)
	}
}
