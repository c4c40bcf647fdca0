package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/util"

	"gorm.io/gorm"
)

func newChatEnv(t *testing.T) *testEnv {
	env := newTestEnv(t)
	env.user(t, 1, "alice")
	env.user(t, 2, "bob")
	env.user(t, 3, "carol")
	env.befriend(t, 1, 2)
	return env
}

func TestSubmitRequiresAcceptedFriendship(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()
	env.graph.Request(ctx, 1, 3)

	if _, err := env.relay.Submit(ctx, 1, 3, "hi", ""); !errors.Is(err, util.ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized for pending contact, got %v", err)
	}
	if _, err := env.relay.Submit(ctx, 3, 2, "hi", ""); !errors.Is(err, util.ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized for stranger, got %v", err)
	}

	history, err := env.relay.History(ctx, 1, 3, 0, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected rejected messages not to be stored, got %d", len(history))
	}
}

func TestSubmitValidatesText(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()

	if _, err := env.relay.Submit(ctx, 1, 2, "  ", ""); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for blank text, got %v", err)
	}
	long := strings.Repeat("é", env.relay.maxLength+1)
	if _, err := env.relay.Submit(ctx, 1, 2, long, ""); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for oversized text, got %v", err)
	}
	exact := strings.Repeat("é", env.relay.maxLength)
	if _, err := env.relay.Submit(ctx, 1, 2, exact, ""); err != nil {
		t.Errorf("Expected text at the limit to be accepted, got %v", err)
	}
}

func TestSubmitToOfflineRecipientIsQueued(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()

	res, err := env.relay.Submit(ctx, 1, 2, "are you there?", "c-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != model.DeliveryQueued || res.Message.Delivered {
		t.Errorf("Expected queued message, got %s (delivered=%v)", res.State, res.Message.Delivered)
	}

	// 上线本身不会补发排队消息
	bob := &fakeConn{}
	env.presence.Connect(ctx, 2, bob)
	if got := bob.frames(t, util.EventNewMessage); len(got) != 0 {
		t.Errorf("Expected no automatic flush on connect, got %d frames", len(got))
	}

	history, _ := env.relay.History(ctx, 2, 1, 0, 0)
	if len(history) != 1 || history[0].Delivered || history[0].Content != "are you there?" {
		t.Errorf("Expected one undelivered message in history, got %+v", history)
	}
}

func TestSubmitToOnlineRecipientIsDelivered(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()

	phone, laptop := &fakeConn{}, &fakeConn{}
	env.presence.Connect(ctx, 2, phone)
	env.presence.Connect(ctx, 2, laptop)

	res, err := env.relay.Submit(ctx, 1, 2, "hello", "c-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != model.DeliveryDelivered {
		t.Errorf("Expected delivered, got %s", res.State)
	}
	if len(phone.frames(t, util.EventNewMessage)) != 1 || len(laptop.frames(t, util.EventNewMessage)) != 1 {
		t.Errorf("Expected every live connection to receive the message")
	}

	history, _ := env.relay.History(ctx, 1, 2, 0, 0)
	if len(history) != 1 || !history[0].Delivered || history[0].DeliveredAt == nil {
		t.Errorf("Expected stored message to be marked delivered, got %+v", history)
	}
}

func TestSubmitWithOnlyDeadConnectionsIsQueued(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()

	closed, stuck := &fakeConn{closed: true}, &fakeConn{blocking: true}
	env.presence.Connect(ctx, 2, closed)
	env.presence.Connect(ctx, 2, stuck)

	res, err := env.relay.Submit(ctx, 1, 2, "hello?", "")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != model.DeliveryQueued {
		t.Errorf("Expected queued when no push succeeds, got %s", res.State)
	}
	history, _ := env.relay.History(ctx, 1, 2, 0, 0)
	if len(history) != 1 || history[0].Delivered {
		t.Errorf("Expected persisted undelivered message, got %+v", history)
	}
}

func TestSubmitDeliveredIfAnyConnectionAccepts(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()

	ok := &fakeConn{}
	env.presence.Connect(ctx, 2, &fakeConn{blocking: true})
	env.presence.Connect(ctx, 2, ok)

	res, err := env.relay.Submit(ctx, 1, 2, "hi", "")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != model.DeliveryDelivered {
		t.Errorf("Expected delivered when one connection accepts, got %s", res.State)
	}
}

func TestConversationOrderMatchesPushOrder(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()

	bob := &fakeConn{}
	env.presence.Connect(ctx, 2, bob)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := env.relay.Submit(ctx, 1, 2, fmt.Sprintf("m%d", i), ""); err != nil {
				t.Errorf("Submit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	var pushed []uint
	for _, raw := range bob.frames(t, util.EventNewMessage) {
		var msg model.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		pushed = append(pushed, msg.ID)
	}

	history, err := env.relay.History(ctx, 2, 1, 0, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != n || len(pushed) != n {
		t.Fatalf("Expected %d messages, got %d stored / %d pushed", n, len(history), len(pushed))
	}
	for i := range history {
		if history[i].ID != pushed[i] {
			t.Fatalf("Position %d: history has %d, push order has %d", i, history[i].ID, pushed[i])
		}
	}
}

func TestHistoryIsAscendingAndPaged(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		from, to := uint(1), uint(2)
		if i%2 == 1 {
			from, to = 2, 1
		}
		if _, err := env.relay.Submit(ctx, from, to, fmt.Sprintf("m%d", i), ""); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	all, _ := env.relay.History(ctx, 1, 2, 0, 0)
	for i, msg := range all {
		if msg.Content != fmt.Sprintf("m%d", i) {
			t.Errorf("Position %d: expected m%d, got %s", i, i, msg.Content)
		}
	}

	page, _ := env.relay.History(ctx, 2, 1, all[1].ID, 2)
	if len(page) != 2 || page[0].Content != "m2" || page[1].Content != "m3" {
		t.Errorf("Expected m2,m3 after cursor, got %+v", page)
	}

	// 读取历史不会改变送达标记
	again, _ := env.relay.History(ctx, 1, 2, 0, 0)
	for _, msg := range again {
		if msg.Delivered {
			t.Errorf("Expected history reads to leave messages undelivered")
		}
	}
}

// failMessageUpdates 让 messages 表接下来的 n 次 UPDATE 失败，n < 0 表示一直失败
func failMessageUpdates(t *testing.T, env *testEnv, n int) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	remaining := int32(n)
	err := env.db.Callback().Update().Before("gorm:update").Register("test:fail_message_updates", func(tx *gorm.DB) {
		if tx.Statement.Table != "messages" {
			return
		}
		calls.Add(1)
		if remaining == 0 {
			return
		}
		if remaining > 0 {
			remaining--
		}
		tx.AddError(errors.New("disk unavailable"))
	})
	if err != nil {
		t.Fatalf("Failed to register callback: %v", err)
	}
	return &calls
}

func TestSubmitRetriesDeliveredMark(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()
	conn := &fakeConn{}
	env.presence.Connect(ctx, 2, conn)
	calls := failMessageUpdates(t, env, 1)

	res, err := env.relay.Submit(ctx, 1, 2, "retry me", "")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != model.DeliveryDelivered {
		t.Errorf("Expected delivered after a retried mark, got %s", res.State)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 mark attempts, got %d", calls.Load())
	}
	history, _ := env.relay.History(ctx, 1, 2, 0, 0)
	if len(history) != 1 || !history[0].Delivered {
		t.Errorf("Expected stored row to be delivered, got %+v", history)
	}
}

func TestSubmitReportsStoredStateWhenMarkKeepsFailing(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()
	conn := &fakeConn{}
	env.presence.Connect(ctx, 2, conn)
	calls := failMessageUpdates(t, env, -1)

	res, err := env.relay.Submit(ctx, 1, 2, "lost ack", "")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if int(calls.Load()) != markAttempts {
		t.Errorf("Expected %d mark attempts, got %d", markAttempts, calls.Load())
	}
	if len(conn.frames(t, util.EventNewMessage)) != 1 {
		t.Errorf("Expected the live push to have happened")
	}

	history, _ := env.relay.History(ctx, 1, 2, 0, 0)
	if len(history) != 1 {
		t.Fatalf("Expected one stored message, got %d", len(history))
	}
	if res.State != model.DeliveryQueued || res.Message.Delivered {
		t.Errorf("Expected queued result when the mark is not stored, got %s", res.State)
	}
	if history[0].Delivered != res.Message.Delivered {
		t.Errorf("Expected result and history to agree, got result=%v stored=%v", res.Message.Delivered, history[0].Delivered)
	}
}

func TestSubmitSurfacesStoreFailure(t *testing.T) {
	env := newChatEnv(t)
	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.Close()

	_, err = env.relay.Submit(context.Background(), 1, 2, "anyone there?", "")
	if !errors.Is(err, util.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, util.ErrNotAuthorized) {
		t.Errorf("Expected a store failure not to look like a permission error")
	}
	if status := util.StatusOf(err); status != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", status)
	}
}
