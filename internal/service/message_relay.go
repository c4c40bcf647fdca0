package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"peoplegrid_backend/internal/config"
	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/repository"
	"peoplegrid_backend/internal/util"
	"peoplegrid_backend/pkg/logger"
	"peoplegrid_backend/pkg/monitoring"
	"peoplegrid_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	markAttempts = 3
	markBackoff  = 20 * time.Millisecond
)

// Relationships 判断两个用户之间是否存在已接受的好友关系
type Relationships interface {
	AreFriends(ctx context.Context, a, b uint) (bool, error)
}

// SubmitResult 消息提交后的最终状态
type SubmitResult struct {
	Message model.Message       `json:"message"`
	State   model.DeliveryState `json:"state"`
}

// MessageRelay 负责好友之间私信的持久化与实时投递
type MessageRelay struct {
	Messages      *repository.ChatRepository
	Relationships Relationships
	Directory     *SessionDirectory

	pushTimeout  atomic.Int64
	storeTimeout time.Duration
	maxLength    int

	// 同一会话的持久化与推送串行执行，不同会话互不阻塞
	conversations stripedMutex
}

func NewMessageRelay(messages *repository.ChatRepository, relationships Relationships, directory *SessionDirectory, cfg config.ChatConfig) *MessageRelay {
	r := &MessageRelay{
		Messages:      messages,
		Relationships: relationships,
		Directory:     directory,
		storeTimeout:  cfg.StoreTimeout,
		maxLength:     cfg.MaxMessageLength,
	}
	r.SetPushTimeout(cfg.PushTimeout)
	return r
}

func (r *MessageRelay) SetPushTimeout(d time.Duration) {
	r.pushTimeout.Store(int64(d))
}

func (r *MessageRelay) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return util.Invalid("message text is empty")
	}
	if n := utf8.RuneCountInString(text); n > r.maxLength {
		return util.Invalid("message text has %d characters, limit is %d", n, r.maxLength)
	}
	return nil
}

// Submit 持久化消息并尝试推送给接收者的所有在线连接。
// 至少一个连接推送成功时消息标记为 delivered，否则为 queued；queued 不是错误
func (r *MessageRelay) Submit(ctx context.Context, senderID, recipientID uint, text, clientMsgID string) (*SubmitResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "MessageRelay.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("sender.id", int64(senderID)),
		attribute.Int64("recipient.id", int64(recipientID)),
	)

	result, err := r.submit(ctx, senderID, recipientID, text, clientMsgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("delivery.state", string(result.State)))
	monitoring.IMMessageOutcomes.WithLabelValues(string(result.State)).Inc()
	return result, nil
}

func (r *MessageRelay) submit(ctx context.Context, senderID, recipientID uint, text, clientMsgID string) (*SubmitResult, error) {
	if err := r.validate(text); err != nil {
		return nil, err
	}

	friends, err := r.Relationships.AreFriends(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, util.ErrNotAuthorized
	}

	key := model.ConversationKey(senderID, recipientID)
	mu := r.conversations.forKey(key)
	mu.Lock()
	defer mu.Unlock()

	msg := model.Message{
		ConversationKey: key,
		SenderID:        senderID,
		RecipientID:     recipientID,
		Content:         text,
		ClientMsgID:     clientMsgID,
	}
	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	err = r.Messages.CreateMessage(storeCtx, &msg)
	cancel()
	if err != nil {
		logger.Log.Error("Failed to persist message",
			zap.Uint("senderId", senderID),
			zap.Uint("recipientId", recipientID),
			zap.Error(err))
		return nil, err
	}

	result := &SubmitResult{Message: msg, State: model.DeliveryQueued}

	conns := r.Directory.LiveConnectionsOf(recipientID)
	if len(conns) == 0 {
		return result, nil
	}

	payload, _ := json.Marshal(WSMessage{Type: util.EventNewMessage, Data: msg})
	delivered := pushAll(ctx, conns, payload, time.Duration(r.pushTimeout.Load()))
	monitoring.IMMessageCounter.WithLabelValues(util.EventNewMessage, "out").Add(float64(delivered))
	if delivered == 0 {
		return result, nil
	}

	now := time.Now()
	if !r.markDelivered(ctx, msg.ID, now) {
		// 记录失败时按存储中的状态返回，保证回执与历史一致；接收端已收到的推送按消息 ID 去重
		return result, nil
	}

	result.Message.Delivered = true
	result.Message.DeliveredAt = &now
	result.State = model.DeliveryDelivered
	return result, nil
}

// markDelivered 推送成功后写入送达标记，失败时有限次重试。返回存储中该消息是否已标记为送达
func (r *MessageRelay) markDelivered(ctx context.Context, msgID uint, at time.Time) bool {
	// 推送已发生，标记时不受调用方取消影响
	ctx = context.WithoutCancel(ctx)
	for attempt := 1; attempt <= markAttempts; attempt++ {
		storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		marked, err := r.Messages.MarkDelivered(storeCtx, msgID, at)
		cancel()
		if err == nil {
			if !marked {
				logger.Log.Warn("Message was already marked delivered", zap.Uint("messageId", msgID))
			}
			return true
		}
		logger.Log.Error("Failed to mark message delivered",
			zap.Uint("messageId", msgID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < markAttempts {
			time.Sleep(time.Duration(attempt) * markBackoff)
		}
	}
	return false
}

// History 返回 viewer 与 peer 之间的会话消息，按创建顺序升序，不影响送达标记
func (r *MessageRelay) History(ctx context.Context, viewerID, peerID uint, afterID uint, limit int) ([]model.Message, error) {
	return r.Messages.History(ctx, model.ConversationKey(viewerID, peerID), afterID, limit)
}
