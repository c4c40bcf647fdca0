package repository

import (
	"context"
	"time"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/util"

	"gorm.io/gorm"
)

type ChatRepository struct {
	DB *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{DB: db}
}

func (r *ChatRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if msg.ConversationKey == "" {
		msg.ConversationKey = model.ConversationKey(msg.SenderID, msg.RecipientID)
	}
	return util.StoreError("create message", r.DB.WithContext(ctx).Create(msg).Error)
}

// MarkDelivered 仅在消息尚未送达时置位，返回本次是否生效
func (r *ChatRepository) MarkDelivered(ctx context.Context, msgID uint, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND delivered = ?", msgID, false).
		Updates(map[string]interface{}{
			"delivered":    true,
			"delivered_at": at,
		})
	if res.Error != nil {
		return false, util.StoreError("mark delivered", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// History 按提交顺序返回会话消息；afterID > 0 时只返回其后的消息，limit <= 0 表示不限。
// 同一会话的 id 在会话锁内分配，与提交顺序一致，不依赖时钟
func (r *ChatRepository) History(ctx context.Context, conversationKey string, afterID uint, limit int) ([]model.Message, error) {
	msgs := []model.Message{}
	db := r.DB.WithContext(ctx).
		Where("conversation_key = ?", conversationKey)
	if afterID > 0 {
		db = db.Where("id > ?", afterID)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	err := db.Order("id ASC").Find(&msgs).Error
	return msgs, util.StoreError("load history", err)
}
