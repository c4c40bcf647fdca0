package model

import (
	"fmt"
	"time"
)

type DeliveryState string

const (
	DeliveryQueued    DeliveryState = "queued"
	DeliveryDelivered DeliveryState = "delivered"
)

// Message 私聊消息；自增 ID 作为同一时间戳下的顺序依据
type Message struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt       time.Time  `gorm:"index:idx_conv_created,priority:2" json:"createdAt"`
	ConversationKey string     `gorm:"size:41;not null;index:idx_conv_created,priority:1" json:"-"`
	SenderID        uint       `gorm:"index;not null" json:"senderId"`
	RecipientID     uint       `gorm:"index;not null" json:"receiverId"`
	Content         string     `gorm:"type:text;not null" json:"text"`
	ClientMsgID     string     `gorm:"size:50" json:"clientMsgId,omitempty"`
	Delivered       bool       `gorm:"default:false;index" json:"delivered"`
	DeliveredAt     *time.Time `json:"deliveredAt,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// ConversationKey 无序用户对对应的会话键
func ConversationKey(a, b uint) string {
	low, high := OrderedPair(a, b)
	return fmt.Sprintf("%d:%d", low, high)
}
