package model

import "time"

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
)

// Friendship 好友关系，每对用户只有一条记录（PairLow/PairHigh 唯一）
type Friendship struct {
	UUIDBase
	RequesterID uint       `gorm:"index;not null" json:"requesterId"`
	Requester   User       `gorm:"foreignKey:RequesterID;references:ID" json:"requester,omitempty"`
	RecipientID uint       `gorm:"index;not null" json:"recipientId"`
	Recipient   User       `gorm:"foreignKey:RecipientID;references:ID" json:"recipient,omitempty"`
	PairLow     uint       `gorm:"uniqueIndex:idx_friend_pair;not null" json:"-"`
	PairHigh    uint       `gorm:"uniqueIndex:idx_friend_pair;not null" json:"-"`
	Status      string     `gorm:"size:20;index;default:'pending'" json:"status"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
}

func (Friendship) TableName() string {
	return "friendships"
}

// OrderedPair 返回无序用户对的规范顺序
func OrderedPair(a, b uint) (uint, uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// Relation 搜索结果中调用者与目标用户的关系
type Relation string

const (
	RelationNone            Relation = "none"
	RelationPendingOutgoing Relation = "pending_outgoing"
	RelationPendingIncoming Relation = "pending_incoming"
	RelationFriends         Relation = "friends"
)
