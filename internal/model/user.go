package model

import (
	"time"
)

// User 的 ID 由外部身份服务分配，首次出现时写入
// swagger:model User
type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	Username           string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	DisplayName        string    `gorm:"size:100" json:"displayName"`
	Avatar             string    `gorm:"size:255" json:"avatar"`
	Bio                string    `gorm:"size:500" json:"bio"`
	Age                *int      `json:"age,omitempty"`
	Pronouns           string    `gorm:"size:30" json:"pronouns"`
	RelationshipStatus string    `gorm:"size:50" json:"relationshipStatus"`
	LastSeen           time.Time `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}

// UserSummary 列表中展示的用户信息
type UserSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, Avatar: u.Avatar}
}
