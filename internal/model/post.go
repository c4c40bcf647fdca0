package model

type PostKind string

const (
	PostMedia PostKind = "media"
	PostBlog  PostKind = "blog"
)

func (k PostKind) Valid() bool {
	return k == PostMedia || k == PostBlog
}

type Post struct {
	UUIDBase
	AuthorID uint     `gorm:"index;not null" json:"authorId"`
	Author   User     `gorm:"foreignKey:AuthorID" json:"author"`
	Kind     PostKind `gorm:"size:10;index;not null" json:"kind"`
	Title    string   `gorm:"size:255" json:"title"`
	Content  string   `gorm:"type:text;not null" json:"content"`
	MediaRef string   `gorm:"size:255" json:"mediaRef,omitempty"`
}

func (Post) TableName() string {
	return "posts"
}

type Comment struct {
	UUIDBase
	PostID   string `gorm:"index;type:varchar(36);not null" json:"postId"`
	AuthorID uint   `gorm:"index;not null" json:"authorId"`
	Author   User   `gorm:"foreignKey:AuthorID" json:"author"`
	Content  string `gorm:"type:text;not null" json:"content"`
}

func (Comment) TableName() string {
	return "comments"
}

// PostLike 每个 (post, user) 至多一行
type PostLike struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	PostID string `gorm:"uniqueIndex:idx_post_user;type:varchar(36);not null" json:"postId"`
	UserID uint   `gorm:"uniqueIndex:idx_post_user;not null" json:"userId"`
}

func (PostLike) TableName() string {
	return "post_likes"
}

// PostView 带统计与当前用户点赞状态的帖子
type PostView struct {
	Post
	LikeCount    int64 `json:"likeCount"`
	CommentCount int64 `json:"commentCount"`
	LikedByMe    bool  `json:"likedByMe"`
}
