package repository

import (
	"context"
	"errors"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostRepository struct {
	DB *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{DB: db}
}

func (r *PostRepository) Create(ctx context.Context, post *model.Post) error {
	return util.StoreError("create post", r.DB.WithContext(ctx).Omit(clause.Associations).Create(post).Error)
}

func (r *PostRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	err := r.DB.WithContext(ctx).Preload("Author").First(&post, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr("find post", err)
	}
	return &post, nil
}

// Delete 在同一事务中删除帖子及其点赞和评论
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&model.PostLike{}).Error; err != nil {
			return util.StoreError("delete likes", err)
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return util.StoreError("delete comments", err)
		}
		res := tx.Delete(&model.Post{}, "id = ?", id)
		if res.Error != nil {
			return util.StoreError("delete post", res.Error)
		}
		if res.RowsAffected == 0 {
			return util.ErrNotFound
		}
		return nil
	})
}

// ToggleLike 存在则删除，否则插入，返回新的点赞状态和重新统计的点赞数
func (r *PostRepository) ToggleLike(ctx context.Context, postID string, userID uint) (bool, int64, error) {
	var (
		liked bool
		count int64
		err   error
	)
	// 并发插入撞上唯一索引时整个事务重试一次，此时另一方的行已存在，会走删除分支
	for attempt := 0; attempt < 2; attempt++ {
		liked, count, err = r.toggleLikeOnce(ctx, postID, userID)
		if !isDuplicateKey(err) {
			break
		}
	}
	if isDuplicateKey(err) {
		return false, 0, util.StoreError("toggle like", err)
	}
	return liked, count, err
}

func (r *PostRepository) toggleLikeOnce(ctx context.Context, postID string, userID uint) (bool, int64, error) {
	var (
		liked bool
		count int64
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&model.Post{}).Where("id = ?", postID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return util.ErrNotFound
		}

		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&model.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&model.PostLike{PostID: postID, UserID: userID}).Error; err != nil {
				return err
			}
			liked = true
		}

		return tx.Model(&model.PostLike{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		if errors.Is(err, util.ErrNotFound) || isDuplicateKey(err) {
			return false, 0, err
		}
		return false, 0, util.StoreError("toggle like", err)
	}
	return liked, count, nil
}

type postCount struct {
	PostID string
	N      int64
}

// List 在一个读事务内取出帖子并重新统计点赞数、评论数和 viewer 的点赞状态
func (r *PostRepository) List(ctx context.Context, viewerID uint, kind model.PostKind, limit, offset int) ([]model.PostView, error) {
	views := []model.PostView{}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var posts []model.Post
		q := tx.Preload("Author").Order("created_at DESC").Order("id ASC")
		if kind != "" {
			q = q.Where("kind = ?", kind)
		}
		if limit > 0 {
			q = q.Limit(limit).Offset(offset)
		}
		if err := q.Find(&posts).Error; err != nil {
			return err
		}
		if len(posts) == 0 {
			return nil
		}

		ids := make([]string, 0, len(posts))
		for _, p := range posts {
			ids = append(ids, p.ID)
		}

		likes, err := countByPost(tx, &model.PostLike{}, ids)
		if err != nil {
			return err
		}
		comments, err := countByPost(tx, &model.Comment{}, ids)
		if err != nil {
			return err
		}

		var likedIDs []string
		if viewerID != 0 {
			if err := tx.Model(&model.PostLike{}).
				Where("user_id = ? AND post_id IN ?", viewerID, ids).
				Pluck("post_id", &likedIDs).Error; err != nil {
				return err
			}
		}
		liked := make(map[string]bool, len(likedIDs))
		for _, id := range likedIDs {
			liked[id] = true
		}

		for _, p := range posts {
			views = append(views, model.PostView{
				Post:         p,
				LikeCount:    likes[p.ID],
				CommentCount: comments[p.ID],
				LikedByMe:    liked[p.ID],
			})
		}
		return nil
	})
	if err != nil {
		return nil, util.StoreError("list posts", err)
	}
	return views, nil
}

func countByPost(tx *gorm.DB, table interface{}, ids []string) (map[string]int64, error) {
	var rows []postCount
	err := tx.Model(table).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", ids).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.PostID] = row.N
	}
	return counts, nil
}

type CommentRepository struct {
	DB *gorm.DB
}

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{DB: db}
}

// Create 帖子不存在时返回 ErrNotFound
func (r *CommentRepository) Create(ctx context.Context, comment *model.Comment) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&model.Post{}).Where("id = ?", comment.PostID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return util.ErrNotFound
		}
		return tx.Omit(clause.Associations).Create(comment).Error
	})
	return util.StoreError("create comment", err)
}

func (r *CommentRepository) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	var comment model.Comment
	if err := r.DB.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, notFoundOr("find comment", err)
	}
	return &comment, nil
}

func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&model.Comment{}, "id = ?", id)
	if res.Error != nil {
		return util.StoreError("delete comment", res.Error)
	}
	if res.RowsAffected == 0 {
		return util.ErrNotFound
	}
	return nil
}

func (r *CommentRepository) ListByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	comments := []model.Comment{}
	err := r.DB.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at ASC").Order("id ASC").
		Find(&comments).Error
	return comments, util.StoreError("list comments", err)
}
