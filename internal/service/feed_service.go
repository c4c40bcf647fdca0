package service

import (
	"context"
	"strings"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/repository"
	"peoplegrid_backend/internal/util"
	"peoplegrid_backend/pkg/logger"

	"go.uber.org/zap"
)

type CreatePostInput struct {
	Kind     model.PostKind
	Title    string
	Content  string
	MediaRef string
}

type LikeResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"likeCount"`
}

// FeedService 帖子、点赞和评论。所有计数都在读取时由行记录重新统计
type FeedService struct {
	PostRepo    *repository.PostRepository
	CommentRepo *repository.CommentRepository

	likes stripedMutex
}

func NewFeedService(postRepo *repository.PostRepository, commentRepo *repository.CommentRepository) *FeedService {
	return &FeedService{
		PostRepo:    postRepo,
		CommentRepo: commentRepo,
	}
}

// Validate 不访问存储，媒体上传前先调用
func (in CreatePostInput) Validate() error {
	if !in.Kind.Valid() {
		return util.Invalid("unknown post kind %q", in.Kind)
	}
	if strings.TrimSpace(in.Content) == "" {
		return util.Invalid("post content is required")
	}
	return nil
}

func (s *FeedService) CreatePost(ctx context.Context, authorID uint, in CreatePostInput) (*model.Post, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	post := &model.Post{
		AuthorID: authorID,
		Kind:     in.Kind,
		Title:    strings.TrimSpace(in.Title),
		Content:  in.Content,
		MediaRef: in.MediaRef,
	}
	if err := s.PostRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost 只有作者可以删除，点赞和评论随帖子一并删除
func (s *FeedService) DeletePost(ctx context.Context, userID uint, postID string) error {
	post, err := s.PostRepo.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != userID {
		return util.ErrNotAuthorized
	}
	if err := s.PostRepo.Delete(ctx, postID); err != nil {
		return err
	}
	logger.Log.Info("Post deleted", zap.String("postId", postID), zap.Uint("authorId", userID))
	return nil
}

// ToggleLike 切换点赞状态并返回新状态与重新统计的点赞数
func (s *FeedService) ToggleLike(ctx context.Context, userID uint, postID string) (*LikeResult, error) {
	mu := s.likes.forKey(postID)
	mu.Lock()
	defer mu.Unlock()

	liked, count, err := s.PostRepo.ToggleLike(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	return &LikeResult{Liked: liked, LikeCount: count}, nil
}

func (s *FeedService) AddComment(ctx context.Context, authorID uint, postID, content string) (*model.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, util.Invalid("comment content is required")
	}
	comment := &model.Comment{
		PostID:   postID,
		AuthorID: authorID,
		Content:  content,
	}
	if err := s.CommentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment 只有评论作者可以删除
func (s *FeedService) DeleteComment(ctx context.Context, userID uint, postID, commentID string) error {
	comment, err := s.CommentRepo.FindByID(ctx, commentID)
	if err != nil {
		return err
	}
	if postID != "" && comment.PostID != postID {
		return util.ErrNotFound
	}
	if comment.AuthorID != userID {
		return util.ErrNotAuthorized
	}
	return s.CommentRepo.Delete(ctx, commentID)
}

func (s *FeedService) ListComments(ctx context.Context, postID string) ([]model.Comment, error) {
	if _, err := s.PostRepo.FindByID(ctx, postID); err != nil {
		return nil, err
	}
	return s.CommentRepo.ListByPost(ctx, postID)
}

// ListPosts 按时间倒序返回帖子，kind 为空时返回全部类型
func (s *FeedService) ListPosts(ctx context.Context, viewerID uint, kind model.PostKind, limit, offset int) ([]model.PostView, error) {
	if kind != "" && !kind.Valid() {
		return nil, util.Invalid("unknown post kind %q", kind)
	}
	return s.PostRepo.List(ctx, viewerID, kind, limit, offset)
}
