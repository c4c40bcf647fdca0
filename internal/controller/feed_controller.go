package controller

import (
	"strconv"
	"strings"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/service"
	"peoplegrid_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type FeedController struct {
	Feed    *service.FeedService
	Storage *service.StorageService
}

type CreatePostRequest struct {
	Kind     string `json:"kind" form:"post_type" example:"blog"`
	Title    string `json:"title" form:"title"`
	Content  string `json:"content" form:"content" example:"今天天气不错"`
	MediaRef string `json:"mediaRef" form:"-"`
}

type AddCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

func NewFeedController(feed *service.FeedService, storage *service.StorageService) *FeedController {
	return &FeedController{Feed: feed, Storage: storage}
}

// ListPosts godoc
// @Summary 帖子列表
// @Description 点赞数和评论数在每次读取时重新统计，likedByMe 针对当前用户
// @Tags 动态
// @Produce json
// @Security ApiKeyAuth
// @Param   kind query string false "media 或 blog"
// @Param   limit query int false "每页条数"
// @Param   offset query int false "偏移量"
// @Success 200 {object} util.Response{data=[]model.PostView}
// @Router /api/posts [get]
func (ctrl *FeedController) ListPosts(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	posts, err := ctrl.Feed.ListPosts(c.Request.Context(), claims.UserID, model.PostKind(c.Query("kind")), limit, offset)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, posts)
}

// CreatePost godoc
// @Summary 发布帖子
// @Description 支持 JSON 或 multipart 表单（post_type, title, content, mediaFile）
// @Tags 动态
// @Accept json,mpfd
// @Produce json
// @Security ApiKeyAuth
// @Param   request body CreatePostRequest false "帖子内容"
// @Success 201 {object} util.Response{data=model.Post}
// @Router /api/posts [post]
func (ctrl *FeedController) CreatePost(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	var req CreatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	in := service.CreatePostInput{
		Kind:     model.PostKind(req.Kind),
		Title:    req.Title,
		Content:  req.Content,
		MediaRef: req.MediaRef,
	}
	// 校验通过后才上传媒体
	if err := in.Validate(); err != nil {
		util.HandleError(c, err)
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if _, err := c.FormFile("mediaFile"); err == nil {
			ref, err := uploadFormFile(c, ctrl.Storage, claims.UserID, "mediaFile")
			if err != nil {
				util.HandleError(c, err)
				return
			}
			in.MediaRef = ref
		}
	}

	post, err := ctrl.Feed.CreatePost(c.Request.Context(), claims.UserID, in)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Created(c, post)
}

// DeletePost godoc
// @Summary 删除帖子
// @Description 仅作者可删除，点赞和评论一并删除
// @Tags 动态
// @Security ApiKeyAuth
// @Param   id path string true "帖子ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/posts/{id} [delete]
func (ctrl *FeedController) DeletePost(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if err := ctrl.Feed.DeletePost(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, nil)
}

// ToggleLike godoc
// @Summary 点赞 / 取消点赞
// @Tags 动态
// @Security ApiKeyAuth
// @Param   id path string true "帖子ID"
// @Success 200 {object} util.Response{data=service.LikeResult}
// @Router /api/posts/{id}/like [post]
func (ctrl *FeedController) ToggleLike(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	res, err := ctrl.Feed.ToggleLike(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, res)
}

// ListComments godoc
// @Summary 评论列表
// @Tags 动态
// @Security ApiKeyAuth
// @Param   id path string true "帖子ID"
// @Success 200 {object} util.Response{data=[]model.Comment}
// @Router /api/posts/{id}/comments [get]
func (ctrl *FeedController) ListComments(c *gin.Context) {
	comments, err := ctrl.Feed.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, comments)
}

// AddComment godoc
// @Summary 发表评论
// @Tags 动态
// @Accept json
// @Security ApiKeyAuth
// @Param   id path string true "帖子ID"
// @Param   request body AddCommentRequest true "评论内容"
// @Success 201 {object} util.Response{data=model.Comment}
// @Router /api/posts/{id}/comments [post]
func (ctrl *FeedController) AddComment(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}
	comment, err := ctrl.Feed.AddComment(c.Request.Context(), claims.UserID, c.Param("id"), req.Content)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Created(c, comment)
}

// DeleteComment godoc
// @Summary 删除评论
// @Description 仅评论作者可删除
// @Tags 动态
// @Security ApiKeyAuth
// @Param   id path string true "帖子ID"
// @Param   commentId path string true "评论ID"
// @Success 200 {object} util.Response
// @Router /api/posts/{id}/comments/{commentId} [delete]
func (ctrl *FeedController) DeleteComment(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if err := ctrl.Feed.DeleteComment(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("commentId")); err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, nil)
}
