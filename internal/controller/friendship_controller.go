package controller

import (
	"peoplegrid_backend/internal/service"
	"peoplegrid_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type FriendshipController struct {
	Service *service.FriendshipService
}

func NewFriendshipController(s *service.FriendshipService) *FriendshipController {
	return &FriendshipController{Service: s}
}

// ListFriends godoc
// @Summary 好友列表
// @Tags 好友
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.FriendView}
// @Router /api/friends/list [get]
func (ctrl *FriendshipController) ListFriends(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	friends, err := ctrl.Service.ListFriends(c.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, friends)
}

// ListPending godoc
// @Summary 待处理的好友申请
// @Tags 好友
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.PendingRequest}
// @Router /api/friends/pending [get]
func (ctrl *FriendshipController) ListPending(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	pending, err := ctrl.Service.ListPending(c.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, pending)
}

// Search godoc
// @Summary 搜索用户
// @Tags 好友
// @Produce json
// @Security ApiKeyAuth
// @Param   query query string true "用户名或昵称"
// @Success 200 {object} util.Response{data=[]service.SearchResult}
// @Router /api/friends/search [get]
func (ctrl *FriendshipController) Search(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	results, err := ctrl.Service.Search(c.Request.Context(), claims.UserID, c.Query("query"))
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, results)
}

// SendRequest godoc
// @Summary 发送好友申请
// @Tags 好友
// @Produce json
// @Security ApiKeyAuth
// @Param   id path int true "接收者ID"
// @Success 201 {object} util.Response{data=model.Friendship}
// @Failure 409 {object} util.Response
// @Router /api/friends/request/{id} [post]
func (ctrl *FriendshipController) SendRequest(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	recipientID, err := util.ParseID(c.Param("id"))
	if err != nil {
		util.HandleError(c, err)
		return
	}
	f, err := ctrl.Service.Request(c.Request.Context(), claims.UserID, recipientID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Created(c, f)
}

// Accept godoc
// @Summary 同意好友申请
// @Tags 好友
// @Produce json
// @Security ApiKeyAuth
// @Param   id path int true "申请人ID"
// @Success 200 {object} util.Response{data=model.Friendship}
// @Failure 404 {object} util.Response
// @Router /api/friends/accept/{id} [put]
func (ctrl *FriendshipController) Accept(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	requesterID, err := util.ParseID(c.Param("id"))
	if err != nil {
		util.HandleError(c, err)
		return
	}
	f, err := ctrl.Service.Accept(c.Request.Context(), requesterID, claims.UserID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, f)
}
