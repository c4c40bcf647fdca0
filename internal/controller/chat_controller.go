package controller

import (
	"strconv"

	"peoplegrid_backend/internal/service"
	"peoplegrid_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const maxHistoryPage = 200

// ChatController 处理私信相关的 HTTP 请求
type ChatController struct {
	Relay *service.MessageRelay
	Hub   *service.ChatHub
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Text        string `json:"text" binding:"required" example:"你好"`
	ClientMsgID string `json:"clientMsgId" example:"uuid-123"`
}

func NewChatController(relay *service.MessageRelay, hub *service.ChatHub) *ChatController {
	return &ChatController{Relay: relay, Hub: hub}
}

// HandleWS godoc
// @Summary WebSocket 连接
// @Description 建立实时连接，接收 NEW_MESSAGE / USER_STATUS，发送 SEND_MESSAGE
// @Tags 私信
// @Security ApiKeyAuth
// @Param   token query string true "JWT Token"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/chat/ws [get]
func (ctrl *ChatController) HandleWS(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}
	ctrl.Hub.ServeWs(c.Writer, c.Request, claims.UserID)
}

// GetHistory godoc
// @Summary 获取会话历史
// @Description 按创建顺序返回与指定用户之间的消息
// @Tags 私信
// @Produce json
// @Security ApiKeyAuth
// @Param   userId path int true "对方用户ID"
// @Param   afterId query int false "只返回该消息之后的消息"
// @Param   limit query int false "返回条数，最大 200"
// @Success 200 {object} util.Response{data=[]model.Message}
// @Router /api/messages/{userId} [get]
func (ctrl *ChatController) GetHistory(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	peerID, err := util.ParseID(c.Param("userId"))
	if err != nil {
		util.HandleError(c, err)
		return
	}

	afterID, _ := strconv.ParseUint(c.DefaultQuery("afterId", "0"), 10, 32)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if limit <= 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}

	msgs, err := ctrl.Relay.History(c.Request.Context(), claims.UserID, peerID, uint(afterID), limit)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, msgs)
}

// SendMessage godoc
// @Summary 发送私信
// @Description 仅限已接受的好友。接收者在线时状态为 delivered，否则为 queued
// @Tags 私信
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param   userId path int true "接收者ID"
// @Param   request body SendMessageRequest true "消息内容"
// @Success 201 {object} util.Response{data=service.SubmitResult}
// @Failure 403 {object} util.Response
// @Router /api/messages/{userId} [post]
func (ctrl *ChatController) SendMessage(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	recipientID, err := util.ParseID(c.Param("userId"))
	if err != nil {
		util.HandleError(c, err)
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	result, err := ctrl.Relay.Submit(c.Request.Context(), claims.UserID, recipientID, req.Text, req.ClientMsgID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Created(c, result)
}
