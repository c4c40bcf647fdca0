package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"peoplegrid_backend/internal/config"
	"peoplegrid_backend/internal/util"
	"peoplegrid_backend/pkg/logger"
	"peoplegrid_backend/pkg/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由 HTTP 层的 CORS 和令牌校验负责
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type sendMessageData struct {
	ReceiverID  uint   `json:"receiverId"`
	Text        string `json:"text"`
	ClientMsgID string `json:"clientMsgId"`
}

type messageAck struct {
	*SubmitResult
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type errorData struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// Client 一个 websocket 连接，实现 Connection
type Client struct {
	Hub     *ChatHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  uint
	Limiter *rate.Limiter

	connID    string
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) Push(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return util.ErrConnectionClosed
	default:
	}

	select {
	case c.Send <- payload:
		return nil
	case <-c.done:
		return util.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.Hub.Presence.Disconnect(context.Background(), c.connID)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.replyError(http.StatusBadRequest, "malformed frame", "")
			continue
		}
		monitoring.IMMessageCounter.WithLabelValues(frame.Type, "in").Inc()

		if !c.Limiter.Allow() {
			c.replyError(http.StatusTooManyRequests, "rate limited", "")
			continue
		}

		switch frame.Type {
		case util.EventSendMessage:
			c.handleSend(frame.Data)
		case util.EventPing:
			c.reply(WSMessage{Type: util.EventPong})
		default:
			c.replyError(http.StatusBadRequest, "unknown frame type", "")
		}
	}
}

// handleSend 同一连接上的消息按读取顺序依次提交
func (c *Client) handleSend(raw json.RawMessage) {
	var data sendMessageData
	if err := json.Unmarshal(raw, &data); err != nil || data.ReceiverID == 0 {
		c.replyError(http.StatusBadRequest, "invalid SEND_MESSAGE payload", data.ClientMsgID)
		return
	}

	result, err := c.Hub.Relay.Submit(context.Background(), c.UserID, data.ReceiverID, data.Text, data.ClientMsgID)
	if err != nil {
		status := util.StatusOf(err)
		msg := err.Error()
		if status >= http.StatusInternalServerError {
			msg = "message could not be stored"
		}
		c.replyError(status, msg, data.ClientMsgID)
		return
	}
	c.reply(WSMessage{Type: util.EventMessageAck, Data: messageAck{SubmitResult: result, ClientMsgID: data.ClientMsgID}})
}

func (c *Client) reply(msg WSMessage) {
	payload, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(context.Background(), c.Hub.Presence.PushTimeout())
	defer cancel()
	if err := c.Push(ctx, payload); err != nil && !errors.Is(err, util.ErrConnectionClosed) {
		logger.Log.Debug("Reply dropped", zap.Uint("userId", c.UserID), zap.String("type", msg.Type), zap.Error(err))
	}
}

func (c *Client) replyError(code int, message, clientMsgID string) {
	c.reply(WSMessage{Type: util.EventError, Data: errorData{Code: code, Message: message, ClientMsgID: clientMsgID}})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.Conn.Close()
	}()
	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ChatHub websocket 接入层：把连接交给 PresenceService，把上行消息交给 MessageRelay
type ChatHub struct {
	Presence *PresenceService
	Relay    *MessageRelay

	sendRate  rate.Limit
	sendBurst int
}

func NewChatHub(presence *PresenceService, relay *MessageRelay, cfg config.ChatConfig) *ChatHub {
	return &ChatHub{
		Presence:  presence,
		Relay:     relay,
		sendRate:  rate.Limit(cfg.SendRate),
		sendBurst: cfg.SendBurst,
	}
}

// Stop 关闭所有连接，各连接的读循环退出时完成注销和离线广播
func (h *ChatHub) Stop() {
	logger.Log.Info("ChatHub stopping: closing connections...")
	closed := h.Presence.Directory.CloseAll()
	logger.Log.Info("ChatHub stopped", zap.Int("closedConnections", closed))
}

func (h *ChatHub) ServeWs(w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		UserID:  userID,
		Limiter: rate.NewLimiter(h.sendRate, h.sendBurst),
		done:    make(chan struct{}),
	}

	go client.writePump()
	client.connID = h.Presence.Connect(r.Context(), userID, client)
	go client.readPump()
}
