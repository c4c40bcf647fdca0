package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"peoplegrid_backend/internal/util"
	"peoplegrid_backend/pkg/logger"
	"peoplegrid_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// FriendSource 提供已接受好友的 ID 列表
type FriendSource interface {
	FriendIDsCached(ctx context.Context, userID uint) ([]uint, error)
}

// LastSeenRecorder 在用户最后一个连接关闭时记录离线时间
type LastSeenRecorder interface {
	TouchLastSeen(ctx context.Context, id uint, at time.Time) error
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// PresenceService 根据 SessionDirectory 的占用情况向好友广播上下线状态
type PresenceService struct {
	Directory *SessionDirectory
	Friends   FriendSource
	LastSeen  LastSeenRecorder

	pushTimeout atomic.Int64
	// 同一用户的上下线迁移及其广播串行执行，保证好友看到的状态顺序一致
	transitions stripedMutex
}

func NewPresenceService(directory *SessionDirectory, friends FriendSource, lastSeen LastSeenRecorder, pushTimeout time.Duration) *PresenceService {
	s := &PresenceService{
		Directory: directory,
		Friends:   friends,
		LastSeen:  lastSeen,
	}
	s.SetPushTimeout(pushTimeout)
	return s
}

func (s *PresenceService) SetPushTimeout(d time.Duration) {
	s.pushTimeout.Store(int64(d))
}

func (s *PresenceService) PushTimeout() time.Duration {
	return time.Duration(s.pushTimeout.Load())
}

// Connect 登记连接，用户的第一个连接会向好友广播 online
func (s *PresenceService) Connect(ctx context.Context, userID uint, conn Connection) string {
	mu := s.transitions.forID(userID)
	mu.Lock()
	defer mu.Unlock()

	connID, first := s.Directory.Register(userID, conn)
	if first {
		s.announce(ctx, userID, StatusOnline)
	}
	return connID
}

// Disconnect 注销连接，最后一个连接关闭时广播 offline。未知连接 ID 不做任何事
func (s *PresenceService) Disconnect(ctx context.Context, connID string) {
	userID, ok := s.Directory.OwnerOf(connID)
	if !ok {
		return
	}

	mu := s.transitions.forID(userID)
	mu.Lock()
	defer mu.Unlock()

	_, last, ok := s.Directory.Unregister(connID)
	if !ok {
		return
	}
	if !last {
		return
	}

	s.announce(ctx, userID, StatusOffline)
	if s.LastSeen != nil {
		if err := s.LastSeen.TouchLastSeen(ctx, userID, time.Now()); err != nil {
			logger.Log.Warn("Failed to record last seen", zap.Uint("userId", userID), zap.Error(err))
		}
	}
}

func (s *PresenceService) announce(ctx context.Context, userID uint, status string) {
	if s.Friends == nil {
		return
	}
	friendIDs, err := s.Friends.FriendIDsCached(ctx, userID)
	if err != nil {
		logger.Log.Warn("Presence fan-out skipped", zap.Uint("userId", userID), zap.String("status", status), zap.Error(err))
		return
	}

	payload, _ := json.Marshal(WSMessage{
		Type: util.EventUserStatus,
		Data: map[string]interface{}{
			"userId": userID,
			"status": status,
		},
	})

	var targets []Connection
	for _, id := range friendIDs {
		targets = append(targets, s.Directory.LiveConnectionsOf(id)...)
	}
	if len(targets) == 0 {
		return
	}

	delivered := pushAll(ctx, targets, payload, s.PushTimeout())
	monitoring.IMMessageCounter.WithLabelValues(util.EventUserStatus, "out").Add(float64(delivered))
	logger.Log.Debug("Presence announced",
		zap.Uint("userId", userID),
		zap.String("status", status),
		zap.Int("targets", len(targets)),
		zap.Int("delivered", delivered))
}

// pushAll 并发推送到所有连接，每个推送都受 timeout 约束，返回成功数
func pushAll(ctx context.Context, conns []Connection, payload []byte, timeout time.Duration) int {
	var (
		wg        sync.WaitGroup
		delivered atomic.Int32
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn Connection) {
			defer wg.Done()
			pushCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := conn.Push(pushCtx, payload); err == nil {
				delivered.Add(1)
			}
		}(conn)
	}
	wg.Wait()
	return int(delivered.Load())
}
