package service

import (
	"context"

	"peoplegrid_backend/pkg/monitoring"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Connection 一个可推送的实时连接。实现必须是可比较的类型（通常为指针），
// 同一实例重复注册时按同一连接处理
type Connection interface {
	// Push 在 ctx 结束前把 payload 交给连接；连接已关闭时返回 util.ErrConnectionClosed
	Push(ctx context.Context, payload []byte) error
	Close()
}

// SessionDirectory 记录每个用户当前的实时连接，支持多端同时在线
type SessionDirectory struct {
	// 每个用户的连接集合按写时复制替换，读者拿到的快照不会被修改
	users *xsync.MapOf[uint, map[string]Connection]
	owner *xsync.MapOf[string, uint]
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{
		users: xsync.NewMapOf[uint, map[string]Connection](),
		owner: xsync.NewMapOf[string, uint](),
	}
}

// Register 登记连接并返回连接 ID；first 表示该用户由此从无连接变为有连接。
// 同一连接实例重复登记时返回原有 ID 且 first 为 false
func (d *SessionDirectory) Register(userID uint, conn Connection) (connID string, first bool) {
	added := false
	d.users.Compute(userID, func(old map[string]Connection, loaded bool) (map[string]Connection, bool) {
		for id, c := range old {
			if c == conn {
				connID = id
				return old, false
			}
		}
		connID = uuid.NewString()
		first = len(old) == 0
		added = true

		next := make(map[string]Connection, len(old)+1)
		for id, c := range old {
			next[id] = c
		}
		next[connID] = conn
		return next, false
	})
	if !added {
		return connID, false
	}

	d.owner.Store(connID, userID)
	monitoring.IMConnections.Inc()
	if first {
		monitoring.IMOnlineUsers.Inc()
	}
	return connID, first
}

// Unregister 移除连接；last 表示该用户的最后一个连接已关闭。未知 ID 直接忽略
func (d *SessionDirectory) Unregister(connID string) (userID uint, last bool, ok bool) {
	userID, ok = d.owner.LoadAndDelete(connID)
	if !ok {
		return 0, false, false
	}

	d.users.Compute(userID, func(old map[string]Connection, loaded bool) (map[string]Connection, bool) {
		if !loaded {
			return nil, true
		}
		if _, has := old[connID]; !has {
			return old, false
		}
		if len(old) == 1 {
			last = true
			return nil, true
		}
		next := make(map[string]Connection, len(old)-1)
		for id, c := range old {
			if id != connID {
				next[id] = c
			}
		}
		return next, false
	})

	monitoring.IMConnections.Dec()
	if last {
		monitoring.IMOnlineUsers.Dec()
	}
	return userID, last, true
}

// OwnerOf 返回连接所属的用户
func (d *SessionDirectory) OwnerOf(connID string) (uint, bool) {
	return d.owner.Load(connID)
}

// LiveConnectionsOf 返回某一时刻该用户连接集合的快照
func (d *SessionDirectory) LiveConnectionsOf(userID uint) []Connection {
	set, ok := d.users.Load(userID)
	if !ok {
		return nil
	}
	conns := make([]Connection, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

func (d *SessionDirectory) IsOnline(userID uint) bool {
	_, ok := d.users.Load(userID)
	return ok
}

func (d *SessionDirectory) OnlineCount() int {
	return d.users.Size()
}

func (d *SessionDirectory) ConnectionCount() int {
	return d.owner.Size()
}

// CloseAll 关闭所有连接，连接自身的退出流程负责注销
func (d *SessionDirectory) CloseAll() int {
	closed := 0
	d.users.Range(func(_ uint, set map[string]Connection) bool {
		for _, c := range set {
			c.Close()
			closed++
		}
		return true
	})
	return closed
}
