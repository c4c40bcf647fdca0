package middleware

import (
	"context"
	"strings"
	"time"

	"peoplegrid_backend/internal/util"
	"peoplegrid_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// AuthMiddleware 只校验外部签发的令牌，websocket 握手时允许通过 ?token= 传递
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, secret)
		if err != nil {
			logger.Log.Debug("JWT rejected", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

type IdentityStore interface {
	EnsureUser(ctx context.Context, id uint, username string) error
	TouchLastSeen(ctx context.Context, id uint) error
}

const touchInterval = time.Minute

// IdentityMiddleware 身份首次出现时建立用户记录，并节流地异步更新最后活跃时间
func IdentityMiddleware(store IdentityStore) gin.HandlerFunc {
	lastTouch := xsync.NewMapOf[uint, time.Time]()

	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			c.Next()
			return
		}

		prev, seen := lastTouch.Load(claims.UserID)
		if !seen {
			if err := store.EnsureUser(c.Request.Context(), claims.UserID, claims.Username); err != nil {
				util.HandleError(c, err)
				c.Abort()
				return
			}
		}

		now := time.Now()
		if !seen || now.Sub(prev) > touchInterval {
			lastTouch.Store(claims.UserID, now)
			userID := claims.UserID
			// 异步更新，不阻塞主流程
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := store.TouchLastSeen(ctx, userID); err != nil {
					logger.Log.Warn("Failed to update last seen", zap.Uint("userId", userID), zap.Error(err))
				}
			}()
		}
		c.Next()
	}
}
