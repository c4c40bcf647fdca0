package app

import (
	"peoplegrid_backend/docs"
	"peoplegrid_backend/internal/config"
	"peoplegrid_backend/internal/middleware"
	"peoplegrid_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要身份令牌的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.IdentityMiddleware(s.user))
	{
		a.registerProfileRoutes(authGroup, c)
		a.registerFriendRoutes(authGroup, c)
		a.registerChatRoutes(authGroup, c)
		a.registerFeedRoutes(authGroup, c)
	}
}

func (a *App) registerProfileRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.user.GetProfile)
	rg.PUT("/profile", c.user.UpdateProfile)
	rg.POST("/profile/upload-photo", c.user.UploadAvatar)
	rg.POST("/media", c.user.UploadMedia)
}

func (a *App) registerFriendRoutes(rg *gin.RouterGroup, c *controllers) {
	friends := rg.Group("/friends")
	{
		friends.GET("/list", c.friendship.ListFriends)
		friends.GET("/pending", c.friendship.ListPending)
		friends.GET("/search", c.friendship.Search)
		friends.POST("/request/:id", c.friendship.SendRequest)
		friends.PUT("/accept/:id", c.friendship.Accept)
	}
}

func (a *App) registerChatRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/chat/ws", c.chat.HandleWS)
	rg.GET("/messages/:userId", c.chat.GetHistory)
	rg.POST("/messages/:userId", c.chat.SendMessage)
}

func (a *App) registerFeedRoutes(rg *gin.RouterGroup, c *controllers) {
	posts := rg.Group("/posts")
	{
		posts.GET("", c.feed.ListPosts)
		posts.POST("", c.feed.CreatePost)
		posts.DELETE("/:id", c.feed.DeletePost)
		posts.POST("/:id/like", c.feed.ToggleLike)
		posts.GET("/:id/comments", c.feed.ListComments)
		posts.POST("/:id/comments", c.feed.AddComment)
		// 旧客户端使用单数路径
		posts.POST("/:id/comment", c.feed.AddComment)
		posts.DELETE("/:id/comments/:commentId", c.feed.DeleteComment)
	}
}
