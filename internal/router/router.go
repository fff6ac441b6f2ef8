package router

import (
	"github.com/gin-gonic/gin"
	"github.com/lschandler81/Push365-sub000/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API) *gin.Engine {
	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// 本地（主设备 UI）接口
	progress := r.Group("/api/progress")
	{
		progress.GET("/today", api.GetToday)
		progress.POST("/log", api.CreateLog)
		progress.POST("/undo", api.UndoLog)
		progress.GET("/stats", api.GetStats)
	}

	settings := r.Group("/api/settings")
	{
		settings.GET("", api.GetSettings)
		settings.PUT("", api.UpdateSettings)
		settings.POST("/reset", api.ResetProgram)
	}

	// 副设备同步接口，需设备令牌
	sync := r.Group("/api/sync")
	sync.Use(handler.DeviceAuthRequired())
	{
		sync.POST("/message", api.HandleSyncMessage)
		sync.GET("/snapshot", api.GetSyncSnapshot)
	}

	return r
}
