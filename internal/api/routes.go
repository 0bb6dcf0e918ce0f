package api

import (
	"github.com/gin-gonic/gin"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/auth"
	"github.com/hyeonwoo-dev/kiwoom-trader/pkg/middleware"
)

// SetupRoutes configures all API endpoints and their handlers.
// Routes are grouped by functionality:
//   - Auth routes: public endpoints for authentication
//   - Order, balance and analytics routes: protected by JWT authentication
//   - Websocket stream: protected by JWT authentication
func SetupRoutes(router *gin.Engine, authHandlers *auth.GinHandlers, handlers *GinHandlers, jwtSecret []byte) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("", handlers.SubmitOrderHandler())
			orders.GET("", handlers.ListOutstandingHandler())
			orders.GET("/:order_id", handlers.GetOrderHandler())
			orders.POST("/:order_id/cancel", handlers.CancelOrderHandler())
			orders.POST("/:order_id/modify", handlers.ModifyOrderHandler())
			orders.POST("/:order_id/monitor", handlers.MonitorOrderHandler())
			orders.DELETE("/:order_id/monitor", handlers.StopMonitorHandler())
			orders.PUT("/:order_id/auto-cancel", handlers.SetAutoCancelHandler())
			orders.PUT("/:order_id/auto-modify", handlers.SetAutoModifyHandler())
		}

		balances := v1.Group("/balances")
		balances.Use(middleware.JWTAuth(jwtSecret))
		{
			balances.GET("", handlers.ListBalancesHandler())
		}

		analytics := v1.Group("/analytics")
		analytics.Use(middleware.JWTAuth(jwtSecret))
		{
			analytics.GET("/summary", handlers.SummaryHandler())
		}
	}

	router.GET("/ws", middleware.JWTAuth(jwtSecret), handlers.StreamHandler())
}
