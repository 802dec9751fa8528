package routes

import (
	"github.com/gin-gonic/gin"

	"drone_routes/internal/controllers"
)

func WebSocketRoutes(r *gin.Engine, ws *controllers.StatusSocket) {
	wsRoutes := r.Group("/ws")
	{
		wsRoutes.GET("/routes/:id", ws.HandleRouteStatus)
	}
}
