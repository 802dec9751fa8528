package routes

import (
	"github.com/gin-gonic/gin"

	"drone_routes/internal/controllers"
)

func FlightRoutes(r *gin.RouterGroup, rc *controllers.RouteController) {
	flights := r.Group("/routes")
	{
		flights.POST("", rc.CreateRoute)
		flights.GET("", rc.ListRoutes)
		flights.GET("/:id", rc.GetRoute)
		flights.POST("/:id/photos", rc.AddPhotos)
		flights.DELETE("/:id", rc.DeleteRoute)
	}
}
