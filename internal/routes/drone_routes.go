package routes

import (
	"github.com/gin-gonic/gin"

	"drone_routes/internal/controllers"
)

func DroneRoutes(r *gin.RouterGroup, dc *controllers.DroneController) {
	drones := r.Group("/drones")
	{
		drones.POST("", dc.CreateDrone)
		drones.GET("", dc.ListDrones)
		drones.GET("/:id", dc.GetDrone)
		drones.PUT("/:id", dc.UpdateDrone)
		drones.DELETE("/:id", dc.DeleteDrone)
		drones.POST("/:id/assign-route/:routeId", dc.AssignRoute)
	}
}
