package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drone_routes/internal/services"
)

// DroneController serves the /api/drones endpoints.
type DroneController struct {
	drones *services.DroneService
}

func NewDroneController(drones *services.DroneService) *DroneController {
	return &DroneController{drones: drones}
}

func (dc *DroneController) CreateDrone(c *gin.Context) {
	var input services.DroneInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "droneId, model, and serialNumber are required"})
		return
	}
	drone, err := dc.drones.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, drone)
}

func (dc *DroneController) ListDrones(c *gin.Context) {
	drones, err := dc.drones.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, drones)
}

// GetDrone accepts the numeric id or the droneId code and includes the drone's routes.
func (dc *DroneController) GetDrone(c *gin.Context) {
	drone, routes, err := dc.drones.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	summaries := make([]RouteSummary, 0, len(routes))
	for i := range routes {
		summaries = append(summaries, toRouteSummary(&routes[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                   drone.ID,
		"droneId":              drone.DroneID,
		"model":                drone.Model,
		"serialNumber":         drone.SerialNumber,
		"currentBatteryCharge": drone.CurrentBatteryCharge,
		"totalFlightTime":      drone.TotalFlightTime,
		"createdAt":            drone.CreatedAt,
		"updatedAt":            drone.UpdatedAt,
		"routes":               summaries,
	})
}

func (dc *DroneController) UpdateDrone(c *gin.Context) {
	var input services.DroneUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	drone, err := dc.drones.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, drone)
}

func (dc *DroneController) DeleteDrone(c *gin.Context) {
	if err := dc.drones.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Drone deleted successfully"})
}

// AssignRoute links a route to the drone that flew it.
func (dc *DroneController) AssignRoute(c *gin.Context) {
	routeID, ok := parseID(c, "routeId")
	if !ok {
		return
	}
	route, err := dc.drones.AssignRoute(c.Request.Context(), c.Param("id"), routeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Drone assigned to route successfully",
		"route":   toRouteSummary(route),
	})
}
