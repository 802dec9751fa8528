package routes

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"drone_routes/internal/controllers"
	"drone_routes/internal/logger"
	"drone_routes/internal/middleware"
	"drone_routes/internal/realtime"
	"drone_routes/internal/services"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	DB             *gorm.DB
	Routes         *services.RouteService
	Drones         *services.DroneService
	Users          *services.UserService
	Auth           *middleware.Auth
	Hub            *realtime.Hub
	MaxUploadBytes int64
	AccessLog      io.Writer
}

func SetupRouter(d Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if d.AccessLog != nil {
		r.Use(logger.AccessLog(d.AccessLog))
	}
	r.Use(middleware.Metrics())

	r.GET("/health", controllers.Health(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	AuthRoutes(api, controllers.NewAuthController(d.Users, d.Auth), d.Auth)

	protected := api.Group("")
	protected.Use(d.Auth.RequireAuth())
	FlightRoutes(protected, controllers.NewRouteController(d.Routes, d.MaxUploadBytes))
	DroneRoutes(protected, controllers.NewDroneController(d.Drones))

	WebSocketRoutes(r, controllers.NewStatusSocket(d.Hub, d.Routes, d.Auth))

	return r
}
