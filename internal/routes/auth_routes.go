package routes

import (
	"github.com/gin-gonic/gin"

	"drone_routes/internal/controllers"
	"drone_routes/internal/middleware"
)

func AuthRoutes(r *gin.RouterGroup, ac *controllers.AuthController, auth *middleware.Auth) {
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", ac.Register)
		authRoutes.POST("/login", ac.Login)
		authRoutes.GET("/profile", auth.RequireAuth(), ac.Profile)
	}
}
