package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drone_routes/internal/middleware"
	"drone_routes/internal/services"
)

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthController serves registration, login and the caller's profile.
type AuthController struct {
	users *services.UserService
	auth  *middleware.Auth
}

func NewAuthController(users *services.UserService, auth *middleware.Auth) *AuthController {
	return &AuthController{users: users, auth: auth}
}

func (ac *AuthController) Register(c *gin.Context) {
	var body credentials
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	user, err := ac.users.Register(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := ac.auth.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

func (ac *AuthController) Login(c *gin.Context) {
	var body credentials
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	user, err := ac.users.Authenticate(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := ac.auth.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (ac *AuthController) Profile(c *gin.Context) {
	user, err := ac.users.Get(c.Request.Context(), c.GetUint(middleware.ContextUserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
