package api

import (
	"errors"
	"net/http"

	"proxyhub-api/internal/middleware"
	"proxyhub-api/internal/response"
	"proxyhub-api/internal/services"

	"github.com/gin-gonic/gin"
)

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	RefCode  string `json:"refCode"`
}

// Register creates a new account
// POST /auth/register
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	user, err := userService.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.RefCode)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			response.ErrorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		response.ErrorJSON(c, http.StatusInternalServerError, "Registration failed")
		return
	}

	response.SuccessJSON(c, gin.H{
		"username": user.Username,
		"ref_code": user.RefCode,
	})
}

// LoginRequest represents a login request; username accepts username or email
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a user and issues an access token
// POST /auth/login
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	user, err := userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			response.ErrorJSON(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		response.ErrorJSON(c, http.StatusInternalServerError, "Login failed")
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Username)
	if err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	response.SuccessJSON(c, gin.H{
		"access_token": token,
		"username":     user.Username,
		"balance":      user.Balance,
	})
}
