package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"trane/services"
	"trane/types"
)

// AuthHandler handles registration and token endpoints
type AuthHandler struct {
	auth services.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a new user account
func (h *AuthHandler) Register(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "invalid request body"})
		return
	}

	if err := h.auth.Register(c.Request.Context(), body.Username, body.Password); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: err.Error()})
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to issue tokens"})
		return
	}

	c.JSON(http.StatusCreated, pair)
}

// Token exchanges credentials for an access/refresh token pair
func (h *AuthHandler) Token(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "invalid request body"})
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), body.Username, body.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, types.APIError{Error: "invalid username or password"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to issue tokens"})
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Refresh rotates a refresh token into a fresh pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Refresh == "" {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "refresh token is required"})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), body.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.APIError{Error: "invalid or expired refresh token"})
		return
	}

	c.JSON(http.StatusOK, pair)
}
