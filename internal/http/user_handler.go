package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-mgmt-api/internal/domain"
	"user-mgmt-api/internal/service"
)

// UserHandler mantiene dependencias para endpoints de usuarios.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
	jwtServ  *service.JWTService
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, userServ *service.UserService, jwtServ *service.JWTService) *UserHandler {
	return &UserHandler{
		logger:   logger,
		userServ: userServ,
		jwtServ:  jwtServ,
	}
}

// Register maneja POST /register/.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Nickname string `json:"nickname"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request body"})
		return
	}

	user, err := h.userServ.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Nickname: req.Nickname,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already exists"})
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login maneja POST /login/ con body form-encoded username/password.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Username string `form:"username" binding:"required"`
		Password string `form:"password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "username and password are required"})
		return
	}

	user, err := h.userServ.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountLocked):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Account locked due to too many failed login attempts."})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect email or password."})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not login"})
		}
		return
	}

	token, err := h.jwtServ.Issue(user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// VerifyEmail maneja GET /verify-email/:id/:token.
func (h *UserHandler) VerifyEmail(c *gin.Context) {
	err := h.userServ.VerifyEmail(c.Request.Context(), c.Param("id"), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVerificationInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid or expired verification token"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		default:
			h.logger.Error("verify email failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not verify email"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Email verified successfully"})
}

// ResendVerification maneja POST /resend-verification/.
func (h *UserHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request body"})
		return
	}

	if err := h.userServ.ResendVerification(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many requests"})
			return
		}
		h.logger.Error("resend verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not resend verification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "If the account exists, a verification email was sent"})
}

// CreateUser maneja POST /users/ (solo ADMIN).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req struct {
		Email      string `json:"email" binding:"required,email"`
		Nickname   string `json:"nickname"`
		Password   string `json:"password" binding:"required"`
		Role       string `json:"role"`
		IsVerified bool   `json:"is_verified"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create user request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request body"})
		return
	}

	var role domain.Role
	if req.Role != "" {
		parsed, ok := domain.ParseRole(req.Role)
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid role"})
			return
		}
		role = parsed
	}

	user, err := h.userServ.CreateUser(c.Request.Context(), service.CreateUserInput{
		Email:      req.Email,
		Nickname:   req.Nickname,
		Password:   req.Password,
		Role:       role,
		IsVerified: req.IsVerified,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already exists"})
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword), errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		default:
			h.logger.Error("create user failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not create user"})
		}
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetUser maneja GET /users/:id (ADMIN o el propio usuario).
func (h *UserHandler) GetUser(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}
	targetID := c.Param("id")
	if !isSelfOrAdmin(claims, targetID) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Operation not permitted"})
		return
	}

	user, err := h.userServ.GetUser(c.Request.Context(), targetID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		h.logger.Error("get user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not get user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser maneja PUT /users/:id (solo ADMIN).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req struct {
		Email              *string `json:"email" binding:"omitempty,email"`
		Nickname           *string `json:"nickname"`
		Role               *string `json:"role"`
		FirstName          *string `json:"first_name"`
		LastName           *string `json:"last_name"`
		Bio                *string `json:"bio"`
		GithubProfileURL   *string `json:"github_profile_url"`
		LinkedinProfileURL *string `json:"linkedin_profile_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update user request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request body"})
		return
	}

	input := service.UpdateUserInput{
		Email:              req.Email,
		Nickname:           req.Nickname,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Bio:                req.Bio,
		GithubProfileURL:   req.GithubProfileURL,
		LinkedinProfileURL: req.LinkedinProfileURL,
	}
	if req.Role != nil {
		parsed, ok := domain.ParseRole(*req.Role)
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid role"})
			return
		}
		input.Role = &parsed
	}

	user, err := h.userServ.UpdateUser(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		case errors.Is(err, service.ErrEmailExists):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already exists"})
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		default:
			h.logger.Error("update user failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not update user"})
		}
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser maneja DELETE /users/:id (solo ADMIN).
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.userServ.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		h.logger.Error("delete user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not delete user"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsers maneja GET /users/ (ADMIN y MANAGER).
func (h *UserHandler) ListUsers(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	// Mismos límites que aplica el service: la paginación reportada tiene
	// que calcularse sobre el limit efectivo, no sobre el pedido.
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	users, total, err := h.userServ.ListUsers(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": users,
		"total": total,
		"page":  skip/limit + 1,
		"size":  len(users),
	})
}

// UnlockUser maneja POST /users/:id/unlock (solo ADMIN).
func (h *UserHandler) UnlockUser(c *gin.Context) {
	if err := h.userServ.UnlockUser(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		h.logger.Error("unlock user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not unlock user"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SetProfessionalStatus maneja PUT /users/:id/professional-status (ADMIN y MANAGER).
func (h *UserHandler) SetProfessionalStatus(c *gin.Context) {
	var req struct {
		IsProfessional *bool `json:"is_professional" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "is_professional is required"})
		return
	}

	user, err := h.userServ.SetProfessionalStatus(c.Request.Context(), c.Param("id"), *req.IsProfessional)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		h.logger.Error("set professional status failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not update professional status"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile maneja PUT /profile (cualquier usuario autenticado,
// siempre sobre su propio registro).
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	var req struct {
		FirstName          *string `json:"first_name"`
		LastName           *string `json:"last_name"`
		Bio                *string `json:"bio"`
		GithubProfileURL   *string `json:"github_profile_url"`
		LinkedinProfileURL *string `json:"linkedin_profile_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request body"})
		return
	}

	user, err := h.userServ.UpdateProfile(c.Request.Context(), claims.UserID, service.ProfileUpdateInput{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Bio:                req.Bio,
		GithubProfileURL:   req.GithubProfileURL,
		LinkedinProfileURL: req.LinkedinProfileURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoUpdatableFields):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "At least one updatable field is required"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		default:
			h.logger.Error("update profile failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not update profile"})
		}
		return
	}
	c.JSON(http.StatusOK, user)
}
