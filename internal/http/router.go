package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-mgmt-api/internal/domain"
	"user-mgmt-api/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	userH *UserHandler,
	jwtSvc *service.JWTService,
) *gin.Engine {
	r := gin.New()

	// Middlewares básicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	// Rutas públicas.
	r.POST("/register/", userH.Register)
	r.POST("/login/", userH.Login)
	r.GET("/verify-email/:id/:token", userH.VerifyEmail)
	r.POST("/resend-verification/", userH.ResendVerification)

	// Rutas con bearer token. El predicado de rol se declara por endpoint.
	authed := r.Group("", JWTAuthMiddleware(jwtSvc))

	users := authed.Group("/users")
	users.POST("/", RequireRoles(domain.RoleAdmin), userH.CreateUser)
	users.GET("/", RequireRoles(domain.RoleAdmin, domain.RoleManager), userH.ListUsers)
	users.GET("/:id", userH.GetUser)
	users.PUT("/:id", RequireRoles(domain.RoleAdmin), userH.UpdateUser)
	users.DELETE("/:id", RequireRoles(domain.RoleAdmin), userH.DeleteUser)
	users.POST("/:id/unlock", RequireRoles(domain.RoleAdmin), userH.UnlockUser)
	users.PUT("/:id/professional-status", RequireRoles(domain.RoleAdmin, domain.RoleManager), userH.SetProfessionalStatus)

	authed.PUT("/profile", userH.UpdateProfile)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
