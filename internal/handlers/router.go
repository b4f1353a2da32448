package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/certtrack/certificate-service/internal/auth"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/services"
	"github.com/certtrack/certificate-service/internal/utils"
)

type HandlerManager struct {
	serviceManager     services.ServiceManager
	accountHandler     *AccountHandler
	certificateHandler *CertificateHandler
	adminHandler       *AdminHandler
	authMiddleware     *AuthMiddleware
	logger             utils.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	issuer *auth.TokenIssuer,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		serviceManager:     serviceManager,
		accountHandler:     NewAccountHandler(serviceManager.Account(), logger),
		certificateHandler: NewCertificateHandler(serviceManager.Certificate(), serviceManager.Performance(), logger),
		adminHandler:       NewAdminHandler(serviceManager, logger),
		authMiddleware:     NewAuthMiddleware(issuer),
		logger:             logger,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	student := hm.authMiddleware.RequireRole(models.RoleStudent)
	faculty := hm.authMiddleware.RequireRole(models.RoleFaculty)
	admin := hm.authMiddleware.RequireRole(models.RoleAdmin)

	v1 := router.Group("/api/v1")
	{
		// Account routes
		accounts := v1.Group("/accounts")
		{
			accounts.POST("/register", hm.accountHandler.Register)
			accounts.POST("/login", hm.accountHandler.Login)
			accounts.POST("/verify-email/:token", hm.accountHandler.VerifyEmail)
			accounts.POST("/resend-verification", hm.accountHandler.ResendVerification)
			accounts.POST("/forgot-password", hm.accountHandler.ForgotPassword)
			accounts.POST("/reset-password/:token", hm.accountHandler.ResetPassword)

			authed := accounts.Group("")
			authed.Use(hm.authMiddleware.Authenticate())
			{
				authed.GET("/profile", hm.accountHandler.GetProfile)
				authed.PUT("/profile", hm.accountHandler.UpdateProfile)

				// Account administration - Admins only
				authed.GET("/users", admin, hm.accountHandler.ListAccounts)
				authed.PUT("/users/:id/active", admin, hm.accountHandler.SetActive)
				authed.DELETE("/users/:id", admin, hm.accountHandler.DeleteAccount)
			}
		}

		// Certificate routes
		certificates := v1.Group("/certificates")
		certificates.Use(hm.authMiddleware.Authenticate())
		{
			// Students
			certificates.POST("/upload-url", student, hm.certificateHandler.CreateUploadURL)
			certificates.POST("/upload", student, hm.certificateHandler.Submit)
			certificates.GET("/my", student, hm.certificateHandler.ListMine)
			certificates.GET("/performance", student, hm.certificateHandler.Performance)
			certificates.GET("/alerts", student, hm.certificateHandler.ExpiringSoon)

			// Faculty
			certificates.GET("/assigned", faculty, hm.certificateHandler.ListAssigned)
			certificates.PUT("/review/:id", faculty, hm.certificateHandler.Review)
			certificates.GET("/faculty-stats", faculty, hm.certificateHandler.ReviewerStats)

			// Admins
			certificates.GET("/all", admin, hm.adminHandler.ListAll)
			certificates.GET("/analytics", admin, hm.adminHandler.Analytics)
			certificates.GET("/workload", admin, hm.adminHandler.Workload)
			certificates.POST("/workload/reconcile", admin, hm.adminHandler.Reconcile)
			certificates.GET("/export", admin, hm.adminHandler.Export)
			certificates.POST("/alerts/dispatch", admin, hm.adminHandler.DispatchAlerts)

			// Owner, assigned reviewer or admin; checked by the service
			certificates.GET("/:id", hm.certificateHandler.Get)
		}
	}

	router.GET("/health", hm.health)
}

func (hm *HandlerManager) health(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		utils.GetLogger(c, hm.logger).Warn("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"service":   "certificate-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "certificate-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
