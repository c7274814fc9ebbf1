// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/handlers"
	"github.com/javajoker/substance-compliance/internal/middleware"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

const version = "1.0.0"

func Initialize(db *gorm.DB, cfg *config.Config, svc *services.Services) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Auth)
	customerHandler := handlers.NewCustomerHandler(svc.Customers, svc.Licences)
	substanceHandler := handlers.NewSubstanceHandler(svc.Substances)
	thresholdHandler := handlers.NewThresholdHandler(svc.Thresholds)
	licenceHandler := handlers.NewLicenceHandler(svc.Licences, svc.Reports)
	documentHandler := handlers.NewDocumentHandler(svc.Documents)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions)
	reportHandler := handlers.NewReportHandler(svc.Reports)

	utils.ConfigureTokens(cfg.JWT.SecretKey, cfg.JWT.Issuer)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.GeneralRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	r.Use(middleware.AuditLogMiddleware(repository.NewAuditRepository(db)))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		state := "healthy"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Reference data is maintained by responsible persons and administrators.
	referenceWriters := middleware.RoleRequired(models.UserRoleResponsiblePerson, models.UserRoleAdmin)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", middleware.AuthRequired(), authHandler.Logout)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
			auth.PUT("/password", middleware.AuthRequired(), authHandler.ChangePassword)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())

		// Transaction routes
		transactions := protected.Group("/transactions")
		{
			transactions.POST("", transactionHandler.Submit)
			transactions.GET("", transactionHandler.Search)
			transactions.GET("/:id", transactionHandler.Get)
			transactions.POST("/:id/validate", transactionHandler.Validate)
			transactions.POST("/:id/revalidate", transactionHandler.Revalidate)
		}

		// Override routes
		overrides := protected.Group("/overrides")
		{
			overrides.GET("/pending", transactionHandler.ListPendingOverrides)
			overrides.POST("/:id/approve", middleware.OverrideDeciderRequired(), transactionHandler.ApproveOverride)
			overrides.POST("/:id/reject", middleware.OverrideDeciderRequired(), transactionHandler.RejectOverride)
		}

		// Licence routes
		licences := protected.Group("/licences")
		{
			licences.POST("", licenceHandler.Create)
			licences.GET("", licenceHandler.List)
			licences.GET("/types", licenceHandler.ListTypes)
			licences.GET("/:id", licenceHandler.Get)
			licences.PUT("/:id", licenceHandler.Update)
			licences.PUT("/:id/status", licenceHandler.ChangeStatus)
			licences.GET("/:id/corrections", licenceHandler.ListCorrections)
			licences.POST("/:id/corrections", licenceHandler.CorrectDates)
			licences.POST("/:id/corrections/preview", licenceHandler.PreviewCorrection)

			// Certificates
			licences.POST("/:id/documents", middleware.UploadRateLimit(), documentHandler.Upload)
			licences.GET("/:id/documents/:documentId", documentHandler.Download)
			licences.DELETE("/:id/documents/:documentId", documentHandler.Delete)
		}

		// Customer routes
		customers := protected.Group("/customers")
		{
			customers.POST("", customerHandler.Create)
			customers.GET("", customerHandler.List)
			customers.GET("/:id", customerHandler.Get)
			customers.PUT("/:id", customerHandler.Update)
			customers.GET("/:id/licences", customerHandler.ListLicences)
			customers.PUT("/:id/approval", referenceWriters, customerHandler.SetApproval)
			customers.POST("/:id/suspend", customerHandler.Suspend)
			customers.POST("/:id/reinstate", referenceWriters, customerHandler.Reinstate)
		}

		// Substance routes
		substances := protected.Group("/substances")
		{
			substances.GET("", substanceHandler.List)
			substances.GET("/:code", substanceHandler.Get)
			substances.POST("", referenceWriters, substanceHandler.Create)
			substances.PUT("/:code", referenceWriters, substanceHandler.Update)
		}

		// Threshold routes
		thresholds := protected.Group("/thresholds")
		{
			thresholds.GET("", thresholdHandler.List)
			thresholds.GET("/:id", thresholdHandler.Get)
			thresholds.POST("", referenceWriters, thresholdHandler.Create)
			thresholds.PUT("/:id", referenceWriters, thresholdHandler.Update)
			thresholds.DELETE("/:id", referenceWriters, thresholdHandler.Deactivate)
		}

		// Report routes
		reports := protected.Group("/reports")
		{
			reports.GET("/pending-overrides.xlsx", reportHandler.PendingOverrides)
		}

		// Admin routes
		admin := protected.Group("/admin")
		admin.Use(middleware.AdminRequired())
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.GET("/users", adminHandler.GetUsers)
			admin.POST("/users", adminHandler.CreateUser)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
			admin.GET("/audit-logs", adminHandler.ListAuditLogs)
		}
	}

	return r
}
