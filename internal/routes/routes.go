package routes

import (
	"os"
	"strconv"

	"github.com/civicseva/backend/internal/controllers"
	"github.com/civicseva/backend/internal/middleware"
	"github.com/civicseva/backend/internal/models"
	"github.com/civicseva/backend/internal/repository"
	"github.com/civicseva/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// SetupRoutes wires stores, services and controllers and registers all
// application routes. The returned escalation service is started by the
// caller so the sweep runner shares the server's stop channel.
func SetupRoutes(r *gin.Engine, db *gorm.DB, mongoDB *mongo.Database, rdb *redis.Client, objects services.ObjectStore) *services.EscalationService {
	// Stores
	complaintRepo := repository.NewComplaintRepository(db)
	evidenceRepo := repository.NewEvidenceRepository(mongoDB)

	// Services
	riskService := services.NewRiskService(os.Getenv("RISK_ENGINE_URL"))
	notificationService := services.NewNotificationService(rdb)
	triageService := services.NewTriageService(complaintRepo, evidenceRepo, riskService, notificationService, objects)

	thresholdDays, _ := strconv.Atoi(os.Getenv("ESCALATION_THRESHOLD_DAYS"))
	escalationService := services.NewEscalationService(complaintRepo, notificationService, thresholdDays)

	// Controllers
	authController := controllers.NewAuthController(db)
	userController := controllers.NewUserController(db)
	complaintController := controllers.NewComplaintController(triageService, escalationService)

	// API routes
	api := r.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
			auth.POST("/register", authController.Register)
			auth.POST("/refresh", middleware.AuthMiddleware(), authController.RefreshToken)
		}

		api.GET("/categories", complaintController.GetCategories)

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			// Users
			users := protected.Group("/users")
			{
				users.GET("/me", userController.GetCurrentUser)
				users.PUT("/me", userController.UpdateCurrentUser)
				users.GET("/officers", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin), userController.GetOfficers)
			}

			// Complaints
			complaints := protected.Group("/complaints")
			{
				complaints.POST("", complaintController.CreateComplaint)
				complaints.GET("", complaintController.SearchComplaints)
				complaints.GET("/statistics", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin), complaintController.GetStatistics)
				complaints.GET("/:id", complaintController.GetComplaint)
				complaints.GET("/:id/history", complaintController.GetStatusHistory)
				complaints.PUT("/:id/status", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin), complaintController.UpdateStatus)
				complaints.PUT("/:id/assign", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin), complaintController.AssignComplaint)
				complaints.POST("/:id/escalate", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin), complaintController.EscalateComplaint)
				complaints.POST("/:id/feedback", complaintController.SubmitFeedback)
				complaints.POST("/:id/evidence", complaintController.UploadEvidence)
				complaints.DELETE("/:id/evidence/:fileId", complaintController.DeleteEvidenceFile)
			}

			// Escalation sweep entry point for external schedulers
			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				admin.POST("/escalations/check", complaintController.CheckEscalations)
			}
		}
	}

	return escalationService
}
