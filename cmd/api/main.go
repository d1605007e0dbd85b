package main

import (
	_ "campuspoints/api/swagger" // swagger docs
	"campuspoints/internal/database"
	"campuspoints/internal/handler"
	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/internal/service"
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// @title           Campus Points API
// @version         1.0
// @description     Loyalty points platform for campus merchants: purchases, transfers, redemptions, promotions, and event awards.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	if err := seedSuperuser(db); err != nil {
		log.Fatalf("Superuser seed failed: %v", err)
	}

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	promoRepo := repository.NewPromotionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	resetRepo := repository.NewResetRepository(db)
	txManager := repository.NewTransactionManager(db)

	authService := service.NewAuthService(userRepo, resetRepo)
	userService := service.NewUserService(userRepo, resetRepo, promoRepo)
	txService := service.NewTransactionService(txRepo, userRepo, promoRepo, txManager)
	promoService := service.NewPromotionService(promoRepo, txRepo, userRepo)
	eventService := service.NewEventService(eventRepo, userRepo, txRepo, txManager)

	// Initialize Handlers
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService, txService)
	txHandler := handler.NewTransactionHandler(txService)
	promoHandler := handler.NewPromotionHandler(promoService)
	eventHandler := handler.NewEventHandler(eventService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// Uploaded avatars
	router.Static("/uploads", "./uploads")

	// Register API Routes
	authHandler.RegisterRoutes(router.Group(""))
	userHandler.RegisterRoutes(router.Group(""))
	txHandler.RegisterRoutes(router.Group(""))
	promoHandler.RegisterRoutes(router.Group(""))
	eventHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// seedSuperuser creates the initial superuser from SUPERUSER_UTORID and
// SUPERUSER_PASSWORD when no superuser exists yet. Without one, nobody can
// grant elevated roles.
func seedSuperuser(db *gorm.DB) error {
	utorid := os.Getenv("SUPERUSER_UTORID")
	password := os.Getenv("SUPERUSER_PASSWORD")
	if utorid == "" || password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&model.User{}).Where("role = ?", model.RoleSuperuser).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	hashStr := string(hash)

	user := model.User{
		Utorid:       utorid,
		Name:         utorid,
		Email:        utorid + "@mail.utoronto.ca",
		PasswordHash: &hashStr,
		Role:         model.RoleSuperuser,
		Verified:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}
	log.Printf("Seeded superuser %s", utorid)
	return nil
}
