// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/handler"
	"chai-builder-go/internal/middleware"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/pipeline"
	"chai-builder-go/internal/repository"
	"chai-builder-go/internal/service"
	"chai-builder-go/pkg/database"
	"chai-builder-go/pkg/es"
	"chai-builder-go/pkg/kafka"
	"chai-builder-go/pkg/llm"
	"chai-builder-go/pkg/log"
	"chai-builder-go/pkg/payment"
	"chai-builder-go/pkg/storage"
	"chai-builder-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和外部依赖
	database.InitMySQL(cfg.Database.MySQL)
	if err := database.DB.AutoMigrate(&model.User{}, &model.Project{}, &model.Payment{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	projectRepository := repository.NewProjectRepository(database.DB, database.RDB)
	paymentRepository := repository.NewPaymentRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.Gemini)
	verifier := payment.NewVerifier(cfg.Razorpay)
	notifier := kafka.Notifier{}
	userService := service.NewUserService(userRepository, paymentRepository, jwtManager, verifier, cfg.Ledger)
	projectService := service.NewProjectService(projectRepository, notifier, cfg.Elasticsearch, cfg.MinIO)
	aiService := service.NewAIService(projectRepository, userRepository, llmClient, notifier, cfg.Ledger)

	// 6. 初始化索引管线并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(projectRepository, pipeline.NewESIndexer(cfg.Elasticsearch))
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	api := r.Group("/api")
	{
		// Auth 路由组
		auth := api.Group("/auth")
		{
			authHandler := handler.NewAuthHandler(userService)
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/google", authHandler.GoogleAuth)
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
		}

		// 用户资料与支付路由组，需要认证
		users := api.Group("/users")
		users.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			userHandler := handler.NewUserHandler(userService)
			users.GET("/profile", userHandler.GetProfile)
			users.PUT("/profile", userHandler.UpdateProfile)
			users.DELETE("/profile", userHandler.DeleteAccount)
			users.PUT("/subscription", userHandler.UpdateSubscription)
			users.POST("/payment/save", userHandler.SavePayment)
			users.GET("/payments", userHandler.GetPaymentDetails)
		}

		// AI 对话路由组，需要认证
		ai := api.Group("/ai")
		ai.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			ai.POST("/chat", handler.NewAIHandler(aiService).Chat)
		}

		// 项目路由组，需要认证
		projects := api.Group("/projects")
		projects.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			projectHandler := handler.NewProjectHandler(projectService)
			projects.GET("/public", projectHandler.GetAllProjects)
			projects.GET("/:id/details", projectHandler.GetProjectByID)
			projects.GET("/chat/:id", projectHandler.GetProjectChat)
			projects.POST("/:id/upvote", projectHandler.ChaiUpvote)
			projects.POST("/:id/thumbnail", projectHandler.UploadThumbnail)
			projects.PUT("/visibility/:id", projectHandler.ChangeVisibility)
			projects.PUT("/:id", projectHandler.UpdateProject)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
