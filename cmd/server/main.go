// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agri-ai-go/internal/config"
	"agri-ai-go/internal/handler"
	"agri-ai-go/internal/repository"
	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/database"
	"agri-ai-go/pkg/kafka"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"
	"agri-ai-go/pkg/storage"
	"agri-ai-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 跨视图命令在队列中保留的时长
const commandTTL = 24 * time.Hour

func main() {
	// 1. 初始化配置
	configPath := "./configs/config.yaml"
	if p := os.Getenv("AGRI_CONFIG"); p != "" {
		configPath = p
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化 Redis 以及可选的 MinIO、Kafka
	ctx := context.Background()
	rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("Redis 初始化失败: %v", err)
	}
	defer rdb.Close()

	var archive storage.ImageArchive
	if cfg.MinIO.Endpoint != "" {
		if archive, err = storage.NewMinIOArchive(ctx, cfg.MinIO); err != nil {
			log.Fatalf("MinIO 初始化失败: %v", err)
		}
		log.Infof("扫描原图将归档到 MinIO bucket '%s'", cfg.MinIO.BucketName)
	}

	var events kafka.EventPublisher
	if cfg.Kafka.Brokers != "" {
		events = kafka.NewProducer(cfg.Kafka)
		defer events.Close()
		log.Infof("扫描事件将投递到 Kafka topic '%s'", cfg.Kafka.Topic)
	}

	// 4. 初始化 Repository
	historyRepo := repository.NewHistoryRepository(rdb, repository.DefaultHistoryLimit)
	translationCache := repository.NewTranslationCache(rdb, cfg.LLM.TranslationCacheTTL)
	commandRepo := repository.NewCommandRepository(rdb, commandTTL)

	// 5. 初始化 Service (依赖注入)
	credentials := service.NewCredentialService(cfg.LLM.ResolveAPIKey, service.WithOverrideTTL(cfg.LLM.SessionKeyTTL))
	if st := credentials.Resolve(); st.Configured {
		log.Info("已从环境加载 API Key")
	} else {
		log.Warnf("未配置 API Key，需要用户在设置中为会话提供")
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go credentials.RunSweeper(sweepCtx, time.Minute)

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.DeviceTokenDays)
	llmClient := llm.NewGeminiClient(cfg.LLM.BaseURL)
	knowledge := service.NewKnowledgeService(nil)
	history := service.NewHistoryService(historyRepo)
	scans := service.NewScanService(
		credentials,
		service.NewAnalysisService(credentials, llmClient, cfg.LLM),
		history,
		service.NewTranslationService(credentials, llmClient, translationCache, cfg.LLM),
		service.NewMatchService(credentials, llmClient, cfg.LLM),
		knowledge,
		archive,
		events,
	)
	commands := service.NewCommandService(commandRepo, knowledge)

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(jwtManager, handler.Handlers{
		Session: handler.NewSessionHandler(jwtManager, credentials),
		Scan:    handler.NewScanHandler(scans, history),
		Article: handler.NewArticleHandler(knowledge),
		Command: handler.NewCommandHandler(commands),
		Chat:    handler.NewChatHandler(jwtManager, credentials, llmClient, history, cfg.LLM.ChatModel),
		Voice: handler.NewVoiceHandler(jwtManager, credentials, llmClient, history, service.VoiceConfig{
			Model: cfg.LLM.LiveModel,
			Voice: cfg.LLM.Voice,
		}),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// WebSocket 连接已被劫持，Shutdown 不会等待它们，会话随进程退出释放
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
