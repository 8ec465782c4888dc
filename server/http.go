package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"meetinghub/config"
	"meetinghub/constant"
	meetingHandler "meetinghub/handler"
	"meetinghub/pkg/ai"
	"meetinghub/pkg/objectstore"
	"meetinghub/pkg/rabbitmq"
	"meetinghub/repository"
	"meetinghub/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	}

	repo := repository.NewRepo(cfg.DB)
	if err := repo.Migrate(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to migrate schema")
	}

	store := objectstore.NewMinio(cfg.Storage, cfg.MinIOBucket)
	publisher := rabbitmq.NewPublisher(conn, cfg.Queue)

	correlator := service.NewSessionCorrelator(repo, publisher, cfg.Session.ImageStaleness, nil)
	if err := correlator.Recover(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to recover active sessions")
	}

	ingest := service.NewIngest(repo, store, publisher, correlator, cfg.Ingest)

	transcriber := ai.NewWhisperTranscriber(cfg.AI.OpenAIKey, cfg.AI.RequestTimeout)
	summarizer := ai.NewGeminiSummarizer(cfg.AI.GoogleKey, cfg.AI.RequestTimeout)
	pipeline := service.NewPipeline(repo, store, transcriber, summarizer, cfg.AI)

	serviceDeps := meetingHandler.ServiceDependencies{
		Pipeline: pipeline,
	}

	processConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, meetingHandler.ProcessMeetingHandler)
	go func() {
		err := processConsumer.Consume(ctx, serviceDeps)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("processing consumer error")
		}
	}()

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(zerolog.Ctx(ctx).WithContext(c.Request.Context()))
		c.Next()
	})
	addHealth(r)

	api := meetingHandler.NewAPI(repo, correlator, ingest, store)
	api.Register(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

// corsMiddleware keeps the API open to the browser dashboard.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
