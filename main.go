package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"SceneChain-server/config"
	"SceneChain-server/engine"
	"SceneChain-server/models"
	"SceneChain-server/routers"
	"SceneChain-server/routers/api"
	"SceneChain-server/service"

	"github.com/gin-gonic/gin"
)

func main() {
	path := os.Getenv("SCENECHAIN_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	fmt.Println("Server starting on port", cfg.Server.Port)

	db, err := models.InitDB(cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	store := models.NewStore(db)
	fmt.Println("Database initialized")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	objects, err := service.NewObjectStore(ctx, cfg.MinIO)
	cancel()
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	fmt.Println("MinIO initialized")

	eng := engine.New(engineConfig(cfg.Generation), engine.Deps{
		Projects:       store,
		Scenes:         store,
		Assets:         store,
		Evaluations:    store,
		Clips:          objects,
		Synthesizer:    service.NewSynthesisClient(cfg.Worker.Addr),
		Media:          service.NewFFmpeg(cfg.FFmpeg.Path),
		Vision:         service.NewVisionScorer(cfg.Vision.APIKey, cfg.Vision.BaseURL, cfg.Vision.Model),
		NewTranscriber: service.NewTranscriberFactory(cfg.Transcription.BaseURL, cfg.Transcription.Model),
		Logger:         slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})

	queue := service.NewQueue(cfg.Redis, cfg.Generation.PollTimeout)
	defer queue.Close()
	fmt.Println("Queue initialized")

	processor := service.NewProcessor(eng, store)
	srv := processor.StartProcessor(cfg.Redis, cfg.Queue.Concurrency)
	defer srv.Shutdown()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := routers.InitRouter(api.NewHandler(store, queue, eng, objects))
	if err := r.Run(cfg.Server.Port); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

func engineConfig(g config.GenerationConfig) engine.Config {
	return engine.Config{
		Defaults: models.GenerationSettings{
			AspectRatio: g.AspectRatio,
			Model:       g.Model,
			Resolution:  g.Resolution,
		},
		DefaultClipDuration: time.Duration(g.ClipSeconds * float64(time.Second)),
		PollInterval:        g.PollInterval,
		PollTimeout:         g.PollTimeout,
		ContinuityMargin:    g.ContinuityMargin,
	}
}
