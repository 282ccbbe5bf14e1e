package main

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"battle/internal/battle_management"
	"battle/internal/config"
	"battle/internal/elo"
	"battle/internal/metrics"
	"battle/internal/queue_management"
	"battle/internal/routers"
	"battle/internal/settlement"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}
	if cfg.BattleSecret == "" {
		logger.Warn("BATTLE_SECRET not set; result tokens disabled")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := elo.NewStore(rdb)
	settle := settlement.NewService(store, rdb, []byte(cfg.BattleSecret), []byte(cfg.JWTSecret))

	matchmaker := queue_management.NewMatchmaker()
	matchmaker.Start()

	rooms := battle_management.NewRegistry(
		battle_management.DefaultConfig(),
		[]byte(cfg.BattleSecret),
		settle,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())
	routers.BattleRoutes(r, matchmaker, rooms, settle)

	addr := ":" + cfg.Port
	logger.Info("battle service listening", zap.String("addr", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}
