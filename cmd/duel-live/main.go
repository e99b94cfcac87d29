package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/Vaibhav2795/duel-prediction-market/internal/config"
	"github.com/Vaibhav2795/duel-prediction-market/internal/gateway"
	"github.com/Vaibhav2795/duel-prediction-market/internal/lifecycle"
	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"github.com/Vaibhav2795/duel-prediction-market/internal/room"
	"github.com/Vaibhav2795/duel-prediction-market/internal/session"
	"github.com/Vaibhav2795/duel-prediction-market/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	repo, err := store.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	if err := repo.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		log.Fatalf("schema init error: %v", err)
	}
	cancelSchema()

	registry := room.NewRegistry()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url error: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping error: %v", err)
		}
		registry.SetMirror(room.NewRedisMirror(rdb))
	}

	gw := gateway.New(registry, repo, cfg.GameClock)
	svc := session.NewService(registry, repo, gw)
	gw.SetSession(svc)

	worker := lifecycle.NewWorker(repo, registry, svc, gw, lifecycle.Options{
		JoinWindow:    cfg.JoinWindow,
		SweepInterval: cfg.SweepInterval,
		ClockTick:     cfg.ClockTick,
	})
	svc.SetClocks(worker)
	gw.SetClocks(worker)
	worker.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("server_shutdown")
	worker.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	cancel()
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = repo.Close()
}
