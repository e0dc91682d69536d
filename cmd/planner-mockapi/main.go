package main

import (
	"crypto/rand"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/planclient/adapters/tokenizer"
	"github.com/layer-3/planclient/config"
	"github.com/layer-3/planclient/transport/http"
)

func main() {
	configFile := flag.String("config", "", "path to planner.yaml")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Tokens do not survive a restart unless a secret is configured
	secret := []byte(cfg.Mock.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("Failed to generate signing secret: %v", err)
		}
		logger.Warn("mockapi.ephemeral_secret", "hint", "set PLANNER_MOCK_SECRET to keep sessions across restarts")
	}

	tok := tokenizer.NewJWTTokenizer(secret, cfg.Mock.AccessTTL, cfg.Mock.RefreshTTL)

	var opts []http.BackendOption
	if cfg.Mock.RotateRefresh {
		opts = append(opts, http.WithRefreshRotation())
	}
	backend := http.NewBackend(tok, opts...)

	router := http.SetupRouter(backend, tok, logger)

	logger.Info("mockapi.listening", "addr", cfg.Mock.Addr, "access_ttl", cfg.Mock.AccessTTL, "refresh_ttl", cfg.Mock.RefreshTTL)
	if err := router.Run(cfg.Mock.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
