package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/admin"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/chat"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/config"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/messaging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/metrics"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/moderation"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/ratelimit"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/session"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml if present)")
	flag.Parse()

	log := logging.Component("chatserver")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log)
	log = logging.Component("chatserver")

	// --- Room directory ---
	dir, err := openDirectory(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open directory")
	}
	purgeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if n, err := dir.PurgeUsers(purgeCtx); err != nil {
		log.Warn().Err(err).Msg("failed to release usernames held by a previous run")
	} else if n > 0 {
		log.Info().Int64("users", n).Msg("released usernames held by a previous run")
	}
	cancel()

	// --- NATS ---
	var natsClient *messaging.NATSClient
	var audit chat.Auditor
	if cfg.NATS.Enabled {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.Name = cfg.NATS.Name
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatal().Err(err).Str("url", natsConfig.URL).Msg("failed to connect to NATS")
		}
		audit = messaging.NewAuditPublisher(natsClient)
	}

	// --- Moderation ---
	classifier, closeClassifier, err := newClassifier(cfg.Moderation, natsClient)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Moderation.Backend).Msg("failed to build classifier")
	}
	moderator := moderation.NewClient(classifier, cfg.Moderation.Timeout)

	// --- Redis ---
	var limiter *ratelimit.Limiter
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := ratelimit.Dial(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			// Rate limiting fails open, so a missing Redis is not fatal.
			log.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("rate limiting disabled")
		} else {
			limiter = ratelimit.NewLimiter(rdb)
			defer rdb.Close()
		}
	}

	proxies, err := logging.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid server.trusted_proxies")
	}

	log.Info().
		Str("listen_addr", cfg.Server.ListenAddr).
		Int("worker_pool", cfg.Server.WorkerPoolSize).
		Int("max_connections", cfg.Server.MaxConnections).
		Str("database", cfg.Database.Driver).
		Str("moderation", cfg.Moderation.Backend).
		Bool("nats", natsClient != nil).
		Bool("rate_limit", limiter != nil).
		Bool("admin", cfg.Admin.Enabled).
		Str("admin_addr", cfg.Admin.ListenAddr).
		Msg("CyberGuard chat server starting")

	// --- WebSocket server ---
	registry := session.NewRegistry()
	dispatcher := ws.NewMessageDispatcher()
	server := ws.NewServer(ws.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		WorkerPoolSize: cfg.Server.WorkerPoolSize,
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxFrameBytes:  cfg.Server.MaxFrameBytes,
		Heartbeat: ws.HeartbeatConfig{
			Interval: cfg.Heartbeat.Interval,
			Timeout:  cfg.Heartbeat.Timeout,
		},
		TrustedProxies: proxies,
	}, dispatcher.Dispatch)

	opts := chat.Options{
		Directory:           dir,
		Registry:            registry,
		Moderator:           moderator,
		Sender:              server,
		Audit:               audit,
		HistoryLimit:        cfg.Chat.HistoryLimit,
		ClearDeletesHistory: cfg.Chat.ClearDeletesHistory,
	}
	if limiter != nil {
		opts.Limiter = limiter
		server.SetRateLimiter(limiter)
	}
	pipeline := chat.NewPipeline(opts)
	chat.Routes(dispatcher, pipeline)
	server.SetOnDisconnect(pipeline.Disconnect)

	adminHandler := admin.NewHandler(dir, registry)

	r := mux.NewRouter()
	r.Use(logging.HTTPMiddleware(logging.Component("http")))
	server.Routes(r)
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	adminHandler.HealthRoute(r)

	// The admin API is unauthenticated and gets its own listener.
	var adminServer *http.Server
	if cfg.Admin.Enabled {
		ar := mux.NewRouter()
		ar.Use(logging.HTTPMiddleware(logging.Component("admin")))
		adminHandler.Routes(ar)
		adminServer = &http.Server{
			Addr:              cfg.Admin.ListenAddr,
			Handler:           ar,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Str("addr", cfg.Admin.ListenAddr).Msg("admin server error")
			}
		}()
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		if adminServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := adminServer.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("admin shutdown error")
			}
			cancel()
		}
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
		registry.Close()
		closeClassifier()
		if natsClient != nil {
			natsClient.Close()
		}
		if err := dir.Close(); err != nil {
			log.Error().Err(err).Msg("directory close error")
		}
	}()

	if err := server.Start(r); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	<-stopped
	log.Info().Msg("server stopped")
}
