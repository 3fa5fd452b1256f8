package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/config"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/messaging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/moderation"
)

// The moderator answers moderation.check requests from chat servers running
// with moderation.backend=remote. It classifies with Gemini when a key is
// configured and with the local filter otherwise.
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log := logging.Component("moderator")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.Log.ServiceName = "cyberguard-moderator"
	logging.Init(cfg.Log)
	log = logging.Component("moderator")

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATS.URL
	natsConfig.Name = "cyberguard-moderator"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatal().Err(err).Str("url", natsConfig.URL).Msg("failed to connect to NATS")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var classifier moderation.Classifier = moderation.NewLocalClassifier(nil)
	backend := config.BackendLocal
	if cfg.Moderation.APIKey != "" {
		g, err := moderation.NewGeminiClassifier(ctx, cfg.Moderation.APIKey, cfg.Moderation.Model)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Gemini classifier")
		}
		defer g.Close()
		classifier = g
		backend = config.BackendGemini
	}
	client := moderation.NewClient(classifier, cfg.Moderation.Timeout)

	if err := natsClient.ServeModeration(moderation.RequestHandler(ctx, client)); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to moderation checks")
	}

	log.Info().
		Str("nats_url", natsConfig.URL).
		Str("classifier", backend).
		Dur("timeout", cfg.Moderation.Timeout).
		Msg("CyberGuard moderation service running")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	natsClient.Close()
}
