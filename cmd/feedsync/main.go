// Command feedsync hosts one sync session headlessly: it keeps the
// notification list and unread badge in sync and optionally polls a
// conversation until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedsync/internal/cache"
	"feedsync/internal/config"
	"feedsync/internal/featureflags"
	"feedsync/internal/handlers"
	"feedsync/internal/interactions"
	"feedsync/internal/messaging"
	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/server"
	"feedsync/internal/session"
)

const version = "0.1.0"

func main() {
	token := flag.String("token", os.Getenv("FEEDSYNC_TOKEN"), "session bearer token")
	email := flag.String("email", "", "login email, used when no token is given")
	password := flag.String("password", os.Getenv("FEEDSYNC_PASSWORD"), "login password")
	conversation := flag.String("conversation", "", "user id of a conversation to keep polled")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.Configure(observability.LogSettings{Level: cfg.LogLevel, Format: cfg.LogFormat})

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "feedsync",
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampler,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		// Redis only backs caches; the session works without it.
		logger.Warn("redis unavailable, continuing without it", slog.String("error", err.Error()))
		rdb = nil
	}

	sess := session.New(session.Options{
		Config:     cfg,
		Flags:      featureflags.NewManager(cfg.FeatureFlags),
		Redis:      rdb,
		Visibility: messaging.NewVisibilityFlag(true),
		Notify: func(n models.Notice) {
			logger.Info("notice", slog.String("kind", string(n.Kind)), slog.String("text", n.Text))
		},
		// Nobody can answer a prompt in a headless process.
		Confirmer: interactions.ConfirmFunc(func(context.Context, string) bool { return false }),
		OnBadge: func(c session.Counts) {
			logger.Info("unread badge",
				slog.Int("notifications", c.Notifications),
				slog.Int("messages", c.Messages),
			)
		},
	})

	if *token != "" {
		err = sess.Init(ctx, *token)
	} else {
		err = sess.Login(ctx, *email, *password)
	}
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	if *conversation != "" {
		_, err := sess.OpenConversation(ctx, *conversation, messaging.Hooks{
			OnChange: func(messages []models.Message) {
				logger.Debug("conversation updated",
					slog.String("peer_id", *conversation),
					slog.Int("messages", len(messages)),
				)
			},
		})
		if err != nil {
			logger.Error("failed to open conversation", slog.String("peer_id", *conversation), slog.String("error", err.Error()))
		}
	}

	var status *server.Server
	if cfg.MetricsAddr != "" {
		status = server.NewServer(cfg.MetricsAddr, &handlers.Handlers{Session: sess, Redis: rdb})
		status.Start()
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down session...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sess.Teardown()
	if status != nil {
		if err := status.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown error", slog.String("error", err.Error()))
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
}
