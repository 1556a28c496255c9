package main

import (
	"context"
	"errors"
	logg "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/polling_server/internal/api"
	"github.com/jaam8/polling_server/internal/broadcast"
	"github.com/jaam8/polling_server/internal/config"
	"github.com/jaam8/polling_server/internal/notify"
	"github.com/jaam8/polling_server/internal/passkey"
	"github.com/jaam8/polling_server/internal/repository"
	srv "github.com/jaam8/polling_server/internal/service"
	"github.com/jaam8/polling_server/internal/session"
	"github.com/jaam8/polling_server/pkg/logger"
	"github.com/jaam8/polling_server/pkg/tarantool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("failed to load config: %s", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		logg.Fatalf("failed to initalize logger: %s", err)
	}
	defer log.Sync()
	gin.SetMode(gin.ReleaseMode)

	g, gctx := errgroup.WithContext(ctx)

	var store session.Store
	switch cfg.SessionBackend {
	case config.BackendTarantool:
		conn, err := tarantool.New(cfg.Tarantool)
		if err != nil {
			log.Fatal("failed to connect to Tarantool", zap.Error(err))
		}
		defer conn.CloseGraceful()
		remote := session.NewTarantoolStore(conn, cfg.Tarantool.SessionSpace, log)
		g.Go(func() error {
			return remote.Run(gctx, sweepInterval)
		})
		store = remote
	default:
		memory := session.NewMemoryStore(log)
		g.Go(func() error {
			return memory.Run(gctx, sweepInterval)
		})
		store = memory
	}
	secret, err := cfg.Secret()
	if err != nil {
		log.Fatal("failed to prepare session secret", zap.Error(err))
	}
	sessions := session.NewManager(session.Config{
		CookieName: cfg.SessionCookie,
		Secret:     secret,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.SessionSecure,
	}, store, log)

	provider, err := passkey.NewProvider(passkey.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPName,
		RPOrigins:     cfg.RPOrigins(),
	})
	if err != nil {
		log.Fatal("failed to configure passkeys", zap.Error(err))
	}

	hub := broadcast.New(cfg.HubBacklog, log)
	pollRepo := repository.NewPollRepository(hub, log)
	userRepo := repository.NewUserRepository(log)
	pollService := srv.NewPollService(pollRepo, log)
	authService := srv.NewAuthService(userRepo, provider, log)

	origins := cfg.FrontendOrigins()
	handler := api.New(pollService, authService, sessions, hub, origins, log)
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(handler, origins, log),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return gctx
		},
	}

	if cfg.MmURL != "" {
		announcer := notify.NewAnnouncer(notify.NewClient(cfg.MmURL, cfg.BotToken), cfg.ChannelID, hub, log)
		g.Go(func() error {
			return announcer.Run(gctx)
		})
		log.Info("mattermost announcer enabled", zap.String("channel_id", cfg.ChannelID))
	}

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err = g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return
	}
	log.Info("server graceful stopped")
}
