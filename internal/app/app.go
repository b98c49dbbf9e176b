package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/call"
	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/log"
	"github.com/vovakirdan/wirecall/internal/media"
	"github.com/vovakirdan/wirecall/internal/metrics"
	"github.com/vovakirdan/wirecall/internal/signaling"
	"github.com/vovakirdan/wirecall/internal/store"
	"github.com/vovakirdan/wirecall/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirecall/internal/transport/http"
)

// Hooks are the host-environment integration points. All fields are
// optional; nil hooks degrade to always-granted permission and discarded
// events.
type Hooks struct {
	Permission call.MicrophonePermission
	Classifier func(addr string) string
	// Consumer receives every call event. When nil the app drains the
	// event stream itself so the service never stalls.
	Consumer func(call.Event)
}

// App wires together the call core, media, signaling and debug layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	service         *call.Service
	signaling       *signaling.Client
	store           store.Store
	hooks           Hooks
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger, hooks Hooks) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	set := metrics.New()

	iceServers := buildICEServers(cfg)
	mediaLog := log.Component(logger, "media")
	factory := func(initiator, videoNegotiated bool) (call.MediaSession, error) {
		return media.NewClient(media.Options{
			Logger:                  mediaLog,
			ICEServers:              iceServers,
			Initiator:               initiator,
			VideoSupported:          true,
			VideoNegotiated:         videoNegotiated,
			ConnectingStatsInterval: cfg.ConnectingStatsInterval,
			ConnectedStatsInterval:  cfg.ConnectedStatsInterval,
			VideoCheckInterval:      cfg.VideoCheckInterval,
			Classifier:              hooks.Classifier,
			AudioRouter:             media.NopAudioRouter{},
		})
	}

	perm := hooks.Permission
	if perm == nil {
		perm = call.PermissionFunc(func(context.Context) (bool, error) { return true, nil })
	}

	// The websocket client needs the message handler before the service
	// exists; the closure resolves the service at delivery time.
	var svc *call.Service
	ws := signaling.NewClient(signaling.ClientConfig{
		URL:   cfg.SignalingURL,
		Token: cfg.SignalingToken,
	}, log.Component(logger, "signaling"), func(msg signaling.Message, done func()) {
		svc.HandleMessage(msg, done)
	})

	svc = call.NewService(call.Options{
		Logger:     log.Component(logger, "call"),
		Config:     cfg,
		Sender:     ws,
		Entities:   st,
		Permission: perm,
		Media:      factory,
		Metrics:    set,
	})

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}

	server := transporthttp.NewServer(svc, set, jwtConfig, cfg, log.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		service:         svc,
		signaling:       ws,
		store:           st,
		hooks:           hooks,
		log:             logger,
	}, nil
}

// Service exposes the call core for intent submission.
func (a *App) Service() *call.Service { return a.service }

// Run starts all components and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.service.Run(ctx)
	go a.consumeEvents(ctx)
	go func() {
		if err := a.signaling.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("signaling client stopped")
		}
	}()

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down debug server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

func (a *App) consumeEvents(ctx context.Context) {
	for {
		select {
		case ev := <-a.service.Events():
			if a.hooks.Consumer != nil {
				a.hooks.Consumer(ev)
			}
		case <-ctx.Done():
			return
		}
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

func buildICEServers(cfg config.Config) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.StunServers)+len(cfg.TurnServers))
	if len(cfg.StunServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.StunServers})
	}
	for _, t := range cfg.TurnServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{t.URL},
			Username:   t.Username,
			Credential: t.Credential,
		})
	}
	return servers
}
