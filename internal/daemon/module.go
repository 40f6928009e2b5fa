package daemon

import (
	"context"
	"time"

	"github.com/gorilla/mux"
	"github.com/pigeonchat/pigeon/internal/delivery"
	"github.com/pigeonchat/pigeon/internal/httpapi"
	"github.com/pigeonchat/pigeon/internal/logging"
	"github.com/pigeonchat/pigeon/internal/media"
	"github.com/pigeonchat/pigeon/internal/realtime"
	"github.com/pigeonchat/pigeon/internal/session"
	"github.com/pigeonchat/pigeon/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	Profile    string
	ListenAddr string
	AckTimeout time.Duration
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideStore,
			provideHub,
			provideDelivery,
			provideUploader,
			provideAuthenticator,
			provideRouter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.ServerLogPath(p.Profile), "pigeond")
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	dbPath := session.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideHub(logger *zap.Logger) *realtime.Hub {
	return realtime.NewHub(logger)
}

func provideDelivery(p Params, db *store.DB, hub *realtime.Hub, logger *zap.Logger) *delivery.Protocol {
	return delivery.New(db, hub, logger, p.AckTimeout)
}

func provideUploader(p Params) (*media.LocalUploader, error) {
	return media.NewLocalUploader(session.MediaDir(p.Profile))
}

func provideAuthenticator(db *store.DB) *httpapi.TokenAuthenticator {
	return httpapi.NewTokenAuthenticator(db)
}

func provideRouter(db *store.DB, hub *realtime.Hub, proto *delivery.Protocol, uploader *media.LocalUploader, auth *httpapi.TokenAuthenticator, logger *zap.Logger) *mux.Router {
	h := httpapi.NewHandlers(db, hub, proto, uploader, auth, logger)
	return h.Router(uploader.Dir())
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
