package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/truck-inspection/internal/auth"
	"github.com/ukydev/truck-inspection/internal/catalog"
	"github.com/ukydev/truck-inspection/internal/config"
	"github.com/ukydev/truck-inspection/internal/dashboard"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/draft"
	"github.com/ukydev/truck-inspection/internal/events"
	"github.com/ukydev/truck-inspection/internal/handlers"
	"github.com/ukydev/truck-inspection/internal/session"
	"github.com/ukydev/truck-inspection/internal/submission"
	"go.mongodb.org/mongo-driver/mongo"
)

// server is the assembled API with the resources it must release.
type server struct {
	handler http.Handler
	closers []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openDrafts(cfg *config.Config) (draft.Backend, error) {
	switch cfg.DraftBackend {
	case "sqlite":
		return draft.OpenSQLite(cfg.DraftSQLitePath)
	case "redis":
		return draft.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DraftTTL)
	default:
		return draft.NewMemoryBackend(), nil
	}
}

func openPublisher(cfg *config.Config) events.Publisher {
	if cfg.MQTTBroker == "" {
		return events.NopPublisher{}
	}
	p, err := events.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
	if err != nil {
		log.WithError(err).WithField("broker", cfg.MQTTBroker).Warn("MQTT unavailable, completion events disabled")
		return events.NopPublisher{}
	}
	log.WithFields(log.Fields{"broker": cfg.MQTTBroker, "topic": cfg.MQTTTopic}).Info("publishing completion events")
	return p
}

// build wires the stores, services and routes described by cfg.
func build(ctx context.Context, cfg *config.Config) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		srv.close()
		return nil, err
	}

	var (
		store  db.InspectionStore
		users  db.UserCollection
		health func(*http.Request) error
	)
	switch cfg.StoreBackend {
	case "memory":
		store = db.NewMemoryStore()
		users = db.NewMemoryUserCollection()
		log.Warn("using in-memory inspection store, records are lost on restart")
	default:
		client, err := db.ConnectMongo(cfg.MongoURI)
		if err != nil {
			return fail(fmt.Errorf("connect to MongoDB: %w", err))
		}
		srv.closers = append(srv.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.WithError(err).Warn("MongoDB disconnect failed")
			}
		})
		ms := db.NewMongoStore(client, cfg.MongoDB, cfg.MongoTransactions)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return fail(fmt.Errorf("ensure indexes: %w", err))
		}
		store = ms
		users = &db.MongoUserCollection{Collection: client.Database(cfg.MongoDB).Collection(db.UsersCollection)}
		health = mongoHealth(client)
		log.WithFields(log.Fields{"db": cfg.MongoDB, "transactions": cfg.MongoTransactions}).Info("connected to MongoDB")
	}

	backend, err := openDrafts(cfg)
	if err != nil {
		return fail(fmt.Errorf("open %s draft backend: %w", cfg.DraftBackend, err))
	}
	srv.closers = append(srv.closers, func() { _ = backend.Close() })

	publisher := openPublisher(cfg)
	srv.closers = append(srv.closers, publisher.Close)

	cat := catalog.Default()
	pipeline := submission.New(store, cat,
		submission.WithPublisher(publisher),
		submission.RequireObservation(cfg.RequireNonConformingObservation),
	)
	authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err := handlers.SeedAdmin(ctx, authService, users, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fail(fmt.Errorf("seed administrator: %w", err))
	}

	srv.handler = handlers.NewRouter(handlers.Deps{
		Auth:      authService,
		Users:     users,
		Sessions:  session.NewService(store, draft.NewStore(backend, cfg.DraftPrefix), cat, pipeline),
		Dashboard: dashboard.NewService(store, cat),
		Budget:    cfg.InspectionBudget,
		Health:    health,
	})
	log.WithFields(log.Fields{
		"catalog": cat.Version(),
		"store":   cfg.StoreBackend,
		"drafts":  cfg.DraftBackend,
		"budget":  cfg.InspectionBudget,
	}).Info("service assembled")
	return srv, nil
}

func mongoHealth(client *mongo.Client) func(*http.Request) error {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx, nil)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := build(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer srv.close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	log.WithField("port", cfg.Port).Info("HTTP server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("HTTP server failed")
	}
	log.Info("server stopped")
}
