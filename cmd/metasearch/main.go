package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/paneq/meta-search/pkg/builder"
	"github.com/paneq/meta-search/pkg/config"
	"github.com/paneq/meta-search/pkg/executor"
	"github.com/paneq/meta-search/pkg/httpapi"
	"github.com/paneq/meta-search/pkg/observability"
)

func main() {
	schemaPath := flag.String("schema", "metasearch.yaml", "Path to the entity schema file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	model, err := config.LoadSchemaFile(*schemaPath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to load schema from %s", *schemaPath)
	}
	log.Infof("Loaded %d entity types from %s", len(model.Set.Names()), *schemaPath)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var promRegistry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		promRegistry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(promRegistry)
	}

	var redisClient *redis.Client
	execOpts := []executor.Option{executor.WithLogger(logger)}
	if metrics != nil {
		execOpts = append(execOpts, executor.WithMetrics(metrics))
	}
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		execOpts = append(execOpts,
			executor.WithResultCache(executor.NewResultCache(redisClient, cfg.Redis.CacheTTL, logger)))
		log.Infof("Result cache enabled via Redis at %s", cfg.Redis.Addr)
	}

	exec := executor.NewSQL(db, cfg.Database.Dialect(), execOpts...)

	dispatchOpts := []builder.DispatchOption{
		builder.WithExecutor(exec),
		builder.WithLogger(logger),
	}
	if metrics != nil {
		dispatchOpts = append(dispatchOpts, builder.WithMetrics(metrics))
	}
	dispatch := builder.NewDispatch(dispatchOpts...)
	for _, reg := range model.Registries {
		dispatch.Bind(reg)
		log.Infof("Bound search registry for entity %s", reg.Entity().Name)
	}

	serverOpts := []httpapi.ServerOption{
		httpapi.WithLogger(logger),
		httpapi.WithHealthChecker(observability.NewHealthChecker(db, redisClient)),
	}
	if metrics != nil {
		serverOpts = append(serverOpts, httpapi.WithMetrics(metrics, promRegistry))
	}
	apiServer := httpapi.NewServer(dispatch, model.Set, serverOpts...)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("Search API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, srv, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if err := shutdown.WaitForShutdown(); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
