package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"wtfGram/auth"
	"wtfGram/crud"
	"wtfGram/database"
	"wtfGram/domain"
	"wtfGram/http"
	"wtfGram/jobs"
	"wtfGram/pubsub"
)

// main is the app's entry point.
func main() {
	// Check if the flag "-prod" has been provided. It means that we're running in production.
	productionBool := flag.Bool("prod", false, "Provide this flag in production to ensure that a .config.json file is provided before the application starts.")
	resetBool := flag.Bool("reset", false, "Drop and recreate all tables before starting. Ignored in production.")
	flag.Parse()

	// Load configuration from a .config.json file if present, otherwise use the default dev setup.
	// If *productionBool evaluates to true, that means we're in production. In that case the
	// .config.json file is required and the app will panic if no file is found.
	config := LoadConfig(*productionBool)
	log := newLogger(config.IsProd())

	// Open a database connection and execute migrations.
	dbConfig := config.Database
	db := NewDB(dbConfig.Dialect, dbConfig.ConnectionInfo())
	must(Open(db, config.IsProd()))
	defer Close(db)
	if *resetBool && !config.IsProd() {
		log.Warn("resetting the database")
		must(DestructiveReset(db))
	} else {
		must(AutoMigrate(db))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics of the hub and the go runtime are served on /metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Start the hub. With redis configured, posts reach the subscribers of every instance.
	hub := pubsub.NewHub(log.WithField("component", "hub"), pubsub.NewMetrics(reg))
	defer hub.Close()
	var pub domain.Publisher = hub
	if config.Redis.Addr != "" {
		client, err := pubsub.NewRedisClient(ctx, config.Redis.Addr, config.Redis.Password)
		must(err)
		defer client.Close()
		relay := pubsub.NewRedisRelay(hub, client, config.Redis.Channel, log)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("redis relay stopped")
			}
		}()
		pub = relay
	}

	// Start the crud services.
	tokens := auth.NewJWT(config.JWTSecret, auth.DefaultTokenTTL)
	services, err := crud.NewServices(
		database.NewStore(db.Gorm),
		log,
		crud.WithUser(tokens, config.Pepper),
		crud.WithFollow(),
		crud.WithFeed(),
		crud.WithPost(pub),
	)
	must(err)

	// Periodically repair follow edges that were only written on one side.
	reconciler, err := jobs.NewReconciler(services.Follow, config.ReconcileSchedule, log)
	must(err)
	reconciler.Start()
	defer reconciler.Stop()

	// Set up a webserver and serve the app until we get a signal.
	server := http.NewServer(config.IsProd(), config.ClientURL, services, tokens, hub, reg, log)
	if err := server.Run(ctx, config.Port); err != nil {
		log.WithError(err).Error("server stopped")
	}
}

// newLogger returns a json logger in production and a human readable one in dev.
func newLogger(isProd bool) *logrus.Logger {
	log := logrus.New()
	if isProd {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
		return log
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.DebugLevel)
	return log
}

// must is a little helper for shortening the panic instruction.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
