package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/satstash/satstash/controllers"
	"github.com/satstash/satstash/db"
	"github.com/satstash/satstash/db/migrations"
	"github.com/satstash/satstash/lib/logging"
	"github.com/satstash/satstash/lib/service"
	"github.com/satstash/satstash/lib/tokens"
	"github.com/satstash/satstash/rabbitmq"
	"github.com/uptrace/bun/migrate"
)

func main() {
	c := &service.Config{}

	// Load configruation from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configrued log file
	logger := logging.Logger(c.LogFilePath)

	// Open a DB connection based on the configured DATABASE_URI
	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}

	// Migrate the DB
	ctx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(ctx)
	if err != nil {
		logger.Fatalf("Error initializing db migrator: %v", err)
	}
	_, err = migrator.Migrate(ctx)
	if err != nil {
		logger.Fatalf("Error migrating database: %v", err)
	}

	// Setup exception tracking with Sentry if configured
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			EnableTracing:    c.SentryTracesSampleRate > 0,
			TracesSampleRate: c.SentryTracesSampleRate,
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Init the LND client
	lndClient, err := InitLNDClient(c, ctx)
	if err != nil {
		logger.Fatalf("Error initializing the LND connection: %v", err)
	}
	logger.Infof("Connected to LND: %s", lndClient.GetMainPubkey())

	svc := &service.SatstashService{
		Config:      c,
		DB:          dbConn,
		LndClient:   lndClient,
		Logger:      logger,
		EventPubSub: service.NewPubsub(),
	}

	if c.RabbitMQUri != "" {
		rabbitmqClient, err := rabbitmq.Dial(c.RabbitMQUri,
			rabbitmq.WithExchange(c.RabbitMQNotificationExchange))
		if err != nil {
			logger.Fatalf("Error initializing rabbitmq client: %v", err)
		}
		defer rabbitmqClient.Close()
		svc.RabbitMQClient = rabbitmqClient
	}

	backgroundCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	StartBackgroundRoutines(svc, backgroundCtx)

	e := initEcho(c, logger)

	// Public endpoints
	e.POST("/auth", controllers.NewAuthController(svc).Auth)
	if c.AllowAccountCreation {
		e.POST("/create", controllers.NewCreateUserController(svc).CreateUser)
	}

	// Authenticated endpoints
	secured := e.Group("", tokens.Middleware(c.JWTSecret), createLoggingMiddleware(logger))
	securedWithStrictRateLimit := e.Group("", tokens.Middleware(c.JWTSecret), createLoggingMiddleware(logger), createRateLimitMiddleware(c.StrictRateLimit, c.BurstRateLimit))

	secured.POST("/addinvoice", controllers.NewAddInvoiceController(svc).AddInvoice)
	secured.GET("/balance", controllers.NewBalanceController(svc).Balance)
	secured.GET("/gettxs", controllers.NewGetTXSController(svc).GetTXS)
	secured.POST("/earn", controllers.NewEarnController(svc).Earn)
	securedWithStrictRateLimit.POST("/payinvoice", controllers.NewPayInvoiceController(svc).PayInvoice)
	securedWithStrictRateLimit.POST("/keysend", controllers.NewKeySendController(svc).KeySend)

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server")
		}
	}()

	<-backgroundCtx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal(err)
	}
}
