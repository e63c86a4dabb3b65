package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/payflowhq/payflow/app/controllers"
	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/audit"
	"github.com/payflowhq/payflow/internal/pkg/cache"
	"github.com/payflowhq/payflow/internal/pkg/database"
	"github.com/payflowhq/payflow/internal/pkg/env"
	"github.com/payflowhq/payflow/internal/pkg/fraud"
	"github.com/payflowhq/payflow/internal/pkg/gateway"
	"github.com/payflowhq/payflow/internal/pkg/idempotency"
	"github.com/payflowhq/payflow/internal/pkg/jobqueue"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/middleware"
	"github.com/payflowhq/payflow/internal/pkg/router"
	"github.com/payflowhq/payflow/internal/pkg/webhook"
)

func main() {
	app, shutdown := NewApplication()

	// Stop background workers before the process exits so in-flight jobs
	// and buffered audit entries drain.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		shutdown()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	auditor := audit.NewLogger(repos.Audit, env.GetEnvInt("AUDIT_BUFFER_SIZE", 256))
	auditor.Start()

	adapter := newGatewayAdapter()
	scorer := fraud.NewScorer(repos.Transaction, cache.GetClient(), splitList(env.GetEnv("FRAUD_BLOCKED_IPS", "")))

	manager := jobqueue.GetManager()
	queue := manager.GetQueue()

	ledgerService := ledger.NewService(
		repos.Transaction,
		repos.Customer,
		adapter,
		scorer,
		auditor,
		queue,
		ledger.LoadConfigFromEnv(),
	)
	webhookService := webhook.NewService(repos.Webhook, ledgerService, adapter, auditor, queue)
	queue.Bind(ledgerService, webhookService, scorer)

	idempotencyService := idempotency.NewService(
		repos.Idempotency,
		cache.GetClient(),
		env.GetEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	)

	archiver := newArchiver(repos)
	manager.Bind(webhookService, idempotencyService, archiver)
	manager.Start()

	controllers.Setup(ledgerService, webhookService, idempotencyService)
	middleware.Setup(auditor)

	app := fiber.New(fiber.Config{
		AppName:               "payflow",
		DisableStartupMessage: false,
	})

	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	router.InstallRouter(app)

	shutdown := func() {
		manager.Stop()
		auditor.Stop()
	}
	return app, shutdown
}

// newGatewayAdapter selects the provider driver. The stub keeps local
// development and CI off the PayPal sandbox.
func newGatewayAdapter() gateway.Adapter {
	if env.GetEnv("GATEWAY_DRIVER", "paypal") == "stub" {
		log.Println("[Payflow] Using stub payment gateway")
		return gateway.NewStubAdapter()
	}
	adapter, err := gateway.NewPayPalAdapterFromEnv()
	if err != nil {
		log.Fatalf("[Payflow] Gateway configuration invalid: %v", err)
	}
	return adapter
}

func newArchiver(repos *repository.Repositories) *audit.Archiver {
	cfg, err := audit.LoadArchiveConfig()
	if err != nil {
		log.Fatalf("[Payflow] Audit archive configuration invalid: %v", err)
	}
	if !cfg.Enabled {
		return nil
	}
	archiver, err := audit.NewArchiver(cfg, repos.Audit)
	if err != nil {
		log.Fatalf("[Payflow] Audit archiver setup failed: %v", err)
	}
	return archiver
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
