package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/menumarket/menumarket/internal/auth"
	"github.com/menumarket/menumarket/internal/catalog"
	"github.com/menumarket/menumarket/internal/config"
	"github.com/menumarket/menumarket/internal/entitlement"
	"github.com/menumarket/menumarket/internal/funding"
	"github.com/menumarket/menumarket/internal/identity"
	"github.com/menumarket/menumarket/internal/metrics"
	"github.com/menumarket/menumarket/internal/middleware"
	"github.com/menumarket/menumarket/internal/notification"
	"github.com/menumarket/menumarket/internal/purchase"
	"github.com/menumarket/menumarket/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
// DB and Cache may be nil in development; in-memory backends are used instead.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Runtime exposes the wired pieces the process still manages after startup.
type Runtime struct {
	// Keys is the live signing key ring; reloads rotate and retire through it.
	Keys *auth.KeyRing
	// Wait blocks until background work started by handlers has finished.
	Wait func()
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(d.Registry)))

	// Backends
	var (
		store      entitlement.Store
		menuRepo   catalog.Repository
		users      identity.Repository
		locker     purchase.Locker
		idempotent fiber.Handler
	)
	if d.DB != nil {
		store = entitlement.NewPostgresStore(d.DB)
		menuRepo = catalog.NewPostgresRepository(d.DB)
		users = identity.NewPostgresRepository(d.DB)
	} else {
		mem := entitlement.NewInMemory()
		store = entitlement.NewCompensating(mem, mem, d.Logger)
		menuRepo = catalog.NewMemoryRepository()
		users = identity.NewMemoryRepository()
	}
	if d.Cache != nil {
		locker = purchase.NewRedisLocker(d.Cache, d.Cfg.PurchaseLockTTL)
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, false, d.Logger)
	} else {
		locker = purchase.NewKeyedMutex()
	}

	// Services and handlers
	collector := metrics.NewCollector(d.Registry)
	notifier := notification.NewLoggerNotifier(d.Logger)

	identitySvc, err := identity.NewService(users, d.Logger)
	if err != nil {
		return nil, err
	}
	keys, err := auth.KeyRingFromConfig(d.Cfg)
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}
	issuer := auth.NewIssuer(keys, d.Cfg.TokenTTL, d.Cfg.TokenIssuer, nil)
	authenticator := auth.NewAuthenticator(keys, users, d.Cfg.TokenIssuer, nil)
	authHandler := auth.NewHandler(identitySvc, auth.NewService(issuer), store, collector, d.Logger)
	identityHandler := identity.NewHandler(identitySvc, store, d.Cfg.SignupBonusCoins, d.Logger)

	catalogSvc := catalog.NewService(menuRepo, store)
	catalogHandler := catalog.NewHandler(catalogSvc)

	coordinator := purchase.NewCoordinator(store, catalogSvc,
		purchase.WithLocker(locker),
		purchase.WithNotifier(notifier),
		purchase.WithRecorder(collector),
		purchase.WithLogger(d.Logger),
		purchase.WithStoreTimeout(d.Cfg.StoreTimeout),
	)
	purchaseHandler := purchase.NewHandler(coordinator)

	fundingSvc, err := funding.NewService(store, funding.StaticAcquirer{}, notifier, collector, d.Logger)
	if err != nil {
		return nil, err
	}
	fundingHandler := funding.NewHandler(fundingSvc)
	walletHandler := wallet.NewHandler(wallet.NewService(store, users))

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit))
	RegisterPublicCatalogRoutes(api, catalogHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authenticator, collector, d.Logger))
	RegisterWalletRoutes(protected, walletHandler)
	RegisterCatalogRoutes(protected, catalogHandler)
	RegisterPurchaseRoutes(protected, purchaseHandler, idempotent)
	RegisterFundingRoutes(protected, fundingHandler, idempotent)

	return &Runtime{Keys: keys, Wait: identitySvc.Wait}, nil
}
