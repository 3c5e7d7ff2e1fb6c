package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/crypto/bcrypt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainshopapp/chainshop/internal/cache"
	"github.com/chainshopapp/chainshop/internal/catalog"
	"github.com/chainshopapp/chainshop/internal/config"
	"github.com/chainshopapp/chainshop/internal/db"
	"github.com/chainshopapp/chainshop/internal/escrow"
	"github.com/chainshopapp/chainshop/internal/handlers"
	"github.com/chainshopapp/chainshop/internal/services"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Reconciler    *services.Reconciler
	Handlers      *handlers.Handlers

	reconcilerCancel context.CancelFunc
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(startupCtx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	escrowClient, err := escrow.Dial(startupCtx, escrow.Config{
		RPCURL:          cfg.ChainRPCURL,
		OwnerKeyHex:     cfg.EscrowOwnerKey,
		BytecodePath:    cfg.EscrowContractBin,
		ConnectRetries:  cfg.ChainConnectRetries,
		ConnectInterval: cfg.ChainConnectInterval,
		CallTimeout:     cfg.ChainCallTimeout,
		ReceiptTimeout:  cfg.ChainReceiptTimeout,
	}, logger.With("component", "escrow_client"))
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to connect to chain: %w", err)
	}

	userStore := db.NewUserStore(database)
	orderStore := db.NewOrderStore(database)
	productStore := db.NewProductStore(database)

	if err := seedOwner(startupCtx, cfg, userStore); err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, err
	}
	if err := seedCatalog(startupCtx, cfg, productStore, logger); err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, err
	}

	catalogReader := catalog.NewReader(productStore, cacheProvider, cfg.CatalogCacheTTL,
		logger.With("component", "catalog_reader"))

	authService := services.NewAuthService(userStore, []byte(cfg.JWTSecret),
		logger.With("component", "auth_service"))
	orderLifecycle := services.NewOrderLifecycle(orderStore, catalogReader, escrowClient,
		logger.With("component", "order_lifecycle"))
	catalogService := services.NewCatalogService(productStore,
		logger.With("component", "catalog_service"))
	reconciler := services.NewReconciler(orderStore, escrowClient, cfg.ReconcileInterval,
		logger.With("component", "reconciler"))

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		AuthService:    authService,
		OrderLifecycle: orderLifecycle,
		CatalogService: catalogService,
		Logger:         logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	reconcilerCtx, reconcilerCancel := context.WithCancel(context.Background())
	go reconciler.Run(reconcilerCtx)

	return &App{
		Config:           cfg,
		Logger:           logger,
		DB:               database,
		CacheProvider:    cacheProvider,
		Reconciler:       reconciler,
		Handlers:         h,
		reconcilerCancel: reconcilerCancel,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.reconcilerCancel != nil {
		a.reconcilerCancel()
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func seedOwner(ctx context.Context, cfg *config.Config, users *db.UserStore) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.OwnerPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash owner password: %w", err)
	}
	if err := users.EnsureSeed(ctx, cfg.OwnerEmail, string(hash)); err != nil {
		return fmt.Errorf("failed to seed owner account: %w", err)
	}
	return nil
}

func seedCatalog(ctx context.Context, cfg *config.Config, products *db.ProductStore, logger *slog.Logger) error {
	if cfg.CatalogSeed == "" {
		return nil
	}
	content, err := os.ReadFile(cfg.CatalogSeed)
	if err != nil {
		return fmt.Errorf("failed to read catalog seed: %w", err)
	}
	seed, err := catalog.ParseSeed(content)
	if err != nil {
		return err
	}
	return services.SeedCatalog(ctx, products, seed, logger)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
