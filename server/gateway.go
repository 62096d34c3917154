package server

import (
	"context"
	"fmt"
	"log"
	"pixgate/audit"
	"pixgate/cache"
	"pixgate/dashboard"
	"pixgate/internal"
	"pixgate/internal/config"
	"pixgate/internal/errorlistener"
	"pixgate/internal/memdb"
	"pixgate/metrics"
	"pixgate/payments"
	"pixgate/providers"
	"pixgate/providers/bb"
	"pixgate/providers/bradesco"
	"pixgate/providers/inter"
	"pixgate/providers/itau"
	"pixgate/providers/sandbox"
	"pixgate/providers/santander"
	"pixgate/pusher"
	"pixgate/reconcile"
	"pixgate/security"
	"pixgate/telegram"
	"pixgate/webhook"
	"time"

	"golang.org/x/sync/errgroup"
)

const auditCleanupInterval = 24 * time.Hour

// Gateway owns every long running part of the process
type Gateway struct {
	conf       *config.Config
	location   *time.Location
	logger     *internal.Logger
	mongo      *internal.MongoDB
	redis      *cache.RedisStore
	server     *Server
	audit      *audit.Service
	dispatcher *webhook.Dispatcher
	reconciler *reconcile.Reconciler
	health     *providers.HealthMonitor
	hub        *Hub
	pusher     *pusher.EventPusher
}

// adapters lists the bank integrations that can be enabled from configuration
func adapters() []providers.PixProvider {
	return []providers.PixProvider{
		bb.New(),
		inter.New(),
		santander.New(),
		itau.New(),
		bradesco.New(),
		sandbox.New(),
	}
}

func NewGateway(conf *config.Config) (*Gateway, error) {
	g := &Gateway{conf: conf}

	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone initialization failed: %s", err)
	}
	g.location = location

	var database internal.Database
	if conf.Mongo.Enabled {
		g.mongo, err = internal.NewMongoClient(conf)
		if err != nil {
			return nil, fmt.Errorf("mongodb setup failed: %s", err)
		}
		if err = g.mongo.EnsureIndexes(); err != nil {
			return nil, fmt.Errorf("mongodb indexes: %s", err)
		}
		database = g.mongo
		log.Println("mongodb is configured and enabled")
	} else {
		database = memdb.New()
		log.Println("database is disabled, using in-memory storage")
	}
	if err = seedAdmin(database, conf); err != nil {
		return nil, fmt.Errorf("admin user: %s", err)
	}

	logService := internal.NewLogger(location)
	logService.SetDebugMode(conf.IsDebug)
	if g.mongo != nil {
		logService.SetDatabase(database)
	}
	g.logger = logService

	encryptor, err := newEncryptor(conf, g.mongo == nil)
	if err != nil {
		return nil, err
	}
	jwtSecret, err := secretOf(conf.Jwt.Secret, "jwt secret", g.mongo == nil)
	if err != nil {
		return nil, err
	}
	tokens := security.NewTokenService([]byte(jwtSecret), conf.Jwt.AccessTTL, conf.Jwt.RefreshTTL)

	var tokenStore cache.TokenStore = cache.NewMemoryStore()
	if conf.Redis.Enabled {
		g.redis = cache.NewRedisStore(conf.Redis.Address, conf.Redis.Password, conf.Redis.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = g.redis.Ping(ctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis setup failed: %s", err)
		}
		tokenStore = g.redis
		log.Println("redis token cache is configured and enabled")
	}

	registry, err := newRegistry(conf, logService.RawDataEvent)
	if err != nil {
		return nil, err
	}

	// audit trail
	g.audit = audit.NewService(database, conf.Audit.RetentionYears)
	g.audit.SetLogger(logService)

	manager := providers.NewManager(registry, database, encryptor, tokenStore)
	manager.SetLogger(logService)
	if conf.Audit.Enabled {
		manager.SetRecorder(g.audit)
	}

	g.health = providers.NewHealthMonitor(registry, database, conf.Health.Interval)
	g.health.SetLogger(logService)

	paymentService := payments.NewService(database, manager)
	paymentService.SetLogger(logService)
	if conf.Audit.Enabled {
		paymentService.SetAuditor(g.audit)
	}

	builder := dashboard.NewBuilder(database, location)

	// transaction event listeners
	g.dispatcher = webhook.NewDispatcher(database, conf.Webhooks.Workers, conf.Webhooks.Timeout, conf.Webhooks.MaxRetries)
	g.dispatcher.SetLogger(logService)
	g.dispatcher.AllowPrivateTargets(conf.Webhooks.AllowPrivate)
	if conf.Audit.Enabled {
		g.dispatcher.SetRecorder(g.audit)
	}
	paymentService.AddEventListener(g.dispatcher)

	errorListener := errorlistener.NewErrorListener(database, logService, location)
	errorListener.UpdateCounter()
	paymentService.AddEventListener(errorListener)

	g.hub = NewHub(builder, 2*time.Second)
	g.hub.SetLogger(logService)
	paymentService.AddEventListener(g.hub)

	if conf.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(conf.Telegram.ApiKey)
		if err != nil {
			return nil, fmt.Errorf("telegram bot setup failed: %s", err)
		}
		telegramBot.SetDatabase(database)
		telegramBot.SetStatusSource(builder)
		telegramBot.SetLogger(logService)
		telegramBot.Start()
		paymentService.AddEventListener(telegramBot)
		log.Println("telegram bot is configured and enabled")
	}

	if conf.Pusher.Enabled {
		g.pusher, err = pusher.NewPusher(conf)
		if err != nil {
			return nil, fmt.Errorf("pusher setup failed: %s", err)
		}
		g.pusher.SetLogger(logService)
		g.pusher.Start()
		paymentService.AddEventListener(g.pusher)
		log.Println("pusher service is configured and enabled")
	}

	g.reconciler = reconcile.NewReconciler(database, paymentService, conf.Reconcile.Interval, conf.Reconcile.Batch)
	g.reconciler.SetLogger(logService)
	g.reconciler.SetLocation(location)

	// http listener
	server := NewServer(conf, database, tokens)
	server.SetLogger(logService)
	server.SetPaymentService(paymentService)
	if conf.Audit.Enabled {
		server.SetAuditService(g.audit)
	}
	server.SetDashboard(builder)
	server.SetProviders(manager, g.health)
	server.SetHub(g.hub)
	g.server = server

	return g, nil
}

// newRegistry initializes every adapter enabled in configuration; tracer receives their raw traffic
func newRegistry(conf *config.Config, tracer providers.Tracer) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	for _, adapter := range adapters() {
		settings, ok := conf.Providers[adapter.Code()]
		if !ok || !settings.Enabled {
			continue
		}
		if traceable, ok := adapter.(providers.Traceable); ok {
			traceable.SetTracer(tracer)
		}
		baseURL := settings.BaseURL
		if conf.IsDebug && settings.SandboxURL != "" {
			baseURL = settings.SandboxURL
		}
		err := adapter.Initialize(providers.Config{
			BaseURL:      baseURL,
			AuthURL:      settings.AuthURL,
			Timeout:      settings.Timeout,
			MaxRetries:   settings.MaxRetries,
			RequiresMTLS: settings.RequiresMTLS,
			CertFile:     settings.CertFile,
			KeyFile:      settings.KeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s setup failed: %s", adapter.Code(), err)
		}
		registry.Register(adapter)
		log.Printf("provider %s (%s) is configured and enabled", adapter.Code(), adapter.Name())
	}
	return registry, nil
}

// newEncryptor loads the credential key; in-memory mode may run with a throwaway key
func newEncryptor(conf *config.Config, ephemeral bool) (*security.Encryptor, error) {
	if conf.Encryption.Key == "" && ephemeral {
		key, err := security.GenerateKeyBase64()
		if err != nil {
			return nil, err
		}
		log.Println("encryption key is not set, using a temporary key")
		return security.NewEncryptorFromBase64(key)
	}
	encryptor, err := security.NewEncryptorFromBase64(conf.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption setup failed: %s", err)
	}
	return encryptor, nil
}

func secretOf(value, name string, ephemeral bool) (string, error) {
	if value != "" {
		return value, nil
	}
	if !ephemeral {
		return "", fmt.Errorf("%s is required", name)
	}
	secret, err := security.RandomSecret(32)
	if err != nil {
		return "", err
	}
	log.Printf("%s is not set, using a temporary one", name)
	return secret, nil
}

// Run serves until ctx is cancelled, then shuts every part down in order
func (g *Gateway) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	g.dispatcher.Start(ctx)

	group.Go(func() error {
		if err := g.server.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.conf.Listen.ShutdownTimeout)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return metrics.Listen(ctx, g.conf)
	})
	group.Go(func() error {
		g.health.Start(ctx)
		return nil
	})
	group.Go(func() error {
		g.reconciler.Start(ctx)
		return nil
	})
	group.Go(func() error {
		g.hub.Start(ctx)
		return nil
	})
	if g.conf.Audit.Enabled {
		group.Go(func() error {
			g.cleanupAudit(ctx)
			return nil
		})
	}

	err := group.Wait()
	g.close()
	return err
}

func (g *Gateway) cleanupAudit(ctx context.Context) {
	ticker := time.NewTicker(auditCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := g.audit.Cleanup()
			if err != nil {
				g.logger.Error("audit cleanup", err)
				continue
			}
			if removed > 0 {
				g.logger.FeatureEvent("Audit", "", fmt.Sprintf("removed %d entries past retention", removed))
			}
		}
	}
}

func (g *Gateway) close() {
	g.dispatcher.Stop()
	if g.pusher != nil {
		g.pusher.Stop()
	}
	g.audit.Close()
	if g.redis != nil {
		if err := g.redis.Close(); err != nil {
			g.logger.Warn(fmt.Sprintf("closing redis: %s", err))
		}
	}
	g.logger.Close()
	if g.mongo != nil {
		g.mongo.Close()
	}
}
