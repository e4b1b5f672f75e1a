package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	providerclient "github.com/NickKasten/posture/internal/adapter/provider"
	"github.com/NickKasten/posture/internal/apperr"
	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/crypto"
	httptransport "github.com/NickKasten/posture/internal/http"
	"github.com/NickKasten/posture/internal/http/handler"
	"github.com/NickKasten/posture/internal/http/middleware"
	"github.com/NickKasten/posture/internal/jwt"
	"github.com/NickKasten/posture/internal/oauth"
	"github.com/NickKasten/posture/internal/ratelimit"
	"github.com/NickKasten/posture/internal/repository"
	"github.com/NickKasten/posture/internal/server"
	"github.com/NickKasten/posture/internal/service/publisher"
	"github.com/NickKasten/posture/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newTokenCipher,
			newCookieSigner,
			newSessionGenerator,
			newCredentialRepository,
			newCounterStore,
			newRateLimiter,
			newProviderClient,
			newResponder,
			oauth.NewFlow,
			newPublisherService,
			newAuthMiddleware,
			handler.NewConnectHandler,
			handler.NewPublishHandler,
			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runMigrations, rotateTokens, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newTokenCipher(cfg config.Config) (*crypto.Cipher, error) {
	var (
		key []byte
		err error
	)
	if cfg.TokenEncryptionKey != "" {
		key, err = crypto.KeyFromBase64(cfg.TokenEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decode token encryption key: %w", err)
		}
	} else {
		key = crypto.DeriveKey([]byte(cfg.TokenPassphrase), []byte(cfg.TokenSalt))
	}
	return crypto.New(key)
}

func newCookieSigner(cfg config.Config) (*oauth.CookieSigner, error) {
	return oauth.NewCookieSigner(cfg.StateSigningSecret)
}

func newSessionGenerator(cfg config.Config) (*jwt.Generator, error) {
	return jwt.NewGenerator(cfg.JWTSecret, cfg.SessionTTL)
}

func newCredentialRepository(pool *pgxpool.Pool, ids *snowflake.Node) repository.CredentialRepository {
	return repository.NewPostgresCredentialRepo(pool, ids)
}

func newCounterStore(client redis.UniversalClient) ratelimit.CounterStore {
	return ratelimit.NewRedisCounterStore(client)
}

func newRateLimiter(store ratelimit.CounterStore, logger *zap.Logger) *ratelimit.Limiter {
	return ratelimit.NewLimiter(store, logger)
}

func newProviderClient() providerclient.Client {
	return providerclient.NewHTTPClient(nil)
}

func newResponder(cfg config.Config, logger *zap.Logger) *apperr.Responder {
	return apperr.NewResponder(logger, cfg.Production())
}

func newPublisherService(cfg config.Config, creds repository.CredentialRepository, cipher *crypto.Cipher, logger *zap.Logger) *publisher.Service {
	return publisher.NewService(cfg, creds, cipher, logger)
}

func newAuthMiddleware(sessions *jwt.Generator) *middleware.Auth {
	return middleware.NewAuth(sessions)
}

func newRouter(
	cfg config.Config,
	logger *zap.Logger,
	auth *middleware.Auth,
	limiter *ratelimit.Limiter,
	connect *handler.ConnectHandler,
	publish *handler.PublishHandler,
) *gin.Engine {
	return httptransport.NewRouter(httptransport.RouterParams{
		Config:  cfg,
		Logger:  logger,
		Auth:    auth,
		Limiter: limiter,
		Connect: connect,
		Publish: publish,
	})
}

func runMigrations(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}

// rotateTokens re-encrypts stored credentials when the previous key is still
// provided alongside the new one. Remove TOKEN_ENCRYPTION_KEY_PREVIOUS once
// the pass has completed.
func rotateTokens(cfg config.Config, creds repository.CredentialRepository, cipher *crypto.Cipher, logger *zap.Logger) error {
	if cfg.TokenPreviousKey == "" {
		return nil
	}
	oldKey, err := crypto.KeyFromBase64(cfg.TokenPreviousKey)
	if err != nil {
		return fmt.Errorf("decode previous encryption key: %w", err)
	}
	oldCipher, err := crypto.New(oldKey)
	if err != nil {
		return fmt.Errorf("build previous cipher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	rotated, err := creds.RotateAll(ctx, oldCipher, cipher)
	if err != nil {
		return fmt.Errorf("rotate credentials: %w", err)
	}
	logger.Info("credential encryption key rotated", zap.Int("rotated", rotated))
	return nil
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
