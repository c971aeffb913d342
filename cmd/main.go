package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"draft-polisher/handler"
	"draft-polisher/internal/config"
	"draft-polisher/internal/identity"
	"draft-polisher/internal/integrations/gemini"
	"draft-polisher/internal/integrations/openai"
	"draft-polisher/internal/integrations/paramstore"
	"draft-polisher/internal/logging"
	"draft-polisher/internal/metrics"
	"draft-polisher/internal/quota"
	"draft-polisher/internal/repository"
	"draft-polisher/internal/usecase"
)

// localPrefix namespaces API keys taken from config rather than SSM.
const localPrefix = "/local"

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger.Logger())
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config, only when a component needs it ----
	var awsCfg aws.Config
	if cfg.StoreDriver == string(repository.DriverDynamoDB) || cfg.ParamPrefix != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
	}

	// ---- Store ----
	opts := []repository.Option{
		repository.WithSQLitePath(cfg.SQLitePath),
		repository.WithPostgresDSN(cfg.PostgresDSN),
	}
	if cfg.StoreDriver == string(repository.DriverDynamoDB) {
		opts = append(opts, repository.WithDynamoDB(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable))
	}
	if cfg.QuotaBackend == config.QuotaBackendRedis {
		opts = append(opts, repository.WithRedisCounters(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), 0))
	}
	store, err := repository.Open(repository.Driver(cfg.StoreDriver), opts...)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", "err", err)
		}
	}()

	// ---- Clients ----
	rewriter, err := newRewriter(cfg, awsCfg)
	if err != nil {
		slog.Error("failed to create rewrite client", "provider", cfg.RewriteProvider, "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	resolver, err := identity.NewResolver(store, cfg.SessionTimeout(), logger)
	if err != nil {
		slog.Error("failed to create identity resolver", "err", err)
		os.Exit(1)
	}
	enforcer, err := quota.NewEnforcer(store, cfg.DailyLimit, logger)
	if err != nil {
		slog.Error("failed to create quota enforcer", "err", err)
		os.Exit(1)
	}
	improveService, err := usecase.NewImproveService(resolver, enforcer, rewriter, logger)
	if err != nil {
		slog.Error("failed to create improve service", "err", err)
		os.Exit(1)
	}
	sessionsService, err := usecase.NewSessionsService(store)
	if err != nil {
		slog.Error("failed to create sessions service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(improveService, sessionsService, logger, metrics.New())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(h.Handle)
		return
	}
	if err := serve(ctx, cfg.ListenAddr(), h.Router()); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newRewriter(cfg *config.Config, awsCfg aws.Config) (usecase.Rewriter, error) {
	var (
		getter paramstore.Getter
		prefix = cfg.ParamPrefix
	)
	if prefix != "" {
		client, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		getter = client
	} else {
		prefix = localPrefix
		getter = paramstore.Static{
			localPrefix + "/gemini-api-key": cfg.GeminiAPIKey,
			localPrefix + "/open-ai-token":  cfg.OpenAIAPIKey,
		}
	}

	switch cfg.RewriteProvider {
	case config.ProviderOpenAI:
		c, err := openai.NewClient(getter, prefix, openai.WithBaseURL(cfg.OpenAIBaseURL), openai.WithModel(cfg.OpenAIModel))
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderGemini:
		c, err := gemini.NewClient(getter, prefix, gemini.WithEndpoint(cfg.GeminiAPIEndpoint))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown rewrite provider %q", cfg.RewriteProvider)
}

// serve runs the HTTP server until SIGINT or SIGTERM, then drains it.
func serve(ctx context.Context, addr string, h http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
