package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/userstore"
	"github.com/nisimpson/userstore/internal/cache"
	"github.com/nisimpson/userstore/internal/config"
	"github.com/nisimpson/userstore/internal/httpapi"
	"github.com/nisimpson/userstore/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init("userapi", cfg.Debug)

	client, err := newDynamoDBClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure DynamoDB client")
	}

	table := userstore.NewTable(cfg.DynamoDB.TableName)
	table.EmailIndexName = cfg.DynamoDB.EmailIndexName
	table.ListIndexName = cfg.DynamoDB.ListIndexName

	if cfg.DynamoDB.CreateTable {
		if err := table.EnsureTable(ctx, client, 2*time.Minute); err != nil {
			logger.Fatal().Err(err).Str("table", table.TableName).Msg("Failed to create table")
		}
		logger.Info().Str("table", table.TableName).Msg("Table ready")
	}

	store := userstore.NewStore(table, client)
	store.Timeout = cfg.DynamoDB.Timeout

	svc := userstore.NewService(store)
	svc.DefaultPageSize = cfg.Pagination.DefaultPageSize
	svc.MaxPageSize = cfg.Pagination.MaxPageSize

	if cfg.Redis.Addr != "" {
		rdb, err := cache.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, running without user cache")
		} else {
			defer rdb.Close()
			userCache := cache.NewUserCache(rdb, cfg.Redis.TTL)
			userCache.TombstoneTTL = max(userCache.TombstoneTTL, 2*cfg.DynamoDB.Timeout)
			svc.Cache = userCache
			logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("User cache enabled")
		}
	}

	router := httpapi.NewRouter(httpapi.Options{
		Service:   svc,
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		Origin:    cfg.Server.Origin,
		RateRPS:   cfg.RateLimit.RPS,
		RateBurst: cfg.RateLimit.Burst,
		Debug:     cfg.Debug,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("table", table.TableName).Msg("Starting user API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server stopped")
}

// newDynamoDBClient loads the default AWS configuration. A configured
// endpoint points the client at DynamoDB Local with static credentials.
func newDynamoDBClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.DynamoDB.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}
	if cfg.DynamoDB.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
		if cfg.DynamoDB.Region == "" {
			opts = append(opts, awsconfig.WithRegion("us-east-1"))
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	}), nil
}
