package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/auth"
	"github.com/imrishuroy/go-campus-orderflow/internal/aws"
	"github.com/imrishuroy/go-campus-orderflow/internal/cache"
	"github.com/imrishuroy/go-campus-orderflow/internal/cart"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/config"
	orderevents "github.com/imrishuroy/go-campus-orderflow/internal/events"
	"github.com/imrishuroy/go-campus-orderflow/internal/handlers"
	"github.com/imrishuroy/go-campus-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-campus-orderflow/internal/logging"
	"github.com/imrishuroy/go-campus-orderflow/internal/orders"
	"github.com/imrishuroy/go-campus-orderflow/internal/reports"
	"github.com/imrishuroy/go-campus-orderflow/internal/validation"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.ClientOptions{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.EndpointOverride,
	})
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	var c cache.Cache = cache.Noop{}
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rc.Ping(ctx); err != nil {
			// menu reads and revocations degrade to misses
			logger.Warn("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rc.Close()
		c = rc
	}

	var pub orderevents.Publisher
	if cfg.AWS.OrdersQueueURL != "" {
		pub = orderevents.NewSQSPublisher(aws.NewPublisher(clients.SQS, cfg.AWS.OrdersQueueURL))
	} else {
		logger.Info("ORDERS_QUEUE_URL not set, order events are discarded")
	}

	acctStore := accounts.NewStore(clients.DynamoDB, cfg.Tables.Accounts, cfg.Tables.AccountKeys)
	itemStore := catalog.NewStore(clients.DynamoDB, cfg.Tables.MenuItems)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.Tables.Orders, cfg.Tables.OrderCodes)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	hasher := auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}

	orderSvc := orders.NewService(orderStore, acctStore, itemStore, pub, logger.Named("orders"))

	r := handlers.NewRouter(handlers.Config{
		Logger:         logger,
		Validator:      validation.New(validation.Options{StudentDomain: cfg.Auth.StudentEmailDomain}),
		Tokens:         tokens,
		TokenTTL:       cfg.Auth.JWTTTL,
		Revocations:    auth.NewRevocations(c),
		AccountStore:   acctStore,
		Accounts:       accounts.NewService(acctStore, hasher, tokens, cfg.Auth.StudentEmailDomain, logger.Named("accounts")),
		Catalog:        catalog.NewService(itemStore, acctStore, orderStore, c, cfg.Redis.MenuCacheTTL, logger.Named("catalog")),
		Cart:           cart.NewService(acctStore, itemStore, orderSvc, logger.Named("cart")),
		Orders:         orderSvc,
		Reports:        reports.NewService(orderSvc, itemStore),
		Idempotency:    idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Idempotency.TTL),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.Server.RunLocal {
		logger.Info("running local server", zap.String("addr", cfg.Server.Addr))
		if err := r.Run(cfg.Server.Addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
