package main

import (
	"context"
	"log"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/aws"
	"github.com/imrishuroy/go-campus-orderflow/internal/config"
	"github.com/imrishuroy/go-campus-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-campus-orderflow/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
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

	p := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Idempotency.TTL),
		aws.NewMetricsEmitter(clients.CloudWatch, cfg.Worker.MetricsNamespace),
		logger,
	)

	// RUN_LOCAL=true processes one event from LOCAL_SQS_BODY and exits.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"event_id":"local-event-1","type":"order.placed","order_id":"local-order-1","vendor_id":"local-vendor","total_amount":252,"item_count":3}`
		}
		resp, err := p.Handle(ctx, lambdaevents.SQSEvent{
			Records: []lambdaevents.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local event failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
