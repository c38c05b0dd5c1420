package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/agentdesk/cmd/mainconfig"
	"github.com/wolfman30/agentdesk/internal/app/bootstrap"
	appconfig "github.com/wolfman30/agentdesk/internal/config"
	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

type jobProcessor interface {
	Process(ctx context.Context, body string) error
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}
	app, err := bootstrap.Build(ctx, cfg, awsCfg, logger)
	if err != nil {
		panic(err)
	}

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, app.Processor, logger, evt), nil
	})
}

// handle reports retryable failures as batch item failures so SQS redelivers
// only those records. Malformed jobs are acknowledged and dropped.
func handle(ctx context.Context, processor jobProcessor, logger *logging.Logger, evt events.SQSEvent) events.SQSEventResponse {
	resp := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}
	for _, record := range evt.Records {
		err := processor.Process(ctx, record.Body)
		if err == nil {
			continue
		}
		if !conversation.Retryable(err) {
			logger.Warn("dropping qualification job", "error", err, "message_id", record.MessageId)
			continue
		}
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return resp
}
