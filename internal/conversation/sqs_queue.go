package conversation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQS caps for ReceiveMessage and visibility timeouts.
const (
	sqsMaxBatch      = 10
	sqsMaxWait       = 20 * time.Second
	sqsMaxVisibility = 12 * time.Hour
)

// SQSQueue is a JobQueue on an SQS (or LocalStack) queue.
type SQSQueue struct {
	api sqsAPI
	url string
}

func NewSQSQueue(api sqsAPI, url string) *SQSQueue {
	if api == nil {
		panic("conversation: sqs client required")
	}
	if url == "" {
		panic("conversation: sqs queue url required")
	}
	return &SQSQueue{api: api, url: url}
}

func (q *SQSQueue) Send(ctx context.Context, body string) error {
	if _, err := q.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(jobKindQualify)},
		},
	}); err != nil {
		return fmt.Errorf("conversation: sqs send: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, limit int, wait time.Duration) ([]Delivery, error) {
	limit = min(max(limit, 1), sqsMaxBatch)
	wait = min(wait, sqsMaxWait)
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(limit),
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: sqs receive: %w", err)
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		receives, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		deliveries = append(deliveries, Delivery{
			ID:       aws.ToString(m.MessageId),
			Body:     aws.ToString(m.Body),
			Receipt:  aws.ToString(m.ReceiptHandle),
			Receives: max(receives, 1),
		})
	}
	return deliveries, nil
}

func (q *SQSQueue) Ack(ctx context.Context, receipt string) error {
	if receipt == "" {
		return nil
	}
	if _, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		return fmt.Errorf("conversation: sqs delete: %w", err)
	}
	return nil
}

// Release shortens the visibility timeout so the message comes back after
// delay instead of the queue default.
func (q *SQSQueue) Release(ctx context.Context, receipt string, delay time.Duration) error {
	if receipt == "" {
		return nil
	}
	delay = min(max(delay, 0), sqsMaxVisibility)
	if _, err := q.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: int32(delay / time.Second),
	}); err != nil {
		return fmt.Errorf("conversation: sqs change visibility: %w", err)
	}
	return nil
}
