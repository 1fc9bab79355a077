package queue

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// SQSAPI is the subset of *sqs.Client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

// SQSQueue implements Queue on an SQS standard queue.
type SQSQueue struct {
	client            SQSAPI
	url               string
	waitSeconds       int32
	visibilitySeconds int32
}

var _ Queue = (*SQSQueue)(nil)

// NewSQSQueue creates a queue for url. waitSeconds is the long-poll time
// (max 20); visibilitySeconds is the lease granted on each receive and must
// exceed the slowest transform.
func NewSQSQueue(client SQSAPI, url string, waitSeconds, visibilitySeconds int32) *SQSQueue {
	return &SQSQueue{client: client, url: url, waitSeconds: waitSeconds, visibilitySeconds: visibilitySeconds}
}

// URL returns the queue URL.
func (q *SQSQueue) URL() string { return q.url }

func (q *SQSQueue) Enqueue(ctx context.Context, body string) error {
	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return unavailable("send", err)
	}
	log.Debug().Str("messageId", aws.ToString(out.MessageId)).Msg("Message enqueued")
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context) (*Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.waitSeconds,
		VisibilityTimeout:   q.visibilitySeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, unavailable("receive", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	return FromSQS(out.Messages[0]), nil
}

func (q *SQSQueue) Ack(ctx context.Context, m *Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(m.Receipt),
	})
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Abandon makes the message visible again immediately instead of waiting
// for the visibility timeout.
func (q *SQSQueue) Abandon(ctx context.Context, m *Message) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(m.Receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return unavailable("change visibility", err)
	}
	return nil
}

// FromSQS converts an SQS message.
func FromSQS(m types.Message) *Message {
	count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	return &Message{
		ID:           aws.ToString(m.MessageId),
		Body:         aws.ToString(m.Body),
		Receipt:      aws.ToString(m.ReceiptHandle),
		ReceiveCount: count,
	}
}
