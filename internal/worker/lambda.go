package worker

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
)

// HandleSQSEvent processes an SQS-triggered batch. Messages that should be
// retried are reported as batch item failures; everything else is deleted by
// the Lambda service. The function needs ReportBatchItemFailures enabled on
// its event source mapping.
func (w *Worker) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range event.Records {
		if ctx.Err() != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			continue
		}
		if d := w.Handle(ctx, rec.MessageId, []byte(rec.Body)); !d.Deletes() {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}
