// Package notify publishes an event for every artifact the worker writes so
// downstream consumers can react without polling the content store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/worker"
)

// Event envelope values.
const (
	Source     = "media.pipeline"
	DetailType = "ArtifactProcessed"
)

// EventBridgeAPI is the subset of the EventBridge client the notifier uses.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Detail is the event payload.
type Detail struct {
	MediaID         string            `json:"mediaId,omitempty"`
	ProcessingType  string            `json:"processingType"`
	SourceNamespace string            `json:"sourceNamespace"`
	SourceKey       string            `json:"sourceKey"`
	Namespace       string            `json:"namespace"`
	Key             string            `json:"key"`
	ContentType     string            `json:"contentType"`
	Size            int               `json:"size"`
	Parameters      map[string]string `json:"parameters,omitempty"`
}

// EventBridge implements worker.Notifier.
type EventBridge struct {
	client EventBridgeAPI
	bus    string
	now    func() time.Time
}

var _ worker.Notifier = (*EventBridge)(nil)

// NewEventBridge returns a notifier publishing to bus. An empty bus name
// targets the account's default bus.
func NewEventBridge(client EventBridgeAPI, bus string) *EventBridge {
	if bus == "" {
		bus = "default"
	}
	return &EventBridge{client: client, bus: bus, now: time.Now}
}

// DetailFor builds the event payload for o.
func DetailFor(o worker.Outcome) Detail {
	return Detail{
		MediaID:         o.Request.MediaID,
		ProcessingType:  o.Request.Type.String(),
		SourceNamespace: o.Request.Namespace,
		SourceKey:       o.Request.SourceKey,
		Namespace:       o.Namespace,
		Key:             o.DerivedKey,
		ContentType:     o.ContentType,
		Size:            o.Size,
		Parameters:      o.Plan.Params,
	}
}

func (n *EventBridge) ArtifactProcessed(ctx context.Context, o worker.Outcome) error {
	detail, err := json.Marshal(DetailFor(o))
	if err != nil {
		return fmt.Errorf("encode event detail: %w", err)
	}
	out, err := n.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(n.bus),
			Source:       aws.String(Source),
			DetailType:   aws.String(DetailType),
			Detail:       aws.String(string(detail)),
			Resources:    []string{o.Ref()},
			Time:         aws.Time(n.now()),
		}},
	})
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	if out.FailedEntryCount > 0 && len(out.Entries) > 0 {
		e := out.Entries[0]
		return fmt.Errorf("event rejected: %s: %s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
	}
	log.Debug().Str("bus", n.bus).Str("artifact", o.Ref()).Msg("Artifact event published")
	return nil
}
