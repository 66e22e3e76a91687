// Package queue decouples document intake from ingestion processing: the
// intake handler enqueues a job keyed by document_id and returns immediately;
// a Worker running out-of-band claims the job, runs the pipeline, and
// acks/nacks based on the outcome.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Enqueuer hands a document off for out-of-band processing. Implementations
// must be safe to call from an HTTP handler goroutine.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID string) error
}

// jobPayload is the wire format published to the ingest topic and read back
// by the worker. Kept deliberately minimal: the worker re-fetches the
// document itself, so the payload only needs enough to identify the job.
type jobPayload struct {
	DocumentID string `json:"document_id"`
}

// PubSubQueue publishes ingestion jobs to a Pub/Sub topic.
type PubSubQueue struct {
	topic *pubsub.Topic
}

// NewPubSubQueue wraps an existing topic handle. Callers are responsible for
// creating the client and resolving/creating the topic (topic.Stop() should
// be called on shutdown).
func NewPubSubQueue(topic *pubsub.Topic) *PubSubQueue {
	return &PubSubQueue{topic: topic}
}

// Compile-time check.
var _ Enqueuer = (*PubSubQueue)(nil)

// Enqueue publishes a job for documentID and waits for the publish to be
// acknowledged by the Pub/Sub service before returning, so a 200 response to
// the uploader only happens once the job is durably queued.
func (q *PubSubQueue) Enqueue(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("queue.Enqueue: documentID is empty")
	}

	data, err := json.Marshal(jobPayload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("queue.Enqueue: marshal payload: %w", err)
	}

	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"document_id": documentID,
		},
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("queue.Enqueue: publish document %s: %w", documentID, err)
	}
	return nil
}
