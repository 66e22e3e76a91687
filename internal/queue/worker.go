package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"cloud.google.com/go/pubsub"
)

// ClaimRepository is the narrow slice of the document repository the worker
// needs: the compare-and-swap claim that guarantees a document is processed
// by exactly one worker at a time.
type ClaimRepository interface {
	// ClaimForProcessing atomically transitions a PENDING document to
	// PROCESSING, reporting false (no error) if the document was not PENDING.
	ClaimForProcessing(ctx context.Context, documentID string) (bool, error)
}

// Processor runs the ingestion pipeline for an already-claimed document.
type Processor interface {
	ProcessDocument(ctx context.Context, documentID string) error
}

// Worker receives ingestion jobs from a Pub/Sub subscription and drives them
// through claim -> process -> ack/nack.
type Worker struct {
	sub         *pubsub.Subscription
	repo        ClaimRepository
	processor   Processor
	maxAttempts int
}

// NewWorker creates a Worker bound to sub. maxAttempts bounds how many
// delivery attempts are honored before a message is given up on (acked
// without further retry) rather than redelivered forever; it only applies
// when the subscription has a dead-letter policy configured, since that is
// the only case Pub/Sub populates Message.DeliveryAttempt.
func NewWorker(sub *pubsub.Subscription, repo ClaimRepository, processor Processor, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{sub: sub, repo: repo, processor: processor, maxAttempts: maxAttempts}
}

// Run blocks, pulling messages from the subscription until ctx is canceled.
// Only one job runs at a time per Worker; run multiple Workers for
// concurrency, one per goroutine/process.
func (w *Worker) Run(ctx context.Context) error {
	w.sub.ReceiveSettings.NumGoroutines = 1
	w.sub.ReceiveSettings.MaxOutstandingMessages = 1

	return w.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		w.handle(ctx, msg)
	})
}

// action is the terminal disposition of one message delivery.
type action int

const (
	actionAck action = iota
	actionNack
)

func (w *Worker) handle(ctx context.Context, msg *pubsub.Message) {
	var payload jobPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		slog.Error("queue: malformed job payload, dropping", "error", err)
		msg.Ack()
		return
	}
	if payload.DocumentID == "" {
		slog.Error("queue: job payload missing document_id, dropping")
		msg.Ack()
		return
	}

	attempt := deliveryAttempt(msg)
	log := slog.With("document_id", payload.DocumentID, "attempt", attempt)

	claimed, err := w.repo.ClaimForProcessing(ctx, payload.DocumentID)
	if err != nil {
		log.Error("queue: claim failed", "error", err)
		w.dispose(msg, decideClaimFailure(attempt, w.maxAttempts), log)
		return
	}
	if !claimed {
		log.Info("queue: document not pending, treating delivery as a no-op")
		msg.Ack()
		return
	}

	log.Info("queue: claimed document, running pipeline")
	if err := w.processor.ProcessDocument(ctx, payload.DocumentID); err != nil {
		log.Error("queue: pipeline run failed", "error", err)
		// ProcessDocument records a FAILED status (with the triggering error)
		// for every failure path except an infra error during finalization,
		// so by the time we observe err here the document is almost always
		// already terminal and can no longer be re-claimed. Redelivering
		// would just repeat this no-op claim forever, so we ack and leave
		// recovery to an explicit Reprocess call.
		msg.Ack()
		return
	}

	msg.Ack()
}

// dispose applies the given action to msg, logging when attempts are exhausted.
func (w *Worker) dispose(msg *pubsub.Message, act action, log *slog.Logger) {
	switch act {
	case actionAck:
		log.Error("queue: giving up after max delivery attempts")
		msg.Ack()
	default:
		msg.Nack()
	}
}

// decideClaimFailure is the pure policy behind dispose: once a transient
// claim error has been retried maxAttempts times, stop redelivering.
func decideClaimFailure(attempt, maxAttempts int) action {
	if attempt >= maxAttempts {
		return actionAck
	}
	return actionNack
}

// deliveryAttempt reads Pub/Sub's delivery counter, defaulting to 1 when the
// subscription has no dead-letter policy configured (the only condition
// under which Pub/Sub leaves it nil).
func deliveryAttempt(msg *pubsub.Message) int {
	if msg.DeliveryAttempt == nil {
		return 1
	}
	return *msg.DeliveryAttempt
}
