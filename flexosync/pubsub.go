package flexosync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/models"
)

// PublishReconcileRun queues a run for the sync service to pick up.
func PublishReconcileRun(ctx context.Context, run ReconcilePubSubPayload) error {
	topicName := strings.TrimSpace(os.Getenv("FLEXO_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "flexo-reconcile"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("FLEXO_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(run)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts Pub/Sub push deliveries for queued runs. Always
// responds 204 so malformed messages are dropped instead of redelivered
// forever.
func PubSubPushHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_FLEXO_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload ReconcilePubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.Brand == "" {
			c.Status(204)
			return
		}

		_ = ProcessQueuedRun(c.Request.Context(), engine, payload)
		c.Status(204)
	}
}

// ProcessQueuedRun loads the persisted run record and executes it.
func ProcessQueuedRun(ctx context.Context, engine *Engine, payload ReconcilePubSubPayload) error {
	logger := config.GetLogger()

	run, err := models.GetReconcileRun(ctx, payload.RunId)
	if err != nil {
		config.LogError(logger, moduleName, "ProcessQueuedRun", "Error loading queued run", payload.RunId, err)
		return err
	}
	if run.Status != models.ReconcileRunStatusQueued {
		// Push deliveries are at-least-once; a run already picked up is
		// simply acknowledged.
		return nil
	}

	_, err = engine.Reconcile(ctx, run, Scope{Brand: run.Brand, Batch: run.Batch}, Options{
		Force:       run.Force,
		TriggeredBy: run.TriggeredBy,
	})
	if err != nil && !errors.Is(err, ErrReconcileInProgress) {
		config.LogError(logger, moduleName, "ProcessQueuedRun", "Queued run failed", payload.RunId, err)
	}
	return err
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
