package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voicevault/backend/internal/models"
)

const (
	channelPrefix = "user:"
	publishTTL    = 5 * time.Second

	// EventTranscriptionStatus is the event name for transcription state changes.
	EventTranscriptionStatus = "transcription_status"
)

// redisPayload is the message published to Redis for cross-process delivery.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// TranscriptionStatusEvent is the payload pushed to clients when a recording's
// transcription state changes.
type TranscriptionStatusEvent struct {
	RecordingID uuid.UUID               `json:"recording_id"`
	Status      models.TranscriptStatus `json:"status"`
	Error       string                  `json:"error,omitempty"`
}

// RedisPubSub bridges worker and server processes over Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for per-user events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishTranscriptionStatus publishes a status change to the owning user's
// channel. Called from the worker; no-op when nobody is subscribed.
func (r *RedisPubSub) PublishTranscriptionStatus(userID, recordingID uuid.UUID, status models.TranscriptStatus, reason string) error {
	data, err := json.Marshal(TranscriptionStatusEvent{RecordingID: recordingID, Status: status, Error: reason})
	if err != nil {
		return err
	}
	return r.publish(userID, EventTranscriptionStatus, data)
}

func (r *RedisPubSub) publish(userID uuid.UUID, event string, payload []byte) error {
	channel := channelPrefix + userID.String()
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTTL)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// SubscribeUser subscribes to a user's Redis channel and calls handler for each
// message. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeUser(userID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	channel := channelPrefix + userID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	_, err = pubsub.Receive(ctx)
	if err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
