// Package relay broadcasts document updates between process instances
// over Redis pub/sub, so clients of the same page connected to different
// instances converge.
package relay

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "pagespace:doc:"

// envelope tags each published update with the sending instance so an
// instance can skip its own messages coming back around.
type envelope struct {
	Source string `json:"src"`
	Update []byte `json:"update"`
}

// RedisRelay implements collab.Relay on a Redis pub/sub channel per
// document.
type RedisRelay struct {
	client   *redis.Client
	instance string
	logger   *zap.Logger
}

func NewRedisRelay(client *redis.Client, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:   client,
		instance: uuid.New().String(),
		logger:   logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, document string, update []byte) error {
	payload, err := json.Marshal(envelope{Source: r.instance, Update: update})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channelPrefix+document, payload).Err()
}

// Subscribe pumps remote updates for document into apply until the
// returned cancel function is called.
func (r *RedisRelay) Subscribe(document string, apply func(update []byte)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := r.client.Subscribe(ctx, channelPrefix+document)
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropped malformed relay message",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if env.Source == r.instance {
				continue
			}
			apply(env.Update)
		}
	}()

	return func() {
		cancel()
		_ = sub.Close()
	}, nil
}
